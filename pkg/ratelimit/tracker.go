package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for cooldown tracking.
var (
	cooldownsRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cidb_ratelimit_cooldowns_total",
		Help: "Total number of 429 cooldown windows recorded",
	})

	cooldownWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cidb_ratelimit_waits_total",
		Help: "Total number of requests that waited for an active cooldown",
	})

	cooldownWaitSeconds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cidb_ratelimit_wait_seconds_total",
		Help: "Total seconds spent waiting for cooldown windows",
	})
)

// Tracker records and observes the shared 429 cooldown window.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewTracker creates a new cooldown tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
	}
}

// GetState retrieves the current cooldown state from Redis.
// Returns an inactive state if no data exists.
func (t *Tracker) GetState(ctx context.Context) (*CooldownState, error) {
	untilTimestamp, err := t.redis.Get(ctx, RedisKeyCooldownUntil).Int64()
	if err != nil {
		if err == redis.Nil {
			return &CooldownState{}, nil
		}
		return nil, fmt.Errorf("get cooldown until: %w", err)
	}

	lastUpdateStr, err := t.redis.Get(ctx, RedisKeyLastUpdate).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get last update: %w", err)
	}

	var lastUpdate time.Time
	if lastUpdateStr != "" {
		if err := json.Unmarshal([]byte(lastUpdateStr), &lastUpdate); err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
	}

	return &CooldownState{
		CooldownUntil: time.Unix(untilTimestamp, 0),
		LastUpdate:    lastUpdate,
	}, nil
}

// Record stores a cooldown window of the given duration in Redis. Every
// client sharing the Redis instance observes it via Wait.
func (t *Tracker) Record(ctx context.Context, d time.Duration) error {
	now := time.Now()
	until := now.Add(d)

	lastUpdateJSON, err := json.Marshal(now)
	if err != nil {
		return fmt.Errorf("marshal last update: %w", err)
	}

	// Keep the keys around slightly longer than the window itself so
	// GetState after expiry falls back to the inactive default.
	ttl := d + time.Minute

	pipe := t.redis.Pipeline()
	pipe.Set(ctx, RedisKeyCooldownUntil, until.Unix(), ttl)
	pipe.Set(ctx, RedisKeyLastUpdate, lastUpdateJSON, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store cooldown state in redis: %w", err)
	}

	cooldownsRecordedTotal.Inc()

	t.logger.Warn().
		Dur("cooldown", d).
		Time("until", until).
		Msg("Rate limit cooldown recorded")

	return nil
}

// Wait blocks until the active cooldown window (if any) has elapsed or the
// context is cancelled. A missing or expired window returns immediately.
func (t *Tracker) Wait(ctx context.Context) error {
	state, err := t.GetState(ctx)
	if err != nil {
		return fmt.Errorf("get cooldown state: %w", err)
	}

	if !state.Active() {
		return nil
	}

	remaining := state.Remaining()

	t.logger.Info().
		Dur("remaining", remaining).
		Msg("Waiting for shared rate limit cooldown")

	cooldownWaitsTotal.Inc()
	cooldownWaitSeconds.Add(remaining.Seconds())

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
