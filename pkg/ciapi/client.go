// Package ciapi provides a client for the CI provider's metadata API with
// shared rate limit handling and Redis-backed response caching.
package ciapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/reprobench/cidb-client/pkg/cache"
	"github.com/reprobench/cidb-client/pkg/ratelimit"
)

// Prometheus metrics for CI API client operations.
var (
	ciapiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cidb_ciapi_requests_total",
		Help: "Total CI API requests by status",
	}, []string{"status"})

	ciapiRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cidb_ciapi_request_duration_seconds",
		Help:    "CI API request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	})

	ciapiRateLimitRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cidb_ciapi_rate_limit_retries_total",
		Help: "Total number of requests retried after a 429 response",
	})
)

// RateLimitRetryDelay is the pause after a 429 response before retrying.
const RateLimitRetryDelay = 5 * time.Second

// Client is a CI metadata API client. Requests that hit the provider's rate
// limit are retried until they succeed or the context is cancelled; the
// observed cooldown is shared with other processes through Redis.
type Client struct {
	httpClient  *http.Client
	config      Config
	rateLimiter *ratelimit.Tracker
	cache       *cache.Manager
	logger      zerolog.Logger
}

// Config holds the CI API client configuration.
type Config struct {
	// BaseURL of the CI provider's API (e.g., "https://api.travis-ci.com").
	BaseURL string

	// Token for the Authorization header. Optional; public endpoints work
	// without it at a lower rate limit.
	Token string

	// Redis client for response caching and shared cooldown state.
	// Optional; without it every request goes to the network and rate
	// limit cooldowns are process-local.
	Redis *redis.Client

	// HTTPTimeout for individual requests.
	HTTPTimeout time.Duration

	// RetryDelay is the pause after a 429 response before retrying.
	// Defaults to RateLimitRetryDelay.
	RetryDelay time.Duration
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:     baseURL,
		HTTPTimeout: 30 * time.Second,
		RetryDelay:  RateLimitRetryDelay,
	}
}

// New creates a new CI API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = RateLimitRetryDelay
	}

	logger := log.With().Str("component", "ciapi").Logger()

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		config: cfg,
		logger: logger,
	}

	if cfg.Redis != nil {
		c.rateLimiter = ratelimit.NewTracker(cfg.Redis, logger)
		c.cache = cache.NewManager(cfg.Redis)
	}

	return c, nil
}

// GetJSON fetches endpoint with the given query parameters and decodes the
// JSON response into v.
//
// 429 responses are retried indefinitely with a fixed delay; cancel the
// context to give up. A 404 returns ErrNotFound. Any other non-2xx status
// returns a *StatusError.
func (c *Client) GetJSON(ctx context.Context, endpoint string, query url.Values, v any) error {
	for {
		err := c.getOnce(ctx, endpoint, query, v)
		if err == errRateLimited {
			ciapiRateLimitRetriesTotal.Inc()

			c.logger.Info().
				Str("endpoint", endpoint).
				Dur("delay", c.config.RetryDelay).
				Msg("Rate limited, retrying after delay")

			timer := time.NewTimer(c.config.RetryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			continue
		}
		return err
	}
}

// errRateLimited signals getOnce observed a 429; GetJSON retries.
var errRateLimited = fmt.Errorf("rate limited")

func (c *Client) getOnce(ctx context.Context, endpoint string, query url.Values, v any) error {
	// Wait out any cooldown another process has already recorded.
	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return err
			}
			c.logger.Warn().Err(err).Msg("Cooldown check failed")
		}
	}

	reqURL := c.config.BaseURL + endpoint
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.Token != "" {
		req.Header.Set("Authorization", "token "+c.config.Token)
	}

	var cacheKey cache.Key
	var cachedEntry *cache.Entry
	if c.cache != nil {
		cacheKey = cache.Key{Endpoint: endpoint, QueryParams: query}

		cachedEntry, err = c.cache.Get(ctx, cacheKey)
		if err != nil && err != cache.ErrCacheMiss {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
			cachedEntry = nil
		}

		if cache.ShouldRevalidate(cachedEntry) {
			cache.AddConditionalHeaders(req, cachedEntry)
			cache.ConditionalRequestsSent.Inc()
			c.logger.Debug().
				Str("endpoint", endpoint).
				Str("etag", cachedEntry.ETag).
				Msg("Making conditional request")
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	ciapiRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		ciapiRequestsTotal.WithLabelValues("network_error").Inc()
		return fmt.Errorf("GET %s: %w", reqURL, err)
	}
	defer resp.Body.Close()

	ciapiRequestsTotal.WithLabelValues(fmt.Sprintf("%d", resp.StatusCode)).Inc()

	switch {
	case resp.StatusCode == http.StatusNotModified && cachedEntry != nil:
		cache.NotModifiedResponses.Inc()
		c.logger.Debug().Str("endpoint", endpoint).Msg("304 Not Modified, using cache")

		if expiresStr := resp.Header.Get("Expires"); expiresStr != "" {
			if newExpires, err := http.ParseTime(expiresStr); err == nil {
				if err := c.cache.UpdateTTL(ctx, cacheKey, newExpires); err != nil {
					c.logger.Warn().Err(err).Msg("Failed to update cache TTL")
				}
			}
		}

		if v == nil {
			return nil
		}
		return json.Unmarshal(cachedEntry.Data, v)

	case resp.StatusCode == http.StatusTooManyRequests:
		if c.rateLimiter != nil {
			if err := c.rateLimiter.Record(ctx, ratelimit.DefaultCooldown); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to record cooldown")
			}
		}
		return errRateLimited

	case resp.StatusCode == http.StatusNotFound:
		c.logger.Error().
			Str("endpoint", endpoint).
			Msg("CI API resource not found")
		return fmt.Errorf("GET %s: %w", reqURL, ErrNotFound)

	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		c.logger.Error().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Msg("CI API request failed")
		return &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if c.cache != nil {
		entry := &cache.Entry{
			Data:       body,
			ETag:       resp.Header.Get("ETag"),
			StatusCode: resp.StatusCode,
			Headers:    resp.Header.Clone(),
			CachedAt:   time.Now(),
		}
		if lastModStr := resp.Header.Get("Last-Modified"); lastModStr != "" {
			if lastMod, err := http.ParseTime(lastModStr); err == nil {
				entry.LastModified = lastMod
			}
		}
		entry.Expires = time.Now().Add(cache.DefaultTTL)
		if expiresStr := resp.Header.Get("Expires"); expiresStr != "" {
			if expires, err := http.ParseTime(expiresStr); err == nil && expires.After(time.Now()) {
				entry.Expires = expires
			}
		}

		if entry.TTL() > 0 {
			if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to cache response")
			}
		}
	}

	if v == nil {
		return nil
	}

	return json.Unmarshal(body, v)
}
