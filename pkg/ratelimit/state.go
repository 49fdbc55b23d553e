// Package ratelimit implements shared 429 cooldown tracking for the CI
// metadata API. When any process observes a 429 Too Many Requests response,
// it records a cooldown window in Redis so that every client instance backs
// off together instead of each discovering the limit on its own.
package ratelimit

import (
	"time"
)

// Redis keys for cooldown state storage.
const (
	RedisKeyCooldownUntil = "cidb:ratelimit:cooldown_until"
	RedisKeyLastUpdate    = "cidb:ratelimit:last_update"
)

// DefaultCooldown is the backoff window recorded after a 429 response.
const DefaultCooldown = 5 * time.Second

// CooldownState represents the current shared cooldown window.
// The state is shared across all client instances via Redis.
type CooldownState struct {
	// CooldownUntil is the timestamp until which requests should wait.
	CooldownUntil time.Time `json:"cooldown_until"`

	// LastUpdate is when this state was last recorded.
	LastUpdate time.Time `json:"last_update"`
}

// Active returns true if the cooldown window has not yet elapsed.
func (s *CooldownState) Active() bool {
	return time.Now().Before(s.CooldownUntil)
}

// Remaining returns the duration until the cooldown expires.
// Returns 0 if the window has already passed.
func (s *CooldownState) Remaining() time.Duration {
	d := time.Until(s.CooldownUntil)
	if d < 0 {
		return 0
	}
	return d
}

// IsStale returns true if the state is older than the given duration.
func (s *CooldownState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}
