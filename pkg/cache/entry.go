// Package cache provides a Redis-backed cache for CI API responses with ETag
// support for conditional revalidation.
package cache

import (
	"net/http"
	"time"
)

// Entry is one cached CI API response.
type Entry struct {
	// Data is the response body.
	Data []byte `json:"data"`

	// ETag for conditional requests (If-None-Match).
	ETag string `json:"etag"`

	// Expires is when the entry becomes stale.
	Expires time.Time `json:"expires"`

	// LastModified is when the data was last modified (from the
	// Last-Modified response header).
	LastModified time.Time `json:"last_modified"`

	// StatusCode is the HTTP status code of the cached response.
	StatusCode int `json:"status_code"`

	// Headers are the response headers.
	Headers http.Header `json:"headers"`

	// CachedAt is when the response was cached.
	CachedAt time.Time `json:"cached_at"`
}

// IsExpired returns true if the entry has expired.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration, or 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
