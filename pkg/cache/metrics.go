package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits.
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cidb_cache_hits_total",
			Help: "Total number of CI API cache hits",
		},
	)

	// CacheMisses tracks cache misses.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cidb_cache_misses_total",
			Help: "Total number of CI API cache misses",
		},
	)

	// NotModifiedResponses tracks 304 Not Modified responses.
	NotModifiedResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cidb_304_responses_total",
			Help: "Total number of CI API 304 Not Modified responses",
		},
	)

	// ConditionalRequestsSent tracks conditional requests sent with
	// If-None-Match or If-Modified-Since.
	ConditionalRequestsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cidb_conditional_requests_total",
			Help: "Total number of conditional CI API requests sent",
		},
	)

	// CacheErrors tracks cache operation errors.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cidb_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
