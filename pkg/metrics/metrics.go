// Package metrics provides the centralized Prometheus metrics registry for
// the CI database client. All metrics are defined in their respective
// packages (api, ciapi, logfetch, batch, cache, ratelimit) to maintain
// modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Database API Metrics (pkg/api):
//   - cidb_requests_total{method, status} (Counter): Requests by HTTP method and status
//   - cidb_request_duration_seconds{method} (Histogram): Request duration by method
//   - cidb_validation_rejects_total (Counter): Writes rejected with 422 by server-side validation
//   - cidb_oversize_retries_total (Counter): Requests retried with chunked transfer after 413
//   - cidb_pages_fetched_total (Counter): Result pages fetched during pagination
//   - cidb_bulk_chunks_total{outcome} (Counter): Bulk insert chunks by outcome (ok, rejected, error)
//
// CI API Metrics (pkg/ciapi):
//   - cidb_ciapi_requests_total{status} (Counter): CI API requests by status
//   - cidb_ciapi_request_duration_seconds (Histogram): CI API request duration
//   - cidb_ciapi_rate_limit_retries_total (Counter): Requests retried after 429
//
// Log Download Metrics (pkg/logfetch):
//   - cidb_log_downloads_total{outcome} (Counter): Download attempts by outcome (ok, failed, skipped)
//   - cidb_log_download_retries_total (Counter): Retries after connection resets
//   - cidb_log_download_fallbacks_total (Counter): Fallbacks to the secondary log source
//
// Batch Runner Metrics (pkg/batch):
//   - cidb_batch_items_total{outcome} (Counter): Processed items by outcome (succeeded, errored)
//   - cidb_batch_run_duration_seconds (Histogram): Duration of complete batch runs
//
// Cache Metrics (pkg/cache):
//   - cidb_cache_hits_total (Counter): Cache hits
//   - cidb_cache_misses_total (Counter): Cache misses
//   - cidb_304_responses_total (Counter): 304 Not Modified responses
//   - cidb_conditional_requests_total (Counter): Conditional requests sent
//   - cidb_cache_errors_total{operation} (Counter): Cache operation errors
//
// Rate Limit Metrics (pkg/ratelimit):
//   - cidb_ratelimit_cooldowns_total (Counter): 429 cooldown windows recorded
//   - cidb_ratelimit_waits_total (Counter): Requests that waited for an active cooldown
//   - cidb_ratelimit_wait_seconds_total (Counter): Seconds spent waiting for cooldowns
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(cidb_cache_hits_total[5m])) /
//   (sum(rate(cidb_cache_hits_total[5m])) + sum(rate(cidb_cache_misses_total[5m])))
//
//   # Validation Reject Rate
//   rate(cidb_validation_rejects_total[5m]) / rate(cidb_requests_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(cidb_request_duration_seconds_bucket[5m]))
//
//   # Log Download Failure Rate
//   rate(cidb_log_downloads_total{outcome="failed"}[5m])
