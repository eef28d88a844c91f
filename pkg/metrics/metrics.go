// Package metrics exposes the Prometheus registry shared by all ingestion
// components. Metrics are defined next to the code that records them
// (client, ratelimit, pagination, pipeline, cache, snapshot) via promauto,
// so this package only serves them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by every package.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer reads back everything registered on Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics handler for Gatherer.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - swapi_requests_total{status} (Counter): Outbound requests by HTTP status
//   - swapi_request_duration_seconds (Histogram): Outbound request duration
//   - swapi_errors_total{class} (Counter): Errors by class (client, server, network, decode)
//
// Retry Metrics (pkg/client):
//   - swapi_retries_total{error_class} (Counter): Retry attempts by error class
//   - swapi_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - swapi_retry_exhausted_total (Counter): URLs whose retry budget was spent
//
// Rate Limit Metrics (pkg/ratelimit):
//   - swapi_rate_limit_wait_seconds (Histogram): Time spent waiting for a token
//   - swapi_rate_limit_acquired_total (Counter): Tokens handed out
//
// Pagination Metrics (pkg/pagination):
//   - swapi_pages_fetched_total{outcome} (Counter): Listing pages by outcome (ok, empty, error)
//
// Run Metrics (pkg/pipeline):
//   - swapi_runs_total{status} (Counter): Runs by final status (success, partial, failure)
//   - swapi_items_total{outcome} (Counter): Items by outcome (processed, skipped, failed)
//   - swapi_run_duration_seconds (Histogram): Run duration
//
// Snapshot Metrics (pkg/snapshot):
//   - swapi_snapshots_written_total{outcome} (Counter): Snapshot writes by outcome
//
// Cache Metrics (pkg/cache):
//   - swapi_cache_lookups_total{result} (Counter): Cache lookups (hit, miss, expired)
//   - swapi_cache_revalidations_total (Counter): Cached documents confirmed by a 304
//   - swapi_cache_failures_total{op} (Counter): Failed cache operations
//
// Example Prometheus Queries:
//
//   # Partial or failed runs in the last day
//   sum(increase(swapi_runs_total{status!="success"}[1d]))
//
//   # Skip rate
//   rate(swapi_items_total{outcome="skipped"}[1h]) / sum(rate(swapi_items_total[1h]))
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(swapi_request_duration_seconds_bucket[5m]))
//
//   # Upstream pressure
//   rate(swapi_retries_total[5m])
