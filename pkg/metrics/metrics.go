// Package metrics provides the centralized Prometheus registry reference
// for the ACX batch patch client. Metrics are defined in the packages that
// own the events (api, retry, dispatch) to keep registration next to use.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registerer used by the client.
// All metrics are registered automatically via promauto in their packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Reference
//
// Request metrics (pkg/api):
//   - acx_requests_total{endpoint, status} (Counter): requests by endpoint and HTTP status
//   - acx_request_duration_seconds{endpoint} (Histogram): request duration by endpoint
//   - acx_errors_total{class} (Counter): errors by class (client, server, rate_limit, network)
//
// Retry metrics (pkg/retry):
//   - acx_patch_retries_total (Counter): retry attempts
//   - acx_patch_retry_backoff_seconds (Histogram): backoff durations between attempts
//   - acx_patch_retry_exhausted_total (Counter): items that ran out of attempts
//
// Dispatch metrics (pkg/dispatch):
//   - acx_dispatch_items_total{outcome} (Counter): items by terminal outcome (succeeded, exhausted)
//   - acx_dispatch_in_flight (Gauge): operations currently executing
//
// Example queries:
//
//   # Exhaustion rate
//   rate(acx_dispatch_items_total{outcome="exhausted"}[5m]) /
//   rate(acx_dispatch_items_total[5m])
//
//   # P95 request latency
//   histogram_quantile(0.95, rate(acx_request_duration_seconds_bucket[5m]))
//
//   # Retry pressure
//   rate(acx_patch_retries_total[5m])
