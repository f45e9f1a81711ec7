// Package metrics is the reference for the OneRoster client's Prometheus
// metrics. Each metric is defined with promauto in the package that updates
// it (client, pagination, ratelimit); this package only exposes the shared
// registry and a textfile export for batch runs.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the OneRoster client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer collects the metrics registered on Registry.
var Gatherer prometheus.Gatherer = prometheus.DefaultGatherer

// WriteTextfile writes every registered metric to path in the Prometheus
// text format, for pickup by the node_exporter textfile collector. An empty
// path is a no-op.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, Gatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - oneroster_requests_total{endpoint, status} (Counter): Request attempts by endpoint and HTTP status
//   - oneroster_request_duration_seconds{endpoint} (Histogram): Duration of a Get including retries
//   - oneroster_errors_total{class} (Counter): Non-200 attempts by class (transient, client, server, other)
//
// Retry Metrics (pkg/client):
//   - oneroster_retries_total{status} (Counter): Retries by triggering status (429, 502)
//   - oneroster_retry_backoff_seconds (Histogram): Backoff slept before each retry
//   - oneroster_retry_exhausted_total (Counter): Requests that spent every retry
//
// Pagination Metrics (pkg/pagination):
//   - oneroster_pages_total{endpoint} (Counter): Pages fetched successfully
//   - oneroster_records_total{endpoint} (Counter): Records accumulated
//   - oneroster_incomplete_collections_total{endpoint} (Counter): Pulls stopped before the total count
//
// Rate Limit Metrics (pkg/ratelimit):
//   - oneroster_rate_limit_remaining (Gauge): Requests left in the server's window
//   - oneroster_rate_limit_waits_total (Counter): Attempts delayed until the window reset
//
// Example Prometheus Queries:
//
//   # Retry rate
//   sum(rate(oneroster_retries_total[5m])) / sum(rate(oneroster_requests_total[5m]))
//
//   # Endpoints that came back truncated
//   oneroster_incomplete_collections_total > 0
//
//   # P95 request latency
//   histogram_quantile(0.95, rate(oneroster_request_duration_seconds_bucket[5m]))
