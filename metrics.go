package subkernel

import "github.com/rtio-systems/subkernel/internal/metrics"

// Metrics, MetricsSnapshot and LatencyBuckets live in internal/metrics
// so that internal/coordinator and internal/satellite can record
// against them without importing this package (which itself imports
// both), and are re-exported here as the public surface. See
// internal/mastererr for the same split applied to errors.
type Metrics = metrics.Metrics
type MetricsSnapshot = metrics.Snapshot

var LatencyBuckets = metrics.LatencyBuckets

// NewMetrics creates a new metrics instance with StartTime set to now.
func NewMetrics() *Metrics {
	return metrics.New()
}
