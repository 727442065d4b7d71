package subkernel

import "github.com/prometheus/client_golang/prometheus"

// PrometheusCollector is a thin prometheus.Collector wrapping Metrics:
// it snapshots the atomics on every Collect() rather than updating
// Prometheus metric objects on the hot path, the same split aistore
// uses between its internal stats runners and its exported registry.
type PrometheusCollector struct {
	metrics *Metrics

	uploads      *prometheus.Desc
	loads        *prometheus.Desc
	runs         *prometheus.Desc
	finished     *prometheus.Desc
	messagesSent *prometheus.Desc
	messagesRecv *prometheus.Desc
	hwRequests   *prometheus.Desc
	runLatency   *prometheus.Desc
	uptime       *prometheus.Desc
}

// NewPrometheusCollector wraps m for registration with a
// prometheus.Registry.
func NewPrometheusCollector(m *Metrics) *PrometheusCollector {
	return &PrometheusCollector{
		metrics: m,
		uploads: prometheus.NewDesc(
			"subkernel_uploads_total", "Total subkernel image uploads attempted.", nil, nil),
		loads: prometheus.NewDesc(
			"subkernel_loads_total", "Total subkernel loads attempted.", nil, nil),
		runs: prometheus.NewDesc(
			"subkernel_runs_total", "Total subkernel runs started.", nil, nil),
		finished: prometheus.NewDesc(
			"subkernel_finished_total", "Total finished runs by outcome.", []string{"outcome"}, nil),
		messagesSent: prometheus.NewDesc(
			"subkernel_messages_sent_total", "Total interkernel messages sent.", nil, nil),
		messagesRecv: prometheus.NewDesc(
			"subkernel_messages_received_total", "Total interkernel messages received.", nil, nil),
		hwRequests: prometheus.NewDesc(
			"subkernel_hw_requests_total", "Total hardware requests serviced by a satellite.", nil, nil),
		runLatency: prometheus.NewDesc(
			"subkernel_run_latency_seconds_avg", "Average run duration in seconds.", nil, nil),
		uptime: prometheus.NewDesc(
			"subkernel_uptime_seconds", "Process uptime in seconds.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *PrometheusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.uploads
	ch <- c.loads
	ch <- c.runs
	ch <- c.finished
	ch <- c.messagesSent
	ch <- c.messagesRecv
	ch <- c.hwRequests
	ch <- c.runLatency
	ch <- c.uptime
}

// Collect implements prometheus.Collector.
func (c *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.metrics.Snapshot()

	ch <- prometheus.MustNewConstMetric(c.uploads, prometheus.CounterValue, float64(snap.Uploads))
	ch <- prometheus.MustNewConstMetric(c.loads, prometheus.CounterValue, float64(snap.Loads))
	ch <- prometheus.MustNewConstMetric(c.runs, prometheus.CounterValue, float64(snap.Runs))

	ch <- prometheus.MustNewConstMetric(c.finished, prometheus.CounterValue, float64(snap.FinishedOk), "ok")
	ch <- prometheus.MustNewConstMetric(c.finished, prometheus.CounterValue, float64(snap.FinishedExc), "exception")
	ch <- prometheus.MustNewConstMetric(c.finished, prometheus.CounterValue, float64(snap.FinishedLost), "comm_lost")

	ch <- prometheus.MustNewConstMetric(c.messagesSent, prometheus.CounterValue, float64(snap.MessagesSent))
	ch <- prometheus.MustNewConstMetric(c.messagesRecv, prometheus.CounterValue, float64(snap.MessagesReceived))
	ch <- prometheus.MustNewConstMetric(c.hwRequests, prometheus.CounterValue, float64(snap.HWRequests))

	ch <- prometheus.MustNewConstMetric(c.runLatency, prometheus.GaugeValue, float64(snap.AvgRunLatencyNs)/1e9)
	ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue, float64(snap.UptimeNs)/1e9)
}

var _ prometheus.Collector = (*PrometheusCollector)(nil)
