package subkernel

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsRecordFinishOutcomes(t *testing.T) {
	m := NewMetrics()
	m.RecordFinish(false, false, 1_000_000)
	m.RecordFinish(true, false, 2_000_000)
	m.RecordFinish(false, true, 500_000)

	snap := m.Snapshot()
	if snap.FinishedOk != 1 || snap.FinishedExc != 1 || snap.FinishedLost != 1 {
		t.Fatalf("snapshot = %+v, want one of each outcome", snap)
	}
	if snap.AvgRunLatencyNs == 0 {
		t.Fatal("expected a non-zero average latency")
	}
}

func TestMetricsRecordMessageTraffic(t *testing.T) {
	m := NewMetrics()
	m.RecordMessageSent(16, true)
	m.RecordMessageSent(0, false)
	m.RecordMessageReceived(32)

	snap := m.Snapshot()
	if snap.MessagesSent != 2 || snap.MessageSendErrors != 1 {
		t.Fatalf("snapshot = %+v, want MessagesSent=2 MessageSendErrors=1", snap)
	}
	if snap.MessageBytesSent != 16 || snap.MessageBytesRecv != 32 {
		t.Fatalf("snapshot = %+v, want MessageBytesSent=16 MessageBytesRecv=32", snap)
	}
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()
	m.RecordUpload(true)
	m.RecordLoad(false)
	m.Reset()

	snap := m.Snapshot()
	if snap.Uploads != 0 || snap.Loads != 0 || snap.LoadErrors != 0 {
		t.Fatalf("snapshot after Reset = %+v, want all zero", snap)
	}
}

func TestMetricsPercentilesMonotonic(t *testing.T) {
	m := NewMetrics()
	for _, ns := range []uint64{500, 5_000, 50_000, 500_000, 5_000_000} {
		m.RecordFinish(false, false, ns)
	}
	snap := m.Snapshot()
	if snap.LatencyP50Ns > snap.LatencyP99Ns {
		t.Fatalf("P50=%d > P99=%d", snap.LatencyP50Ns, snap.LatencyP99Ns)
	}
}

func TestPrometheusCollectorDescribeAndCollect(t *testing.T) {
	m := NewMetrics()
	m.RecordUpload(true)
	m.RecordFinish(false, false, 1_000_000)

	c := NewPrometheusCollector(m)

	descs := make(chan *prometheus.Desc, 16)
	c.Describe(descs)
	close(descs)
	count := 0
	for range descs {
		count++
	}
	if count != 9 {
		t.Fatalf("Describe emitted %d descs, want 9", count)
	}

	metrics := make(chan prometheus.Metric, 16)
	c.Collect(metrics)
	close(metrics)
	count = 0
	for range metrics {
		count++
	}
	if count != 11 {
		t.Fatalf("Collect emitted %d metrics, want 11 (9 descs, finished splits into 3)", count)
	}
}
