// Package metrics defines the atomic-counter statistics shared by the
// master Coordinator and the satellite Manager. It lives under
// internal/ so both the top-level subkernel package and
// internal/coordinator and internal/satellite can depend on it without
// creating an import cycle back through subkernel, the same reason
// internal/mastererr exists.
package metrics

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the run-duration and message round-trip
// histogram buckets in nanoseconds, from 1us to 10s.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks operational statistics for the subkernel lifecycle:
// upload/load/run counts, finish outcomes, message traffic, and
// round-trip latency. A single Metrics instance is meant to be shared
// by one Master or Satellite and updated from the hot path with plain
// atomics, no locks, no allocation.
type Metrics struct {
	// Lifecycle counters
	Uploads      atomic.Uint64
	Loads        atomic.Uint64
	Runs         atomic.Uint64
	FinishedOk   atomic.Uint64
	FinishedExc  atomic.Uint64
	FinishedLost atomic.Uint64

	// Transport/protocol errors
	UploadErrors       atomic.Uint64
	LoadErrors         atomic.Uint64
	TransportErrors    atomic.Uint64
	MessageSendErrors  atomic.Uint64
	MessageAwaitErrors atomic.Uint64

	// Message traffic
	MessagesSent     atomic.Uint64
	MessagesReceived atomic.Uint64
	MessageBytesSent atomic.Uint64
	MessageBytesRecv atomic.Uint64

	// Hardware request fan-out (satellite side)
	HWRequests atomic.Uint64

	// Run-duration latency tracking
	TotalRunLatencyNs atomic.Uint64
	RunLatencyCount   atomic.Uint64
	LatencyHist       [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// New creates a new metrics instance with StartTime set to now.
func New() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordUpload records a subkernel upload, successful or not.
func (m *Metrics) RecordUpload(success bool) {
	m.Uploads.Add(1)
	if !success {
		m.UploadErrors.Add(1)
	}
}

// RecordLoad records a subkernel load, successful or not.
func (m *Metrics) RecordLoad(success bool) {
	m.Loads.Add(1)
	if !success {
		m.LoadErrors.Add(1)
	}
}

// RecordRun records that a subkernel was started.
func (m *Metrics) RecordRun() {
	m.Runs.Add(1)
}

// RecordFinish records a completed run and its duration.
func (m *Metrics) RecordFinish(withException, commLost bool, latencyNs uint64) {
	switch {
	case commLost:
		m.FinishedLost.Add(1)
	case withException:
		m.FinishedExc.Add(1)
	default:
		m.FinishedOk.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordMessageSent records one outbound interkernel message.
func (m *Metrics) RecordMessageSent(bytes uint64, success bool) {
	m.MessagesSent.Add(1)
	if success {
		m.MessageBytesSent.Add(bytes)
	} else {
		m.MessageSendErrors.Add(1)
	}
}

// RecordMessageReceived records one inbound interkernel message.
func (m *Metrics) RecordMessageReceived(bytes uint64) {
	m.MessagesReceived.Add(1)
	m.MessageBytesRecv.Add(bytes)
}

// RecordMessageAwaitTimeout records a message_await deadline expiry.
func (m *Metrics) RecordMessageAwaitTimeout() {
	m.MessageAwaitErrors.Add(1)
}

// RecordHWRequest records one satellite hardware-request fan-out call.
func (m *Metrics) RecordHWRequest() {
	m.HWRequests.Add(1)
}

// RecordTransportError records a DRTIO transport failure.
func (m *Metrics) RecordTransportError() {
	m.TransportErrors.Add(1)
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalRunLatencyNs.Add(latencyNs)
	m.RunLatencyCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyHist[i].Add(1)
		}
	}
}

// Stop marks the process as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// Snapshot is a point-in-time copy of Metrics, safe to read without
// further synchronization.
type Snapshot struct {
	Uploads      uint64
	Loads        uint64
	Runs         uint64
	FinishedOk   uint64
	FinishedExc  uint64
	FinishedLost uint64

	UploadErrors       uint64
	LoadErrors         uint64
	TransportErrors    uint64
	MessageSendErrors  uint64
	MessageAwaitErrors uint64

	MessagesSent     uint64
	MessagesReceived uint64
	MessageBytesSent uint64
	MessageBytesRecv uint64

	HWRequests uint64

	AvgRunLatencyNs  uint64
	LatencyP50Ns     uint64
	LatencyP99Ns     uint64
	LatencyHistogram [numLatencyBuckets]uint64

	UptimeNs uint64
}

// Snapshot creates a point-in-time snapshot of the metrics.
func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{
		Uploads:            m.Uploads.Load(),
		Loads:              m.Loads.Load(),
		Runs:               m.Runs.Load(),
		FinishedOk:         m.FinishedOk.Load(),
		FinishedExc:        m.FinishedExc.Load(),
		FinishedLost:       m.FinishedLost.Load(),
		UploadErrors:       m.UploadErrors.Load(),
		LoadErrors:         m.LoadErrors.Load(),
		TransportErrors:    m.TransportErrors.Load(),
		MessageSendErrors:  m.MessageSendErrors.Load(),
		MessageAwaitErrors: m.MessageAwaitErrors.Load(),
		MessagesSent:       m.MessagesSent.Load(),
		MessagesReceived:   m.MessagesReceived.Load(),
		MessageBytesSent:   m.MessageBytesSent.Load(),
		MessageBytesRecv:   m.MessageBytesRecv.Load(),
		HWRequests:         m.HWRequests.Load(),
	}

	total := m.TotalRunLatencyNs.Load()
	count := m.RunLatencyCount.Load()
	if count > 0 {
		snap.AvgRunLatencyNs = total / count
	}

	start := m.StartTime.Load()
	stop := m.StopTime.Load()
	if stop > 0 {
		snap.UptimeNs = uint64(stop - start)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - start)
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyHist[i].Load()
	}
	if count > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile
// (0.0-1.0) via linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	total := m.RunLatencyCount.Load()
	if total == 0 {
		return 0
	}
	target := uint64(float64(total) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		count := m.LatencyHist[i].Load()
		if count >= target {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyHist[i-1].Load()
			}
			if count == prevCount {
				return bucket
			}
			fraction := float64(target-prevCount) / float64(count-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}
	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset zeroes every counter, useful for tests.
func (m *Metrics) Reset() {
	m.Uploads.Store(0)
	m.Loads.Store(0)
	m.Runs.Store(0)
	m.FinishedOk.Store(0)
	m.FinishedExc.Store(0)
	m.FinishedLost.Store(0)
	m.UploadErrors.Store(0)
	m.LoadErrors.Store(0)
	m.TransportErrors.Store(0)
	m.MessageSendErrors.Store(0)
	m.MessageAwaitErrors.Store(0)
	m.MessagesSent.Store(0)
	m.MessagesReceived.Store(0)
	m.MessageBytesSent.Store(0)
	m.MessageBytesRecv.Store(0)
	m.HWRequests.Store(0)
	m.TotalRunLatencyNs.Store(0)
	m.RunLatencyCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyHist[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}
