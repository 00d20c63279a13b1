package xcoro

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the latency histogram buckets in nanoseconds,
// from 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
	10_000_000_000,
}

const numLatencyBuckets = 8

// maxTrackedTags bounds the per-tag counter arrays. offload.numTags is
// always well under this; kept here instead of importing offload to avoid
// a dependency cycle between the root package and the package whose
// errors it defines.
const maxTrackedTags = 32

// Metrics tracks offload-core operational statistics: completions per
// dispatch tag, outstanding action count, submission queue depth, and
// completion latency.
type Metrics struct {
	OpCount    [maxTrackedTags]atomic.Uint64
	ErrCount   [maxTrackedTags]atomic.Uint64
	BytesMoved atomic.Uint64

	ActiveIOs     atomic.Int64 // current outstanding offloaded actions
	QueueDepthSum atomic.Uint64
	QueueDepthN   atomic.Uint64
	MaxQueueDepth atomic.Uint32

	TotalLatencyNs atomic.Uint64
	LatencyCount   atomic.Uint64
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance with StartTime set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordCompletion records one dispatched action's completion: its tag,
// bytes moved (0 for non-transfer ops), dispatch-to-completion latency,
// and whether it failed.
func (m *Metrics) RecordCompletion(tag uint8, bytes uint64, latencyNs uint64, success bool) {
	if int(tag) < maxTrackedTags {
		m.OpCount[tag].Add(1)
		if !success {
			m.ErrCount[tag].Add(1)
		}
	}
	m.BytesMoved.Add(bytes)
	m.recordLatency(latencyNs)
}

// SetActiveIOs records the current outstanding-action count, as reported
// by the offload core on each submission and completion.
func (m *Metrics) SetActiveIOs(n int64) {
	m.ActiveIOs.Store(n)
}

// RecordQueueDepth records a point-in-time submission queue depth sample.
func (m *Metrics) RecordQueueDepth(depth uint32) {
	m.QueueDepthSum.Add(uint64(depth))
	m.QueueDepthN.Add(1)
	for {
		cur := m.MaxQueueDepth.Load()
		if depth <= cur {
			break
		}
		if m.MaxQueueDepth.CompareAndSwap(cur, depth) {
			break
		}
	}
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.LatencyCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop records the metrics instance's stop timestamp.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time, lock-free read of Metrics.
type MetricsSnapshot struct {
	TotalOps      uint64
	TotalErrors   uint64
	BytesMoved    uint64
	ActiveIOs     int64
	AvgQueueDepth float64
	MaxQueueDepth uint32
	AvgLatencyNs  uint64
	UptimeNs      uint64

	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	IOPS      float64
	Bandwidth float64
	ErrorRate float64
}

// Snapshot returns a point-in-time snapshot of the metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var snap MetricsSnapshot

	for i := range m.OpCount {
		snap.TotalOps += m.OpCount[i].Load()
		snap.TotalErrors += m.ErrCount[i].Load()
	}
	snap.BytesMoved = m.BytesMoved.Load()
	snap.ActiveIOs = m.ActiveIOs.Load()
	snap.MaxQueueDepth = m.MaxQueueDepth.Load()

	if n := m.QueueDepthN.Load(); n > 0 {
		snap.AvgQueueDepth = float64(m.QueueDepthSum.Load()) / float64(n)
	}

	latencyCount := m.LatencyCount.Load()
	if latencyCount > 0 {
		snap.AvgLatencyNs = m.TotalLatencyNs.Load() / latencyCount
	}

	start := m.StartTime.Load()
	stop := m.StopTime.Load()
	if stop > 0 {
		snap.UptimeNs = uint64(stop - start)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - start)
	}

	if snap.UptimeNs > 0 {
		uptimeSeconds := float64(snap.UptimeNs) / 1e9
		snap.IOPS = float64(snap.TotalOps) / uptimeSeconds
		snap.Bandwidth = float64(snap.BytesMoved) / uptimeSeconds
	}

	if snap.TotalOps > 0 {
		snap.ErrorRate = float64(snap.TotalErrors) / float64(snap.TotalOps) * 100.0
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if latencyCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile
// (0.0-1.0) by linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	total := m.LatencyCount.Load()
	if total == 0 {
		return 0
	}

	target := uint64(float64(total) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= target {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(target-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset zeroes all counters, useful between test cases.
func (m *Metrics) Reset() {
	for i := range m.OpCount {
		m.OpCount[i].Store(0)
		m.ErrCount[i].Store(0)
	}
	m.BytesMoved.Store(0)
	m.ActiveIOs.Store(0)
	m.QueueDepthSum.Store(0)
	m.QueueDepthN.Store(0)
	m.MaxQueueDepth.Store(0)
	m.TotalLatencyNs.Store(0)
	m.LatencyCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer is the pluggable completion-sink offload.Context reports to.
type Observer interface {
	ObserveCompletion(tag uint8, bytes uint64, latencyNs uint64, success bool)
	ObserveActiveIOs(n int64)
	ObserveQueueDepth(depth uint32)
}

// NoOpObserver discards all observations.
type NoOpObserver struct{}

func (NoOpObserver) ObserveCompletion(uint8, uint64, uint64, bool) {}
func (NoOpObserver) ObserveActiveIOs(int64)                        {}
func (NoOpObserver) ObserveQueueDepth(uint32)                      {}

// MetricsObserver implements Observer by recording into a Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records into m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveCompletion(tag uint8, bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordCompletion(tag, bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveActiveIOs(n int64) {
	o.metrics.SetActiveIOs(n)
}

func (o *MetricsObserver) ObserveQueueDepth(depth uint32) {
	o.metrics.RecordQueueDepth(depth)
}

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
