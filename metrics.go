package mirror

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the latency histogram buckets in nanoseconds, from
// 1us to 10s with logarithmic spacing.
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

// Metrics tracks per-volume I/O and replica-lifecycle statistics.
type Metrics struct {
	ReadOps   atomic.Uint64
	WriteOps  atomic.Uint64
	FlushOps  atomic.Uint64
	UnmapOps  atomic.Uint64
	ResetOps  atomic.Uint64

	ReadBytes  atomic.Uint64
	WriteBytes atomic.Uint64

	ReadErrors  atomic.Uint64
	WriteErrors atomic.Uint64

	// Replica lifecycle counters.
	ReplicasAdded   atomic.Uint64
	ReplicasRemoved atomic.Uint64
	RebuildsStarted atomic.Uint64
	RebuildsDone    atomic.Uint64
	RebuildsFailed  atomic.Uint64

	// Pause-protocol counters.
	PausesStarted atomic.Uint64
	PausesDone    atomic.Uint64

	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a Metrics instance stamped with the given start time
// (the caller supplies it since Date.now()-equivalents are deliberately kept
// out of the hot path and out of anything that must be deterministic in tests).
func NewMetrics(startTime time.Time) *Metrics {
	m := &Metrics{}
	m.StartTime.Store(startTime.UnixNano())
	return m
}

func (m *Metrics) RecordRead(bytes uint64, latencyNs uint64, success bool) {
	m.ReadOps.Add(1)
	if success {
		m.ReadBytes.Add(bytes)
	} else {
		m.ReadErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

func (m *Metrics) RecordWrite(bytes uint64, latencyNs uint64, success bool) {
	m.WriteOps.Add(1)
	if success {
		m.WriteBytes.Add(bytes)
	} else {
		m.WriteErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

func (m *Metrics) RecordFlush(latencyNs uint64, success bool) {
	m.FlushOps.Add(1)
	m.recordLatency(latencyNs)
}

func (m *Metrics) RecordUnmap(latencyNs uint64, success bool) {
	m.UnmapOps.Add(1)
	m.recordLatency(latencyNs)
}

func (m *Metrics) RecordReset(latencyNs uint64, success bool) {
	m.ResetOps.Add(1)
	m.recordLatency(latencyNs)
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop stamps the stop time (at.StopTime), recorded by the caller's clock.
func (m *Metrics) Stop(stopTime time.Time) {
	m.StopTime.Store(stopTime.UnixNano())
}

// MetricsSnapshot is a point-in-time copy of Metrics, safe to read without races.
type MetricsSnapshot struct {
	ReadOps, WriteOps, FlushOps, UnmapOps, ResetOps uint64
	ReadBytes, WriteBytes                           uint64
	ReadErrors, WriteErrors                         uint64
	ReplicasAdded, ReplicasRemoved                  uint64
	RebuildsStarted, RebuildsDone, RebuildsFailed   uint64
	PausesStarted, PausesDone                       uint64
	AvgLatencyNs                                    uint64
	LatencyHistogram                                [numLatencyBuckets]uint64
	UptimeNs                                        uint64
	TotalOps                                        uint64
}

// Snapshot returns a copy of the metrics as observed at "now".
func (m *Metrics) Snapshot(now time.Time) MetricsSnapshot {
	snap := MetricsSnapshot{
		ReadOps:         m.ReadOps.Load(),
		WriteOps:        m.WriteOps.Load(),
		FlushOps:        m.FlushOps.Load(),
		UnmapOps:        m.UnmapOps.Load(),
		ResetOps:        m.ResetOps.Load(),
		ReadBytes:       m.ReadBytes.Load(),
		WriteBytes:      m.WriteBytes.Load(),
		ReadErrors:      m.ReadErrors.Load(),
		WriteErrors:     m.WriteErrors.Load(),
		ReplicasAdded:   m.ReplicasAdded.Load(),
		ReplicasRemoved: m.ReplicasRemoved.Load(),
		RebuildsStarted: m.RebuildsStarted.Load(),
		RebuildsDone:    m.RebuildsDone.Load(),
		RebuildsFailed:  m.RebuildsFailed.Load(),
		PausesStarted:   m.PausesStarted.Load(),
		PausesDone:      m.PausesDone.Load(),
	}
	snap.TotalOps = snap.ReadOps + snap.WriteOps + snap.FlushOps + snap.UnmapOps + snap.ResetOps

	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = m.TotalLatencyNs.Load() / opCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(now.UnixNano() - startTime)
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}
	return snap
}

// Observer allows pluggable metrics collection; Volume calls these from
// whichever goroutine completes the I/O, so implementations must be
// thread-safe.
type Observer interface {
	ObserveRead(bytes uint64, latencyNs uint64, success bool)
	ObserveWrite(bytes uint64, latencyNs uint64, success bool)
	ObserveFlush(latencyNs uint64, success bool)
	ObserveUnmap(latencyNs uint64, success bool)
	ObserveReset(latencyNs uint64, success bool)
	ObserveReplicaAdded()
	ObserveReplicaRemoved()
	ObserveRebuild(started, done, failed bool)
	ObservePause(started, done bool)
}

// NoOpObserver discards everything.
type NoOpObserver struct{}

func (NoOpObserver) ObserveRead(uint64, uint64, bool)  {}
func (NoOpObserver) ObserveWrite(uint64, uint64, bool) {}
func (NoOpObserver) ObserveFlush(uint64, bool)         {}
func (NoOpObserver) ObserveUnmap(uint64, bool)         {}
func (NoOpObserver) ObserveReset(uint64, bool)         {}
func (NoOpObserver) ObserveReplicaAdded()              {}
func (NoOpObserver) ObserveReplicaRemoved()            {}
func (NoOpObserver) ObserveRebuild(bool, bool, bool)   {}
func (NoOpObserver) ObservePause(bool, bool)           {}

// MetricsObserver implements Observer by recording into a Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveRead(bytes, latencyNs uint64, success bool) {
	o.metrics.RecordRead(bytes, latencyNs, success)
}
func (o *MetricsObserver) ObserveWrite(bytes, latencyNs uint64, success bool) {
	o.metrics.RecordWrite(bytes, latencyNs, success)
}
func (o *MetricsObserver) ObserveFlush(latencyNs uint64, success bool) {
	o.metrics.RecordFlush(latencyNs, success)
}
func (o *MetricsObserver) ObserveUnmap(latencyNs uint64, success bool) {
	o.metrics.RecordUnmap(latencyNs, success)
}
func (o *MetricsObserver) ObserveReset(latencyNs uint64, success bool) {
	o.metrics.RecordReset(latencyNs, success)
}
func (o *MetricsObserver) ObserveReplicaAdded()   { o.metrics.ReplicasAdded.Add(1) }
func (o *MetricsObserver) ObserveReplicaRemoved() { o.metrics.ReplicasRemoved.Add(1) }
func (o *MetricsObserver) ObserveRebuild(started, done, failed bool) {
	if started {
		o.metrics.RebuildsStarted.Add(1)
	}
	if done {
		o.metrics.RebuildsDone.Add(1)
	}
	if failed {
		o.metrics.RebuildsFailed.Add(1)
	}
}
func (o *MetricsObserver) ObservePause(started, done bool) {
	if started {
		o.metrics.PausesStarted.Add(1)
	}
	if done {
		o.metrics.PausesDone.Add(1)
	}
}

var (
	_ Observer = (*MetricsObserver)(nil)
	_ Observer = NoOpObserver{}
)
