package mirror

import "github.com/prometheus/client_golang/prometheus"

// PrometheusObserver implements Observer by feeding a Prometheus registry
// directly, additive alongside MetricsObserver (which backs the existing
// in-process Metrics snapshot/histogram machinery): operators who already
// scrape Prometheus get volume metrics without polling MetricsSnapshot.
type PrometheusObserver struct {
	ioBytes    *prometheus.CounterVec
	ioLatency  *prometheus.HistogramVec
	ioFailures *prometheus.CounterVec
	replicas   *prometheus.CounterVec
	rebuilds   *prometheus.CounterVec
	pauses     *prometheus.CounterVec
}

// NewPrometheusObserver registers every metric with reg and returns an
// Observer ready to pass to NewVolume.
func NewPrometheusObserver(reg prometheus.Registerer, volumeName string) *PrometheusObserver {
	constLabels := prometheus.Labels{"volume": volumeName}

	o := &PrometheusObserver{
		ioBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "longhorn",
			Subsystem:   "mirror",
			Name:        "io_bytes_total",
			Help:        "Total bytes processed per I/O operation type.",
			ConstLabels: constLabels,
		}, []string{"op"}),
		ioLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "longhorn",
			Subsystem:   "mirror",
			Name:        "io_latency_seconds",
			Help:        "Per-operation completion latency.",
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(1e-6, 4, 8),
		}, []string{"op"}),
		ioFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "longhorn",
			Subsystem:   "mirror",
			Name:        "io_failures_total",
			Help:        "Failed I/O operations per type.",
			ConstLabels: constLabels,
		}, []string{"op"}),
		replicas: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "longhorn",
			Subsystem:   "mirror",
			Name:        "replica_membership_changes_total",
			Help:        "Replica add/remove events.",
			ConstLabels: constLabels,
		}, []string{"change"}),
		rebuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "longhorn",
			Subsystem:   "mirror",
			Name:        "rebuilds_total",
			Help:        "Rebuild lifecycle events.",
			ConstLabels: constLabels,
		}, []string{"phase"}),
		pauses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "longhorn",
			Subsystem:   "mirror",
			Name:        "pauses_total",
			Help:        "I/O quiesce lifecycle events.",
			ConstLabels: constLabels,
		}, []string{"phase"}),
	}

	reg.MustRegister(o.ioBytes, o.ioLatency, o.ioFailures, o.replicas, o.rebuilds, o.pauses)
	return o
}

func (o *PrometheusObserver) observe(op string, bytes, latencyNs uint64, success bool) {
	o.ioBytes.WithLabelValues(op).Add(float64(bytes))
	o.ioLatency.WithLabelValues(op).Observe(float64(latencyNs) / 1e9)
	if !success {
		o.ioFailures.WithLabelValues(op).Inc()
	}
}

func (o *PrometheusObserver) ObserveRead(bytes, latencyNs uint64, success bool) {
	o.observe("read", bytes, latencyNs, success)
}

func (o *PrometheusObserver) ObserveWrite(bytes, latencyNs uint64, success bool) {
	o.observe("write", bytes, latencyNs, success)
}

func (o *PrometheusObserver) ObserveFlush(latencyNs uint64, success bool) {
	o.observe("flush", 0, latencyNs, success)
}

func (o *PrometheusObserver) ObserveUnmap(latencyNs uint64, success bool) {
	o.observe("unmap", 0, latencyNs, success)
}

func (o *PrometheusObserver) ObserveReset(latencyNs uint64, success bool) {
	o.observe("reset", 0, latencyNs, success)
}

func (o *PrometheusObserver) ObserveReplicaAdded()   { o.replicas.WithLabelValues("added").Inc() }
func (o *PrometheusObserver) ObserveReplicaRemoved() { o.replicas.WithLabelValues("removed").Inc() }

func (o *PrometheusObserver) ObserveRebuild(started, done, failed bool) {
	if started {
		o.rebuilds.WithLabelValues("started").Inc()
	}
	if done {
		o.rebuilds.WithLabelValues("done").Inc()
	}
	if failed {
		o.rebuilds.WithLabelValues("failed").Inc()
	}
}

func (o *PrometheusObserver) ObservePause(started, done bool) {
	if started {
		o.pauses.WithLabelValues("started").Inc()
	}
	if done {
		o.pauses.WithLabelValues("done").Inc()
	}
}

var _ Observer = (*PrometheusObserver)(nil)
