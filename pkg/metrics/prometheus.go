package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	fetches        *prometheus.CounterVec
	cacheWrites    *prometheus.CounterVec
	lifecycle      *prometheus.CounterVec
	pruned         prometheus.Counter
	messagesSent   *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	calcLatency    *prometheus.HistogramVec
	calcErrors     *prometheus.CounterVec
	workerState    *prometheus.GaugeVec
	connectedPages prometheus.Gauge
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder registered on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		fetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finpwa_fetches_total",
				Help: "Fetch events handled by the cache router",
			},
			[]string{"class", "strategy", "source"},
		),
		cacheWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finpwa_cache_writes_total",
				Help: "Writes into cache partitions",
			},
			[]string{"partition", "result"},
		),
		lifecycle: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finpwa_lifecycle_events_total",
				Help: "Worker lifecycle events",
			},
			[]string{"event", "result"},
		),
		pruned: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "finpwa_partitions_pruned_total",
				Help: "Stale cache partitions deleted on activation",
			},
		),
		messagesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finpwa_messages_sent_total",
				Help: "Total number of records sent to a journal backend",
			},
			[]string{"backend"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finpwa_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finpwa_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		calcLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "finpwa",
				Subsystem: "calculator",
				Name:      "latency_seconds",
				Help:      "Latency of calculator endpoints",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
			},
			[]string{"endpoint"},
		),
		calcErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "finpwa",
				Subsystem: "calculator",
				Name:      "errors_total",
				Help:      "Errors by calculator endpoint",
			},
			[]string{"endpoint", "code"},
		),
		workerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finpwa_worker_state",
				Help: "1 for the current worker lifecycle state",
			},
			[]string{"state"},
		),
		connectedPages: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "finpwa_connected_clients",
				Help: "Page clients connected over websocket",
			},
		),
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordFetch records a handled fetch event and where its response came from.
func (r *Recorder) RecordFetch(class, strategy, source string) {
	r.fetches.WithLabelValues(class, strategy, source).Inc()
}

// RecordCacheWrite records a partition write.
func (r *Recorder) RecordCacheWrite(partition string, err error) {
	r.cacheWrites.WithLabelValues(partition, result(err)).Inc()
}

// RecordLifecycle records install, activate, sync, push and click events.
func (r *Recorder) RecordLifecycle(event string, err error) {
	r.lifecycle.WithLabelValues(event, result(err)).Inc()
}

// RecordPruned records deleted partitions.
func (r *Recorder) RecordPruned(n int) {
	r.pruned.Add(float64(n))
}

// RecordState marks state as the current worker state.
func (r *Recorder) RecordState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		r.workerState.WithLabelValues(s).Set(v)
	}
}

// RecordMessageSent records a record sent to a journal backend.
func (r *Recorder) RecordMessageSent(backend string) {
	r.messagesSent.WithLabelValues(backend).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordCalculation records a calculator call.
func (r *Recorder) RecordCalculation(endpoint string, seconds float64, errCode string) {
	r.calcLatency.WithLabelValues(endpoint).Observe(seconds)
	if errCode != "" {
		r.calcErrors.WithLabelValues(endpoint, errCode).Inc()
	}
}

// SetConnectedClients records the number of connected page clients.
func (r *Recorder) SetConnectedClients(n int) {
	r.connectedPages.Set(float64(n))
}
