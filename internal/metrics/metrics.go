// Package metrics exposes Prometheus metrics for the bank server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/bankserver/internal/engine"
)

// Namespace prefixes every metric name.
const Namespace = "bankserver"

// Metrics holds all Prometheus metrics for the engine.
// It implements engine.Observer.
type Metrics struct {
	// Request metrics
	RequestsSubmitted *prometheus.CounterVec
	RequestsRejected  *prometheus.CounterVec
	Results           *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec

	// Pool metrics
	QueueDepthGauge    prometheus.Gauge
	WorkersActiveGauge prometheus.Gauge
}

var _ engine.Observer = (*Metrics)(nil)

// New registers the metrics with reg. Use a fresh prometheus.Registry per
// engine in tests; registering twice on one registry panics.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "requests_submitted_total",
			Help:      "Requests accepted into the queue, by kind",
		}, []string{"kind"}),
		RequestsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "requests_rejected_total",
			Help:      "Input lines rejected before queueing, by error code",
		}, []string{"code"}),
		Results: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "results_total",
			Help:      "Completed requests by result status",
		}, []string{"status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "request_duration_seconds",
			Help:      "Time from arrival to completion, by kind",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"kind"}),

		QueueDepthGauge: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "queue_depth",
			Help:      "Requests waiting for a worker",
		}),
		WorkersActiveGauge: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "workers_active",
			Help:      "Workers currently executing a request",
		}),
	}
}

// RequestSubmitted counts an accepted request.
func (m *Metrics) RequestSubmitted(kind engine.Kind) {
	m.RequestsSubmitted.WithLabelValues(kind.String()).Inc()
}

// RequestRejected counts a rejected input line.
func (m *Metrics) RequestRejected(code engine.CommandErrorCode) {
	m.RequestsRejected.WithLabelValues(string(code)).Inc()
}

// RequestCompleted records a result's status and latency.
func (m *Metrics) RequestCompleted(res engine.Result) {
	m.Results.WithLabelValues(res.Status.String()).Inc()
	m.RequestDuration.WithLabelValues(res.Kind.String()).Observe(res.Duration().Seconds())
}

// QueueDepth updates the queue gauge.
func (m *Metrics) QueueDepth(n int) {
	m.QueueDepthGauge.Set(float64(n))
}

// WorkersActive updates the busy-worker gauge.
func (m *Metrics) WorkersActive(n int) {
	m.WorkersActiveGauge.Set(float64(n))
}
