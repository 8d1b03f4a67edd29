// Package metrics exposes Prometheus instrumentation for sessions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rbright/boltd/internal/failure"
	"github.com/rbright/boltd/internal/fsm"
)

const namespace = "boltd"

// Outcome labels of a processed message.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeIgnored = "ignored"
)

// Metrics holds every collector registered by New.
type Metrics struct {
	messages    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	transitions *prometheus.CounterVec
	fatalities  *prometheus.CounterVec
	errors      *prometheus.CounterVec
	connections *prometheus.CounterVec
	sessions    prometheus.Gauge
	heap        prometheus.Gauge
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		messages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_total",
				Help:      "Processed client messages by type and outcome.",
			},
			[]string{"type", "outcome"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "message_duration_seconds",
				Help:      "Time spent processing one client message.",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"type"},
		),
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fsm_transitions_total",
				Help:      "Session state transitions.",
			},
			[]string{"state_from", "state_to"},
		),
		fatalities: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fatal_failures_total",
				Help:      "Connections closed by a fatal failure, by kind.",
			},
			[]string{"kind"},
		),
		errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_reported_total",
				Help:      "Errors reported by session state machines, by classification.",
			},
			[]string{"classification"},
		),
		connections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connections_total",
				Help:      "Accepted and rejected client connections.",
			},
			[]string{"result"},
		),
		sessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Live sessions.",
		}),
		heap: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_heap_bytes",
			Help:      "Heap accounted to live sessions.",
		}),
	}
}

// ObserveMessage records one processed message.
func (m *Metrics) ObserveMessage(messageType, outcome string, elapsed time.Duration) {
	m.messages.WithLabelValues(messageType, outcome).Inc()
	m.latency.WithLabelValues(messageType).Observe(elapsed.Seconds())
}

// ObserveTransition records a state change. Self-transitions are skipped.
func (m *Metrics) ObserveTransition(from, to fsm.State) {
	if from == to {
		return
	}
	m.transitions.WithLabelValues(from.String(), to.String()).Inc()
}

func (m *Metrics) ObserveFatality(kind failure.FatalKind) {
	m.fatalities.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) ObserveError(err *failure.Error) {
	m.errors.WithLabelValues(err.Status().Classification.String()).Inc()
}

func (m *Metrics) ObserveConnection(result string) {
	m.connections.WithLabelValues(result).Inc()
}

// SessionOpened implements session.Observer.
func (m *Metrics) SessionOpened(heapBytes int64) {
	m.sessions.Inc()
	m.heap.Add(float64(heapBytes))
}

// SessionClosed implements session.Observer.
func (m *Metrics) SessionClosed(heapBytes int64) {
	m.sessions.Dec()
	m.heap.Sub(float64(heapBytes))
}
