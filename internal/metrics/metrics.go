// Package metrics holds the Prometheus collectors shared by the relay components.
//
// Every method is safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "wsrelay"

// Metrics groups the relay collectors registered against one registry
type Metrics struct {
	connectionsAccepted prometheus.Counter
	acceptErrors        prometheus.Counter
	inboundSessions     *prometheus.CounterVec
	relaySessions       *prometheus.CounterVec
	stepFailures        *prometheus.CounterVec
	relayDuration       prometheus.Histogram
	tasksInFlight       prometheus.Gauge
	taskPanics          prometheus.Counter
	httpRequests        *prometheus.CounterVec
}

// New registers the relay collectors with reg. A nil reg gets a private registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		connectionsAccepted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_accepted_total",
			Help:      "Inbound connections accepted by the listener",
		}),
		acceptErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accept_errors_total",
			Help:      "Accept calls that returned an error",
		}),
		inboundSessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_sessions_total",
			Help:      "Inbound handlers by terminal state",
		}, []string{"state"}),
		relaySessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_sessions_total",
			Help:      "Relay sessions by terminal state",
		}, []string{"state"}),
		stepFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_failures_total",
			Help:      "Failures by the step that raised them",
		}, []string{"step"}),
		relayDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "relay_duration_seconds",
			Help:      "Time from resolve to terminal state for relay sessions",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
		}),
		tasksInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_in_flight",
			Help:      "Reactor tasks currently running",
		}),
		taskPanics: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_panics_total",
			Help:      "Reactor tasks that panicked and were recovered",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ops_http_requests_total",
			Help:      "Requests served by the ops HTTP server",
		}, []string{"path", "code"}),
	}
}

// ConnectionAccepted counts one accepted inbound connection
func (m *Metrics) ConnectionAccepted() {
	if m == nil {
		return
	}
	m.connectionsAccepted.Inc()
}

// AcceptFailed counts one accept error
func (m *Metrics) AcceptFailed() {
	if m == nil {
		return
	}
	m.acceptErrors.Inc()
}

// InboundFinished counts an inbound handler reaching state
func (m *Metrics) InboundFinished(state string) {
	if m == nil {
		return
	}
	m.inboundSessions.WithLabelValues(state).Inc()
}

// RelayFinished counts a relay session reaching state after elapsed
func (m *Metrics) RelayFinished(state string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.relaySessions.WithLabelValues(state).Inc()
	m.relayDuration.Observe(elapsed.Seconds())
}

// StepFailed counts a failure at step
func (m *Metrics) StepFailed(step string) {
	if m == nil {
		return
	}
	m.stepFailures.WithLabelValues(step).Inc()
}

// TaskStarted marks a reactor task as running
func (m *Metrics) TaskStarted() {
	if m == nil {
		return
	}
	m.tasksInFlight.Inc()
}

// TaskDone marks a reactor task as finished
func (m *Metrics) TaskDone() {
	if m == nil {
		return
	}
	m.tasksInFlight.Dec()
}

// TaskPanicked counts a recovered task panic
func (m *Metrics) TaskPanicked() {
	if m == nil {
		return
	}
	m.taskPanics.Inc()
}

// HTTPRequest counts one ops server request
func (m *Metrics) HTTPRequest(path, code string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(path, code).Inc()
}
