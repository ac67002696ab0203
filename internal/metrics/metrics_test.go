package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ConnectionAccepted()
	m.ConnectionAccepted()
	m.AcceptFailed()
	m.InboundFinished("dispatched")
	m.RelayFinished("closed", 10*time.Millisecond)
	m.RelayFinished("failed", time.Millisecond)
	m.StepFailed("handshake")
	m.TaskStarted()
	m.TaskStarted()
	m.TaskDone()
	m.TaskPanicked()
	m.HTTPRequest("/healthz", "200")

	if got := testutil.ToFloat64(m.connectionsAccepted); got != 2 {
		t.Errorf("Expected 2 accepted connections, got: %v", got)
	}
	if got := testutil.ToFloat64(m.acceptErrors); got != 1 {
		t.Errorf("Expected 1 accept error, got: %v", got)
	}
	if got := testutil.ToFloat64(m.inboundSessions.WithLabelValues("dispatched")); got != 1 {
		t.Errorf("Expected 1 dispatched inbound session, got: %v", got)
	}
	if got := testutil.ToFloat64(m.relaySessions.WithLabelValues("closed")); got != 1 {
		t.Errorf("Expected 1 closed relay session, got: %v", got)
	}
	if got := testutil.ToFloat64(m.stepFailures.WithLabelValues("handshake")); got != 1 {
		t.Errorf("Expected 1 handshake failure, got: %v", got)
	}
	if got := testutil.ToFloat64(m.tasksInFlight); got != 1 {
		t.Errorf("Expected 1 task in flight, got: %v", got)
	}
	if got := testutil.ToFloat64(m.taskPanics); got != 1 {
		t.Errorf("Expected 1 task panic, got: %v", got)
	}
	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("/healthz", "200")); got != 1 {
		t.Errorf("Expected 1 ops request, got: %v", got)
	}
}

func TestMetrics_Registered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.RelayFinished("closed", time.Millisecond)

	expected := `
# HELP wsrelay_relay_sessions_total Relay sessions by terminal state
# TYPE wsrelay_relay_sessions_total counter
wsrelay_relay_sessions_total{state="closed"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "wsrelay_relay_sessions_total"); err != nil {
		t.Errorf("Unexpected metrics output: %v", err)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	// None of these may panic
	m.ConnectionAccepted()
	m.AcceptFailed()
	m.InboundFinished("failed")
	m.RelayFinished("failed", time.Second)
	m.StepFailed("read")
	m.TaskStarted()
	m.TaskDone()
	m.TaskPanicked()
	m.HTTPRequest("/", "404")
}

func TestNew_NilRegisterer(t *testing.T) {
	if New(nil) == nil {
		t.Fatal("Expected metrics with a private registry")
	}
	// A second call must not collide with the first
	if New(nil) == nil {
		t.Fatal("Expected metrics with a second private registry")
	}
}
