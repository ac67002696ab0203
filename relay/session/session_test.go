package session

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienstroheker/wsrelay/internal/logging"
	"github.com/julienstroheker/wsrelay/internal/transport"
	"go.uber.org/goleak"
)

// fakeTransport is a deterministic transport that records every step it runs
type fakeTransport struct {
	mu      sync.Mutex
	calls   map[string]int
	failAt  Step
	failErr error
	reply   string
	block   Step
	written []string
	closed  bool
}

func newFakeTransport(reply string) *fakeTransport {
	return &fakeTransport{calls: map[string]int{}, reply: reply}
}

func (f *fakeTransport) record(step Step) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[string(step)]++
}

func (f *fakeTransport) count(step Step) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[string(step)]
}

// outcome returns the scripted result of step, blocking on ctx when asked to
func (f *fakeTransport) outcome(ctx context.Context, step Step) error {
	f.record(step)
	if f.block == step {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.failAt == step {
		return f.failErr
	}
	return nil
}

func (f *fakeTransport) Resolve(ctx context.Context, ep transport.Endpoint) ([]string, error) {
	if err := f.outcome(ctx, StepResolve); err != nil {
		return nil, err
	}
	return []string{ep.String()}, nil
}

func (f *fakeTransport) Connect(ctx context.Context, addrs []string) (net.Conn, error) {
	if err := f.outcome(ctx, StepConnect); err != nil {
		return nil, err
	}
	client, server := net.Pipe()
	_ = server.Close()
	return client, nil
}

func (f *fakeTransport) Handshake(ctx context.Context, conn net.Conn, host, path string) (transport.MessageConn, error) {
	if err := f.outcome(ctx, StepHandshake); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &fakeConn{f: f, conn: conn}, nil
}

type fakeConn struct {
	f    *fakeTransport
	conn net.Conn
}

func (c *fakeConn) ReadMessage(ctx context.Context) ([]byte, error) {
	if err := c.f.outcome(ctx, StepRead); err != nil {
		return nil, err
	}
	return []byte(c.f.reply), nil
}

func (c *fakeConn) WriteMessage(ctx context.Context, payload []byte) error {
	if err := c.f.outcome(ctx, StepWrite); err != nil {
		return err
	}
	c.f.mu.Lock()
	c.f.written = append(c.f.written, string(payload))
	c.f.mu.Unlock()
	return nil
}

func (c *fakeConn) CloseNormal(ctx context.Context) error {
	return c.f.outcome(ctx, StepClose)
}

func (c *fakeConn) Close() error {
	c.f.mu.Lock()
	c.f.closed = true
	c.f.mu.Unlock()
	return c.conn.Close()
}

func (c *fakeConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

var fullHistory = []State{
	StateResolving, StateConnecting, StateHandshaking,
	StateWriting, StateReading, StateClosing, StateClosed,
}

var allSteps = []Step{StepResolve, StepConnect, StepHandshake, StepWrite, StepRead, StepClose}

func historyString(states []State) string {
	names := make([]string, len(states))
	for i, s := range states {
		names[i] = s.String()
	}
	return strings.Join(names, ",")
}

func newTestSession(tr Transport, payload string, buf *logging.Buffer) *Session {
	return New(&Options{
		Master:    transport.Endpoint{Host: "127.0.0.1", Port: "8084"},
		Payload:   payload,
		Transport: tr,
		Logger:    logging.NewWithOutput(logging.InfoLevel, buf),
	})
}

func TestSession_HappyPath(t *testing.T) {
	defer goleak.VerifyNone(t)

	tr := newFakeTransport("pong")
	buf := &logging.Buffer{}
	s := newTestSession(tr, "ping", buf)

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if s.State() != StateClosed {
		t.Errorf("Expected StateClosed, got: %s", s.State())
	}
	if got, want := historyString(s.History()), historyString(fullHistory); got != want {
		t.Errorf("Expected history %s, got: %s", want, got)
	}
	for _, step := range allSteps {
		if n := tr.count(step); n != 1 {
			t.Errorf("Expected step %s to run once, ran %d times", step, n)
		}
	}
	if len(tr.written) != 1 || tr.written[0] != "ping" {
		t.Errorf("Expected payload ping to be written once, got: %v", tr.written)
	}
	if string(s.Reply()) != "pong" {
		t.Errorf("Expected reply pong, got: %s", s.Reply())
	}
	if !tr.closed {
		t.Error("Expected the connection to be released")
	}
	if n := strings.Count(buf.String(), "reply=pong"); n != 1 {
		t.Errorf("Expected reply to be logged exactly once, got %d in: %s", n, buf.String())
	}
	if strings.Contains(buf.String(), "ERROR") {
		t.Errorf("Expected no error lines, got: %s", buf.String())
	}
}

func TestSession_FailsAtEachStep(t *testing.T) {
	defer goleak.VerifyNone(t)

	tests := []struct {
		step     Step
		sentinel error
		last     State
	}{
		{StepResolve, ErrResolve, StateResolving},
		{StepConnect, ErrConnect, StateConnecting},
		{StepHandshake, ErrHandshake, StateHandshaking},
		{StepWrite, ErrWrite, StateWriting},
		{StepRead, ErrRead, StateReading},
		{StepClose, ErrClose, StateClosing},
	}

	for i, tt := range tests {
		t.Run(string(tt.step), func(t *testing.T) {
			tr := newFakeTransport("pong")
			tr.failAt = tt.step
			tr.failErr = errors.New("injected " + string(tt.step) + " failure")
			buf := &logging.Buffer{}
			s := newTestSession(tr, "ping", buf)

			err := s.Run(context.Background())
			if err == nil {
				t.Fatal("Expected Run to fail")
			}
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("Expected errors.Is(err, %v), got: %v", tt.sentinel, err)
			}
			if step, ok := FailedStep(err); !ok || step != tt.step {
				t.Errorf("Expected failed step %s, got: %s", tt.step, step)
			}
			if !errors.Is(err, tr.failErr) {
				t.Errorf("Expected cause to be preserved, got: %v", err)
			}

			want := append(append([]State{}, fullHistory[:i+1]...), StateFailed)
			if got := historyString(s.History()); got != historyString(want) {
				t.Errorf("Expected history %s, got: %s", historyString(want), got)
			}

			for j, step := range allSteps {
				wantCalls := 0
				if j <= i {
					wantCalls = 1
				}
				if n := tr.count(step); n != wantCalls {
					t.Errorf("Expected step %s to run %d times, ran %d", step, wantCalls, n)
				}
			}

			out := buf.String()
			if !strings.Contains(out, "Relay session failed") || !strings.Contains(out, "step="+string(tt.step)) {
				t.Errorf("Expected failure to be logged with its step, got: %s", out)
			}
			if strings.Contains(out, "reply=") {
				t.Errorf("Expected no partial output, got: %s", out)
			}
			if s.Err() == nil {
				t.Error("Expected Err to be set")
			}
		})
	}
}

func TestSession_CleanCloseWhileReading(t *testing.T) {
	tr := newFakeTransport("")
	tr.failAt = StepRead
	tr.failErr = &websocket.CloseError{Code: websocket.CloseNormalClosure}
	buf := &logging.Buffer{}
	s := newTestSession(tr, "ping", buf)

	err := s.Run(context.Background())
	if !errors.Is(err, ErrRead) {
		t.Fatalf("Expected read failure, got: %v", err)
	}
	if s.State() != StateFailed {
		t.Errorf("Expected StateFailed, got: %s", s.State())
	}
	if strings.Contains(buf.String(), "ERROR") {
		t.Errorf("Expected no error line for a clean close, got: %s", buf.String())
	}
	if tr.count(StepClose) != 0 {
		t.Error("Expected closing step to be skipped")
	}
}

func TestSession_RunOnce(t *testing.T) {
	tr := newFakeTransport("pong")
	s := newTestSession(tr, "ping", &logging.Buffer{})

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if err := s.Run(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("Expected ErrAlreadyStarted, got: %v", err)
	}
	for _, step := range allSteps {
		if n := tr.count(step); n != 1 {
			t.Errorf("Expected step %s to run once, ran %d times", step, n)
		}
	}
}

func TestSession_StepTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	tr := newFakeTransport("pong")
	tr.block = StepRead
	s := New(&Options{
		Master:      transport.Endpoint{Host: "127.0.0.1", Port: "8084"},
		Payload:     "ping",
		Transport:   tr,
		StepTimeout: 50 * time.Millisecond,
	})

	start := time.Now()
	err := s.Run(context.Background())
	if !errors.Is(err, ErrRead) {
		t.Fatalf("Expected read failure, got: %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Expected the timeout to apply per step, took %v", elapsed)
	}
}

func TestSession_Defaults(t *testing.T) {
	s := New(nil)

	if s.ID() == "" {
		t.Error("Expected a generated session id")
	}
	if s.State() != StateNew {
		t.Errorf("Expected StateNew, got: %s", s.State())
	}
	if s.path != DefaultPath {
		t.Errorf("Expected default path /, got: %s", s.path)
	}
	if s.transport == nil {
		t.Error("Expected a default transport")
	}
}

// startMaster serves a WebSocket master that answers every message with reply(msg)
func startMaster(t *testing.T, reply func(string) string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = ws.Close() }()
		for {
			_, msg, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, []byte(reply(string(msg)))); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSession_RoundTripAgainstMaster(t *testing.T) {
	srv := startMaster(t, func(msg string) string {
		if msg == "ping" {
			return "pong"
		}
		return "?"
	})
	master, err := transport.ParseEndpoint(strings.TrimPrefix(srv.URL, "http://"))
	if err != nil {
		t.Fatalf("ParseEndpoint failed: %v", err)
	}

	buf := &logging.Buffer{}
	s := New(&Options{
		Master:  master,
		Payload: "ping",
		Logger:  logging.NewWithOutput(logging.InfoLevel, buf),
	})

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if s.State() != StateClosed {
		t.Errorf("Expected StateClosed, got: %s", s.State())
	}
	if !strings.Contains(buf.String(), "reply=pong") {
		t.Errorf("Expected pong in the log, got: %s", buf.String())
	}
}

func TestSession_ConnectFallback(t *testing.T) {
	srv := startMaster(t, func(msg string) string { return "ack:" + msg })
	live := strings.TrimPrefix(srv.URL, "http://")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	refused := ln.Addr().String()
	_ = ln.Close()

	s := New(&Options{
		Master:  transport.Endpoint{Host: "master.test", Port: "8084"},
		Payload: "hello",
		Transport: transport.NewWebSocketClient(&transport.ClientOptions{
			Resolver: transport.StaticResolver{refused, live},
		}),
	})

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := historyString(s.History()); got != historyString(fullHistory) {
		t.Errorf("Expected full history, got: %s", got)
	}
	if string(s.Reply()) != "ack:hello" {
		t.Errorf("Expected ack:hello, got: %s", s.Reply())
	}
}

func TestSession_ConnectAllRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	refused := ln.Addr().String()
	_ = ln.Close()

	s := New(&Options{
		Master:  transport.Endpoint{Host: "master.test", Port: "8084"},
		Payload: "hello",
		Transport: transport.NewWebSocketClient(&transport.ClientOptions{
			Resolver: transport.StaticResolver{refused},
		}),
	})

	err = s.Run(context.Background())
	if !errors.Is(err, ErrConnect) {
		t.Fatalf("Expected connect failure, got: %v", err)
	}
}

func TestStepError(t *testing.T) {
	cause := errors.New("connection refused")
	err := error(&StepError{Step: StepConnect, Err: cause})

	if err.Error() != "connect: connection refused" {
		t.Errorf("Unexpected message: %s", err.Error())
	}
	if !errors.Is(err, ErrConnect) {
		t.Error("Expected match with ErrConnect")
	}
	if errors.Is(err, ErrResolve) {
		t.Error("Did not expect match with ErrResolve")
	}
	if !errors.Is(err, cause) {
		t.Error("Expected cause to unwrap")
	}
	if ErrAccept.Error() != "accept failed" {
		t.Errorf("Unexpected sentinel message: %s", ErrAccept.Error())
	}
	if _, ok := FailedStep(cause); ok {
		t.Error("Plain errors carry no step")
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateNew, "new"},
		{StateResolving, "resolving"},
		{StateConnecting, "connecting"},
		{StateHandshaking, "handshaking"},
		{StateWriting, "writing"},
		{StateReading, "reading"},
		{StateClosing, "closing"},
		{StateClosed, "closed"},
		{StateFailed, "failed"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.state.String(); got != tt.want {
				t.Errorf("Expected %s, got: %s", tt.want, got)
			}
		})
	}

	if !StateClosed.Terminal() || !StateFailed.Terminal() || StateReading.Terminal() {
		t.Error("Unexpected Terminal() result")
	}
}
