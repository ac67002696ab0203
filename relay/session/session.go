// Package session implements the relay session: one message delivered to the
// master endpoint over a fresh WebSocket connection, and one reply observed.
//
// A Session walks RESOLVING, CONNECTING, HANDSHAKING, WRITING, READING,
// CLOSING and ends in CLOSED, or stops in FAILED at the first step that
// errors. Every step runs exactly once and nothing is retried. The goroutine
// calling Run owns the session and its connection until Run returns.
package session

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/julienstroheker/wsrelay/internal/logging"
	"github.com/julienstroheker/wsrelay/internal/metrics"
	"github.com/julienstroheker/wsrelay/internal/transport"
)

// DefaultPath is the request path of the outbound handshake
const DefaultPath = "/"

// Transport performs the connection steps of a session
type Transport interface {
	Resolve(ctx context.Context, ep transport.Endpoint) ([]string, error)
	Connect(ctx context.Context, addrs []string) (net.Conn, error)
	Handshake(ctx context.Context, conn net.Conn, host, path string) (transport.MessageConn, error)
}

// Options configures a Session
type Options struct {
	// ID correlates log lines; a uuid is generated when empty
	ID string

	// Master is the endpoint the payload is forwarded to
	Master transport.Endpoint

	// Payload is sent as a single text frame
	Payload string

	// Transport defaults to a WebSocketClient with the system resolver
	Transport Transport

	// Path is the handshake request path (default "/")
	Path string

	// StepTimeout bounds each step individually; zero disables timeouts
	StepTimeout time.Duration

	Logger  *logging.Logger
	Metrics *metrics.Metrics
}

// Session relays one message to the master endpoint
type Session struct {
	id          string
	master      transport.Endpoint
	payload     string
	transport   Transport
	path        string
	stepTimeout time.Duration
	logger      *logging.Logger
	metrics     *metrics.Metrics

	started atomic.Bool

	// Owned by the goroutine running Run.
	state   State
	history []State
	conn    net.Conn
	ws      transport.MessageConn
	reply   []byte
	err     error
}

// New creates a Session in StateNew
func New(opts *Options) *Session {
	if opts == nil {
		opts = &Options{}
	}

	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	tr := opts.Transport
	if tr == nil {
		tr = transport.NewWebSocketClient(nil)
	}
	path := opts.Path
	if path == "" {
		path = DefaultPath
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &Session{
		id:          id,
		master:      opts.Master,
		payload:     opts.Payload,
		transport:   tr,
		path:        path,
		stepTimeout: opts.StepTimeout,
		logger:      logger.With(logging.String("session_id", id)),
		metrics:     opts.Metrics,
		state:       StateNew,
	}
}

// Run drives the session to CLOSED or FAILED. It returns nil on CLOSED and a
// *StepError naming the failing step otherwise. Run may only be called once.
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	start := time.Now()
	defer func() {
		s.release()
		s.metrics.RelayFinished(s.state.String(), time.Since(start))
	}()

	s.logger.Debug("Relay session started",
		logging.String("master", s.master.String()),
		logging.Int("bytes", len(s.payload)))

	s.enter(StateResolving)
	addrs, err := s.resolve(ctx)
	if err != nil {
		return s.fail(StepResolve, err)
	}

	s.enter(StateConnecting)
	if err := s.connect(ctx, addrs); err != nil {
		return s.fail(StepConnect, err)
	}

	s.enter(StateHandshaking)
	if err := s.handshake(ctx); err != nil {
		return s.fail(StepHandshake, err)
	}

	s.enter(StateWriting)
	if err := s.write(ctx); err != nil {
		return s.fail(StepWrite, err)
	}

	s.enter(StateReading)
	if err := s.read(ctx); err != nil {
		return s.fail(StepRead, err)
	}

	s.enter(StateClosing)
	if err := s.close(ctx); err != nil {
		return s.fail(StepClose, err)
	}

	s.enter(StateClosed)
	s.logger.Info("Relay reply",
		logging.String("master", s.master.String()),
		logging.String("reply", string(s.reply)))
	return nil
}

func (s *Session) resolve(ctx context.Context) ([]string, error) {
	stepCtx, cancel := s.stepContext(ctx)
	defer cancel()

	addrs, err := s.transport.Resolve(stepCtx, s.master)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, transport.ErrNoAddresses
	}
	s.logger.Debug("Master resolved", logging.Any("addresses", addrs))
	return addrs, nil
}

func (s *Session) connect(ctx context.Context, addrs []string) error {
	stepCtx, cancel := s.stepContext(ctx)
	defer cancel()

	conn, err := s.transport.Connect(stepCtx, addrs)
	if err != nil {
		return err
	}
	s.conn = conn
	s.logger.Debug("Master connected", logging.String("remote_addr", conn.RemoteAddr().String()))
	return nil
}

func (s *Session) handshake(ctx context.Context) error {
	stepCtx, cancel := s.stepContext(ctx)
	defer cancel()

	ws, err := s.transport.Handshake(stepCtx, s.conn, s.master.Host, s.path)
	if err != nil {
		return err
	}
	s.ws = ws
	return nil
}

func (s *Session) write(ctx context.Context) error {
	stepCtx, cancel := s.stepContext(ctx)
	defer cancel()

	return s.ws.WriteMessage(stepCtx, []byte(s.payload))
}

func (s *Session) read(ctx context.Context) error {
	stepCtx, cancel := s.stepContext(ctx)
	defer cancel()

	reply, err := s.ws.ReadMessage(stepCtx)
	if err != nil {
		return err
	}
	s.reply = reply
	return nil
}

func (s *Session) close(ctx context.Context) error {
	stepCtx, cancel := s.stepContext(ctx)
	defer cancel()

	return s.ws.CloseNormal(stepCtx)
}

// stepContext derives the context for one step, applying the step timeout if any
func (s *Session) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.stepTimeout > 0 {
		return context.WithTimeout(ctx, s.stepTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *Session) enter(state State) {
	s.state = state
	s.history = append(s.history, state)
}

// fail moves the session to FAILED and reports the step. A clean close from
// the master while waiting for the reply ends the session without an error line.
func (s *Session) fail(step Step, err error) error {
	s.err = &StepError{Step: step, Err: err}
	s.enter(StateFailed)
	s.metrics.StepFailed(string(step))

	if step == StepRead && transport.IsCleanClose(err) {
		s.logger.Info("Master closed the connection without replying",
			logging.String("master", s.master.String()))
		return s.err
	}

	s.logger.Error("Relay session failed",
		logging.String("step", string(step)),
		logging.String("master", s.master.String()),
		logging.Error(err))
	return s.err
}

// release drops the connection once the session is terminal
func (s *Session) release() {
	switch {
	case s.ws != nil:
		_ = s.ws.Close()
	case s.conn != nil:
		_ = s.conn.Close()
	}
	s.ws = nil
	s.conn = nil
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Payload returns the message being relayed
func (s *Session) Payload() string {
	return s.payload
}

// State returns the current state. Call it only after Run returned or from the Run goroutine.
func (s *Session) State() State {
	return s.state
}

// History returns every state visited, in order
func (s *Session) History() []State {
	return append([]State(nil), s.history...)
}

// Reply returns the reply frame received from the master
func (s *Session) Reply() []byte {
	return s.reply
}

// Err returns the terminal error, nil unless the session FAILED
func (s *Session) Err() error {
	return s.err
}
