package server

import (
	"context"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/julienstroheker/wsrelay/internal/logging"
	"github.com/julienstroheker/wsrelay/internal/transport"
	"github.com/julienstroheker/wsrelay/relay/session"
)

// closeGrace bounds the closing handshake with the inbound client
const closeGrace = time.Second

// InboundState is a position in the inbound handler state machine
type InboundState int

const (
	// InboundAccepting performs the server handshake
	InboundAccepting InboundState = iota
	// InboundReading waits for the single message
	InboundReading
	// InboundDispatched handed the message to a relay session
	InboundDispatched
	// InboundFailed stopped before a message could be dispatched
	InboundFailed
)

// String returns the lower-case name of the state
func (s InboundState) String() string {
	switch s {
	case InboundAccepting:
		return "accepting"
	case InboundReading:
		return "reading"
	case InboundDispatched:
		return "dispatched"
	case InboundFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// InboundHandler owns one accepted connection: it upgrades it, reads one
// message and relays that message to the master through a new session.
// The master's reply is logged by the session and never sent back to the client.
type InboundHandler struct {
	id      string
	conn    net.Conn
	opts    *Options
	logger  *logging.Logger
	state   InboundState
	history []InboundState
	payload string
	relay   *session.Session
	err     error
}

// NewInboundHandler creates a handler for conn
func NewInboundHandler(conn net.Conn, opts *Options) *InboundHandler {
	if opts == nil {
		opts = &Options{}
	}
	opts = opts.withDefaults()

	id := uuid.New().String()
	return &InboundHandler{
		id:   id,
		conn: conn,
		opts: opts,
		logger: opts.Logger.With(
			logging.String("inbound_id", id),
			logging.String("remote_addr", conn.RemoteAddr().String())),
		state: InboundAccepting,
	}
}

// Run drives the handler to DISPATCHED or FAILED and, once dispatched, runs the
// relay session on the calling goroutine. It returns the handler's own error,
// never the relay's.
func (h *InboundHandler) Run(ctx context.Context) error {
	defer func() {
		h.opts.Metrics.InboundFinished(h.state.String())
		if h.opts.OnInboundDone != nil {
			h.opts.OnInboundDone(h)
		}
	}()

	h.enter(InboundAccepting)
	ws, err := h.accept(ctx)
	if err != nil {
		return h.fail(session.StepAccept, err)
	}

	h.enter(InboundReading)
	msg, err := h.read(ctx, ws)
	if err != nil {
		_ = ws.Close()
		return h.fail(session.StepRead, err)
	}
	h.payload = string(msg)

	h.enter(InboundDispatched)
	h.logger.Info("Inbound message received",
		logging.Int("bytes", len(msg)),
		logging.String("payload", h.payload))

	// The client's closing handshake runs alongside the relay, never ahead of it
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		h.closeInbound(ctx, ws)
	}()

	h.relay = session.New(&session.Options{
		Master:      h.opts.Master,
		Payload:     h.payload,
		Transport:   h.opts.Transport,
		StepTimeout: h.opts.StepTimeout,
		Logger:      h.opts.Logger.With(logging.String("inbound_id", h.id)),
		Metrics:     h.opts.Metrics,
	})
	_ = h.relay.Run(ctx)
	<-closed

	if h.opts.OnRelayDone != nil {
		h.opts.OnRelayDone(h.relay)
	}
	return nil
}

func (h *InboundHandler) accept(ctx context.Context) (transport.MessageConn, error) {
	if h.opts.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.HandshakeTimeout)
		defer cancel()
	}
	return h.opts.Acceptor.Handshake(ctx, h.conn)
}

func (h *InboundHandler) read(ctx context.Context, ws transport.MessageConn) ([]byte, error) {
	if h.opts.StepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.StepTimeout)
		defer cancel()
	}
	return ws.ReadMessage(ctx)
}

// closeInbound ends the client connection once its message has been taken
func (h *InboundHandler) closeInbound(ctx context.Context, ws transport.MessageConn) {
	closeCtx, cancel := context.WithTimeout(ctx, closeGrace)
	defer cancel()

	if err := ws.CloseNormal(closeCtx); err != nil {
		h.logger.Debug("Inbound close handshake incomplete", logging.Error(err))
	}
	_ = ws.Close()
}

func (h *InboundHandler) enter(state InboundState) {
	h.state = state
	h.history = append(h.history, state)
}

// fail moves the handler to FAILED. A client closing cleanly before sending a
// message is a normal end and is not logged as an error.
func (h *InboundHandler) fail(step session.Step, err error) error {
	h.err = &session.StepError{Step: step, Err: err}
	h.enter(InboundFailed)
	_ = h.conn.Close()
	h.opts.Metrics.StepFailed(string(step))

	if step == session.StepRead && transport.IsCleanClose(err) {
		h.logger.Debug("Inbound client closed before sending a message")
		return h.err
	}

	h.logger.Error("Inbound connection failed",
		logging.String("step", string(step)),
		logging.Error(err))
	return h.err
}

// ID returns the handler identifier
func (h *InboundHandler) ID() string {
	return h.id
}

// State returns the current state
func (h *InboundHandler) State() InboundState {
	return h.state
}

// History returns every state visited, in order
func (h *InboundHandler) History() []InboundState {
	return append([]InboundState(nil), h.history...)
}

// Payload returns the message read from the client
func (h *InboundHandler) Payload() string {
	return h.payload
}

// Relay returns the dispatched session, nil unless DISPATCHED
func (h *InboundHandler) Relay() *session.Session {
	return h.relay
}

// Err returns the handler's terminal error, nil unless FAILED
func (h *InboundHandler) Err() error {
	return h.err
}
