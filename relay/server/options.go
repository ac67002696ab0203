package server

import (
	"time"

	"github.com/julienstroheker/wsrelay/internal/logging"
	"github.com/julienstroheker/wsrelay/internal/metrics"
	"github.com/julienstroheker/wsrelay/internal/reactor"
	"github.com/julienstroheker/wsrelay/internal/transport"
	"github.com/julienstroheker/wsrelay/relay/session"
)

// Options configures the Listener and every InboundHandler it starts
type Options struct {
	// Reactor runs one task per accepted connection (default: a private Reactor)
	Reactor *reactor.Reactor

	// Master is the fixed endpoint every relay session forwards to
	Master transport.Endpoint

	// Acceptor performs the inbound upgrade (default: NewAcceptor(nil))
	Acceptor *transport.Acceptor

	// Transport is used by relay sessions (default: WebSocketClient)
	Transport session.Transport

	// HandshakeTimeout bounds the inbound upgrade; zero disables it
	HandshakeTimeout time.Duration

	// StepTimeout bounds the inbound read and each relay step; zero disables it
	StepTimeout time.Duration

	Logger  *logging.Logger
	Metrics *metrics.Metrics

	// OnInboundDone is called after a handler reaches a terminal state
	OnInboundDone func(*InboundHandler)

	// OnRelayDone is called after a dispatched relay session finished
	OnRelayDone func(*session.Session)
}

func (o *Options) withDefaults() *Options {
	out := *o
	if out.Acceptor == nil {
		out.Acceptor = transport.NewAcceptor(nil)
	}
	if out.Transport == nil {
		out.Transport = transport.NewWebSocketClient(nil)
	}
	if out.Logger == nil {
		out.Logger = logging.Discard()
	}
	if out.Reactor == nil {
		out.Reactor = reactor.New(&reactor.Options{Logger: out.Logger, Metrics: out.Metrics})
	}
	return &out
}
