// Package master provides the echo master: a WebSocket endpoint that writes
// every message it receives back to the sender until the peer closes.
//
// It is the synchronous deployment mode of the relay. Each connection is
// served by its own task and blocks on reads and writes.
package master

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/julienstroheker/wsrelay/internal/logging"
	"github.com/julienstroheker/wsrelay/internal/metrics"
	"github.com/julienstroheker/wsrelay/internal/reactor"
	"github.com/julienstroheker/wsrelay/internal/transport"
)

// ServerName is sent in the Server header of the upgrade response
const ServerName = "connect websocket"

const acceptRetry = 10 * time.Millisecond

// Options configures an echo Server
type Options struct {
	Reactor *reactor.Reactor
	Logger  *logging.Logger
	Metrics *metrics.Metrics

	// ReadLimit caps the size of one message; zero keeps the transport default
	ReadLimit int64
}

// Server is the echo master
type Server struct {
	acceptor *transport.Acceptor
	reactor  *reactor.Reactor
	logger   *logging.Logger
	metrics  *metrics.Metrics

	mu sync.Mutex
	ln net.Listener
}

// NewServer creates an echo Server
func NewServer(opts *Options) *Server {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	r := opts.Reactor
	if r == nil {
		r = reactor.New(&reactor.Options{Logger: logger, Metrics: opts.Metrics})
	}

	return &Server{
		acceptor: transport.NewAcceptor(&transport.AcceptorOptions{
			ServerName: ServerName,
			ReadLimit:  opts.ReadLimit,
		}),
		reactor: r,
		logger:  logger,
		metrics: opts.Metrics,
	}
}

// ListenAndServe binds addr and serves until ctx is done
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln and echoes on each of them. It returns nil
// when ctx is done and an error when ln fails for another reason.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()

	s.logger.Info("Echo master started", logging.String("listen_addr", ln.Addr().String()))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Info("Echo master stopped")
				return nil
			}
			s.metrics.AcceptFailed()
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("accept: %w", err)
			}
			s.logger.Error("Accept failed", logging.Error(err))
			time.Sleep(acceptRetry)
			continue
		}

		s.metrics.ConnectionAccepted()
		s.logger.Info("Socket accepted", logging.String("remote_addr", conn.RemoteAddr().String()))

		if err := s.reactor.Go("echo "+conn.RemoteAddr().String(), func(ctx context.Context) {
			s.serveConn(ctx, conn)
		}); err != nil {
			_ = conn.Close()
		}
	}
}

// serveConn upgrades conn and echoes until the peer goes away
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	logger := s.logger.With(logging.String("remote_addr", conn.RemoteAddr().String()))

	ws, err := s.acceptor.Handshake(ctx, conn)
	if err != nil {
		_ = conn.Close()
		logger.Error("Echo handshake failed", logging.Error(err))
		return
	}
	defer func() { _ = ws.Close() }()

	for {
		msg, err := ws.ReadMessage(ctx)
		if err != nil {
			if transport.IsCleanClose(err) {
				logger.Debug("Peer closed the connection")
				return
			}
			logger.Error("Echo read failed", logging.Error(err))
			return
		}

		logger.Info("Echo message", logging.String("payload", string(msg)))

		if err := ws.WriteMessage(ctx, msg); err != nil {
			logger.Error("Echo write failed", logging.Error(err))
			return
		}
	}
}

// Addr returns the bound address, nil before Serve
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Wait blocks until every connection task has finished or ctx expires
func (s *Server) Wait(ctx context.Context) error {
	return s.reactor.Wait(ctx)
}
