package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/julienstroheker/wsrelay/internal/logging"
	"github.com/julienstroheker/wsrelay/relay/session"
)

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// Listener accepts inbound connections and starts an InboundHandler for each
type Listener struct {
	opts *Options

	mu      sync.Mutex
	ln      net.Listener
	closing bool
	serving atomic.Bool
}

// NewListener creates a new Listener
func NewListener(opts *Options) *Listener {
	if opts == nil {
		opts = &Options{}
	}
	return &Listener{opts: opts.withDefaults()}
}

// ListenAndServe binds addr and serves until ctx is done or the socket fails
func (l *Listener) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return &session.StepError{Step: session.StepAccept, Err: fmt.Errorf("listen on %s: %w", addr, err)}
	}
	return l.Serve(ctx, ln)
}

// Serve runs the accept loop on ln. Each accepted connection is handed to the
// Reactor before the next Accept, so slow handlers never stall accepting.
// Transient accept errors are logged and retried with backoff. Serve returns nil
// when ctx is done or Close was called, and an error when the listening socket
// itself became unusable.
func (l *Listener) Serve(ctx context.Context, ln net.Listener) error {
	l.mu.Lock()
	l.ln = ln
	closing := l.closing
	l.mu.Unlock()
	if closing {
		_ = ln.Close()
		return nil
	}

	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()

	l.serving.Store(true)
	defer l.serving.Store(false)

	logger := l.opts.Logger
	logger.Info("Listener started",
		logging.String("listen_addr", ln.Addr().String()),
		logging.String("master", l.opts.Master.String()))

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || l.isClosing() {
				logger.Info("Listener stopped")
				return nil
			}

			l.opts.Metrics.AcceptFailed()

			if errors.Is(err, net.ErrClosed) {
				logger.Error("Listener socket closed unexpectedly",
					logging.String("step", string(session.StepAccept)),
					logging.Error(err))
				return &session.StepError{Step: session.StepAccept, Err: err}
			}

			backoff = nextBackoff(backoff)
			logger.Error("Accept failed",
				logging.String("step", string(session.StepAccept)),
				logging.Error(err),
				logging.Duration("retry_in", backoff))

			select {
			case <-ctx.Done():
				logger.Info("Listener stopped")
				return nil
			case <-time.After(backoff):
			}
			continue
		}
		backoff = 0

		l.opts.Metrics.ConnectionAccepted()
		logger.Info("Connection accepted", logging.String("remote_addr", conn.RemoteAddr().String()))

		h := NewInboundHandler(conn, l.opts)
		if err := l.opts.Reactor.Go("inbound "+h.ID(), func(ctx context.Context) {
			_ = h.Run(ctx)
		}); err != nil {
			logger.Warn("Dropping connection, reactor is closed", logging.Error(err))
			_ = conn.Close()
		}
	}
}

// Addr returns the bound address, nil before Serve
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Ready reports whether the accept loop is running
func (l *Listener) Ready() bool {
	return l.serving.Load() && !l.isClosing()
}

// Close stops the accept loop. In-flight handlers keep running.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closing = true
	if l.ln != nil {
		return l.ln.Close()
	}
	return nil
}

func (l *Listener) isClosing() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closing
}

// nextBackoff doubles the previous delay within [minAcceptBackoff, maxAcceptBackoff]
func nextBackoff(prev time.Duration) time.Duration {
	if prev == 0 {
		return minAcceptBackoff
	}
	next := prev * 2
	if next > maxAcceptBackoff {
		return maxAcceptBackoff
	}
	return next
}
