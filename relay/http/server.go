// Package http serves the relay's operational endpoints: liveness, readiness
// and Prometheus metrics. It never carries relay traffic.
package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/julienstroheker/wsrelay/internal/logging"
	"github.com/julienstroheker/wsrelay/internal/metrics"
	"github.com/julienstroheker/wsrelay/relay/http/handlers"
	"github.com/julienstroheker/wsrelay/relay/http/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	healthPath  = "/healthz"
	readyPath   = "/readyz"
	metricsPath = "/metrics"
)

// Server represents the ops HTTP server
type Server struct {
	server *http.Server
	logger *logging.Logger

	mu sync.Mutex
	ln net.Listener
}

// Options configures the ops HTTP server
type Options struct {
	// Addr is the listen address, e.g. "127.0.0.1:9090"
	Addr string

	// Ready backs /readyz; nil means always ready
	Ready func() bool

	// Gatherer backs /metrics; nil uses prometheus.DefaultGatherer
	Gatherer prometheus.Gatherer

	Metrics *metrics.Metrics
	Logger  *logging.Logger
}

// NewServer creates a new ops HTTP server instance
func NewServer(opts *Options) *Server {
	if opts == nil {
		opts = &Options{}
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()
	mux.HandleFunc(healthPath, handlers.HealthHandler)
	mux.HandleFunc(readyPath, handlers.NewReadyHandler(opts.Ready))
	mux.Handle(metricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Telemetry runs first so the logger sees request IDs
	var handler http.Handler = mux
	handler = middleware.Metrics(opts.Metrics, healthPath, readyPath, metricsPath)(handler)
	handler = middleware.Logger(logger)(handler)
	handler = middleware.Telemetry(handler)

	return &Server{
		server: &http.Server{
			Addr:              opts.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// ListenAndServe binds the configured address and serves until Shutdown or Close
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln. It returns nil after Shutdown or Close.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.logger.Info("Ops server started", logging.String("addr", ln.Addr().String()))
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
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

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Close immediately closes the server
func (s *Server) Close() error {
	return s.server.Close()
}
