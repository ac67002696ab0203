package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/julienstroheker/wsrelay/internal/config"
	"github.com/julienstroheker/wsrelay/internal/logging"
	"github.com/julienstroheker/wsrelay/internal/metrics"
	"github.com/julienstroheker/wsrelay/internal/reactor"
	"github.com/julienstroheker/wsrelay/internal/transport"
	relayhttp "github.com/julienstroheker/wsrelay/relay/http"
	"github.com/julienstroheker/wsrelay/relay/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const defaultShutdownTimeout = 30

var (
	listenFlag           string
	masterFlag           string
	opsAddrFlag          string
	stepTimeoutFlag      time.Duration
	handshakeTimeoutFlag time.Duration
	shutdownTimeoutFlag  int
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the relay",
	Long: `Start the relay: accept WebSocket clients on the listen address and forward
each client's first message to the master endpoint`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runRelay(ctx, cmd)
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
	startCmd.Flags().StringVar(&listenFlag, "listen", "",
		fmt.Sprintf("Address to accept clients on (default %s, env WSRELAY_LISTEN_ADDR)", config.DefaultListenAddr))
	startCmd.Flags().StringVar(&masterFlag, "master", "",
		fmt.Sprintf("Master endpoint to relay to (default %s, env WSRELAY_MASTER_ADDR)", config.DefaultMasterAddr))
	startCmd.Flags().StringVar(&opsAddrFlag, "ops-addr", "",
		"Address for /healthz, /readyz and /metrics (env WSRELAY_OPS_ADDR, disabled when empty)")
	startCmd.Flags().DurationVar(&stepTimeoutFlag, "step-timeout", 0,
		"Timeout applied to each relay step, 0 disables (env WSRELAY_STEP_TIMEOUT)")
	startCmd.Flags().DurationVar(&handshakeTimeoutFlag, "handshake-timeout", 0,
		"Timeout for the inbound upgrade, 0 disables (env WSRELAY_HANDSHAKE_TIMEOUT)")
	startCmd.Flags().IntVar(&shutdownTimeoutFlag, "shutdown-timeout", defaultShutdownTimeout,
		"Graceful shutdown timeout in seconds")
}

// applyStartFlags overrides environment values with explicitly set flags
func applyStartFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("listen") {
		c.ListenAddr = listenFlag
	}
	if flags.Changed("master") {
		c.MasterAddr = masterFlag
	}
	if flags.Changed("ops-addr") {
		c.OpsAddr = opsAddrFlag
	}
	if flags.Changed("step-timeout") {
		c.StepTimeout = stepTimeoutFlag
	}
	if flags.Changed("handshake-timeout") {
		c.HandshakeTimeout = handshakeTimeoutFlag
	}
}

func runRelay(ctx context.Context, cmd *cobra.Command) error {
	applyStartFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	master, err := transport.ParseEndpoint(cfg.MasterAddr)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	r := reactor.New(&reactor.Options{Logger: logger, Metrics: m})
	listener := server.NewListener(&server.Options{
		Reactor:          r,
		Master:           master,
		HandshakeTimeout: cfg.HandshakeTimeout,
		StepTimeout:      cfg.StepTimeout,
		Logger:           logger,
		Metrics:          m,
	})

	var ops *relayhttp.Server
	if cfg.OpsAddr != "" {
		ops = relayhttp.NewServer(&relayhttp.Options{
			Addr:     cfg.OpsAddr,
			Ready:    listener.Ready,
			Gatherer: reg,
			Metrics:  m,
			Logger:   logger,
		})
	}

	logger.Info("Starting relay",
		logging.String("mode", config.ModeRelay.String()),
		logging.String("listen_addr", cfg.ListenAddr),
		logging.String("master", master.String()),
		logging.Duration("step_timeout", cfg.StepTimeout))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return listener.ListenAndServe(gctx, cfg.ListenAddr)
	})
	if ops != nil {
		g.Go(func() error {
			if err := ops.ListenAndServe(); err != nil {
				return fmt.Errorf("ops server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return ops.Shutdown(shutdownCtx)
		})
	}

	serveErr := g.Wait()

	// Sessions already dispatched run to completion within the shutdown timeout
	_ = r.Close()
	drainCtx, cancel := context.WithTimeout(context.Background(), time.Duration(shutdownTimeoutFlag)*time.Second)
	defer cancel()
	if err := r.Wait(drainCtx); err != nil {
		logger.Warn("Shutdown timeout reached with relay sessions in flight",
			logging.Int("in_flight", int(r.InFlight())))
	}

	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		logger.Error("Relay stopped", logging.Error(serveErr))
		return fmt.Errorf("relay error: %w", serveErr)
	}

	logger.Info("Relay stopped gracefully")
	return nil
}
