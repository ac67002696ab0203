package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/julienstroheker/wsrelay/internal/config"
	"github.com/julienstroheker/wsrelay/internal/logging"
	"github.com/julienstroheker/wsrelay/master"
	"github.com/spf13/cobra"
)

var echoListenFlag string

var echoCmd = &cobra.Command{
	Use:   "echo",
	Short: "Run the echo master",
	Long:  `Run a WebSocket endpoint that writes every received message back to its sender`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runEcho(ctx, cmd)
	},
}

func init() {
	rootCmd.AddCommand(echoCmd)
	echoCmd.Flags().StringVar(&echoListenFlag, "listen", "",
		fmt.Sprintf("Address to serve on (default %s, env WSRELAY_ECHO_ADDR)", config.DefaultMasterAddr))
	echoCmd.Flags().IntVar(&shutdownTimeoutFlag, "shutdown-timeout", defaultShutdownTimeout,
		"Graceful shutdown timeout in seconds")
}

func runEcho(ctx context.Context, cmd *cobra.Command) error {
	if cmd.Flags().Changed("listen") {
		cfg.EchoAddr = echoListenFlag
	}
	if err := cfg.ValidateEcho(); err != nil {
		return err
	}

	logger.Info("Starting echo master",
		logging.String("mode", config.ModeEcho.String()),
		logging.String("listen_addr", cfg.EchoAddr))

	srv := master.NewServer(&master.Options{Logger: logger})
	if err := srv.ListenAndServe(ctx, cfg.EchoAddr); err != nil {
		return fmt.Errorf("echo master error: %w", err)
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), time.Duration(shutdownTimeoutFlag)*time.Second)
	defer cancel()
	if err := srv.Wait(drainCtx); err != nil {
		logger.Warn("Shutdown timeout reached with echo connections open")
	}

	logger.Info("Echo master stopped gracefully")
	return nil
}
