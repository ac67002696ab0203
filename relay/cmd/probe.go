package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/julienstroheker/wsrelay/internal/httpclient"
	"github.com/julienstroheker/wsrelay/internal/logging"
	"github.com/julienstroheker/wsrelay/internal/transport"
	"github.com/spf13/cobra"
)

var (
	probeAddrFlag    string
	probeRetriesFlag int
	probeTimeoutFlag time.Duration
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check that a running relay is ready",
	Long: `Query /readyz on a running relay's ops server and exit non-zero unless it
reports ready. Suitable as a container health check.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProbe(cmd.Context(), cmd)
	},
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().StringVar(&probeAddrFlag, "ops-addr", "", "Ops server address (env WSRELAY_OPS_ADDR)")
	probeCmd.Flags().IntVar(&probeRetriesFlag, "retries", 3, "Retries while the relay reports not ready")
	probeCmd.Flags().DurationVar(&probeTimeoutFlag, "timeout", 10*time.Second, "Overall probe timeout")
}

func runProbe(ctx context.Context, cmd *cobra.Command) error {
	addr := cfg.OpsAddr
	if cmd.Flags().Changed("ops-addr") {
		addr = probeAddrFlag
	}
	if addr == "" {
		return fmt.Errorf("no ops address: set --ops-addr or WSRELAY_OPS_ADDR")
	}
	if _, err := transport.ParseEndpoint(addr); err != nil {
		return fmt.Errorf("invalid ops address: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeoutFlag)
	defer cancel()

	opts := httpclient.DefaultOptions()
	opts.MaxRetries = probeRetriesFlag
	opts.Logger = logger
	client := httpclient.NewClient(opts)

	url := "http://" + addr + "/readyz"
	resp, err := client.Get(ctx, url)
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("relay not ready: %d %s", resp.StatusCode, body)
	}

	logger.Info("Relay ready",
		logging.String("url", url),
		logging.String("request_id", resp.Header.Get("X-Request-Id")))
	return nil
}
