package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/julienstroheker/wsrelay/internal/transport"
)

const (
	// DefaultListenAddr is where the relay accepts inbound clients
	DefaultListenAddr = "127.0.0.1:8083"

	// DefaultMasterAddr is where every relay session forwards its message
	DefaultMasterAddr = "127.0.0.1:8084"
)

// Config holds shared configuration values for wsrelay components
type Config struct {
	// ListenAddr is the local endpoint accepting inbound WebSocket clients
	ListenAddr string

	// MasterAddr is the fixed remote endpoint relay sessions connect to
	MasterAddr string

	// EchoAddr is the endpoint served by the echo master
	EchoAddr string

	// OpsAddr serves health and metrics endpoints; empty disables it
	OpsAddr string

	// LogLevel controls logging verbosity (debug, info, warn, error)
	LogLevel string

	// StepTimeout bounds each relay step; zero means no timeout
	StepTimeout time.Duration

	// HandshakeTimeout bounds the inbound upgrade handshake; zero means no timeout
	HandshakeTimeout time.Duration

	invalid []string
}

// Load creates a Config by reading from environment variables
// and applying defaults where values are not set
func Load() *Config {
	c := &Config{
		ListenAddr: getEnvOrDefault("WSRELAY_LISTEN_ADDR", DefaultListenAddr),
		MasterAddr: getEnvOrDefault("WSRELAY_MASTER_ADDR", DefaultMasterAddr),
		EchoAddr:   getEnvOrDefault("WSRELAY_ECHO_ADDR", DefaultMasterAddr),
		OpsAddr:    getEnvOrDefault("WSRELAY_OPS_ADDR", ""),
		LogLevel:   getEnvOrDefault("WSRELAY_LOG_LEVEL", "info"),
	}
	c.StepTimeout = c.getDurationOrDefault("WSRELAY_STEP_TIMEOUT", 0)
	c.HandshakeTimeout = c.getDurationOrDefault("WSRELAY_HANDSHAKE_TIMEOUT", 0)
	return c
}

// Validate checks that addresses parse and durations are sane
func (c *Config) Validate() error {
	var problems []string
	problems = append(problems, c.invalid...)

	if _, err := transport.ParseEndpoint(c.ListenAddr); err != nil {
		problems = append(problems, fmt.Sprintf("listen address: %v", err))
	}
	if _, err := transport.ParseEndpoint(c.MasterAddr); err != nil {
		problems = append(problems, fmt.Sprintf("master address: %v", err))
	}
	if c.OpsAddr != "" {
		if _, err := transport.ParseEndpoint(c.OpsAddr); err != nil {
			problems = append(problems, fmt.Sprintf("ops address: %v", err))
		}
	}
	if c.StepTimeout < 0 {
		problems = append(problems, "step timeout must not be negative")
	}
	if c.HandshakeTimeout < 0 {
		problems = append(problems, "handshake timeout must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}

	return nil
}

// ValidateEcho checks the configuration used by the echo master
func (c *Config) ValidateEcho() error {
	if _, err := transport.ParseEndpoint(c.EchoAddr); err != nil {
		return fmt.Errorf("invalid configuration: echo address: %w", err)
	}
	return nil
}

// getEnvOrDefault retrieves an environment variable or returns a default value
func getEnvOrDefault(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

// getDurationOrDefault parses a duration variable, remembering malformed values for Validate
func (c *Config) getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		c.invalid = append(c.invalid, fmt.Sprintf("%s: %q is not a duration", key, val))
		return defaultValue
	}
	return d
}
