package transport

import (
	"fmt"
	"net"
	"strconv"
)

// Endpoint is a host and port pair that is resolved lazily
type Endpoint struct {
	Host string
	Port string
}

// ParseEndpoint splits a "host:port" string into an Endpoint
func ParseEndpoint(addr string) (Endpoint, error) {
	if addr == "" {
		return Endpoint{}, fmt.Errorf("address is empty")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return Endpoint{}, fmt.Errorf("parse %q: %w", addr, err)
	}

	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return Endpoint{}, fmt.Errorf("parse %q: invalid port %q", addr, port)
	}

	return Endpoint{Host: host, Port: port}, nil
}

// String returns the endpoint in "host:port" form
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, e.Port)
}
