package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
)

// ErrNoAddresses is returned when resolution yields nothing to dial
var ErrNoAddresses = errors.New("no addresses to dial")

// NetResolver resolves endpoints through a net.Resolver, keeping the resolver's order
type NetResolver struct {
	Resolver *net.Resolver
}

// Resolve looks up host and port and returns the candidates in resolver order
func (r *NetResolver) Resolve(ctx context.Context, host, port string) ([]string, error) {
	res := net.DefaultResolver
	if r != nil && r.Resolver != nil {
		res = r.Resolver
	}

	if host == "" {
		host = "localhost"
	}

	portNum, err := res.LookupPort(ctx, "tcp", port)
	if err != nil {
		return nil, fmt.Errorf("lookup port %q: %w", port, err)
	}

	hosts, err := res.LookupHost(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("lookup host %q: %w", host, err)
	}
	if len(hosts) == 0 {
		return nil, fmt.Errorf("lookup host %q: %w", host, ErrNoAddresses)
	}

	addrs := make([]string, 0, len(hosts))
	for _, h := range hosts {
		addrs = append(addrs, net.JoinHostPort(h, strconv.Itoa(portNum)))
	}
	return addrs, nil
}

// StaticResolver returns a fixed address list regardless of the endpoint
type StaticResolver []string

// Resolve returns a copy of the configured addresses
func (s StaticResolver) Resolve(_ context.Context, host, port string) ([]string, error) {
	if len(s) == 0 {
		return nil, fmt.Errorf("resolve %s: %w", net.JoinHostPort(host, port), ErrNoAddresses)
	}
	return append([]string(nil), s...), nil
}

var _ Resolver = (*NetResolver)(nil)
var _ Resolver = StaticResolver(nil)
