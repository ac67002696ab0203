package transport

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/multierr"
)

// ConnectFirst dials addrs strictly in order and returns the first connection that succeeds.
// The remaining candidates are never tried once one connects. When every attempt fails
// the returned error aggregates all of them.
func ConnectFirst(ctx context.Context, dialer ContextDialer, addrs []string) (net.Conn, string, error) {
	if len(addrs) == 0 {
		return nil, "", ErrNoAddresses
	}
	if dialer == nil {
		dialer = &net.Dialer{}
	}

	var errs error
	for _, addr := range addrs {
		if err := ctx.Err(); err != nil {
			return nil, "", multierr.Append(errs, err)
		}

		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, addr, nil
		}
		errs = multierr.Append(errs, fmt.Errorf("dial %s: %w", addr, err))
	}

	return nil, "", errs
}
