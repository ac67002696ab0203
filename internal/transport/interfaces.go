package transport

import (
	"context"
	"net"
)

// MessageConn is a framed, message-oriented connection obtained after a handshake
type MessageConn interface {
	// ReadMessage blocks until one complete data frame arrives
	ReadMessage(ctx context.Context) ([]byte, error)

	// WriteMessage sends payload as one text frame
	WriteMessage(ctx context.Context, payload []byte) error

	// CloseNormal sends a normal-closure frame and waits for the peer's close frame
	CloseNormal(ctx context.Context) error

	// Close releases the underlying socket without a closing handshake
	Close() error

	// RemoteAddr returns the peer address
	RemoteAddr() net.Addr
}

// Resolver turns a host and port into dialable "host:port" addresses
type Resolver interface {
	Resolve(ctx context.Context, host, port string) ([]string, error)
}

// ContextDialer opens raw stream connections
type ContextDialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}
