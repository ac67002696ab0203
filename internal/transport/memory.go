package transport

import (
	"context"
	"net"
	"sync"
)

// memoryAddr is the address reported by MemoryListener and its connections
type memoryAddr struct{}

func (memoryAddr) Network() string { return "memory" }
func (memoryAddr) String() string  { return "memory" }

// MemoryListener is an in-memory net.Listener backed by net.Pipe
type MemoryListener struct {
	connections chan net.Conn
	errs        chan error
	done        chan struct{}
	mu          sync.Mutex
	closed      bool
}

// NewMemoryListener creates a new in-memory listener
func NewMemoryListener() *MemoryListener {
	return &MemoryListener{
		connections: make(chan net.Conn, 64),
		errs:        make(chan error, 16),
		done:        make(chan struct{}),
	}
}

// Accept waits for and returns the next connection or injected error
func (l *MemoryListener) Accept() (net.Conn, error) {
	select {
	case <-l.done:
		return nil, net.ErrClosed
	default:
	}

	select {
	case <-l.done:
		return nil, net.ErrClosed
	case err := <-l.errs:
		return nil, err
	case conn := <-l.connections:
		return conn, nil
	}
}

// Close closes the listener; pending and future Accept calls return net.ErrClosed
func (l *MemoryListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	close(l.done)
	return nil
}

// Addr returns the listener's address
func (l *MemoryListener) Addr() net.Addr {
	return memoryAddr{}
}

// DialContext creates a connected pipe and queues the server end for Accept
func (l *MemoryListener) DialContext(ctx context.Context, _, _ string) (net.Conn, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, net.ErrClosed
	}
	l.mu.Unlock()

	client, server := net.Pipe()

	select {
	case <-ctx.Done():
		_ = client.Close()
		_ = server.Close()
		return nil, ctx.Err()
	case <-l.done:
		_ = client.Close()
		_ = server.Close()
		return nil, net.ErrClosed
	case l.connections <- server:
		return client, nil
	}
}

// InjectError makes a future Accept call return err
func (l *MemoryListener) InjectError(err error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return net.ErrClosed
	}
	l.errs <- err
	return nil
}

var _ net.Listener = (*MemoryListener)(nil)
var _ ContextDialer = (*MemoryListener)(nil)
