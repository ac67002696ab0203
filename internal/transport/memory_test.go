package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

func TestMemoryListener_DialAccept(t *testing.T) {
	ln := NewMemoryListener()
	defer func() { _ = ln.Close() }()

	client, err := ln.DialContext(context.Background(), "tcp", "ignored")
	if err != nil {
		t.Fatalf("DialContext failed: %v", err)
	}
	defer func() { _ = client.Close() }()

	server, err := ln.Accept()
	if err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	defer func() { _ = server.Close() }()

	go func() {
		_, _ = client.Write([]byte("hello"))
	}()

	buf := make([]byte, 5)
	if _, err := io.ReadFull(server, buf); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(buf) != "hello" {
		t.Errorf("Expected hello, got: %s", buf)
	}
}

func TestMemoryListener_InjectError(t *testing.T) {
	ln := NewMemoryListener()
	defer func() { _ = ln.Close() }()

	injected := errors.New("too many open files")
	if err := ln.InjectError(injected); err != nil {
		t.Fatalf("InjectError failed: %v", err)
	}

	if _, err := ln.Accept(); !errors.Is(err, injected) {
		t.Errorf("Expected injected error, got: %v", err)
	}
}

func TestMemoryListener_Close(t *testing.T) {
	ln := NewMemoryListener()

	errc := make(chan error, 1)
	go func() {
		_, err := ln.Accept()
		errc <- err
	}()

	time.Sleep(20 * time.Millisecond)
	if err := ln.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := ln.Close(); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}

	select {
	case err := <-errc:
		if !errors.Is(err, net.ErrClosed) {
			t.Errorf("Expected net.ErrClosed, got: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Accept did not unblock on Close")
	}

	if _, err := ln.DialContext(context.Background(), "tcp", ""); !errors.Is(err, net.ErrClosed) {
		t.Errorf("Expected dial on closed listener to fail, got: %v", err)
	}
	if err := ln.InjectError(errors.New("x")); !errors.Is(err, net.ErrClosed) {
		t.Errorf("Expected InjectError on closed listener to fail, got: %v", err)
	}
}

func TestMemoryListener_HandshakeOverPipe(t *testing.T) {
	ln := NewMemoryListener()
	defer func() { _ = ln.Close() }()

	done := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			done <- err.Error()
			return
		}
		mc, err := NewAcceptor(nil).Handshake(context.Background(), conn)
		if err != nil {
			done <- err.Error()
			return
		}
		defer func() { _ = mc.Close() }()
		msg, err := mc.ReadMessage(context.Background())
		if err != nil {
			done <- err.Error()
			return
		}
		done <- string(msg)
	}()

	client := NewWebSocketClient(&ClientOptions{
		Resolver: StaticResolver{"memory:0"},
		Dialer:   ln,
	})
	ctx := context.Background()
	addrs, err := client.Resolve(ctx, Endpoint{Host: "master", Port: "0"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	conn, err := client.Connect(ctx, addrs)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	mc, err := client.Handshake(ctx, conn, "master", "/")
	if err != nil {
		t.Fatalf("Handshake failed: %v", err)
	}
	defer func() { _ = mc.Close() }()

	if err := mc.WriteMessage(ctx, []byte("over a pipe")); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	select {
	case got := <-done:
		if got != "over a pipe" {
			t.Errorf("Expected message over a pipe, got: %s", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out")
	}
}
