package transport

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

// ClientOptions configures a WebSocketClient
type ClientOptions struct {
	// Resolver turns the master endpoint into candidate addresses (default: NetResolver)
	Resolver Resolver

	// Dialer opens the raw connections (default: net.Dialer)
	Dialer ContextDialer

	// ReadLimit caps the size of a single received frame; zero means unlimited
	ReadLimit int64
}

// WebSocketClient exposes resolve, connect and handshake as separate steps
type WebSocketClient struct {
	resolver  Resolver
	dialer    ContextDialer
	readLimit int64
}

// NewWebSocketClient creates a new client
func NewWebSocketClient(opts *ClientOptions) *WebSocketClient {
	if opts == nil {
		opts = &ClientOptions{}
	}

	c := &WebSocketClient{
		resolver:  opts.Resolver,
		dialer:    opts.Dialer,
		readLimit: opts.ReadLimit,
	}
	if c.resolver == nil {
		c.resolver = &NetResolver{}
	}
	if c.dialer == nil {
		c.dialer = &net.Dialer{}
	}
	return c
}

// Resolve returns the dial candidates for ep in resolver order
func (c *WebSocketClient) Resolve(ctx context.Context, ep Endpoint) ([]string, error) {
	return c.resolver.Resolve(ctx, ep.Host, ep.Port)
}

// Connect dials the candidates in order and keeps the first success
func (c *WebSocketClient) Connect(ctx context.Context, addrs []string) (net.Conn, error) {
	conn, _, err := ConnectFirst(ctx, c.dialer, addrs)
	return conn, err
}

// Handshake upgrades conn, which must already be connected, to a WebSocket.
// host is sent as the Host header and path as the request path. conn is closed on failure.
func (c *WebSocketClient) Handshake(ctx context.Context, conn net.Conn, host, path string) (MessageConn, error) {
	if path == "" {
		path = "/"
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	u := url.URL{Scheme: "ws", Host: host, Path: path}

	release := bindDeadline(ctx, conn.SetDeadline)
	defer release()

	dialer := websocket.Dialer{
		NetDialContext: func(context.Context, string, string) (net.Conn, error) {
			return conn, nil
		},
	}

	ws, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		_ = conn.Close()
		if resp != nil {
			return nil, fmt.Errorf("upgrade rejected (status %d): %w", resp.StatusCode, contextError(ctx, err))
		}
		return nil, contextError(ctx, err)
	}

	return newWSConn(ws, c.readLimit), nil
}
