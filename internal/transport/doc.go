// Package transport provides the WebSocket plumbing used by the relay.
//
// The package keeps every suspension point of a relay hop separately callable
// so that callers can run them as distinct steps of a state machine:
//
//   - Resolver turns an Endpoint into an ordered list of dialable addresses.
//   - ConnectFirst dials those addresses strictly in order and keeps the first
//     connection that succeeds.
//   - WebSocketClient.Handshake upgrades an already connected socket.
//   - Acceptor.Handshake performs the server side of the upgrade on a socket
//     obtained from any net.Listener.
//
// After the handshake both sides are exposed as a MessageConn, which reads and
// writes whole frames and honours context deadlines and cancellation.
//
// # In-memory Listener
//
// MemoryListener is a net.Listener backed by net.Pipe. It also implements
// ContextDialer, so tests can wire a client and a server together without
// opening sockets, and can inject accept failures.
//
//	ln := transport.NewMemoryListener()
//	defer ln.Close()
//
//	conn, err := ln.DialContext(ctx, "tcp", ln.Addr().String())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	// ln.Accept() now returns the other end of conn
package transport
