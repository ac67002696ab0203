package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
)

// DefaultServerName is advertised in the Server header of upgrade responses
const DefaultServerName = "wsrelay"

// AcceptorOptions configures the server side of the handshake
type AcceptorOptions struct {
	// ServerName is sent in the Server response header
	ServerName string

	// ReadLimit caps the size of a single received frame; zero means unlimited
	ReadLimit int64
}

// Acceptor performs the WebSocket server handshake on raw accepted sockets
type Acceptor struct {
	upgrader  websocket.Upgrader
	header    http.Header
	readLimit int64
}

// NewAcceptor creates an Acceptor that upgrades any request path from any origin
func NewAcceptor(opts *AcceptorOptions) *Acceptor {
	if opts == nil {
		opts = &AcceptorOptions{}
	}
	name := opts.ServerName
	if name == "" {
		name = DefaultServerName
	}

	header := http.Header{}
	header.Set("Server", name)

	return &Acceptor{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		header:    header,
		readLimit: opts.ReadLimit,
	}
}

// Handshake reads the upgrade request from conn and answers it.
// On failure conn is closed and a plain HTTP error may have been written.
func (a *Acceptor) Handshake(ctx context.Context, conn net.Conn) (MessageConn, error) {
	release := bindDeadline(ctx, conn.SetDeadline)
	defer release()

	br := bufio.NewReader(conn)
	req, err := http.ReadRequest(br)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read upgrade request: %w", contextError(ctx, err))
	}
	req.RemoteAddr = conn.RemoteAddr().String()

	w := &hijackWriter{
		conn:   conn,
		brw:    bufio.NewReadWriter(br, bufio.NewWriter(conn)),
		header: http.Header{},
	}

	ws, err := a.upgrader.Upgrade(w, req, a.header)
	if err != nil {
		_ = conn.Close()
		return nil, contextError(ctx, err)
	}

	return newWSConn(ws, a.readLimit), nil
}

// hijackWriter is the minimal http.ResponseWriter the upgrader needs when the
// request was read straight off a socket instead of through net/http.
type hijackWriter struct {
	conn        net.Conn
	brw         *bufio.ReadWriter
	header      http.Header
	wroteHeader bool
	hijacked    bool
}

func (w *hijackWriter) Header() http.Header {
	return w.header
}

// WriteHeader writes a plain HTTP/1.1 status line, used only for rejected upgrades
func (w *hijackWriter) WriteHeader(code int) {
	if w.wroteHeader || w.hijacked {
		return
	}
	w.wroteHeader = true
	w.header.Set("Connection", "close")

	_, _ = fmt.Fprintf(w.brw.Writer, "HTTP/1.1 %s %s\r\n", strconv.Itoa(code), http.StatusText(code))
	_ = w.header.Write(w.brw.Writer)
	_, _ = w.brw.Writer.WriteString("\r\n")
	_ = w.brw.Writer.Flush()
}

func (w *hijackWriter) Write(p []byte) (int, error) {
	if w.hijacked {
		return 0, http.ErrHijacked
	}
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.brw.Writer.Write(p)
	if err != nil {
		return n, err
	}
	return n, w.brw.Writer.Flush()
}

// Hijack hands the socket to the upgrader
func (w *hijackWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if w.hijacked {
		return nil, nil, errors.New("connection already hijacked")
	}
	w.hijacked = true
	return w.conn, w.brw, nil
}

var _ http.Hijacker = (*hijackWriter)(nil)
