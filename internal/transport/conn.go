package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// aLongTimeAgo is used to abort blocked I/O when a context is cancelled
var aLongTimeAgo = time.Unix(1, 0)

// wsConn adapts a gorilla websocket.Conn to MessageConn
type wsConn struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	closeErr  error
}

func newWSConn(conn *websocket.Conn, readLimit int64) *wsConn {
	if readLimit > 0 {
		conn.SetReadLimit(readLimit)
	}
	return &wsConn{conn: conn}
}

// ReadMessage reads the next data frame
func (c *wsConn) ReadMessage(ctx context.Context) ([]byte, error) {
	release := bindDeadline(ctx, c.conn.SetReadDeadline)
	defer release()

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, contextError(ctx, err)
	}
	return data, nil
}

// WriteMessage writes payload as a single text frame
func (c *wsConn) WriteMessage(ctx context.Context, payload []byte) error {
	release := bindDeadline(ctx, c.conn.SetWriteDeadline)
	defer release()

	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return contextError(ctx, err)
	}
	return nil
}

// CloseNormal performs the closing handshake with a normal-closure code
func (c *wsConn) CloseNormal(ctx context.Context) error {
	deadline, _ := ctx.Deadline()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		return contextError(ctx, err)
	}

	release := bindDeadline(ctx, c.conn.SetReadDeadline)
	defer release()

	// Drain until the peer answers with its own close frame.
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code != websocket.CloseAbnormalClosure {
				return nil
			}
			return contextError(ctx, err)
		}
	}
}

// Close closes the underlying socket
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// RemoteAddr returns the peer address
func (c *wsConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// bindDeadline applies ctx's deadline through set and aborts the pending
// operation when ctx is cancelled. The returned func restores no deadline.
func bindDeadline(ctx context.Context, set func(time.Time) error) func() {
	if deadline, ok := ctx.Deadline(); ok {
		_ = set(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = set(aLongTimeAgo)
	})
	return func() {
		stop()
		_ = set(time.Time{})
	}
}

// contextError reports ctx's error when the context expired or was cancelled
// while the operation was pending, keeping the I/O error as detail.
func contextError(ctx context.Context, err error) error {
	ctxErr := ctx.Err()
	if ctxErr == nil {
		if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
			ctxErr = context.DeadlineExceeded
		}
	}
	if ctxErr != nil {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	return err
}

// IsCleanClose reports whether err is the peer closing the connection on purpose
func IsCleanClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}

var _ MessageConn = (*wsConn)(nil)
