package termsession

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/gluk-w/claworc/console/internal/termproto"
)

// ErrTransportClosed is returned by Transport.Read when the connection was
// closed cleanly by either side.
var ErrTransportClosed = errors.New("transport closed")

// maxFrameSize bounds a single inbound frame.
const maxFrameSize = 1024 * 1024

// Transport is a persistent, ordered, reliable duplex message connection.
// Close must be idempotent.
type Transport interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, p []byte) error
	Close() error
}

// Dialer opens a Transport to the bridge endpoint of a target.
type Dialer interface {
	Dial(ctx context.Context, target termproto.Target) (Transport, error)
}

// WebSocketDialer dials the remote terminal bridge over WebSocket.
type WebSocketDialer struct {
	// BaseURL is the bridge root, e.g. "https://bridge.example.com".
	BaseURL string
	// Header is sent with the upgrade request.
	Header http.Header
	// Timeout bounds the handshake. Zero means 10 seconds.
	Timeout time.Duration
}

// Dial connects to the per-target endpoint.
func (d *WebSocketDialer) Dial(ctx context.Context, target termproto.Target) (Transport, error) {
	endpoint, err := termproto.Endpoint(d.BaseURL, target.ID)
	if err != nil {
		return nil, err
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, endpoint, &websocket.DialOptions{
		HTTPHeader: d.Header,
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	conn.SetReadLimit(maxFrameSize)
	return NewWebSocketTransport(conn), nil
}

// wsTransport adapts a coder/websocket connection to Transport.
type wsTransport struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	closeErr  error
}

// NewWebSocketTransport wraps an established WebSocket connection.
func NewWebSocketTransport(conn *websocket.Conn) Transport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) Read(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	if err != nil {
		if isCleanClose(err) {
			return nil, fmt.Errorf("%w: %v", ErrTransportClosed, err)
		}
		return nil, err
	}
	return data, nil
}

func (t *wsTransport) Write(ctx context.Context, p []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, p)
}

func (t *wsTransport) Close() error {
	t.closeOnce.Do(func() {
		err := t.conn.Close(websocket.StatusNormalClosure, "")
		if err != nil && !isCleanClose(err) {
			t.closeErr = err
		}
	})
	return t.closeErr
}

func isCleanClose(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}
