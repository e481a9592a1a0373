package testutil

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cory-johannsen/duel/internal/socket"
)

// SocketClient is a WebSocket test client speaking the socket frame envelope.
type SocketClient struct {
	ws      *websocket.Conn
	t       *testing.T
	nextAck atomic.Int32
}

// WebSocketURL rewrites an httptest server URL to the ws scheme and appends path.
func WebSocketURL(serverURL, path string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + path
}

// DialSocket performs a handshake against url, presenting cookies when given.
//
// Postcondition: on a rejected handshake the error is non-nil and the
// returned response (when non-nil) carries the server's status code.
func DialSocket(t *testing.T, url string, cookies ...*http.Cookie) (*SocketClient, *http.Response, error) {
	t.Helper()
	header := http.Header{}
	for _, c := range cookies {
		header.Add("Cookie", c.String())
	}
	dialer := &websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	ws, resp, err := dialer.Dial(url, header)
	if err != nil {
		return nil, resp, err
	}
	t.Cleanup(func() { _ = ws.Close() })
	return &SocketClient{ws: ws, t: t}, resp, nil
}

// MustDialSocket is DialSocket failing the test on any handshake error.
func MustDialSocket(t *testing.T, url string, cookies ...*http.Cookie) *SocketClient {
	t.Helper()
	c, _, err := DialSocket(t, url, cookies...)
	if err != nil {
		t.Fatalf("dialing %s: %v", url, err)
	}
	return c
}

// Emit sends an event frame without requesting acknowledgement.
func (c *SocketClient) Emit(event string, payload []byte) {
	c.t.Helper()
	c.WriteRaw(socket.EncodeEvent(event, 0, payload))
}

// WriteRaw sends data as one binary message.
func (c *SocketClient) WriteRaw(data []byte) {
	c.t.Helper()
	_ = c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
		c.t.Fatalf("writing frame: %v", err)
	}
}

// EmitWithAck sends an event frame and waits for its acknowledgement,
// skipping any pushed frames in between.
//
// Postcondition: Returns the acknowledgement payload, or fails the test on timeout.
func (c *SocketClient) EmitWithAck(event string, payload []byte, timeout time.Duration) []byte {
	c.t.Helper()
	id := c.nextAck.Add(1)
	c.WriteRaw(socket.EncodeEvent(event, id, payload))
	deadline := time.Now().Add(timeout)
	for {
		f, err := c.ReadFrame(time.Until(deadline))
		if err != nil {
			c.t.Fatalf("waiting for ack %d of %s: %v", id, event, err)
		}
		if f.Kind == socket.KindAck && f.AckID == id {
			return f.Payload
		}
	}
}

// ReadFrame reads and decodes the next binary message.
func (c *SocketClient) ReadFrame(timeout time.Duration) (socket.Frame, error) {
	_ = c.ws.SetReadDeadline(time.Now().Add(timeout))
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return socket.Frame{}, err
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		return socket.DecodeFrame(data)
	}
}

// WaitClosed reads until the server closes the socket.
//
// Postcondition: Returns nil when a close frame or EOF arrives before timeout.
func (c *SocketClient) WaitClosed(timeout time.Duration) error {
	_ = c.ws.SetReadDeadline(time.Now().Add(timeout))
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return err
			}
			return nil
		}
	}
}

// Close sends a normal close frame and closes the connection.
func (c *SocketClient) Close() {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = c.ws.Close()
}

// Drop closes the TCP connection without a close handshake.
func (c *SocketClient) Drop() {
	_ = c.ws.UnderlyingConn().Close()
}
