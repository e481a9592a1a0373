// Package socket carries gameplay packets over WebSocket. It gates upgrades
// on the login cookie, binds each accepted socket to its session and feeds
// inbound event frames to the packet dispatcher.
package socket

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cory-johannsen/duel/internal/config"
	"github.com/cory-johannsen/duel/internal/protocol"
)

// sendQueueSize bounds the frames waiting for the write pump.
const sendQueueSize = 256

var (
	// ErrClosed is returned when sending on a disconnected Conn.
	ErrClosed = errors.New("socket: connection closed")
	// ErrSendQueueFull is returned when the peer is not draining its frames.
	ErrSendQueueFull = errors.New("socket: send queue full")
	// ErrRateLimited is returned by Serve when the peer exceeded its message rate.
	ErrRateLimited = errors.New("socket: rate limit exceeded")
)

// EventHandler processes one inbound event and returns the response
// payload, if any.
type EventHandler func(ctx context.Context, event string, payload []byte) (resp []byte, ok bool)

// Conn is one accepted WebSocket. A single write pump owns every data write.
type Conn struct {
	ws      *websocket.Conn
	cfg     config.SocketConfig
	maxSize int
	limiter *rate.Limiter
	logger  *zap.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.RWMutex
	handler EventHandler
}

// NewConn wraps ws and starts its write pump.
//
// Precondition: ws and logger must be non-nil; cfg.PingInterval and
// cfg.WriteTimeout must be > 0.
// Postcondition: The pump runs until Disconnect is called or a write fails.
func NewConn(ws *websocket.Conn, cfg config.SocketConfig, maxSize int, logger *zap.Logger) *Conn {
	var limiter *rate.Limiter
	if cfg.MessagesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.MessagesPerSecond), cfg.Burst)
	}
	c := &Conn{
		ws:      ws,
		cfg:     cfg,
		maxSize: maxSize,
		limiter: limiter,
		logger:  logger.With(zap.String("remote_addr", ws.RemoteAddr().String())),
		send:    make(chan []byte, sendQueueSize),
		done:    make(chan struct{}),
	}
	go c.writePump()
	return c
}

// SetHandler installs the inbound event handler.
func (c *Conn) SetHandler(h EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// Detach removes the event handler. Frames read afterwards are dropped.
func (c *Conn) Detach() {
	c.SetHandler(nil)
}

// Disconnect sends a close frame and closes the socket. Later calls are no-ops.
func (c *Conn) Disconnect() error {
	return c.closeWith(websocket.CloseNormalClosure, "")
}

// Done is closed once the connection has been disconnected.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Send pushes a packet to the peer without waiting for acknowledgement.
func (c *Conn) Send(s protocol.Sendable) error {
	payload := protocol.Materialize(s, c.maxSize, c.logger)
	return c.emit(EncodeEvent(s.Event(), 0, payload))
}

func (c *Conn) closeWith(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Conn) emit(frame []byte) error {
	if c.closed() {
		return ErrClosed
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrSendQueueFull
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				c.logger.Debug("write failed", zap.Error(err))
				_ = c.Disconnect()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				c.logger.Debug("ping failed", zap.Error(err))
				_ = c.Disconnect()
				return
			}
		case <-c.done:
			return
		}
	}
}

// Serve reads frames until the socket fails or is disconnected. Each event
// frame is handled before the next one is read.
//
// Postcondition: Returns nil when the server side disconnected, otherwise
// the read error that ended the loop.
func (c *Conn) Serve(ctx context.Context) error {
	if c.maxSize > 0 {
		c.ws.SetReadLimit(int64(c.maxSize))
	}
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	})

	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.closed() {
				return nil
			}
			_ = c.Disconnect()
			return err
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))

		if c.limiter != nil && !c.limiter.Allow() {
			c.logger.Warn("rate limit exceeded")
			_ = c.closeWith(websocket.ClosePolicyViolation, "rate limit exceeded")
			return ErrRateLimited
		}
		if kind != websocket.BinaryMessage {
			c.logger.Warn("ignoring non-binary message", zap.Int("type", kind))
			continue
		}
		c.dispatch(ctx, data)
	}
}

func (c *Conn) dispatch(ctx context.Context, data []byte) {
	f, err := DecodeFrame(data)
	if err != nil {
		c.logger.Warn("dropping frame", zap.Error(err))
		return
	}
	if f.Kind != KindEvent {
		c.logger.Warn("dropping unexpected ack frame", zap.Int32("ack", f.AckID))
		return
	}

	c.mu.RLock()
	h := c.handler
	c.mu.RUnlock()
	if h == nil {
		c.logger.Debug("no handler bound; dropping event", zap.String("event", f.Event))
		return
	}

	resp, ok := h(ctx, f.Event, f.Payload)
	if f.AckID == 0 {
		return
	}
	if !ok {
		resp = nil
	}
	if err := c.emit(EncodeAck(f.AckID, resp)); err != nil {
		c.logger.Debug("acknowledgement not sent",
			zap.String("event", f.Event),
			zap.Error(err),
		)
	}
}
