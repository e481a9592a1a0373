package socket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/config"
	"github.com/cory-johannsen/duel/internal/protocol"
	"github.com/cory-johannsen/duel/internal/session"
)

// cleanupTimeout bounds closing a session whose socket dropped.
const cleanupTimeout = 10 * time.Second

// Handler upgrades authorized handshakes, binds the socket to its session
// and serves packets until the socket closes. A socket that closes while
// its session is still registered is an abnormal disconnect: the session is
// closed and removed.
type Handler struct {
	cfg        config.SocketConfig
	upgrader   websocket.Upgrader
	dispatcher *protocol.Dispatcher
	registry   *session.Registry
	locks      *session.KeyedMutex
	logger     *zap.Logger

	wg sync.WaitGroup
}

// NewHandler creates a Handler. checkOrigin may be nil to accept only
// same-origin handshakes.
//
// Precondition: dispatcher, registry, locks and logger must be non-nil;
// locks must be the instance the gateway uses.
func NewHandler(cfg config.SocketConfig, dispatcher *protocol.Dispatcher, registry *session.Registry, locks *session.KeyedMutex, checkOrigin func(*http.Request) bool, logger *zap.Logger) *Handler {
	return &Handler{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		dispatcher: dispatcher,
		registry:   registry,
		locks:      locks,
		logger:     logger,
	}
}

// ServeHTTP implements http.Handler. It blocks until the socket closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("socket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}
	h.wg.Add(1)
	defer h.wg.Done()

	conn := NewConn(ws, h.cfg, h.dispatcher.MaxSize(), h.logger)
	ctx := context.WithoutCancel(r.Context())

	s, ok := SessionFromContext(r.Context())
	if !ok {
		h.logger.Warn("socket accepted without a session; leaving it unbound",
			zap.String("remote_addr", r.RemoteAddr),
		)
		_ = conn.Serve(ctx)
		return
	}

	if err := s.Bind(conn); err != nil {
		s.Logger().Warn("binding socket", zap.Error(err))
		_ = conn.Disconnect()
		return
	}
	conn.SetHandler(func(ctx context.Context, event string, payload []byte) ([]byte, bool) {
		return h.dispatcher.Handle(ctx, s, event, payload)
	})
	s.Logger().Info("socket connected",
		zap.String("session", s.ID()),
		zap.String("remote_addr", r.RemoteAddr),
	)

	start := time.Now()
	serveErr := conn.Serve(ctx)
	h.cleanup(ctx, s, serveErr, time.Since(start))
}

func (h *Handler) cleanup(ctx context.Context, s *session.Session, serveErr error, elapsed time.Duration) {
	unlock := h.locks.Lock(s.AccountName())
	defer unlock()

	if !h.registry.RemoveIf(s) {
		// Closed by logout, takeover or shutdown.
		s.Logger().Debug("socket closed", zap.Duration("duration", elapsed))
		return
	}

	fields := []zap.Field{
		zap.String("session", s.ID()),
		zap.Duration("duration", elapsed),
		zap.Error(serveErr),
	}
	if websocket.IsCloseError(serveErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.Logger().Info("socket closed by client; closing session", fields...)
	} else {
		s.Logger().Warn("socket disconnected abnormally; closing session", fields...)
	}

	ctx, cancel := context.WithTimeout(ctx, cleanupTimeout)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		s.Logger().Warn("closing session", zap.Error(err))
	}
}

// Wait blocks until every served socket has returned.
func (h *Handler) Wait() {
	h.wg.Wait()
}
