// Package gameserver wires the login gateway, the socket endpoint and the
// packet dispatcher into one HTTP server and owns its shutdown order.
package gameserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/config"
	"github.com/cory-johannsen/duel/internal/gateway"
	"github.com/cory-johannsen/duel/internal/protocol"
	"github.com/cory-johannsen/duel/internal/session"
	"github.com/cory-johannsen/duel/internal/socket"
)

// PlayerStore is everything the server needs from player persistence.
type PlayerStore interface {
	gateway.PlayerStore
	protocol.CardSaver
}

// Server is the game's single HTTP listener.
type Server struct {
	cfg      config.Config
	registry *session.Registry
	socket   *socket.Handler
	router   *mux.Router
	http     *http.Server
	logger   *zap.Logger
}

// New builds the router and every request-path component.
//
// Precondition: cfg must have passed Validate; accounts, players and logger
// must be non-nil.
func New(cfg config.Config, accounts gateway.AccountStore, players PlayerStore, logger *zap.Logger) *Server {
	registry := session.NewRegistry(logger)
	locks := &session.KeyedMutex{}

	gw := gateway.New(gateway.Config{
		CookieName:         cfg.Auth.CookieName,
		CookieMaxAge:       cfg.Auth.CookieMaxAge,
		CORSOrigin:         cfg.Server.CORSOrigin,
		AutoCreateAccounts: cfg.Auth.AutoCreateAccounts,
	}, accounts, players, registry, locks, logger.Named("gateway"))

	dispatcher := protocol.NewDispatcher(cfg.Packet.MaxSize, players, logger.Named("protocol"))
	sock := socket.NewHandler(cfg.Socket, dispatcher, registry, locks, checkOrigin(cfg.Server.CORSOrigin), logger.Named("socket"))
	auth := socket.NewAuthorizer(cfg.Auth.CookieName, registry, logger.Named("socket"))

	r := mux.NewRouter()
	gw.Register(r)
	r.Handle(cfg.Socket.Path, auth.Middleware(sock))

	s := &Server{
		cfg:      cfg,
		registry: registry,
		socket:   sock,
		router:   r,
		logger:   logger,
	}
	s.http = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Registry returns the live session registry.
func (s *Server) Registry() *session.Registry { return s.registry }

// Start listens on the configured address and serves until Stop. TLS is
// used when both a certificate and a key are configured.
//
// Postcondition: Returns nil after a graceful Stop, or the listen error.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.http.Addr, err)
	}
	return s.Serve(lis)
}

// Serve serves on an existing listener.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("game server listening",
		zap.String("addr", lis.Addr().String()),
		zap.Bool("tls", s.cfg.Server.TLSEnabled()),
		zap.String("socket_path", s.cfg.Socket.Path),
	)
	var err error
	if s.cfg.Server.TLSEnabled() {
		err = s.http.ServeTLS(lis, s.cfg.Server.TLSCert, s.cfg.Server.TLSKey)
	} else {
		err = s.http.Serve(lis)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop disconnects every player, flushing their profiles, then stops the
// HTTP listener and waits for socket loops to return.
func (s *Server) Stop(ctx context.Context) error {
	start := time.Now()
	players := s.registry.Len()
	failed := s.registry.CloseAll(ctx)
	s.logger.Info("players disconnected",
		zap.Int("count", players),
		zap.Int("failed", failed),
		zap.Duration("elapsed", time.Since(start)),
	)

	err := s.http.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.socket.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		err = errors.Join(err, fmt.Errorf("waiting for sockets: %w", ctx.Err()))
	}
	return err
}

// checkOrigin accepts same-origin handshakes and, when configured, the CORS origin.
func checkOrigin(allowed string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if allowed != "" && origin == allowed {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}
