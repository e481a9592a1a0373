// Package gateway implements the HTTP login flow: /init, /login and /logout.
// It issues the auth cookie that the socket handshake later validates and
// enforces one live session per account.
package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/game/player"
	"github.com/cory-johannsen/duel/internal/session"
	"github.com/cory-johannsen/duel/internal/storage/postgres"
)

// maxBodyBytes bounds every request body read by the gateway.
const maxBodyBytes = 4 << 10

// AccountStore defines the account persistence operations the gateway needs.
type AccountStore interface {
	Authenticate(ctx context.Context, name, password string) (postgres.Account, error)
	Create(ctx context.Context, name, password string) (postgres.Account, error)
}

// PlayerStore loads player profiles and flushes them when sessions close.
type PlayerStore interface {
	session.PlayerSaver
	RestoreOrCreate(ctx context.Context, accountID int64) (*player.Player, error)
}

// Config holds the gateway's tunables.
type Config struct {
	CookieName   string
	CookieMaxAge int
	// CORSOrigin enables credentialed CORS for one origin when non-empty.
	CORSOrigin         string
	AutoCreateAccounts bool
	// CloseTimeout bounds closing a session displaced by takeover or logout.
	CloseTimeout time.Duration
}

// Gateway serves the login endpoints.
type Gateway struct {
	cfg      Config
	cookies  Cookies
	accounts AccountStore
	players  PlayerStore
	registry *session.Registry
	locks    *session.KeyedMutex
	logger   *zap.Logger
}

// New creates a Gateway.
//
// Precondition: every dependency must be non-nil; locks must be shared with
// every other component that mutates registry entries.
func New(cfg Config, accounts AccountStore, players PlayerStore, registry *session.Registry, locks *session.KeyedMutex, logger *zap.Logger) *Gateway {
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = 10 * time.Second
	}
	return &Gateway{
		cfg:      cfg,
		cookies:  Cookies{Name: cfg.CookieName, MaxAge: cfg.CookieMaxAge},
		accounts: accounts,
		players:  players,
		registry: registry,
		locks:    locks,
		logger:   logger,
	}
}

// Register mounts the three endpoints on r.
func (g *Gateway) Register(r *mux.Router) {
	r.HandleFunc("/init", g.wrap(g.handleInit))
	r.HandleFunc("/login", g.wrap(g.handleLogin))
	r.HandleFunc("/logout", g.wrap(g.handleLogout))
}

// wrap applies the headers shared by every endpoint, answers CORS preflight,
// and rejects every method but POST.
func (g *Gateway) wrap(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		if g.cfg.CORSOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", g.cfg.CORSOrigin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		switch r.Method {
		case http.MethodPost:
			start := time.Now()
			h(w, r)
			g.logger.Debug("gateway request",
				zap.String("path", r.URL.Path),
				zap.Duration("elapsed", time.Since(start)),
			)
		case http.MethodOptions:
			if g.cfg.CORSOrigin != "" {
				w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.Header().Set("Allow", "POST, OPTIONS")
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}
}

// closeSession closes s outside the caller's request lifetime so a client
// hanging up cannot abort the flush.
func (g *Gateway) closeSession(ctx context.Context, s *session.Session) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.cfg.CloseTimeout)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		g.logger.Warn("closing session",
			zap.String("account", s.AccountName()),
			zap.Error(err),
		)
	}
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.WriteHeader(status)
	if body != "" {
		_, _ = io.WriteString(w, body)
	}
}

// handleInit reports whether the caller's cookie still names the live session.
func (g *Gateway) handleInit(w http.ResponseWriter, r *http.Request) {
	tok, err := TokenFromRequest(r, g.cfg.CookieName)
	if err != nil {
		if errors.Is(err, ErrMalformedToken) {
			g.logger.Warn("malformed auth cookie on init", zap.Error(err))
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	s, ok := g.registry.Get(tok.AccountName)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if s.ID() != tok.SessionID {
		// Another device or browser has logged in since this cookie was issued.
		g.cookies.Clear(w)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeText(w, http.StatusConflict, s.ID())
}

// isForced reports whether the force query flag is present and not explicitly false.
func isForced(r *http.Request) bool {
	q := r.URL.Query()
	if !q.Has("force") {
		return false
	}
	switch strings.ToLower(q.Get("force")) {
	case "false", "0":
		return false
	}
	return true
}
