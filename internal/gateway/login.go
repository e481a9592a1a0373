package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/session"
	"github.com/cory-johannsen/duel/internal/storage/postgres"
)

type credentials struct {
	AccountName *string `json:"accountName"`
	Password    *string `json:"password"`
}

// handleLogin authenticates, optionally takes over an existing session, and
// registers a fresh one. The whole check-then-register sequence runs under
// the account's lock. Storage failures are logged and answered like bad
// credentials.
func (g *Gateway) handleLogin(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	body, err := readBody(w, r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var creds credentials
	if err := json.Unmarshal(body, &creds); err != nil ||
		creds.AccountName == nil || creds.Password == nil ||
		*creds.AccountName == "" || *creds.Password == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	name, password := *creds.AccountName, *creds.Password
	if strings.Contains(name, tokenSeparator) || !postgres.ValidAccountName(name) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	logger := g.logger.With(zap.String("account", name))

	unlock := g.locks.Lock(name)
	defer unlock()

	ctx := r.Context()
	created := false
	acct, err := g.accounts.Authenticate(ctx, name, password)
	switch {
	case err == nil:
	case errors.Is(err, postgres.ErrAccountNotFound) && g.cfg.AutoCreateAccounts:
		acct, err = g.accounts.Create(ctx, name, password)
		if err != nil {
			if errors.Is(err, postgres.ErrAccountExists) {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			logger.Error("creating account", zap.Error(err))
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		created = true
		logger.Info("account created")
	case errors.Is(err, postgres.ErrAccountNotFound), errors.Is(err, postgres.ErrInvalidCredentials):
		w.WriteHeader(http.StatusUnauthorized)
		return
	default:
		logger.Error("authenticating account", zap.Error(err))
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	if existing, ok := g.registry.Get(name); ok {
		if !isForced(r) {
			w.WriteHeader(http.StatusConflict)
			return
		}
		logger.Info("forced session takeover", zap.String("previous", existing.ID()))
		g.closeSession(ctx, existing)
		g.registry.Remove(name)
	}

	p, err := g.players.RestoreOrCreate(ctx, acct.ID)
	if err != nil {
		logger.Error("restoring player", zap.Error(err))
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	s := session.New(name, acct.ID, p, g.players, g.logger)
	if err := g.registry.Put(s); err != nil {
		// Unreachable while every writer holds the account lock.
		logger.Error("registering session", zap.Error(err))
		w.WriteHeader(http.StatusConflict)
		return
	}

	g.cookies.Set(w, Token{AccountName: name, SessionID: s.ID()})
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	logger.Info("login",
		zap.String("session", s.ID()),
		zap.Bool("created", created),
		zap.Duration("elapsed", time.Since(start)),
	)
	writeText(w, status, s.ID())
}

// handleLogout closes the session named by the body when the cookie agrees.
func (g *Gateway) handleLogout(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	sessionID := strings.TrimSpace(string(body))
	if sessionID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	tok, err := TokenFromRequest(r, g.cfg.CookieName)
	if err != nil || tok.SessionID != sessionID {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	unlock := g.locks.Lock(tok.AccountName)
	defer unlock()

	s, ok := g.registry.Get(tok.AccountName)
	if !ok || s.ID() != sessionID {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	g.closeSession(r.Context(), s)
	g.registry.Remove(tok.AccountName)
	g.cookies.Clear(w)
	g.logger.Info("logout",
		zap.String("account", tok.AccountName),
		zap.String("session", sessionID),
	)
	w.WriteHeader(http.StatusNoContent)
}
