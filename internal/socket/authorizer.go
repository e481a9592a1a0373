package socket

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/gateway"
	"github.com/cory-johannsen/duel/internal/session"
)

// Handshake rejection reasons.
var (
	ErrBadToken         = errors.New("bad token")
	ErrUnknownAccount   = errors.New("unknown account")
	ErrSessionMismatch  = errors.New("session id mismatch")
	ErrAlreadyConnected = errors.New("already connected")
)

type sessionKey struct{}

// WithSession returns a context carrying s.
func WithSession(ctx context.Context, s *session.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session attached by the Authorizer.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*session.Session)
	return s, ok && s != nil
}

// Authorizer admits a socket handshake only for the session named by the
// request's auth cookie, and only while that session has no socket yet.
type Authorizer struct {
	cookieName string
	registry   *session.Registry
	logger     *zap.Logger
}

// NewAuthorizer creates an Authorizer.
func NewAuthorizer(cookieName string, registry *session.Registry, logger *zap.Logger) *Authorizer {
	return &Authorizer{cookieName: cookieName, registry: registry, logger: logger}
}

// Authorize resolves the session a handshake request belongs to.
//
// Postcondition: Returns a session that was AUTHENTICATED with the token's
// session ID at the time of the call, or one of gateway.ErrNoCookie,
// ErrBadToken, ErrUnknownAccount, ErrSessionMismatch, ErrAlreadyConnected.
func (a *Authorizer) Authorize(r *http.Request) (*session.Session, error) {
	tok, err := gateway.TokenFromRequest(r, a.cookieName)
	switch {
	case errors.Is(err, gateway.ErrNoCookie):
		return nil, err
	case err != nil:
		return nil, errors.Join(ErrBadToken, err)
	}

	s, ok := a.registry.Get(tok.AccountName)
	if !ok {
		return nil, ErrUnknownAccount
	}
	if s.ID() != tok.SessionID {
		return nil, ErrSessionMismatch
	}
	if s.State() != session.Authenticated {
		return nil, ErrAlreadyConnected
	}
	return s, nil
}

// Middleware rejects unauthorized handshakes with 401 before any upgrade
// and hands authorized ones to next with the session in the request context.
func (a *Authorizer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := a.Authorize(r)
		if err != nil {
			a.logger.Warn("socket handshake rejected",
				zap.String("remote_addr", r.RemoteAddr),
				zap.Error(err),
			)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
	})
}
