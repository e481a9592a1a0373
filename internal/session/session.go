// Package session tracks authenticated players from login until logout or
// disconnect cleanup: the per-player Session, the account-keyed Registry,
// and the per-account lock serializing check-then-act sequences.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/game/player"
)

// State is the lifecycle stage of a Session.
type State int32

const (
	// Authenticated sessions exist in the registry but have no socket yet.
	Authenticated State = iota
	// Connected sessions are bound to a live socket.
	Connected
	// Disconnected sessions have been closed and must not be reused.
	Disconnected
)

// String returns the upper-case state name.
func (s State) String() string {
	switch s {
	case Authenticated:
		return "AUTHENTICATED"
	case Connected:
		return "CONNECTED"
	case Disconnected:
		return "DISCONNECTED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// ErrNotAuthenticated is returned by Bind when the session is already bound or closed.
var ErrNotAuthenticated = errors.New("session: not in AUTHENTICATED state")

// Conn is the transport handle a session owns once connected.
type Conn interface {
	// Detach removes every event handler so no callback fires after close.
	Detach()
	// Disconnect force-closes the transport.
	Disconnect() error
}

// PlayerSaver flushes a player profile to storage.
type PlayerSaver interface {
	SavePlayer(ctx context.Context, p *player.Player) error
}

// Session is one authenticated player. The ID and account name never change.
type Session struct {
	id          string
	accountName string
	accountID   int64
	player      *player.Player
	saver       PlayerSaver
	logger      *zap.Logger

	mu     sync.Mutex
	state  State
	conn   Conn
	closed bool
}

// New creates an AUTHENTICATED session with a fresh random ID.
//
// Precondition: accountName must be non-empty; logger must be non-nil.
// p and saver may be nil when no profile is attached.
func New(accountName string, accountID int64, p *player.Player, saver PlayerSaver, logger *zap.Logger) *Session {
	return &Session{
		id:          uuid.NewString(),
		accountName: accountName,
		accountID:   accountID,
		player:      p,
		saver:       saver,
		logger:      logger.With(zap.String("account", accountName)),
		state:       Authenticated,
	}
}

// ID returns the session ID.
func (s *Session) ID() string { return s.id }

// AccountName returns the owning account name.
func (s *Session) AccountName() string { return s.accountName }

// AccountID returns the owning account's database ID.
func (s *Session) AccountID() int64 { return s.accountID }

// Player returns the bound player profile, or nil.
func (s *Session) Player() *player.Player { return s.player }

// Logger returns the session-scoped logger.
func (s *Session) Logger() *zap.Logger { return s.logger }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Conn returns the bound transport, or nil.
func (s *Session) Conn() Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// Bind attaches a socket and moves the session to CONNECTED.
//
// Precondition: conn must be non-nil.
// Postcondition: returns ErrNotAuthenticated and leaves the session unchanged
// unless it was AUTHENTICATED.
func (s *Session) Bind(conn Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.state != Authenticated {
		return fmt.Errorf("%w: state is %s", ErrNotAuthenticated, s.state)
	}
	s.conn = conn
	s.state = Connected
	return nil
}

// Close persists the player, detaches and disconnects the socket, and marks
// the session DISCONNECTED. Every step runs even when an earlier one fails.
// Only the first call does any work.
//
// Postcondition: State() == Disconnected. Returns the joined step failures.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	start := time.Now()
	var errs []error

	if s.player != nil && s.saver != nil {
		if err := s.saver.SavePlayer(ctx, s.player); err != nil {
			s.logger.Error("saving player on close", zap.Error(err))
			errs = append(errs, fmt.Errorf("saving player: %w", err))
		}
	}
	if conn != nil {
		conn.Detach()
		if err := conn.Disconnect(); err != nil {
			s.logger.Warn("disconnecting socket", zap.Error(err))
			errs = append(errs, fmt.Errorf("disconnecting: %w", err))
		}
	}

	s.mu.Lock()
	s.state = Disconnected
	s.conn = nil
	s.mu.Unlock()

	s.logger.Debug("session closed",
		zap.String("session", s.id),
		zap.Duration("elapsed", time.Since(start)),
	)
	return errors.Join(errs...)
}
