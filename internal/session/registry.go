package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrSessionExists is returned by Put when the account already has a live session.
var ErrSessionExists = errors.New("session: account already has a live session")

// Registry maps account names to their live Session.
// All methods are safe for concurrent use.
type Registry struct {
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty Registry.
//
// Precondition: logger must be non-nil.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Put registers s under its account name.
//
// Postcondition: returns ErrSessionExists and leaves the registry unchanged
// if the account already has an entry; callers remove it first on takeover.
func (r *Registry) Put(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[s.AccountName()]; exists {
		return fmt.Errorf("%w: %q", ErrSessionExists, s.AccountName())
	}
	r.sessions[s.AccountName()] = s
	return nil
}

// Get returns the live session of an account.
func (r *Registry) Get(accountName string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[accountName]
	return s, ok
}

// Remove deletes the entry of an account.
//
// Postcondition: returns true when an entry was removed.
func (r *Registry) Remove(accountName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[accountName]; !ok {
		return false
	}
	delete(r.sessions, accountName)
	return true
}

// RemoveIf deletes the entry of s's account only while it still points at s.
// Disconnect cleanup uses it so a stale socket never evicts a newer session.
func (r *Registry) RemoveIf(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[s.AccountName()]; !ok || cur != s {
		return false
	}
	delete(r.sessions, s.AccountName())
	return true
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// AccountNames returns the registered account names in sorted order.
func (r *Registry) AccountNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sessions))
	for n := range r.sessions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CloseAll closes and removes every session. Individual failures are logged
// and do not stop the sweep.
//
// Postcondition: Len() == 0 for sessions registered before the call.
// Returns the number of sessions whose Close failed.
func (r *Registry) CloseAll(ctx context.Context) int {
	start := time.Now()

	r.mu.Lock()
	snapshot := make([]*Session, 0, len(r.sessions))
	for name, s := range r.sessions {
		snapshot = append(snapshot, s)
		delete(r.sessions, name)
	}
	r.mu.Unlock()

	failed := 0
	for _, s := range snapshot {
		if err := r.closeOne(ctx, s); err != nil {
			failed++
			r.logger.Warn("closing session during shutdown",
				zap.String("account", s.AccountName()),
				zap.Error(err),
			)
		}
	}
	r.logger.Info("closed all sessions",
		zap.Int("count", len(snapshot)),
		zap.Int("failed", failed),
		zap.Duration("elapsed", time.Since(start)),
	)
	return failed
}

func (r *Registry) closeOne(ctx context.Context, s *Session) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic closing session: %v", p)
		}
	}()
	return s.Close(ctx)
}
