package session_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/duel/internal/game/player"
	"github.com/cory-johannsen/duel/internal/session"
)

// recorder captures the order of teardown steps across saver and conn.
type recorder struct {
	mu    sync.Mutex
	steps []string
}

func (r *recorder) add(step string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, step)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.steps...)
}

type mockSaver struct {
	rec *recorder
	err error
}

func (m *mockSaver) SavePlayer(context.Context, *player.Player) error {
	m.rec.add("save")
	return m.err
}

type mockConn struct {
	rec *recorder
	err error
}

func (m *mockConn) Detach() { m.rec.add("detach") }

func (m *mockConn) Disconnect() error {
	m.rec.add("disconnect")
	return m.err
}

func newSession(t *testing.T, rec *recorder, saveErr error) *session.Session {
	t.Helper()
	return session.New("alice", 1, player.New(1, 1), &mockSaver{rec: rec, err: saveErr}, zaptest.NewLogger(t))
}

func TestSession_NewIsAuthenticatedWithUniqueID(t *testing.T) {
	rec := &recorder{}
	a := newSession(t, rec, nil)
	b := newSession(t, rec, nil)
	assert.Equal(t, session.Authenticated, a.State())
	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, "alice", a.AccountName())
	assert.Nil(t, a.Conn())
}

func TestSession_BindOnlyFromAuthenticated(t *testing.T) {
	rec := &recorder{}
	s := newSession(t, rec, nil)
	conn := &mockConn{rec: rec}

	require.NoError(t, s.Bind(conn))
	assert.Equal(t, session.Connected, s.State())
	assert.Same(t, conn, s.Conn())

	err := s.Bind(&mockConn{rec: rec})
	assert.ErrorIs(t, err, session.ErrNotAuthenticated)
	assert.Same(t, conn, s.Conn(), "failed bind must not replace the socket")
}

func TestSession_CloseOrder(t *testing.T) {
	rec := &recorder{}
	s := newSession(t, rec, nil)
	require.NoError(t, s.Bind(&mockConn{rec: rec}))

	require.NoError(t, s.Close(context.Background()))
	assert.Equal(t, []string{"save", "detach", "disconnect"}, rec.all())
	assert.Equal(t, session.Disconnected, s.State())
	assert.Nil(t, s.Conn())
}

func TestSession_CloseContinuesAfterSaveFailure(t *testing.T) {
	rec := &recorder{}
	saveErr := errors.New("db down")
	s := newSession(t, rec, saveErr)
	require.NoError(t, s.Bind(&mockConn{rec: rec}))

	err := s.Close(context.Background())
	assert.ErrorIs(t, err, saveErr)
	assert.Equal(t, []string{"save", "detach", "disconnect"}, rec.all())
	assert.Equal(t, session.Disconnected, s.State())
}

func TestSession_CloseJoinsDisconnectFailure(t *testing.T) {
	rec := &recorder{}
	discErr := errors.New("already gone")
	s := newSession(t, rec, nil)
	require.NoError(t, s.Bind(&mockConn{rec: rec, err: discErr}))

	assert.ErrorIs(t, s.Close(context.Background()), discErr)
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	rec := &recorder{}
	s := newSession(t, rec, nil)
	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()))
	assert.Equal(t, []string{"save"}, rec.all(), "unbound session only saves, once")

	assert.ErrorIs(t, s.Bind(&mockConn{rec: rec}), session.ErrNotAuthenticated)
}

func TestSession_CloseWithoutPlayer(t *testing.T) {
	s := session.New("bob", 2, nil, nil, zaptest.NewLogger(t))
	assert.NoError(t, s.Close(context.Background()))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "AUTHENTICATED", session.Authenticated.String())
	assert.Equal(t, "CONNECTED", session.Connected.String())
	assert.Equal(t, "DISCONNECTED", session.Disconnected.String())
	assert.Equal(t, "State(7)", session.State(7).String())
}

func TestRegistry_PutGetRemove(t *testing.T) {
	reg := session.NewRegistry(zaptest.NewLogger(t))
	s := session.New("alice", 1, nil, nil, zaptest.NewLogger(t))

	require.NoError(t, reg.Put(s))
	got, ok := reg.Get("alice")
	require.True(t, ok)
	assert.Same(t, s, got)

	dup := session.New("alice", 1, nil, nil, zaptest.NewLogger(t))
	assert.ErrorIs(t, reg.Put(dup), session.ErrSessionExists)
	got, _ = reg.Get("alice")
	assert.Same(t, s, got, "failed put must not overwrite")

	assert.True(t, reg.Remove("alice"))
	assert.False(t, reg.Remove("alice"))
	_, ok = reg.Get("alice")
	assert.False(t, ok)

	require.NoError(t, reg.Put(dup), "put after removal must succeed")
}

func TestRegistry_RemoveIfOnlyRemovesSameSession(t *testing.T) {
	reg := session.NewRegistry(zaptest.NewLogger(t))
	old := session.New("alice", 1, nil, nil, zaptest.NewLogger(t))
	newer := session.New("alice", 1, nil, nil, zaptest.NewLogger(t))

	require.NoError(t, reg.Put(newer))
	assert.False(t, reg.RemoveIf(old))
	assert.Equal(t, 1, reg.Len())
	assert.True(t, reg.RemoveIf(newer))
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_CloseAllToleratesFailures(t *testing.T) {
	reg := session.NewRegistry(zaptest.NewLogger(t))
	rec := &recorder{}

	names := []string{"alice", "bob", "carol"}
	for i, name := range names {
		var saveErr error
		if i == 1 {
			saveErr = errors.New("flush failed")
		}
		s := session.New(name, int64(i+1), player.New(int64(i+1), int64(i+1)), &mockSaver{rec: rec, err: saveErr}, zaptest.NewLogger(t))
		require.NoError(t, s.Bind(&mockConn{rec: rec}))
		require.NoError(t, reg.Put(s))
	}
	assert.Equal(t, names, reg.AccountNames())

	failed := reg.CloseAll(context.Background())
	assert.Equal(t, 1, failed)
	assert.Equal(t, 0, reg.Len())

	disconnects := 0
	for _, step := range rec.all() {
		if step == "disconnect" {
			disconnects++
		}
	}
	assert.Equal(t, 3, disconnects, "every socket is disconnected despite one failure")
}

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	var km session.KeyedMutex
	var inside atomic.Int32
	var maxInside atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("alice")
			defer unlock()
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())
	assert.Equal(t, 0, km.Len(), "idle keys are released")
}

func TestKeyedMutex_DifferentKeysDoNotBlock(t *testing.T) {
	var km session.KeyedMutex
	unlockA := km.Lock("alice")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := km.Lock("bob")
		unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

// Property: any interleaving of lock/unlock across a small key set leaves
// no residual entries once every holder has released.
func TestPropertyKeyedMutex_ReleasesAllKeys(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		var km session.KeyedMutex
		keys := rapid.SliceOfN(rapid.SampledFrom([]string{"a", "b", "c", "d"}), 1, 30).Draw(rt, "keys")
		var wg sync.WaitGroup
		for _, k := range keys {
			k := k
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock := km.Lock(k)
				unlock()
			}()
		}
		wg.Wait()
		if n := km.Len(); n != 0 {
			rt.Fatalf("%d keys left after all unlocks", n)
		}
	})
}

// Property: Put/Remove sequences keep at most one session per account, and
// Len matches a model map.
func TestPropertyRegistry_ModelCheck(t *testing.T) {
	logger := zaptest.NewLogger(t)
	rapid.Check(t, func(rt *rapid.T) {
		reg := session.NewRegistry(logger)
		model := map[string]bool{}
		ops := rapid.SliceOfN(rapid.IntRange(0, 1), 1, 40).Draw(rt, "ops")
		for i, op := range ops {
			name := rapid.SampledFrom([]string{"a", "b", "c"}).Draw(rt, "name")
			switch op {
			case 0:
				err := reg.Put(session.New(name, int64(i), nil, nil, logger))
				if model[name] != (err != nil) {
					rt.Fatalf("Put(%q) err=%v with model present=%v", name, err, model[name])
				}
				model[name] = true
			case 1:
				if got := reg.Remove(name); got != model[name] {
					rt.Fatalf("Remove(%q) = %v, want %v", name, got, model[name])
				}
				delete(model, name)
			}
			if reg.Len() != len(model) {
				rt.Fatalf("Len = %d, model = %d", reg.Len(), len(model))
			}
		}
	})
}
