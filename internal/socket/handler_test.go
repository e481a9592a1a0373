package socket_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cory-johannsen/duel/internal/codec"
	"github.com/cory-johannsen/duel/internal/config"
	"github.com/cory-johannsen/duel/internal/game/player"
	"github.com/cory-johannsen/duel/internal/gateway"
	"github.com/cory-johannsen/duel/internal/protocol"
	"github.com/cory-johannsen/duel/internal/session"
	"github.com/cory-johannsen/duel/internal/socket"
	"github.com/cory-johannsen/duel/internal/testutil"
)

const (
	cookieName = "auth-token"
	wait       = 2 * time.Second
)

type fixture struct {
	url      string
	registry *session.Registry
	players  *testutil.PlayerStore
	logger   *zap.Logger
	logs     *observer.ObservedLogs
}

func newFixture(t *testing.T, cfg config.SocketConfig, authorize bool) *fixture {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = time.Second
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = time.Second
	}
	if cfg.PongTimeout == 0 {
		cfg.PongTimeout = 5 * time.Second
	}

	f := &fixture{
		registry: session.NewRegistry(logger),
		players:  testutil.NewPlayerStore(testutil.CardRegistry(), "playerStarter"),
		logger:   logger,
		logs:     logs,
	}
	dispatcher := protocol.NewDispatcher(4096, f.players, logger)
	h := socket.NewHandler(cfg, dispatcher, f.registry, &session.KeyedMutex{}, nil, logger)

	var root http.Handler = h
	if authorize {
		root = socket.NewAuthorizer(cookieName, f.registry, logger).Middleware(h)
	}
	srv := httptest.NewServer(root)
	t.Cleanup(func() {
		f.registry.CloseAll(context.Background())
		srv.Close()
		h.Wait()
	})
	f.url = testutil.WebSocketURL(srv.URL, "/socket")
	return f
}

func (f *fixture) login(t *testing.T, name string) (*session.Session, *http.Cookie) {
	t.Helper()
	p, err := f.players.RestoreOrCreate(context.Background(), int64(len(name)))
	require.NoError(t, err)
	s := session.New(name, int64(len(name)), p, f.players, f.logger)
	require.NoError(t, f.registry.Put(s))
	tok := gateway.Token{AccountName: name, SessionID: s.ID()}
	return s, &http.Cookie{Name: cookieName, Value: tok.Encode()}
}

func cardCount(t *testing.T, payload []byte) int32 {
	t.Helper()
	n, err := codec.NewReader(payload).ReadInt32()
	require.NoError(t, err)
	return n
}

func TestHandshake_Rejections(t *testing.T) {
	f := newFixture(t, config.SocketConfig{}, true)
	s, good := f.login(t, "alice")

	for name, cookie := range map[string]*http.Cookie{
		"garbled token":   {Name: cookieName, Value: "%%%"},
		"unknown account": {Name: cookieName, Value: gateway.Token{AccountName: "bob", SessionID: s.ID()}.Encode()},
		"wrong session":   {Name: cookieName, Value: gateway.Token{AccountName: "alice", SessionID: "stale"}.Encode()},
	} {
		cookie := cookie
		t.Run(name, func(t *testing.T) {
			_, resp, err := testutil.DialSocket(t, f.url, cookie)
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}

	_, resp, err := testutil.DialSocket(t, f.url)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, session.Authenticated, s.State())

	testutil.MustDialSocket(t, f.url, good)
	require.Eventually(t, func() bool { return s.State() == session.Connected }, wait, 10*time.Millisecond)

	_, resp, err = testutil.DialSocket(t, f.url, good)
	require.Error(t, err, "second socket for a connected session")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 5, f.logs.FilterMessage("socket handshake rejected").Len())
}

func TestConnected_CardListRequest(t *testing.T) {
	f := newFixture(t, config.SocketConfig{}, true)
	s, cookie := f.login(t, "alice")
	c := testutil.MustDialSocket(t, f.url, cookie)

	resp := c.EmitWithAck(protocol.EventCardListRequest, nil, wait)
	assert.Equal(t, int32(3), cardCount(t, resp))
	assert.Len(t, resp, codec.SizeInt32+3*protocol.CardListEntrySize)
	assert.Equal(t, session.Connected, s.State())
}

func TestConnected_FireAndForgetAckIsEmpty(t *testing.T) {
	f := newFixture(t, config.SocketConfig{}, true)
	s, cookie := f.login(t, "alice")
	c := testutil.MustDialSocket(t, f.url, cookie)

	s.Player().AddCard(&player.Card{ID: 99, TemplateID: 46986414, Count: 1, IsNew: true})

	payload := codec.NewWriter(codec.SizeInt32)
	_ = payload.WriteInt32(99)
	resp := c.EmitWithAck(protocol.EventClearCardNewStateRequest, payload.Bytes(), wait)
	assert.Empty(t, resp)

	got, ok := s.Player().Card(99)
	require.True(t, ok)
	assert.False(t, got.IsNew)
	assert.Equal(t, int32(1), f.players.SavedCards.Load())
}

func TestConnected_UnknownEventAndMalformedFrameAreTolerated(t *testing.T) {
	f := newFixture(t, config.SocketConfig{}, true)
	_, cookie := f.login(t, "alice")
	c := testutil.MustDialSocket(t, f.url, cookie)

	assert.Empty(t, c.EmitWithAck("danceRequest", []byte{1}, wait))
	c.WriteRaw([]byte{7, 7, 7})
	c.Emit(protocol.EventCardInventoryRequest, []byte{1, 2, 3})

	resp := c.EmitWithAck(protocol.EventCardListRequest, nil, wait)
	assert.Equal(t, int32(3), cardCount(t, resp))

	assert.Equal(t, 1, f.logs.FilterMessage("unknown event").FilterField(zap.String("event", "danceRequest")).Len())
	assert.Equal(t, 1, f.logs.FilterMessage("dropping frame").Len())
	assert.Equal(t, 1, f.logs.FilterMessage("failed to read packet").Len())
}

func TestServerPush(t *testing.T) {
	f := newFixture(t, config.SocketConfig{}, true)
	s, cookie := f.login(t, "alice")
	c := testutil.MustDialSocket(t, f.url, cookie)
	require.Eventually(t, func() bool { return s.State() == session.Connected }, wait, 10*time.Millisecond)

	conn, ok := s.Conn().(*socket.Conn)
	require.True(t, ok)
	require.NoError(t, conn.Send(&protocol.CardInventory{Cards: s.Player().Cards()}))

	frame, err := c.ReadFrame(wait)
	require.NoError(t, err)
	assert.Equal(t, socket.KindEvent, frame.Kind)
	assert.Equal(t, protocol.EventCardInventoryResponse, frame.Event)
	assert.Equal(t, int32(0), frame.AckID)
	assert.Equal(t, int32(3), cardCount(t, frame.Payload))
}

func TestSessionClose_DisconnectsSocket(t *testing.T) {
	f := newFixture(t, config.SocketConfig{}, true)
	s, cookie := f.login(t, "alice")
	c := testutil.MustDialSocket(t, f.url, cookie)
	require.Eventually(t, func() bool { return s.State() == session.Connected }, wait, 10*time.Millisecond)

	f.registry.Remove("alice")
	require.NoError(t, s.Close(context.Background()))
	assert.NoError(t, c.WaitClosed(wait))
	assert.Equal(t, int32(1), f.players.Saves.Load())

	conn := s.Conn()
	assert.Nil(t, conn, "closed sessions drop their socket")
}

func TestAbnormalDisconnect_ClosesAndRemovesSession(t *testing.T) {
	f := newFixture(t, config.SocketConfig{}, true)
	s, cookie := f.login(t, "alice")
	c := testutil.MustDialSocket(t, f.url, cookie)
	require.Eventually(t, func() bool { return s.State() == session.Connected }, wait, 10*time.Millisecond)

	c.Drop()
	require.Eventually(t, func() bool { return s.State() == session.Disconnected }, wait, 10*time.Millisecond)
	_, ok := f.registry.Get("alice")
	assert.False(t, ok)
	assert.Equal(t, int32(1), f.players.Saves.Load(), "player flushed once")
	assert.Equal(t, 1, f.logs.FilterMessage("socket disconnected abnormally; closing session").Len())
}

func TestClientClose_ClosesSession(t *testing.T) {
	f := newFixture(t, config.SocketConfig{}, true)
	s, cookie := f.login(t, "alice")
	c := testutil.MustDialSocket(t, f.url, cookie)
	require.Eventually(t, func() bool { return s.State() == session.Connected }, wait, 10*time.Millisecond)

	c.Close()
	require.Eventually(t, func() bool { return s.State() == session.Disconnected }, wait, 10*time.Millisecond)
	assert.Equal(t, 0, f.registry.Len())
	assert.Equal(t, 1, f.logs.FilterMessage("socket closed by client; closing session").Len())
}

func TestRateLimit_ClosesSocket(t *testing.T) {
	f := newFixture(t, config.SocketConfig{MessagesPerSecond: 0.001, Burst: 2}, true)
	s, cookie := f.login(t, "alice")
	c := testutil.MustDialSocket(t, f.url, cookie)

	for i := 0; i < 3; i++ {
		c.Emit(protocol.EventCardListRequest, nil)
	}
	assert.NoError(t, c.WaitClosed(wait))
	require.Eventually(t, func() bool { return s.State() == session.Disconnected }, wait, 10*time.Millisecond)
	assert.Equal(t, 1, f.logs.FilterMessage("rate limit exceeded").Len())
}

func TestUnauthorizedSocket_IsInert(t *testing.T) {
	f := newFixture(t, config.SocketConfig{}, false)
	c := testutil.MustDialSocket(t, f.url)

	c.WriteRaw(socket.EncodeEvent(protocol.EventCardListRequest, 1, nil))
	_, err := c.ReadFrame(200 * time.Millisecond)
	assert.Error(t, err, "no dispatch on an unbound socket")
	assert.Equal(t, 1, f.logs.FilterMessage("socket accepted without a session; leaving it unbound").Len())
}
