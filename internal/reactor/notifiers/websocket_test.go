package notifiers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/daniacca/graphitecore/internal/reactor"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(id reactor.ReactorID, kind reactor.EventKind) reactor.NotificationEvent {
	return reactor.NewNotificationEvent(reactor.Event{ReactorID: id, Tick: 1, Kind: kind}, nil)
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketNotifier_Identity(t *testing.T) {
	n := NewWebSocketNotifier("ws")
	defer n.Close()
	assert.Equal(t, "ws", n.ID())
	assert.Equal(t, "websocket", n.Type())
	assert.Equal(t, 0, n.ClientCount())
}

func TestWebSocketNotifier_StreamsFilteredEvents(t *testing.T) {
	n := NewWebSocketNotifier("ws")
	defer n.Close()
	srv := httptest.NewServer(n)
	defer srv.Close()

	only := dial(t, srv, "?reactor=r1")
	all := dial(t, srv, "")
	require.Eventually(t, func() bool { return n.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, n.Notify(ctx, event("r2", reactor.EventChanged)))
	require.NoError(t, n.Notify(ctx, event("r1", reactor.EventMeltedDown)))

	read := func(conn *websocket.Conn) reactor.NotificationEvent {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var e reactor.NotificationEvent
		require.NoError(t, json.Unmarshal(data, &e))
		return e
	}

	got := read(only)
	assert.Equal(t, reactor.ReactorID("r1"), got.ReactorID)
	assert.Equal(t, reactor.EventMeltedDown, got.Kind)

	assert.Equal(t, reactor.ReactorID("r2"), read(all).ReactorID)
	assert.Equal(t, reactor.ReactorID("r1"), read(all).ReactorID)
}

func TestWebSocketNotifier_ClientDisconnect(t *testing.T) {
	n := NewWebSocketNotifier("ws")
	defer n.Close()
	srv := httptest.NewServer(n)
	defer srv.Close()

	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return n.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	conn.Close()
	require.Eventually(t, func() bool { return n.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestWebSocketNotifier_CloseIsIdempotent(t *testing.T) {
	n := NewWebSocketNotifier("ws")
	require.NoError(t, n.Close())
	require.NoError(t, n.Close())
	assert.ErrorIs(t, n.Notify(context.Background(), event("r", reactor.EventChanged)), ErrNotifierClosed)
}
