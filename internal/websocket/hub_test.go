package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bulkdl/internal/models"
)

func connect(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(hub.WsHandler))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	return conn
}

func TestBroadcastEvent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)
	conn := connect(t, hub)

	hub.BroadcastEvent(models.Event{
		Type:  models.EventFinish,
		Items: []models.Item{{Id: "a", Status: models.StatusDownloaded}},
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev models.Event
	require.NoError(t, json.Unmarshal(msg, &ev))
	assert.Equal(t, models.EventFinish, ev.Type)
	require.Len(t, ev.Items, 1)
	assert.Equal(t, "a", ev.Items[0].Id)
}

func TestStartTickerSendsSnapshots(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)
	conn := connect(t, hub)

	go hub.StartTicker(ctx, 20*time.Millisecond, func() []models.Item {
		return []models.Item{{Id: "queued", Status: models.StatusPending}}
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var snapshot Snapshot
	require.NoError(t, json.Unmarshal(msg, &snapshot))
	assert.Equal(t, "snapshot", snapshot.Type)
	require.Len(t, snapshot.Items, 1)
	assert.Equal(t, "queued", snapshot.Items[0].Id)
}

func TestBroadcastAfterStopDoesNotBlock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	sent := make(chan struct{})
	go func() {
		hub.BroadcastEvent(models.Event{Type: models.EventProgress})
		close(sent)
	}()

	select {
	case <-sent:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked after hub stopped")
	}
}
