package live

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zmooth/zmooth/internal/services/shared/events"
)

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) events.Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var e events.Event
	if err := conn.ReadJSON(&e); err != nil {
		t.Fatalf("read: %v", err)
	}
	return e
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", hub.Clients(), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubSendsOverviewThenEvents(t *testing.T) {
	hub := NewHub(func(context.Context) (any, error) {
		return map[string]int{"active_sessions": 3}, nil
	}, time.Hour, nil)
	server := httptest.NewServer(hub)
	defer server.Close()

	conn := dial(t, server)
	first := readEvent(t, conn)
	if first.Type != events.Overview {
		t.Fatalf("first event = %q, want overview", first.Type)
	}
	waitForClients(t, hub, 1)

	hub.Publish(events.Event{Type: events.SessionStarted, Data: map[string]string{"username": "alice"}})
	got := readEvent(t, conn)
	if got.Type != events.SessionStarted || got.At.IsZero() {
		t.Fatalf("unexpected event: %+v", got)
	}
}

func TestHubRunBroadcastsSnapshots(t *testing.T) {
	var calls atomic.Int32
	hub := NewHub(func(context.Context) (any, error) {
		return calls.Add(1), nil
	}, 20*time.Millisecond, nil)
	server := httptest.NewServer(hub)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	conn := dial(t, server)
	readEvent(t, conn)
	waitForClients(t, hub, 1)
	go hub.Run(ctx)

	if got := readEvent(t, conn); got.Type != events.Overview {
		t.Fatalf("expected periodic overview, got %+v", got)
	}
}

func TestHubDropsDisconnectedClients(t *testing.T) {
	hub := NewHub(nil, time.Hour, nil)
	server := httptest.NewServer(hub)
	defer server.Close()

	conn := dial(t, server)
	waitForClients(t, hub, 1)
	_ = conn.Close()
	waitForClients(t, hub, 0)
}
