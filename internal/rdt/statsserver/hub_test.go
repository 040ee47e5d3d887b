package statsserver

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func createTestHub() *Hub {
	logger := zap.NewNop()
	handler := NewDefaultHandler(nil, logger, nil)
	return NewHub(logger, handler)
}

func createTestConnection(id string) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		ID:            id,
		send:          make(chan *Message, 256),
		lastPing:      time.Now(),
		subscriptions: make(map[string]bool),
		logger:        zap.NewNop(),
		ctx:           ctx,
		cancel:        cancel,
	}
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := createTestHub()
	defer hub.Close()

	hub.Register(createTestConnection("conn1"))
	if got := hub.GetStats()["total_connections"].(int); got != 1 {
		t.Errorf("expected 1 connection, got %d", got)
	}

	hub.Unregister("conn1")
	if got := hub.GetStats()["total_connections"].(int); got != 0 {
		t.Errorf("expected 0 connections, got %d", got)
	}
}

func TestHubGetConnection(t *testing.T) {
	hub := createTestHub()
	defer hub.Close()

	hub.Register(createTestConnection("conn1"))

	retrieved, err := hub.GetConnection("conn1")
	if err != nil {
		t.Fatalf("failed to get connection: %v", err)
	}
	if retrieved.ID != "conn1" {
		t.Errorf("expected conn1, got %s", retrieved.ID)
	}

	if _, err := hub.GetConnection("nonexistent"); err != ErrConnectionNotFound {
		t.Errorf("expected ErrConnectionNotFound, got %v", err)
	}
}

func TestHubSubscribeUnsubscribeChannel(t *testing.T) {
	hub := createTestHub()
	defer hub.Close()

	hub.Register(createTestConnection("conn1"))

	if err := hub.SubscribeChannel("conn1", "channel_stats"); err != nil {
		t.Fatalf("failed to subscribe: %v", err)
	}

	msg := NewMessage(MessageTypeStatsSnapshot, nil)
	if n := hub.BroadcastToChannel("channel_stats", msg); n != 1 {
		t.Errorf("expected 1 delivery, got %d", n)
	}

	if err := hub.UnsubscribeChannel("conn1", "channel_stats"); err != nil {
		t.Fatalf("failed to unsubscribe: %v", err)
	}
	if n := hub.BroadcastToChannel("channel_stats", msg); n != 0 {
		t.Errorf("expected 0 deliveries after unsubscribe, got %d", n)
	}
}

func TestHubSubscribeUnknownConnectionFails(t *testing.T) {
	hub := createTestHub()
	defer hub.Close()

	if err := hub.SubscribeChannel("ghost", "channel_stats"); err != ErrConnectionNotFound {
		t.Errorf("expected ErrConnectionNotFound, got %v", err)
	}
}

func TestHubSetOperatorTracksRunConns(t *testing.T) {
	hub := createTestHub()
	defer hub.Close()

	hub.Register(createTestConnection("conn1"))
	if err := hub.SetOperator("conn1", "alice", "run-1"); err != nil {
		t.Fatalf("failed to set operator: %v", err)
	}

	conn, err := hub.GetConnection("conn1")
	if err != nil {
		t.Fatal(err)
	}
	if !conn.IsAuthenticated() || conn.Operator != "alice" || conn.RunID != "run-1" {
		t.Fatalf("expected connection to be authenticated as alice/run-1, got %+v", conn)
	}
}

func TestHubBroadcastToUnknownChannelDeliversNothing(t *testing.T) {
	hub := createTestHub()
	defer hub.Close()

	hub.Register(createTestConnection("conn1"))
	if n := hub.BroadcastToChannel("nonexistent", NewMessage(MessageTypeStatsSnapshot, nil)); n != 0 {
		t.Errorf("expected 0 deliveries to an unsubscribed channel, got %d", n)
	}
}
