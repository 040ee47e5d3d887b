package statsserver

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrConnectionClosed   = errors.New("statsserver: connection closed")
	ErrConnectionNotFound = errors.New("statsserver: connection not found")
	ErrSendChannelFull    = errors.New("statsserver: send channel full")
	ErrNotAuthenticated   = errors.New("statsserver: not authenticated")
)

// Hub tracks every live subscriber connection and which stats
// channels each has subscribed to, grounded on
// internal/gateway/websocket/hub.go's connection/channel registry,
// generalized from per-user connection lists (this server has no
// notion of "user", only "operator") to per-run subscriber lists.
type Hub struct {
	connections map[string]*Connection
	runConns    map[string][]string
	channels    map[string]map[string]bool

	mu     sync.RWMutex
	logger *zap.Logger

	handler MessageHandler

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub constructs a Hub and starts its dead-connection sweep.
func NewHub(logger *zap.Logger, handler MessageHandler) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		connections: make(map[string]*Connection),
		runConns:    make(map[string][]string),
		channels:    make(map[string]map[string]bool),
		logger:      logger,
		handler:     handler,
		ctx:         ctx,
		cancel:      cancel,
	}
	go h.cleanupTask()
	return h
}

func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[conn.ID] = conn
	h.logger.Info("connection registered", zap.String("conn_id", conn.ID), zap.Int("total", len(h.connections)))
}

func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, ok := h.connections[connID]
	if !ok {
		return
	}
	if conn.RunID != "" {
		h.removeRunConn(conn.RunID, connID)
	}
	for ch := range conn.subscriptions {
		h.removeFromChannel(ch, connID)
	}
	delete(h.connections, connID)
	h.logger.Info("connection unregistered", zap.String("conn_id", connID), zap.Int("remaining", len(h.connections)))
}

func (h *Hub) GetConnection(connID string) (*Connection, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conn, ok := h.connections[connID]
	if !ok {
		return nil, ErrConnectionNotFound
	}
	return conn, nil
}

// BroadcastToChannel pushes msg to every connection subscribed to
// channel (e.g. "channel_stats", "endpoint_stats", "fec_stats") —
// spec.md section 6's statistics surface, pushed rather than polled.
func (h *Hub) BroadcastToChannel(channel string, msg *Message) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	connIDs, ok := h.channels[channel]
	if !ok {
		return 0
	}
	count := 0
	for connID := range connIDs {
		if conn, ok := h.connections[connID]; ok {
			if err := conn.Send(msg); err == nil {
				count++
			}
		}
	}
	return count
}

func (h *Hub) SubscribeChannel(connID, channel string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, ok := h.connections[connID]
	if !ok {
		return ErrConnectionNotFound
	}
	conn.Subscribe(channel)
	if h.channels[channel] == nil {
		h.channels[channel] = make(map[string]bool)
	}
	h.channels[channel][connID] = true
	return nil
}

func (h *Hub) UnsubscribeChannel(connID, channel string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, ok := h.connections[connID]
	if !ok {
		return ErrConnectionNotFound
	}
	conn.Unsubscribe(channel)
	h.removeFromChannel(channel, connID)
	return nil
}

// SetOperator records a connection's verified operator/run identity.
func (h *Hub) SetOperator(connID, operator, runID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, ok := h.connections[connID]
	if !ok {
		return ErrConnectionNotFound
	}
	conn.SetAuthenticated(operator, runID)
	h.runConns[runID] = append(h.runConns[runID], connID)
	return nil
}

// GetStats reports the hub's own connection-bookkeeping counters.
func (h *Hub) GetStats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return map[string]interface{}{
		"total_connections": len(h.connections),
		"active_runs":       len(h.runConns),
		"total_channels":    len(h.channels),
	}
}

// Close shuts down the hub and every registered connection.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancel()
	for _, conn := range h.connections {
		conn.Close()
	}
	h.logger.Info("hub closed")
}

func (h *Hub) removeRunConn(runID, connID string) {
	list := h.runConns[runID]
	for i, id := range list {
		if id == connID {
			h.runConns[runID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(h.runConns[runID]) == 0 {
		delete(h.runConns, runID)
	}
}

func (h *Hub) removeFromChannel(channel, connID string) {
	if conns, ok := h.channels[channel]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(h.channels, channel)
		}
	}
}

func (h *Hub) cleanupTask() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.cleanupDeadConnections()
		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Hub) cleanupDeadConnections() {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	timeout := 2 * pongWait
	var dead []string
	for connID, conn := range h.connections {
		if conn.IsClosed() || now.Sub(conn.LastPing()) > timeout {
			dead = append(dead, connID)
		}
	}
	for _, connID := range dead {
		conn, ok := h.connections[connID]
		if !ok {
			continue
		}
		conn.Close()
		if conn.RunID != "" {
			h.removeRunConn(conn.RunID, connID)
		}
		for ch := range conn.subscriptions {
			h.removeFromChannel(ch, connID)
		}
		delete(h.connections, connID)
	}
	if len(dead) > 0 {
		h.logger.Info("cleaned up dead connections", zap.Int("count", len(dead)), zap.Int("remaining", len(h.connections)))
	}
}
