package statsserver

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

// Connection wraps one subscriber's websocket, tracking its auth
// state and channel subscriptions the way the teacher's gateway
// tracks a user session (internal/gateway/websocket/connection.go),
// generalized from "user/session" to "operator/run" per spec.md
// section 6's statistics surface.
type Connection struct {
	ID       string
	Operator string
	RunID    string

	conn *websocket.Conn
	send chan *Message

	authenticated bool
	lastPing      time.Time
	closed        bool

	subscriptions map[string]bool

	mu     sync.RWMutex
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewConnection wraps conn, ready to Start once registered with a Hub.
func NewConnection(id string, conn *websocket.Conn, logger *zap.Logger) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		ID:            id,
		conn:          conn,
		send:          make(chan *Message, 256),
		lastPing:      time.Now(),
		subscriptions: make(map[string]bool),
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Send enqueues msg for delivery, dropping it if the connection's
// send buffer is full rather than blocking the caller.
func (c *Connection) Send(msg *Message) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrConnectionClosed
	}
	c.mu.RUnlock()

	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		c.logger.Warn("send channel full, dropping message",
			zap.String("conn_id", c.ID),
			zap.String("msg_type", string(msg.Type)),
		)
		return ErrSendChannelFull
	}
}

// Close tears down the connection's goroutines and underlying socket.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.cancel()
	close(c.send)

	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Connection) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// SetAuthenticated records the operator/run identity this connection
// was granted by a verified bearer token.
func (c *Connection) SetAuthenticated(operator, runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authenticated = true
	c.Operator = operator
	c.RunID = runID
}

func (c *Connection) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}

func (c *Connection) UpdatePing() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPing = time.Now()
}

func (c *Connection) LastPing() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPing
}

func (c *Connection) Subscribe(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions[channel] = true
}

func (c *Connection) Unsubscribe(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscriptions, channel)
}

func (c *Connection) IsSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscriptions[channel]
}

func (c *Connection) readPump(handler MessageHandler) {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.UpdatePing()
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket read error", zap.String("conn_id", c.ID), zap.Error(err))
			}
			return
		}

		msg, err := FromJSON(data)
		if err != nil {
			c.logger.Warn("failed to parse message", zap.String("conn_id", c.ID), zap.Error(err))
			c.Send(NewErrorMessage("invalid message format"))
			continue
		}
		if handler != nil {
			handler.HandleMessage(c, msg)
		}
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := msg.ToJSON()
			if err != nil {
				c.logger.Error("failed to marshal message", zap.String("conn_id", c.ID), zap.Error(err))
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Error("failed to write message", zap.String("conn_id", c.ID), zap.Error(err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// Start launches the connection's read and write pumps.
func (c *Connection) Start(handler MessageHandler) {
	go c.writePump()
	go c.readPump(handler)
}
