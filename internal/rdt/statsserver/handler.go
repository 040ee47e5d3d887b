package statsserver

import (
	"go.uber.org/zap"

	"github.com/aetherflow/rdt/internal/rdt/statsserver/auth"
)

// MessageHandler processes one inbound message for a Connection.
type MessageHandler interface {
	HandleMessage(conn *Connection, msg *Message)
}

// DefaultHandler implements the control-endpoint protocol: auth,
// subscribe/unsubscribe to a stats channel. There is no publish
// operation — this surface is read-only statistics, pushed by the
// bench runner via Hub.BroadcastToChannel, never by a subscriber.
// Grounded on internal/gateway/websocket/handler.go's DefaultHandler,
// with handlePublish dropped and handleAuth rewired to auth.Manager.
type DefaultHandler struct {
	hub    *Hub
	logger *zap.Logger
	auth   *auth.Manager
}

// NewDefaultHandler constructs a DefaultHandler verifying tokens
// against authManager. A nil authManager accepts every token under a
// fixed "anonymous" operator — useful for local/demo runs.
func NewDefaultHandler(hub *Hub, logger *zap.Logger, authManager *auth.Manager) *DefaultHandler {
	return &DefaultHandler{hub: hub, logger: logger, auth: authManager}
}

func (h *DefaultHandler) HandleMessage(conn *Connection, msg *Message) {
	h.logger.Debug("handling message", zap.String("conn_id", conn.ID), zap.String("type", string(msg.Type)))

	switch msg.Type {
	case MessageTypePing:
		h.handlePing(conn, msg)
	case MessageTypeAuth:
		h.handleAuth(conn, msg)
	case MessageTypeSubscribe:
		h.handleSubscribe(conn, msg)
	case MessageTypeUnsubscribe:
		h.handleUnsubscribe(conn, msg)
	default:
		h.logger.Warn("unknown message type", zap.String("conn_id", conn.ID), zap.String("type", string(msg.Type)))
		conn.Send(NewErrorMessage("unknown message type"))
	}
}

func (h *DefaultHandler) handlePing(conn *Connection, msg *Message) {
	conn.Send(NewMessage(MessageTypePong, map[string]interface{}{"timestamp": msg.Timestamp}))
}

func (h *DefaultHandler) handleAuth(conn *Connection, msg *Message) {
	authData, ok := msg.Data.(map[string]interface{})
	if !ok {
		conn.Send(NewMessage(MessageTypeAuthResult, AuthResult{Success: false, Message: "invalid auth data format"}))
		return
	}
	token, _ := authData["token"].(string)
	if token == "" {
		conn.Send(NewMessage(MessageTypeAuthResult, AuthResult{Success: false, Message: "token is required"}))
		return
	}

	var operator, runID string
	if h.auth != nil {
		claims, err := h.auth.VerifyToken(token)
		if err != nil {
			conn.Send(NewMessage(MessageTypeAuthResult, AuthResult{Success: false, Message: "authentication failed: " + err.Error()}))
			return
		}
		operator, runID = claims.Operator, claims.RunID
	} else {
		operator, runID = "anonymous", "local"
	}

	h.hub.SetOperator(conn.ID, operator, runID)
	conn.Send(NewMessage(MessageTypeAuthResult, AuthResult{Success: true, Message: "authentication successful", Operator: operator, RunID: runID}))
}

func (h *DefaultHandler) handleSubscribe(conn *Connection, msg *Message) {
	if !conn.IsAuthenticated() {
		conn.Send(NewErrorMessage("not authenticated"))
		return
	}
	subData, ok := msg.Data.(map[string]interface{})
	if !ok {
		conn.Send(NewErrorMessage("invalid subscribe data format"))
		return
	}
	channel, _ := subData["channel"].(string)
	if channel == "" {
		conn.Send(NewErrorMessage("channel is required"))
		return
	}
	if err := h.hub.SubscribeChannel(conn.ID, channel); err != nil {
		conn.Send(NewErrorMessage("failed to subscribe: " + err.Error()))
		return
	}
	conn.Send(NewMessage(MessageTypeSubscribe, map[string]interface{}{"channel": channel, "success": true}))
}

func (h *DefaultHandler) handleUnsubscribe(conn *Connection, msg *Message) {
	if !conn.IsAuthenticated() {
		conn.Send(NewErrorMessage("not authenticated"))
		return
	}
	unsubData, ok := msg.Data.(map[string]interface{})
	if !ok {
		conn.Send(NewErrorMessage("invalid unsubscribe data format"))
		return
	}
	channel, _ := unsubData["channel"].(string)
	if channel == "" {
		conn.Send(NewErrorMessage("channel is required"))
		return
	}
	if err := h.hub.UnsubscribeChannel(conn.ID, channel); err != nil {
		conn.Send(NewErrorMessage("failed to unsubscribe: " + err.Error()))
		return
	}
	conn.Send(NewMessage(MessageTypeUnsubscribe, map[string]interface{}{"channel": channel, "success": true}))
}
