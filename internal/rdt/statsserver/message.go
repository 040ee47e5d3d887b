package statsserver

import (
	"encoding/json"
	"time"

	"github.com/aetherflow/rdt/pkg/guuid"
)

// MessageType tags a Message's purpose on the wire.
type MessageType string

const (
	MessageTypePing         MessageType = "ping"
	MessageTypePong         MessageType = "pong"
	MessageTypeAuth         MessageType = "auth"
	MessageTypeAuthResult   MessageType = "auth_result"
	MessageTypeError        MessageType = "error"
	MessageTypeSubscribe    MessageType = "subscribe"
	MessageTypeUnsubscribe  MessageType = "unsubscribe"
	MessageTypeStatsSnapshot MessageType = "stats_snapshot"
	MessageTypeReconfigured MessageType = "reconfigured"
)

// Message is the JSON envelope exchanged with a live-stats subscriber.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// NewMessage builds a Message carrying data, stamped with a fresh id.
func NewMessage(msgType MessageType, data interface{}) *Message {
	return &Message{
		ID:        newMessageID(),
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// NewErrorMessage builds an error Message.
func NewErrorMessage(err string) *Message {
	return &Message{
		ID:        newMessageID(),
		Type:      MessageTypeError,
		Timestamp: time.Now(),
		Error:     err,
	}
}

// ToJSON serializes the message.
func (m *Message) ToJSON() ([]byte, error) { return json.Marshal(m) }

// FromJSON parses a message.
func FromJSON(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// AuthData carries the bearer token a connection authenticates with.
type AuthData struct {
	Token string `json:"token"`
}

// AuthResult reports the outcome of an auth attempt.
type AuthResult struct {
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	Operator string `json:"operator,omitempty"`
	RunID    string `json:"run_id,omitempty"`
}

// SubscribeData names the channel a connection wants live updates for
// — a name registered with Server.RegisterSource, such as
// "channel_stats", "endpoint_stats" or "fec_stats".
type SubscribeData struct {
	Channel string `json:"channel"`
}

func newMessageID() string {
	id, err := guuid.New()
	if err != nil {
		return "unknown"
	}
	return id.String()
}
