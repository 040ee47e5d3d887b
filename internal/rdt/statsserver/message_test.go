package statsserver

import (
	"testing"
	"time"
)

func TestNewMessage(t *testing.T) {
	msg := NewMessage(MessageTypePing, map[string]string{"test": "data"})

	if msg.ID == "" {
		t.Error("message id should not be empty")
	}
	if msg.Type != MessageTypePing {
		t.Errorf("expected type %s, got %s", MessageTypePing, msg.Type)
	}
	if msg.Data == nil {
		t.Error("message data should not be nil")
	}
	if msg.Timestamp.IsZero() {
		t.Error("message timestamp should not be zero")
	}
}

func TestNewErrorMessage(t *testing.T) {
	msg := NewErrorMessage("test error")
	if msg.Type != MessageTypeError {
		t.Errorf("expected type %s, got %s", MessageTypeError, msg.Type)
	}
	if msg.Error != "test error" {
		t.Errorf("expected error %q, got %q", "test error", msg.Error)
	}
}

func TestMessageJSONRoundTrip(t *testing.T) {
	original := &Message{
		ID:        "test-id",
		Type:      MessageTypePing,
		Timestamp: time.Now(),
		Data:      map[string]string{"key": "value"},
	}

	data, err := original.ToJSON()
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	parsed, err := FromJSON(data)
	if err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if parsed.ID != original.ID {
		t.Errorf("expected id %s, got %s", original.ID, parsed.ID)
	}
	if parsed.Type != original.Type {
		t.Errorf("expected type %s, got %s", original.Type, parsed.Type)
	}
}

func TestFromJSONRejectsInvalid(t *testing.T) {
	if _, err := FromJSON([]byte("{not json")); err == nil {
		t.Error("expected an error for invalid JSON")
	}
}

func TestAllMessageTypesRoundTripThroughNewMessage(t *testing.T) {
	types := []MessageType{
		MessageTypePing, MessageTypePong, MessageTypeAuth, MessageTypeAuthResult,
		MessageTypeError, MessageTypeSubscribe, MessageTypeUnsubscribe,
		MessageTypeStatsSnapshot, MessageTypeReconfigured,
	}
	for _, mt := range types {
		msg := NewMessage(mt, nil)
		if msg.Type != mt {
			t.Errorf("expected type %s, got %s", mt, msg.Type)
		}
	}
}
