// Package events implements the structured event log shared by the
// channel and the endpoint (spec.md sections 3 and 6): a bounded,
// ring-truncated list of timestamped records, mirrored to structured
// zap logging so a live run and a saved log carry the same
// information.
package events

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MaxEntries is the ring-truncation bound from spec.md section 3: on
// overflow the newest MaxEntries entries are retained.
const MaxEntries = 10000

// Type enumerates the event kinds defined in spec.md section 6.
type Type string

const (
	PacketSent        Type = "PACKET_SENT"
	PacketDropped      Type = "PACKET_DROPPED"
	PacketCorrupted    Type = "PACKET_CORRUPTED"
	PacketDelivered    Type = "PACKET_DELIVERED"
	ChecksumError      Type = "CHECKSUM_ERROR"
	PacketReceived     Type = "PACKET_RECEIVED"
	AckSent            Type = "ACK_SENT"
	TimerStarted       Type = "TIMER_STARTED"
	TimerCancelled     Type = "TIMER_CANCELLED"
	Timeout            Type = "TIMEOUT"
	DuplicateAck       Type = "DUPLICATE_ACK"
	FastRetransmit     Type = "FAST_RETRANSMIT"
	RTTUpdate          Type = "RTT_UPDATE"
	CongestionSS       Type = "CONGESTION_CONTROL_SS"
	CongestionCA       Type = "CONGESTION_CONTROL_CA"
	CongestionMD       Type = "CONGESTION_CONTROL_MD"
)

// Record is one entry in the event log (spec.md section 6).
type Record struct {
	Timestamp float64                `json:"timestamp"` // seconds since the log's start
	EventType Type                   `json:"event_type"`
	Data      map[string]interface{} `json:"data"`
}

// Log is a bounded, thread-safe event log. A Channel holds one; an
// Endpoint holds one; both expose it through GetStatistics/SaveLogs.
type Log struct {
	mu        sync.Mutex
	entries   []Record
	start     time.Time
	logger    *zap.Logger
	component string // "channel" or "endpoint:<name>", for the mirrored zap line
}

// NewLog creates an event log starting its clock now. A nil logger
// defaults to zap.NewProduction(), matching the Config-defaulting
// convention used throughout this codebase's ambient stack.
func NewLog(component string, logger *zap.Logger) *Log {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Log{
		start:     time.Now(),
		logger:    logger,
		component: component,
	}
}

// Record appends an event, ring-truncating at MaxEntries and mirroring
// it to the injected zap logger at debug level.
func (l *Log) Record(eventType Type, data map[string]interface{}) {
	l.mu.Lock()
	rec := Record{
		Timestamp: time.Since(l.start).Seconds(),
		EventType: eventType,
		Data:      data,
	}
	l.entries = append(l.entries, rec)
	if len(l.entries) > MaxEntries {
		l.entries = l.entries[len(l.entries)-MaxEntries:]
	}
	l.mu.Unlock()

	if ce := l.logger.Check(zap.DebugLevel, string(eventType)); ce != nil {
		fields := make([]zap.Field, 0, len(data)+1)
		fields = append(fields, zap.String("component", l.component))
		for k, v := range data {
			fields = append(fields, zap.Any(k, v))
		}
		ce.Write(fields...)
	}
}

// Entries returns a snapshot copy of the current log contents.
func (l *Log) Entries() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len reports the current number of retained entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Save writes {"events": [...], "statistics": stats} to path, matching
// the reference implementation's save_logs (spec.md section 6).
func Save(path string, log *Log, statistics interface{}) error {
	payload := struct {
		Events     []Record    `json:"events"`
		Statistics interface{} `json:"statistics"`
	}{
		Events:     log.Entries(),
		Statistics: statistics,
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}
