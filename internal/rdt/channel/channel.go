// Package channel implements the unreliable channel simulator from
// spec.md section 4.2: it binds two endpoints through two independent
// Links, stamps checksums, applies loss/corruption/reorder, schedules
// delayed delivery, and keeps the bounded structured event log.
package channel

import (
	"time"

	"github.com/aetherflow/rdt/internal/rdt/checksum"
	"github.com/aetherflow/rdt/internal/rdt/events"
	"github.com/aetherflow/rdt/internal/rdt/link"
	"github.com/aetherflow/rdt/internal/rdt/packet"
	"go.uber.org/zap"
)

// Direction names which endpoint originated a send, per spec.md's
// "direction" tag passed to on_receive.
type Direction string

const (
	AtoB Direction = "A"
	BtoA Direction = "B"
)

// Receiver is implemented by an endpoint: the channel's only way to
// hand it a delivered packet.
type Receiver interface {
	OnReceive(p *packet.Packet, from Direction)
}

// Config bundles the channel's dependencies, following this
// codebase's Config-struct-with-defaults convention
// (internal/session/manager.go's ManagerConfig).
type Config struct {
	EnableLogging bool
	Logger        *zap.Logger
	Metrics       *events.Metrics // optional; nil disables metric updates
}

// Channel wires endpoint A and endpoint B together through an A->B and
// a B->A Link (spec.md section 4.2).
type Channel struct {
	endpointA Receiver
	endpointB Receiver

	ab *link.Link
	ba *link.Link

	log     *events.Log
	metrics *events.Metrics
}

// New constructs a Channel. Per the "duck-typed injection" design note
// in spec.md section 9, the channel does not mutate any attribute on
// the endpoints — callers obtain a Sink for each endpoint via
// NewSink(ch, direction) and pass that capability into the endpoint's
// own constructor instead.
func New(endpointA, endpointB Receiver, ab, ba *link.Link, cfg Config) *Channel {
	logger := cfg.Logger
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	if !cfg.EnableLogging {
		logger = zap.NewNop()
	}

	return &Channel{
		endpointA: endpointA,
		endpointB: endpointB,
		ab:        ab,
		ba:        ba,
		log:       events.NewLog("channel", logger),
		metrics:   cfg.Metrics,
	}
}

// SetEndpoints binds the channel's two endpoints after construction.
// Building an Endpoint requires a Sink, and a Sink requires an
// already-allocated Channel, so a real wiring (cmd/rdt-bench) must
// construct the Channel with placeholder endpoints, build both
// Endpoints from the Sinks it hands out, then bind them here before
// any traffic is submitted.
func (c *Channel) SetEndpoints(a, b Receiver) {
	c.endpointA = a
	c.endpointB = b
}

// Sink is the send capability a Channel exposes to one endpoint,
// implementing the "submit(packet, direction)" capability from
// spec.md section 9's design note.
type Sink struct {
	ch  *Channel
	dir Direction
}

// NewSink returns the send capability for the endpoint originating
// traffic in direction dir.
func NewSink(ch *Channel, dir Direction) *Sink {
	return &Sink{ch: ch, dir: dir}
}

// Submit hands pkt into the channel's send pipeline for this sink's
// direction (spec.md section 4.2, steps 1-7).
func (s *Sink) Submit(pkt *packet.Packet) {
	s.ch.send(pkt, s.dir)
}

func (c *Channel) linkFor(dir Direction) *link.Link {
	if dir == AtoB {
		return c.ab
	}
	return c.ba
}

func (c *Channel) peerFor(dir Direction) Receiver {
	if dir == AtoB {
		return c.endpointB
	}
	return c.endpointA
}

func (c *Channel) metricDirection(dir Direction) string {
	if dir == AtoB {
		return "A->B"
	}
	return "B->A"
}

// send runs the channel's send pipeline for one packet originating in
// direction dir: stamp checksum, maybe drop, maybe corrupt, maybe
// reorder, then schedule delivery after a sampled delay.
func (c *Channel) send(pkt *packet.Packet, dir Direction) {
	l := c.linkFor(dir)
	mdir := c.metricDirection(dir)

	l.IncrementSent()
	if c.metrics != nil {
		c.metrics.LinkPacketsSent.WithLabelValues(mdir).Inc()
	}

	checksum.Stamp(pkt)

	c.log.Record(events.PacketSent, map[string]interface{}{
		"direction": string(dir),
		"type":      pkt.Type.String(),
		"seq":       seqOrAck(pkt),
		"size":      len(pkt.Payload),
		"checksum":  pkt.Checksum,
	})

	if l.DrawDrop() {
		if c.metrics != nil {
			c.metrics.LinkPacketsLost.WithLabelValues(mdir).Inc()
		}
		c.log.Record(events.PacketDropped, map[string]interface{}{
			"direction": string(dir),
			"type":      pkt.Type.String(),
			"seq":       seqOrAck(pkt),
		})
		return
	}

	pkt = l.MaybeCorrupt(pkt)
	if pkt.Corrupted {
		if c.metrics != nil {
			c.metrics.LinkPacketsCorrupted.WithLabelValues(mdir).Inc()
		}
		c.log.Record(events.PacketCorrupted, map[string]interface{}{
			"direction": string(dir),
			"type":      pkt.Type.String(),
			"seq":       seqOrAck(pkt),
		})
	}

	released := l.MaybeReorder(pkt)
	if released == nil {
		if c.metrics != nil {
			c.metrics.LinkPacketsReordered.WithLabelValues(mdir).Inc()
		}
		return
	}

	delay := l.SampleDelay()
	time.AfterFunc(delay, func() {
		c.deliver(released, dir, delay)
	})
}

// deliver runs at the end of the sampled delay: verify checksum, drop
// silently on failure, otherwise hand the packet to the peer endpoint
// (spec.md section 4.2's Deliver operation).
func (c *Channel) deliver(pkt *packet.Packet, dir Direction, delay time.Duration) {
	if !checksum.Verify(pkt) {
		c.log.Record(events.ChecksumError, map[string]interface{}{
			"direction": string(dir),
			"type":      pkt.Type.String(),
			"seq":       seqOrAck(pkt),
		})
		return
	}

	c.log.Record(events.PacketDelivered, map[string]interface{}{
		"direction":     string(dir),
		"type":          pkt.Type.String(),
		"seq":           seqOrAck(pkt),
		"delay_ms":      float64(delay) / float64(time.Millisecond),
		"checksum_valid": true,
	})

	c.peerFor(dir).OnReceive(pkt, dir)
}

func seqOrAck(p *packet.Packet) int64 {
	if p.Type == packet.ACK {
		return p.Ack
	}
	return int64(p.Seq)
}

// LinkConfigSnapshot mirrors spec.md section 6's "configuration" block.
type LinkConfigSnapshot struct {
	Loss           float64 `json:"loss"`
	DelayMeanMs    float64 `json:"delay_mean_ms"`
	DelayJitterMs  float64 `json:"delay_jitter_ms"`
	ReorderProb    float64 `json:"reorder_prob"`
	CorruptionProb float64 `json:"corruption_prob"`
}

// Statistics is the channel-level snapshot from spec.md section 6.
type Statistics struct {
	TotalEvents   int                `json:"total_events"`
	ABLink        link.Stats         `json:"ab_link"`
	BALink        link.Stats         `json:"ba_link"`
	ABConfig      LinkConfigSnapshot `json:"ab_config"`
	BAConfig      LinkConfigSnapshot `json:"ba_config"`
}

func snapshotConfig(l *link.Link) LinkConfigSnapshot {
	cfg := l.Config()
	return LinkConfigSnapshot{
		Loss:           cfg.Loss,
		DelayMeanMs:    float64(cfg.DelayMean) / float64(time.Millisecond),
		DelayJitterMs:  float64(cfg.DelayJitter) / float64(time.Millisecond),
		ReorderProb:    cfg.ReorderProb,
		CorruptionProb: cfg.CorruptionProb,
	}
}

// GetStatistics returns the aggregated channel/link statistics
// snapshot (spec.md section 6).
func (c *Channel) GetStatistics() Statistics {
	return Statistics{
		TotalEvents: c.log.Len(),
		ABLink:      c.ab.Statistics(),
		BALink:      c.ba.Statistics(),
		ABConfig:    snapshotConfig(c.ab),
		BAConfig:    snapshotConfig(c.ba),
	}
}

// SaveLogs writes {"events": [...], "statistics": ...} to path
// (spec.md section 6).
func (c *Channel) SaveLogs(path string) error {
	return events.Save(path, c.log, c.GetStatistics())
}

// LinkAB and LinkBA expose the underlying links for the control-plane
// Watcher (internal/rdt/control) to hot-reload.
func (c *Channel) LinkAB() *link.Link { return c.ab }
func (c *Channel) LinkBA() *link.Link { return c.ba }
