// Package link implements the stochastic, single-direction pipe
// described in spec.md section 4.1: independent loss, corruption,
// adjacent-pair reordering and jittered delay for every packet handed
// to it by the channel.
package link

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/aetherflow/rdt/internal/rdt/packet"
)

// Config holds the link's immutable knobs (spec.md section 3).
type Config struct {
	Loss             float64       // drop probability, [0,1]
	DelayMean        time.Duration // mean one-way delay
	DelayJitter      time.Duration // symmetric jitter around DelayMean
	ReorderProb      float64       // [0,1]
	CorruptionProb   float64       // [0,1]
}

// Validate rejects out-of-range configuration at construction time, as
// required by spec.md section 7 ("programmer errors ... should be
// rejected at construction").
func (c Config) Validate() error {
	if c.Loss < 0 || c.Loss > 1 {
		return fmt.Errorf("link: loss probability %v out of [0,1]", c.Loss)
	}
	if c.ReorderProb < 0 || c.ReorderProb > 1 {
		return fmt.Errorf("link: reorder probability %v out of [0,1]", c.ReorderProb)
	}
	if c.CorruptionProb < 0 || c.CorruptionProb > 1 {
		return fmt.Errorf("link: corruption probability %v out of [0,1]", c.CorruptionProb)
	}
	if c.DelayMean < 0 || c.DelayJitter < 0 {
		return fmt.Errorf("link: delay mean/jitter must be non-negative")
	}
	return nil
}

// Stats is the per-link statistics snapshot (spec.md section 6).
type Stats struct {
	PacketsSent      uint64  `json:"packets_sent"`
	PacketsLost      uint64  `json:"packets_lost"`
	PacketsCorrupted uint64  `json:"packets_corrupted"`
	PacketsReordered uint64  `json:"packets_reordered"`
	LossRate         float64 `json:"loss_rate"`
}

// Link is a single stochastic one-way pipe. It holds at most one
// packet in its reorder buffer (spec.md section 3), and its counters
// and buffer are only ever touched from the (already serialized, by
// the endpoint's lock) send path of its direction, per spec.md
// section 5 — so a plain mutex here is a defensive simplification
// rather than a hot-path necessity.
type Link struct {
	mu  sync.Mutex
	cfg Config
	rng *rand.Rand

	reorderBuf *packet.Packet

	sent      uint64
	lost      uint64
	corrupted uint64
	reordered uint64
}

// New creates a Link from cfg, seeded deterministically so repeated
// runs with the same seed reproduce the same sequence of decisions —
// the property spec.md section 8 requires of every scenario test.
func New(cfg Config, seed int64) (*Link, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Link{
		cfg: cfg,
		rng: rand.New(rand.NewSource(seed)),
	}, nil
}

// Reconfigure swaps in a new configuration without resetting counters
// or the reorder buffer, so a control-plane hot-reload (see
// internal/rdt/control) doesn't disturb in-flight reordering state.
func (l *Link) Reconfigure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cfg = cfg
	return nil
}

// Config returns the link's current configuration.
func (l *Link) Config() Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg
}

// IncrementSent records that a packet entered this link's send path.
func (l *Link) IncrementSent() {
	l.mu.Lock()
	l.sent++
	l.mu.Unlock()
}

// DrawDrop decides, independently of all other decisions, whether the
// current packet is dropped.
func (l *Link) DrawDrop() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	drop := l.rng.Float64() < l.cfg.Loss
	if drop {
		l.lost++
	}
	return drop
}

// MaybeCorrupt returns p unchanged, or a clone with one payload byte
// incremented mod 256 and Corrupted set, per spec.md section 4.1.
// Corruption never touches an empty payload.
func (l *Link) MaybeCorrupt(p *packet.Packet) *packet.Packet {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(p.Payload) == 0 || l.rng.Float64() >= l.cfg.CorruptionProb {
		return p
	}

	out := p.Clone()
	idx := l.rng.Intn(len(out.Payload))
	out.Payload[idx] = out.Payload[idx] + 1 // byte arithmetic wraps mod 256
	out.Corrupted = true
	l.corrupted++
	return out
}

// MaybeReorder implements the adjacent-pair-swap reorder buffer from
// spec.md section 4.1: it returns the packet to actually emit now (nil
// meaning "nothing to emit, a packet is being held").
func (l *Link) MaybeReorder(p *packet.Packet) *packet.Packet {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cfg.ReorderProb <= 0 {
		return p
	}

	if l.reorderBuf == nil {
		if l.rng.Float64() < l.cfg.ReorderProb {
			l.reorderBuf = p
			l.reordered++
			return nil
		}
		return p
	}

	out := l.reorderBuf
	if l.rng.Float64() < l.cfg.ReorderProb {
		l.reorderBuf = p
	} else {
		l.reorderBuf = nil
	}
	return out
}

// SampleDelay draws a one-way delay from Uniform(mean-jitter,
// mean+jitter), clamped to non-negative.
func (l *Link) SampleDelay() time.Duration {
	l.mu.Lock()
	mean := l.cfg.DelayMean
	jitter := l.cfg.DelayJitter
	var sample time.Duration
	if jitter > 0 {
		offset := (l.rng.Float64()*2 - 1) * float64(jitter)
		sample = mean + time.Duration(offset)
	} else {
		sample = mean
	}
	l.mu.Unlock()

	if sample < 0 {
		return 0
	}
	return sample
}

// Statistics returns a snapshot of the link's counters.
func (l *Link) Statistics() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	lossRate := float64(l.lost) / float64(max64(1, l.sent))
	return Stats{
		PacketsSent:      l.sent,
		PacketsLost:      l.lost,
		PacketsCorrupted: l.corrupted,
		PacketsReordered: l.reordered,
		LossRate:         lossRate,
	}
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
