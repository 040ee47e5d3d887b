// Package fec implements the optional proactive forward-error-correction
// layer named in SPEC_FULL.md's DOMAIN STACK: every GroupSize DATA
// segments submitted to an Encoder are additionally protected by
// ParityShards Reed-Solomon parity shards, letting a Decoder reconstruct
// a lost segment without waiting a full RTT for retransmission. Disabled
// by default — the core ARQ scenarios in spec.md section 8 assume plain
// cumulative-ACK recovery; this package is an opt-in addition layered
// alongside it, never a replacement for it.
package fec

import (
	"fmt"
	"sort"
	"sync"

	"github.com/klauspost/reedsolomon"
)

const (
	// DefaultGroupSize is the default number of DATA segments batched
	// into one Reed-Solomon protection group.
	DefaultGroupSize = 10

	// DefaultParityShards is the default number of parity shards
	// generated per group.
	DefaultParityShards = 3
)

// Config configures an Encoder/Decoder pair. Both sides of a link must
// agree on the same GroupSize/ParityShards.
type Config struct {
	GroupSize    int
	ParityShards int
}

// DefaultConfig returns the package defaults.
func DefaultConfig() Config {
	return Config{GroupSize: DefaultGroupSize, ParityShards: DefaultParityShards}
}

func validate(cfg Config) error {
	if cfg.GroupSize < 1 || cfg.GroupSize > 256 {
		return fmt.Errorf("fec: group size %d out of [1,256]", cfg.GroupSize)
	}
	if cfg.ParityShards < 0 || cfg.ParityShards > 256 {
		return fmt.Errorf("fec: parity shards %d out of [0,256]", cfg.ParityShards)
	}
	return nil
}

// group accumulates one Reed-Solomon protection group's shards as they
// arrive, on either the encode or the decode side.
type group struct {
	dataShards   [][]byte
	parityShards [][]byte
	received     []bool
	count        int
	complete     bool
}

// Encoder batches outgoing DATA payloads into fixed-size groups and
// emits parity shards once a group fills, mirroring the teacher's
// Encoder/AddData/encodeGroup shape (internal/quantum/fec/fec.go).
type Encoder struct {
	mu sync.Mutex

	cfg     Config
	coder   reedsolomon.Encoder
	current *group
	groupID uint64
}

// NewEncoder constructs an Encoder, zero-value Config falling back to
// DefaultConfig.
func NewEncoder(cfg Config) (*Encoder, error) {
	if cfg.GroupSize == 0 && cfg.ParityShards == 0 {
		cfg = DefaultConfig()
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	coder, err := reedsolomon.New(cfg.GroupSize, cfg.ParityShards)
	if err != nil {
		return nil, fmt.Errorf("fec: constructing reed-solomon encoder: %w", err)
	}
	return &Encoder{cfg: cfg, coder: coder, groupID: 1}, nil
}

// AddSegment appends one DATA payload to the current group. It returns
// the group's id and parity shards once the group fills (GroupSize
// segments accumulated); otherwise ok is false and the caller should
// keep sending segments.
func (e *Encoder) AddSegment(payload []byte) (groupID uint64, parity [][]byte, ok bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil || e.current.complete {
		e.current = &group{dataShards: make([][]byte, e.cfg.GroupSize)}
		groupID = e.groupID
		e.groupID++
	} else {
		groupID = e.groupID - 1
	}

	cp := make([]byte, len(payload))
	copy(cp, payload)
	e.current.dataShards[e.current.count] = cp
	e.current.count++

	if e.current.count < e.cfg.GroupSize {
		return 0, nil, false, nil
	}

	if err := e.encodeCurrentLocked(); err != nil {
		return 0, nil, false, fmt.Errorf("fec: encoding group %d: %w", groupID, err)
	}
	e.current.complete = true
	return groupID, e.current.parityShards, true, nil
}

func (e *Encoder) encodeCurrentLocked() error {
	g := e.current
	maxLen := 0
	for _, shard := range g.dataShards {
		if len(shard) > maxLen {
			maxLen = len(shard)
		}
	}
	for i := range g.dataShards {
		if len(g.dataShards[i]) < maxLen {
			padded := make([]byte, maxLen)
			copy(padded, g.dataShards[i])
			g.dataShards[i] = padded
		}
	}

	g.parityShards = make([][]byte, e.cfg.ParityShards)
	for i := range g.parityShards {
		g.parityShards[i] = make([]byte, maxLen)
	}

	all := append(append([][]byte{}, g.dataShards...), g.parityShards...)
	if err := e.coder.Encode(all); err != nil {
		return fmt.Errorf("reed-solomon encode: %w", err)
	}
	g.parityShards = all[e.cfg.GroupSize:]
	return nil
}

// Reset discards any partially filled group.
func (e *Encoder) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = nil
}

// Decoder reassembles groups from data and parity shards as they
// arrive over the unreliable link, reconstructing missing data shards
// once enough of the group has been received.
type Decoder struct {
	mu sync.Mutex

	cfg    Config
	coder  reedsolomon.Encoder
	groups map[uint64]*group

	recovered uint64
	failed    uint64
}

// NewDecoder constructs a Decoder matching an Encoder's Config.
func NewDecoder(cfg Config) (*Decoder, error) {
	if cfg.GroupSize == 0 && cfg.ParityShards == 0 {
		cfg = DefaultConfig()
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	coder, err := reedsolomon.New(cfg.GroupSize, cfg.ParityShards)
	if err != nil {
		return nil, fmt.Errorf("fec: constructing reed-solomon decoder: %w", err)
	}
	return &Decoder{cfg: cfg, coder: coder, groups: make(map[uint64]*group)}, nil
}

// AddShard feeds one received shard (data or parity) for groupID. Once
// GroupSize shards (any mix of data/parity) have arrived, it attempts
// reconstruction and returns the group's full data shard set.
func (d *Decoder) AddShard(groupID uint64, shardIndex int, payload []byte, isParity bool) (recovered [][]byte, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	g, ok := d.groups[groupID]
	if !ok {
		g = &group{
			dataShards:   make([][]byte, d.cfg.GroupSize),
			parityShards: make([][]byte, d.cfg.ParityShards),
			received:     make([]bool, d.cfg.GroupSize+d.cfg.ParityShards),
		}
		d.groups[groupID] = g
	}
	if g.complete {
		return nil, nil
	}

	cp := make([]byte, len(payload))
	copy(cp, payload)

	var maskIdx int
	if isParity {
		if shardIndex < 0 || shardIndex >= d.cfg.ParityShards {
			return nil, fmt.Errorf("fec: parity shard index %d out of range", shardIndex)
		}
		g.parityShards[shardIndex] = cp
		maskIdx = d.cfg.GroupSize + shardIndex
	} else {
		if shardIndex < 0 || shardIndex >= d.cfg.GroupSize {
			return nil, fmt.Errorf("fec: data shard index %d out of range", shardIndex)
		}
		g.dataShards[shardIndex] = cp
		maskIdx = shardIndex
	}
	if !g.received[maskIdx] {
		g.received[maskIdx] = true
		g.count++
	}

	if g.count < d.cfg.GroupSize {
		return nil, nil
	}

	if err := d.reconstructLocked(g); err != nil {
		d.failed++
		return nil, fmt.Errorf("fec: reconstructing group %d: %w", groupID, err)
	}
	g.complete = true
	d.recovered += uint64(d.cfg.GroupSize - receivedDataCount(g))
	return g.dataShards, nil
}

func receivedDataCount(g *group) int {
	n := 0
	for i := 0; i < len(g.dataShards); i++ {
		if g.received[i] {
			n++
		}
	}
	return n
}

func (d *Decoder) reconstructLocked(g *group) error {
	all := make([][]byte, d.cfg.GroupSize+d.cfg.ParityShards)
	copy(all, g.dataShards)
	copy(all[d.cfg.GroupSize:], g.parityShards)

	if err := d.coder.Reconstruct(all); err != nil {
		return fmt.Errorf("reed-solomon reconstruct: %w", err)
	}
	ok, err := d.coder.Verify(all)
	if err != nil {
		return fmt.Errorf("reed-solomon verify: %w", err)
	}
	if !ok {
		return fmt.Errorf("reconstruction did not verify")
	}
	for i := 0; i < d.cfg.GroupSize; i++ {
		if g.dataShards[i] == nil {
			g.dataShards[i] = all[i]
		}
	}
	return nil
}

// CleanupOldGroups retains at most keepLatest groups by id, dropping
// the rest to bound memory over a long-running stream.
func (d *Decoder) CleanupOldGroups(keepLatest int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.groups) <= keepLatest {
		return
	}
	ids := make([]uint64, 0, len(d.groups))
	for id := range d.groups {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids[:len(ids)-keepLatest] {
		delete(d.groups, id)
	}
}

// Statistics reports the decoder's recovery counters.
func (d *Decoder) Statistics() map[string]uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return map[string]uint64{
		"total_recovered": d.recovered,
		"failed_recovery": d.failed,
		"active_groups":   uint64(len(d.groups)),
	}
}

// Overhead reports the fraction of extra bandwidth a Config spends on
// parity relative to data.
func Overhead(cfg Config) float64 {
	if cfg.GroupSize == 0 {
		return 0
	}
	return float64(cfg.ParityShards) / float64(cfg.GroupSize)
}
