package fec

import (
	"bytes"
	"testing"
)

func makeGroup(t *testing.T, cfg Config, n int) [][]byte {
	t.Helper()
	payloads := make([][]byte, n)
	for i := range payloads {
		payloads[i] = bytes.Repeat([]byte{byte('a' + i)}, 16)
	}
	return payloads
}

func TestEncoderEmitsParityOnlyOnceGroupFills(t *testing.T) {
	cfg := Config{GroupSize: 4, ParityShards: 2}
	enc, err := NewEncoder(cfg)
	if err != nil {
		t.Fatal(err)
	}

	payloads := makeGroup(t, cfg, cfg.GroupSize)
	for i := 0; i < cfg.GroupSize-1; i++ {
		_, _, ok, err := enc.AddSegment(payloads[i])
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Fatalf("segment %d should not complete a group of %d", i, cfg.GroupSize)
		}
	}

	id, parity, ok, err := enc.AddSegment(payloads[cfg.GroupSize-1])
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected the final segment to complete the group")
	}
	if id != 1 {
		t.Fatalf("expected first group id 1, got %d", id)
	}
	if len(parity) != cfg.ParityShards {
		t.Fatalf("expected %d parity shards, got %d", cfg.ParityShards, len(parity))
	}
}

func TestDecoderReconstructsOneMissingDataShard(t *testing.T) {
	cfg := Config{GroupSize: 4, ParityShards: 2}
	enc, err := NewEncoder(cfg)
	if err != nil {
		t.Fatal(err)
	}
	payloads := makeGroup(t, cfg, cfg.GroupSize)

	var groupID uint64
	var parity [][]byte
	for _, p := range payloads {
		id, par, ok, err := enc.AddSegment(p)
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			groupID, parity = id, par
		}
	}

	dec, err := NewDecoder(cfg)
	if err != nil {
		t.Fatal(err)
	}

	// Drop data shard 1; feed the rest plus all parity.
	for i, p := range payloads {
		if i == 1 {
			continue
		}
		if _, err := dec.AddShard(groupID, i, p, false); err != nil {
			t.Fatal(err)
		}
	}
	var recovered [][]byte
	for i, par := range parity {
		rec, err := dec.AddShard(groupID, i, par, true)
		if err != nil {
			t.Fatal(err)
		}
		if rec != nil {
			recovered = rec
		}
	}

	if recovered == nil {
		t.Fatal("expected reconstruction to complete once group size shards arrived")
	}
	if !bytes.Equal(recovered[1], payloads[1]) {
		t.Fatalf("reconstructed shard 1 mismatch: want %q got %q", payloads[1], recovered[1])
	}
}

func TestDecoderFailsWhenTooManyShardsMissing(t *testing.T) {
	cfg := Config{GroupSize: 4, ParityShards: 2}
	dec, err := NewDecoder(cfg)
	if err != nil {
		t.Fatal(err)
	}
	payloads := makeGroup(t, cfg, cfg.GroupSize)

	// Only 2 data shards and 1 parity shard arrive: 3 < GroupSize(4), so
	// reconstruction should never even be attempted.
	if _, err := dec.AddShard(1, 0, payloads[0], false); err != nil {
		t.Fatal(err)
	}
	if _, err := dec.AddShard(1, 2, payloads[2], false); err != nil {
		t.Fatal(err)
	}
	rec, err := dec.AddShard(1, 0, []byte{0, 0, 0, 0}, true)
	if err != nil {
		t.Fatal(err)
	}
	if rec != nil {
		t.Fatal("expected no reconstruction with only 3 of 4 required shards present")
	}
}

func TestCleanupOldGroupsBoundsMemory(t *testing.T) {
	cfg := Config{GroupSize: 2, ParityShards: 1}
	dec, err := NewDecoder(cfg)
	if err != nil {
		t.Fatal(err)
	}
	for gid := uint64(1); gid <= 5; gid++ {
		dec.AddShard(gid, 0, []byte("x"), false)
	}
	dec.CleanupOldGroups(2)
	stats := dec.Statistics()
	if stats["active_groups"] != 2 {
		t.Fatalf("expected 2 active groups retained, got %d", stats["active_groups"])
	}
}

func TestOverheadReflectsParityRatio(t *testing.T) {
	if got := Overhead(Config{GroupSize: 10, ParityShards: 3}); got != 0.3 {
		t.Fatalf("expected overhead 0.3, got %v", got)
	}
	if got := Overhead(Config{GroupSize: 0, ParityShards: 3}); got != 0 {
		t.Fatalf("expected overhead 0 for a zero group size, got %v", got)
	}
}

func TestNewEncoderRejectsOversizedGroup(t *testing.T) {
	if _, err := NewEncoder(Config{GroupSize: 300, ParityShards: 1}); err == nil {
		t.Fatal("expected an oversized group to be rejected")
	}
}
