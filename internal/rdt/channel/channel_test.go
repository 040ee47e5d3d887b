package channel

import (
	"sync"
	"testing"
	"time"

	"github.com/aetherflow/rdt/internal/rdt/link"
	"github.com/aetherflow/rdt/internal/rdt/packet"
	"go.uber.org/zap"
)

// recorder is a minimal Receiver that collects every packet handed to
// it, for assertions against what the channel actually delivered.
type recorder struct {
	mu  sync.Mutex
	got []*packet.Packet
}

func (r *recorder) OnReceive(p *packet.Packet, from Direction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, p)
}

func (r *recorder) snapshot() []*packet.Packet {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*packet.Packet, len(r.got))
	copy(out, r.got)
	return out
}

func newTestChannel(t *testing.T, abCfg, baCfg link.Config) (*Channel, *recorder, *recorder) {
	t.Helper()
	ab, err := link.New(abCfg, 1)
	if err != nil {
		t.Fatal(err)
	}
	ba, err := link.New(baCfg, 2)
	if err != nil {
		t.Fatal(err)
	}
	rA, rB := &recorder{}, &recorder{}
	ch := New(rA, rB, ab, ba, Config{Logger: zap.NewNop()})
	return ch, rA, rB
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}

func TestSubmitOnPerfectLinkDeliversToPeer(t *testing.T) {
	ch, _, rB := newTestChannel(t, link.Config{}, link.Config{})

	sink := NewSink(ch, AtoB)
	sink.Submit(packet.NewData(0, []byte("hello")))

	if !waitUntil(t, time.Second, func() bool { return len(rB.snapshot()) == 1 }) {
		t.Fatal("expected the packet to be delivered to B")
	}
	got := rB.snapshot()[0]
	if got.Seq != 0 || string(got.Payload) != "hello" {
		t.Fatalf("unexpected delivered packet: %+v", got)
	}
	if !got.HasSum {
		t.Fatal("expected the channel to have stamped a checksum before delivery")
	}
}

func TestSubmitWithGuaranteedLossNeverDelivers(t *testing.T) {
	ch, _, rB := newTestChannel(t, link.Config{Loss: 1}, link.Config{})

	NewSink(ch, AtoB).Submit(packet.NewData(0, []byte("x")))

	time.Sleep(50 * time.Millisecond)
	if len(rB.snapshot()) != 0 {
		t.Fatal("expected nothing to be delivered under guaranteed loss")
	}
	if ch.GetStatistics().ABLink.PacketsLost != 1 {
		t.Fatalf("expected 1 lost packet recorded, got %d", ch.GetStatistics().ABLink.PacketsLost)
	}
}

// TestCorruptedPacketFailsChecksumAndIsSilentlyDropped exercises the
// deliver-side silent-drop path: a packet mutated after its checksum
// was stamped must never reach the peer (spec.md section 4.1/4.2).
func TestCorruptedPacketFailsChecksumAndIsSilentlyDropped(t *testing.T) {
	ch, _, rB := newTestChannel(t, link.Config{CorruptionProb: 1}, link.Config{})

	NewSink(ch, AtoB).Submit(packet.NewData(0, []byte("hello")))

	time.Sleep(50 * time.Millisecond)
	if len(rB.snapshot()) != 0 {
		t.Fatal("expected a corrupted packet to be silently dropped at delivery")
	}
	if ch.GetStatistics().ABLink.PacketsCorrupted != 1 {
		t.Fatalf("expected 1 corrupted packet recorded, got %d", ch.GetStatistics().ABLink.PacketsCorrupted)
	}
}

// TestReorderBufferHoldsFirstPacketThenReleasesOnNextSubmit exercises
// the "holds at most one packet" reorder buffer: with ReorderProb 1
// the first submission is always held back, and a second submission
// forces its release, so nothing is ever delivered from a single
// isolated submit.
func TestReorderBufferHoldsFirstPacketThenReleasesOnNextSubmit(t *testing.T) {
	ch, _, rB := newTestChannel(t, link.Config{ReorderProb: 1}, link.Config{})
	sink := NewSink(ch, AtoB)

	sink.Submit(packet.NewData(0, []byte("first")))
	time.Sleep(30 * time.Millisecond)
	if len(rB.snapshot()) != 0 {
		t.Fatal("expected the first submission to be held, not delivered")
	}

	sink.Submit(packet.NewData(1, []byte("second")))
	if !waitUntil(t, time.Second, func() bool { return len(rB.snapshot()) == 1 }) {
		t.Fatal("expected the second submission to release the held packet")
	}
	if got := rB.snapshot()[0]; got.Seq != 0 {
		t.Fatalf("expected the released packet to be the held seq 0, got seq %d", got.Seq)
	}
	if ch.GetStatistics().ABLink.PacketsReordered != 1 {
		t.Fatalf("expected 1 reordered packet recorded, got %d", ch.GetStatistics().ABLink.PacketsReordered)
	}
}

func TestGetStatisticsAggregatesBothLinks(t *testing.T) {
	ch, _, _ := newTestChannel(t, link.Config{}, link.Config{})

	NewSink(ch, AtoB).Submit(packet.NewData(0, []byte("a")))
	NewSink(ch, BtoA).Submit(packet.NewAck(0))

	time.Sleep(50 * time.Millisecond)
	stats := ch.GetStatistics()
	if stats.ABLink.PacketsSent != 1 {
		t.Fatalf("expected 1 packet sent on A->B, got %d", stats.ABLink.PacketsSent)
	}
	if stats.BALink.PacketsSent != 1 {
		t.Fatalf("expected 1 packet sent on B->A, got %d", stats.BALink.PacketsSent)
	}
	if stats.TotalEvents == 0 {
		t.Fatal("expected at least one recorded event")
	}
}

func TestEventLogIsBoundedAcrossManySubmits(t *testing.T) {
	ch, _, _ := newTestChannel(t, link.Config{}, link.Config{})
	sink := NewSink(ch, AtoB)

	for i := 0; i < 50; i++ {
		sink.Submit(packet.NewData(uint32(i), []byte("x")))
	}
	time.Sleep(100 * time.Millisecond)

	// Every submit logs at least a "sent" event and (absent loss) a
	// "delivered" event, so 50 submits must not somehow exceed twice
	// that many log entries.
	if got := ch.GetStatistics().TotalEvents; got > 100 {
		t.Fatalf("expected a bounded event count, got %d", got)
	}
}

func TestLinkABAndLinkBAExposeUnderlyingLinks(t *testing.T) {
	ch, _, _ := newTestChannel(t, link.Config{Loss: 0.1}, link.Config{Loss: 0.2})

	if ch.LinkAB().Config().Loss != 0.1 {
		t.Fatalf("expected LinkAB to expose the A->B config, got %v", ch.LinkAB().Config().Loss)
	}
	if ch.LinkBA().Config().Loss != 0.2 {
		t.Fatalf("expected LinkBA to expose the B->A config, got %v", ch.LinkBA().Config().Loss)
	}
}
