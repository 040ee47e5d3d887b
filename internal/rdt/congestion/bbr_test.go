package congestion

import (
	"testing"
	"time"
)

func TestBBRStartsInStartupWithMinWindow(t *testing.T) {
	b := NewBBR(BBRConfig{Enabled: true})
	if b.state != bbrStartup {
		t.Fatalf("expected STARTUP, got %v", b.state)
	}
	if b.Window() < bbrMinPipeCwnd {
		t.Fatalf("window must never be below the minimum pipe cwnd, got %d", b.Window())
	}
}

func TestBBROnAckSampleTracksMinRTT(t *testing.T) {
	b := NewBBR(BBRConfig{Enabled: true})
	b.OnAckSample(1200, 100*time.Millisecond)
	b.OnAckSample(1200, 40*time.Millisecond)
	b.OnAckSample(1200, 70*time.Millisecond)
	if b.rtProp != 40*time.Millisecond {
		t.Fatalf("expected rtProp to track the minimum sample, got %v", b.rtProp)
	}
}

func TestBBRBandwidthIsMaxFilteredOverWindow(t *testing.T) {
	b := NewBBR(BBRConfig{Enabled: true})
	for i := 0; i < 5; i++ {
		b.OnAckSample(1200, 50*time.Millisecond)
	}
	b.OnAckSample(1200, 10*time.Millisecond) // one much-faster sample raises the max
	want := float64(1200) / (10 * time.Millisecond).Seconds()
	if b.btlBw != want {
		t.Fatalf("expected btlBw=%v (max sample), got %v", want, b.btlBw)
	}
}

func TestBBRExitsStartupAfterBandwidthPlateaus(t *testing.T) {
	b := NewBBR(BBRConfig{Enabled: true})
	// A strong initial growth round establishes priorBtlBw...
	b.OnAckSample(1200, 10*time.Millisecond)
	// ...then several rounds with no further growth should trip the
	// three-consecutive-round plateau heuristic and leave STARTUP.
	for i := 0; i < 4; i++ {
		b.OnAckSample(1200, 10*time.Millisecond)
	}
	if b.state == bbrStartup {
		t.Fatalf("expected BBR to have left STARTUP after a bandwidth plateau, still in %v", b.state)
	}
}

func TestBBROnTimeoutResetsToStartup(t *testing.T) {
	b := NewBBR(BBRConfig{Enabled: true})
	for i := 0; i < 5; i++ {
		b.OnAckSample(1200, 10*time.Millisecond)
	}
	b.OnTimeout()
	if b.state != bbrStartup {
		t.Fatalf("expected OnTimeout to reset to STARTUP, got %v", b.state)
	}
	if b.btlBw != 0 {
		t.Fatalf("expected bandwidth model to be discarded after timeout, got %v", b.btlBw)
	}
}

func TestBBROnFastRetransmitDoesNotShrinkWindow(t *testing.T) {
	b := NewBBR(BBRConfig{Enabled: true})
	for i := 0; i < 3; i++ {
		b.OnAckSample(1200, 10*time.Millisecond)
	}
	before := b.Window()
	b.OnFastRetransmit()
	if b.Window() != before {
		t.Fatalf("BBR must not reduce its window on fast retransmit, before=%d after=%d", before, b.Window())
	}
}

func TestBBROnDataDeliveredIsNoop(t *testing.T) {
	b := NewBBR(BBRConfig{Enabled: true})
	before := b.Window()
	b.OnDataDelivered()
	if b.Window() != before {
		t.Fatal("OnDataDelivered must not change BBR's window; its model only grows off ACK samples")
	}
}

func TestBBRZeroRTTSampleIgnored(t *testing.T) {
	b := NewBBR(BBRConfig{Enabled: true})
	b.OnAckSample(1200, 0)
	if b.rtPropSet {
		t.Fatal("a zero-duration RTT sample must not seed the RTT-prop filter")
	}
}
