package congestion

import "testing"

func TestAIMDSlowStartGrowsByOne(t *testing.T) {
	c := NewAIMD(AIMDConfig{Enabled: true, CwndInit: 1, SsthreshInit: 10, AIFactor: 1, MDFactor: 0.5})
	c.OnDataDelivered()
	if c.Cwnd() != 2 {
		t.Fatalf("expected cwnd=2 after one slow-start ack, got %v", c.Cwnd())
	}
}

func TestAIMDCongestionAvoidanceGrowsByAIOverCwnd(t *testing.T) {
	c := NewAIMD(AIMDConfig{Enabled: true, CwndInit: 10, SsthreshInit: 10, AIFactor: 1, MDFactor: 0.5})
	before := c.Cwnd()
	c.OnDataDelivered()
	want := before + 1/before
	if c.Cwnd() != want {
		t.Fatalf("expected cwnd=%v, got %v", want, c.Cwnd())
	}
}

func TestAIMDTimeoutResetsCwndToOne(t *testing.T) {
	c := NewAIMD(AIMDConfig{Enabled: true, CwndInit: 16, SsthreshInit: 8, AIFactor: 1, MDFactor: 0.5})
	c.OnTimeout()
	if c.Cwnd() != 1 {
		t.Fatalf("expected cwnd=1 after timeout, got %v", c.Cwnd())
	}
	if c.Ssthresh() != 8 {
		t.Fatalf("expected ssthresh=floor(16*0.5)=8, got %v", c.Ssthresh())
	}
}

func TestAIMDFastRetransmitSetsCwndToSsthresh(t *testing.T) {
	c := NewAIMD(AIMDConfig{Enabled: true, CwndInit: 20, SsthreshInit: 8, AIFactor: 1, MDFactor: 0.5})
	c.OnFastRetransmit()
	if c.Ssthresh() != 10 {
		t.Fatalf("expected ssthresh=floor(20*0.5)=10, got %v", c.Ssthresh())
	}
	if c.Cwnd() != 10 {
		t.Fatalf("expected cwnd==ssthresh==10, got %v", c.Cwnd())
	}
}

func TestAIMDSsthreshNeverBelowTwo(t *testing.T) {
	c := NewAIMD(AIMDConfig{Enabled: true, CwndInit: 2, SsthreshInit: 2, AIFactor: 1, MDFactor: 0.1})
	c.OnTimeout()
	if c.Ssthresh() < 2 {
		t.Fatalf("ssthresh must never drop below 2, got %v", c.Ssthresh())
	}
}

func TestAIMDCwndNeverBelowOne(t *testing.T) {
	c := NewAIMD(AIMDConfig{Enabled: true, CwndInit: 1, SsthreshInit: 2})
	for i := 0; i < 5; i++ {
		c.OnTimeout()
	}
	if c.Cwnd() < 1 {
		t.Fatalf("cwnd must never drop below 1, got %v", c.Cwnd())
	}
}

func TestAIMDPhaseTransition(t *testing.T) {
	c := NewAIMD(AIMDConfig{Enabled: true, CwndInit: 1, SsthreshInit: 4, AIFactor: 1, MDFactor: 0.5})
	for i := 0; i < 3; i++ {
		c.OnDataDelivered()
	}
	if c.Cwnd() != 4 {
		t.Fatalf("expected cwnd=4 at slow start/CA boundary, got %v", c.Cwnd())
	}
	before := c.Cwnd()
	c.OnDataDelivered() // now in congestion avoidance (cwnd >= ssthresh)
	want := before + 1/before
	if c.Cwnd() != want {
		t.Fatalf("expected congestion-avoidance growth %v, got %v", want, c.Cwnd())
	}
}
