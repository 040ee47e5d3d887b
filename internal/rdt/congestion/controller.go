// Package congestion implements the endpoint's pluggable congestion
// control strategy. The default, spec-mandated strategy is AIMD with
// slow start (aimd.go, spec.md section 4.4); a BBR-based alternative
// (bbr.go, adapted from the teacher's internal/quantum/bbr package) is
// also selectable so a driver can compare the two over the same
// simulated channel.
package congestion

import "time"

// Controller is driven entirely by the endpoint's in-process signals —
// there is no real network to sample, so implementations react to the
// same three events the reference TCP-like endpoint reacts to (in-order
// delivery, timeout, fast retransmit) plus a sender-side RTT sample.
type Controller interface {
	// Enabled reports whether congestion control governs the send
	// window at all; when false the endpoint falls back to its static
	// window (spec.md section 9's Open Question).
	Enabled() bool

	// Cwnd returns the current congestion window (float to permit
	// fractional congestion-avoidance growth, spec.md section 3).
	Cwnd() float64

	// Ssthresh returns the current slow-start threshold.
	Ssthresh() uint32

	// Window returns floor(Cwnd()), the effective send window when
	// Enabled() is true.
	Window() uint32

	// OnDataDelivered is invoked when the receiver half of the
	// endpoint accepts an in-order DATA segment — the reference
	// implementation's (unusual, but spec-mandated) trigger point for
	// additive increase; see spec.md section 9's design note.
	OnDataDelivered()

	// OnTimeout applies the timeout multiplicative-decrease rule:
	// ssthresh = max(2, floor(cwnd*md)); cwnd = 1.
	OnTimeout()

	// OnFastRetransmit applies the fast-recovery multiplicative-
	// decrease rule: ssthresh = max(2, floor(cwnd*md)); cwnd = ssthresh.
	OnFastRetransmit()

	// OnAckSample is invoked on the sender side whenever a new
	// cumulative ACK yields an RTT sample. AIMD ignores it (its growth
	// is receiver-triggered, per spec.md section 9's design note); the
	// BBR strategy uses it to update its bandwidth/RTT model, which is
	// inherently sender-side (a genuine alternative the same note
	// permits).
	OnAckSample(size uint32, rtt time.Duration)
}
