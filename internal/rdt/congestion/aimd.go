package congestion

import (
	"math"
	"sync"
	"time"
)

const (
	// DefaultAIFactor is the additive-increase factor applied during
	// congestion avoidance (spec.md section 4.4).
	DefaultAIFactor = 1.0

	// DefaultMDFactor is the multiplicative-decrease factor applied on
	// loss (spec.md section 4.4).
	DefaultMDFactor = 0.5

	// DefaultSsthreshInit mirrors tcp_like.py's DEFAULT_SSTHRESH_INIT.
	DefaultSsthreshInit = 65535

	// DefaultCwndInit mirrors tcp_like.py's DEFAULT_CWND_INIT.
	DefaultCwndInit = 1.0
)

// AIMDConfig configures the default controller.
type AIMDConfig struct {
	Enabled       bool
	CwndInit      float64
	SsthreshInit  uint32
	AIFactor      float64
	MDFactor      float64
}

// DefaultAIMDConfig returns the spec's defaults (spec.md section 4.4
// and original_source/tcp_like.py's module constants).
func DefaultAIMDConfig() AIMDConfig {
	return AIMDConfig{
		Enabled:      true,
		CwndInit:     DefaultCwndInit,
		SsthreshInit: DefaultSsthreshInit,
		AIFactor:     DefaultAIFactor,
		MDFactor:     DefaultMDFactor,
	}
}

// AIMD implements spec.md section 4.4's congestion control exactly:
// slow start while cwnd < ssthresh, congestion avoidance once cwnd >=
// ssthresh, multiplicative decrease on timeout (cwnd -> 1) and on fast
// retransmit (cwnd -> ssthresh). Grounded on original_source/tcp_like.py.
type AIMD struct {
	mu sync.Mutex

	enabled  bool
	cwnd     float64
	ssthresh uint32
	ai       float64
	md       float64
}

// NewAIMD constructs an AIMD controller. cwnd is clamped to >= 1 and
// ssthresh to >= 2 at all times, per spec.md section 3's invariants.
func NewAIMD(cfg AIMDConfig) *AIMD {
	cwnd := cfg.CwndInit
	if cwnd < 1 {
		cwnd = 1
	}
	ssthresh := cfg.SsthreshInit
	if ssthresh < 2 {
		ssthresh = 2
	}
	ai := cfg.AIFactor
	if ai == 0 {
		ai = DefaultAIFactor
	}
	md := cfg.MDFactor
	if md == 0 {
		md = DefaultMDFactor
	}
	return &AIMD{
		enabled:  cfg.Enabled,
		cwnd:     cwnd,
		ssthresh: ssthresh,
		ai:       ai,
		md:       md,
	}
}

func (a *AIMD) Enabled() bool { return a.enabled }

func (a *AIMD) Cwnd() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cwnd
}

func (a *AIMD) Ssthresh() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ssthresh
}

func (a *AIMD) Window() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return uint32(math.Floor(a.cwnd))
}

func (a *AIMD) OnDataDelivered() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cwnd < float64(a.ssthresh) {
		// Slow start.
		a.cwnd += 1
	} else {
		// Congestion avoidance.
		a.cwnd += a.ai / a.cwnd
	}
}

func (a *AIMD) OnTimeout() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.ssthresh = clampSsthresh(uint32(math.Floor(a.cwnd * a.md)))
	a.cwnd = 1
}

func (a *AIMD) OnFastRetransmit() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.ssthresh = clampSsthresh(uint32(math.Floor(a.cwnd * a.md)))
	a.cwnd = float64(a.ssthresh)
}

// AIFactor and MDFactor expose the configured additive-increase and
// multiplicative-decrease factors for statistics reporting (spec.md
// section 6's congestion_control block); they are not part of the
// Controller interface since BBR has no equivalent constants.
func (a *AIMD) AIFactor() float64 { return a.ai }
func (a *AIMD) MDFactor() float64 { return a.md }

// OnAckSample is a no-op: AIMD's growth is receiver-triggered, per
// spec.md section 9's design note, so it has nothing to learn from a
// sender-side RTT sample.
func (a *AIMD) OnAckSample(size uint32, rtt time.Duration) {}

func clampSsthresh(v uint32) uint32 {
	if v < 2 {
		return 2
	}
	return v
}
