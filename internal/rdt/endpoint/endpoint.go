// Package endpoint implements the TCP-like sliding-window actor from
// spec.md section 4.4: cumulative ACK, Jacobson/Karels RTO estimation,
// fast retransmit on triple-duplicate-ACK, and a pluggable AIMD/BBR
// congestion strategy. Grounded on original_source/tcp_like.py, the
// distillation source for this package, with the teacher's
// mutex-guarded-struct and zap/event-log conventions layered on top.
package endpoint

import (
	"fmt"
	"sync"
	"time"

	"github.com/aetherflow/rdt/internal/rdt/channel"
	"github.com/aetherflow/rdt/internal/rdt/congestion"
	"github.com/aetherflow/rdt/internal/rdt/events"
	"github.com/aetherflow/rdt/internal/rdt/packet"
	"go.uber.org/zap"
)

const (
	// DefaultInitRTO mirrors tcp_like.py's init_rto_ms default.
	DefaultInitRTO = 200 * time.Millisecond

	// MinRTO and MaxRTO bound every RTO update (spec.md section 4.4).
	MinRTO = 100 * time.Millisecond
	MaxRTO = 60 * time.Second

	// FastRetransmitThreshold is the duplicate-ACK count that triggers
	// a fast retransmit (spec.md section 4.4).
	FastRetransmitThreshold = 3

	// DefaultStaticWindow mirrors tcp_like.py's self.window = 8.
	DefaultStaticWindow = 8

	// DefaultAlpha/Beta/K are the Jacobson/Karels defaults (spec.md
	// section 4.4, original_source/tcp_like.py's DEFAULT_ALPHA/BETA/K).
	DefaultAlpha = 0.125
	DefaultBeta  = 0.25
	DefaultK     = 4.0

	// noAck is the receiver cursor's initial sentinel: "awaiting seq 0"
	// (spec.md section 3).
	noAck int64 = -1
)

// Config bundles an Endpoint's construction-time knobs, following this
// codebase's Config-struct-with-defaults convention
// (internal/session/manager.go's ManagerConfig).
type Config struct {
	Name string

	InitRTO                 time.Duration
	Alpha, Beta, K           float64
	EnableCongestionControl bool
	StaticWindow            uint32
	Congestion              congestion.Controller // nil defaults to AIMD

	Logger  *zap.Logger
	Metrics *events.Metrics
}

func (c Config) withDefaults() (Config, error) {
	if c.InitRTO < 0 {
		return c, fmt.Errorf("endpoint: negative InitRTO: %v", c.InitRTO)
	}
	if c.InitRTO == 0 {
		c.InitRTO = DefaultInitRTO
	}
	if c.Alpha == 0 {
		c.Alpha = DefaultAlpha
	}
	if c.Beta == 0 {
		c.Beta = DefaultBeta
	}
	if c.K == 0 {
		c.K = DefaultK
	}
	if c.StaticWindow == 0 {
		c.StaticWindow = DefaultStaticWindow
	}
	if c.Congestion == nil {
		cfg := congestion.DefaultAIMDConfig()
		cfg.Enabled = c.EnableCongestionControl
		c.Congestion = congestion.NewAIMD(cfg)
	}
	return c, nil
}

// Endpoint is the full-duplex sender+receiver actor from spec.md
// section 3/4.4: one struct holds both the sender's base/nextseq/sent
// window and the receiver's last_acked cursor and delivery FIFO, all
// guarded by a single exclusive lock (spec.md section 5).
type Endpoint struct {
	mu sync.Mutex

	name string
	sink *channel.Sink

	enableCC     bool
	staticWindow uint32
	cc           congestion.Controller

	// sender state
	base    uint32
	nextseq uint32
	sent    map[uint32]*packet.Packet
	sentTS  map[uint32]time.Time
	timer   *time.Timer

	// RTT estimator
	alpha, beta, k float64
	srtt, rttvar   float64
	rttSet         bool
	rtoMs          float64
	rttSamplesMs   []float64

	// duplicate-ACK tracking
	dupCount int

	// receiver state
	lastAcked int64
	appRx     [][]byte

	// counters
	packetsSent     uint64
	packetsReceived uint64
	retransmissions uint64
	timeouts        uint64
	fastRetransmits uint64
	startedAt       time.Time

	log     *events.Log
	metrics *events.Metrics
}

// New constructs an Endpoint bound to sink, the send capability the
// channel hands out for this endpoint's direction (spec.md section 9's
// "duck-typed injection" design note, reframed as explicit injection —
// no attribute mutation).
func New(cfg Config, sink *channel.Sink) (*Endpoint, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger, _ = zap.NewProduction()
	}

	return &Endpoint{
		name:         cfg.Name,
		sink:         sink,
		enableCC:     cfg.EnableCongestionControl,
		staticWindow: cfg.StaticWindow,
		cc:           cfg.Congestion,
		sent:         make(map[uint32]*packet.Packet),
		sentTS:       make(map[uint32]time.Time),
		alpha:        cfg.Alpha,
		beta:         cfg.Beta,
		k:            cfg.K,
		rtoMs:        float64(cfg.InitRTO / time.Millisecond),
		lastAcked:    noAck,
		startedAt:    time.Now(),
		log:          events.NewLog("endpoint:"+cfg.Name, logger),
		metrics:      cfg.Metrics,
	}, nil
}

// effectiveWindowLocked resolves spec.md section 9's Open Question: the
// static window and the congestion window are independent, selectable
// policies, never coupled.
func (e *Endpoint) effectiveWindowLocked() uint32 {
	if e.enableCC {
		w := e.cc.Window()
		if w < 1 {
			w = 1
		}
		return w
	}
	return e.staticWindow
}

// SendData segments data into one sequenced DATA packet and hands it to
// the channel if the send window has room, per spec.md section 4.4's
// send_data.
func (e *Endpoint) SendData(data []byte) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	effWindow := e.effectiveWindowLocked()
	if e.nextseq >= e.base+effWindow {
		return false
	}

	seq := e.nextseq
	pkt := packet.NewData(seq, data)
	e.sent[seq] = pkt
	e.sentTS[seq] = time.Now()
	e.sink.Submit(pkt)
	e.packetsSent++

	if e.metrics != nil {
		e.metrics.EndpointCwnd.WithLabelValues(e.name).Set(e.cc.Cwnd())
		e.metrics.EndpointSsthresh.WithLabelValues(e.name).Set(float64(e.cc.Ssthresh()))
	}
	e.log.Record(events.PacketSent, map[string]interface{}{
		"seq":              seq,
		"payload_size":     len(data),
		"cwnd":             e.cc.Cwnd(),
		"ssthresh":         e.cc.Ssthresh(),
		"effective_window": effWindow,
	})

	if e.base == seq {
		e.setTimerLocked()
	}
	e.nextseq++
	return true
}

// RecvAppData pops the next delivered payload, or reports none
// available (spec.md section 4.4's recv_app_data).
func (e *Endpoint) RecvAppData() ([]byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.appRx) == 0 {
		return nil, false
	}
	payload := e.appRx[0]
	e.appRx = e.appRx[1:]
	return payload, true
}

// OnReceive implements channel.Receiver: the channel's only way to
// deliver a packet into this endpoint.
func (e *Endpoint) OnReceive(p *packet.Packet, from channel.Direction) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch p.Type {
	case packet.DATA:
		e.handleDataLocked(p)
	case packet.ACK:
		e.handleAckLocked(p)
	}
}

func (e *Endpoint) handleDataLocked(p *packet.Packet) {
	if int64(p.Seq) == e.lastAcked+1 {
		e.appRx = append(e.appRx, p.Payload)
		e.lastAcked++
		e.packetsReceived++

		e.log.Record(events.PacketReceived, map[string]interface{}{
			"seq":          p.Seq,
			"payload_size": len(p.Payload),
		})

		// Congestion increase on receive, per spec.md section 9's
		// design note: the reference implementation grows cwnd in the
		// DATA-reception branch, not on ACK receipt at the sender.
		if e.enableCC {
			wasSlowStart := e.cc.Cwnd() < float64(e.cc.Ssthresh())
			e.cc.OnDataDelivered()
			if wasSlowStart {
				e.log.Record(events.CongestionSS, map[string]interface{}{
					"new_cwnd": e.cc.Cwnd(), "phase": "slow_start",
				})
			} else {
				e.log.Record(events.CongestionCA, map[string]interface{}{
					"new_cwnd": e.cc.Cwnd(), "phase": "congestion_avoidance",
				})
			}
			if e.metrics != nil {
				e.metrics.EndpointCwnd.WithLabelValues(e.name).Set(e.cc.Cwnd())
				e.metrics.EndpointSsthresh.WithLabelValues(e.name).Set(float64(e.cc.Ssthresh()))
			}
		}
	}

	ack := packet.NewAck(e.lastAcked)
	e.sink.Submit(ack)
	e.log.Record(events.AckSent, map[string]interface{}{
		"ack": e.lastAcked, "cumulative": true,
	})
}

func (e *Endpoint) handleAckLocked(p *packet.Packet) {
	if p.Ack >= int64(e.base) {
		ackedSeq := uint32(p.Ack)
		if ts, ok := e.sentTS[ackedSeq]; ok {
			sample := time.Since(ts)
			if sample < 0 {
				sample = 0
			}
			e.sampleRTT(sample)
			if pkt, ok := e.sent[ackedSeq]; ok {
				e.cc.OnAckSample(uint32(len(pkt.Payload)), sample)
			}
		}

		// Invariant (spec.md section 3): sent/sentTS hold exactly the
		// keys in [base, nextseq); every seq the new ack subsumes
		// drops out of both maps.
		for seq := e.base; seq <= ackedSeq; seq++ {
			delete(e.sent, seq)
			delete(e.sentTS, seq)
		}

		e.base = ackedSeq + 1
		if e.base == e.nextseq {
			e.cancelTimerLocked()
		} else {
			e.setTimerLocked()
		}
		e.dupCount = 0
		return
	}

	// A duplicate ACK is a repeat of the value that last established
	// the current base — i.e. a == base-1 — not (as the distillation
	// source conflates) this same actor's receive-side last_acked
	// cursor, which happens to coincide with it only in a symmetric
	// lockstep benchmark. spec.md section 3 names this its own
	// tracked value (last_dup_ack); base-1 computes it without a
	// redundant field.
	if p.Ack == int64(e.base)-1 {
		e.dupCount++
		e.log.Record(events.DuplicateAck, map[string]interface{}{
			"ack": p.Ack, "dup_count": e.dupCount,
		})

		if e.dupCount == FastRetransmitThreshold {
			if pkt, ok := e.sent[e.base]; ok {
				e.fastRetransmits++
				e.resendLocked(pkt)

				if e.enableCC {
					e.cc.OnFastRetransmit()
					if e.metrics != nil {
						e.metrics.EndpointCwnd.WithLabelValues(e.name).Set(e.cc.Cwnd())
						e.metrics.EndpointSsthresh.WithLabelValues(e.name).Set(float64(e.cc.Ssthresh()))
					}
				}
				e.log.Record(events.FastRetransmit, map[string]interface{}{
					"seq": e.base, "new_cwnd": e.cc.Cwnd(), "new_ssthresh": e.cc.Ssthresh(),
				})
				if e.metrics != nil {
					e.metrics.EndpointFastRetransmits.WithLabelValues(e.name).Inc()
				}
				e.setTimerLocked()
			}
		}
	}
}

// resendLocked retransmits pkt, refreshing its send timestamp and the
// shared retransmission counter. Does not increment packetsSent: a
// resend is not a new application send (original_source/tcp_like.py's
// _timeout/fast-retransmit paths never touch self.packets_sent).
func (e *Endpoint) resendLocked(pkt *packet.Packet) {
	e.sink.Submit(pkt)
	e.sentTS[pkt.Seq] = time.Now()
	e.retransmissions++
	if e.metrics != nil {
		e.metrics.EndpointRetransmissions.WithLabelValues(e.name).Inc()
	}
}

// sampleRTT feeds one fresh RTT observation into the Jacobson/Karels
// estimator (spec.md section 4.4). Samples are taken only from ACKs
// whose sent timestamp is still on file; a resent segment overwrites
// that timestamp, so — as spec.md section 9 notes — this does not
// implement Karn's algorithm and may occasionally sample a
// retransmit's RTT.
func (e *Endpoint) sampleRTT(sample time.Duration) {
	ms := float64(sample) / float64(time.Millisecond)
	e.rttSamplesMs = append(e.rttSamplesMs, ms)

	if !e.rttSet {
		e.srtt = ms
		e.rttvar = ms / 2
		e.rttSet = true
	} else {
		e.rttvar = (1-e.beta)*e.rttvar + e.beta*absFloat(e.srtt-ms)
		e.srtt = (1-e.alpha)*e.srtt + e.alpha*ms
	}

	e.rtoMs = e.srtt + e.k*e.rttvar
	if e.rtoMs < float64(MinRTO/time.Millisecond) {
		e.rtoMs = float64(MinRTO / time.Millisecond)
	}
	if e.rtoMs > float64(MaxRTO/time.Millisecond) {
		e.rtoMs = float64(MaxRTO / time.Millisecond)
	}

	if e.metrics != nil {
		e.metrics.EndpointRTOMs.WithLabelValues(e.name).Set(e.rtoMs)
	}
	e.log.Record(events.RTTUpdate, map[string]interface{}{
		"sample_ms": ms, "srtt_ms": e.srtt, "rttvar_ms": e.rttvar,
		"rto_ms": e.rtoMs, "alpha": e.alpha, "beta": e.beta, "k": e.k,
	})
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// setTimerLocked (re)arms the retransmission timer over the current
// oldest unacked segment. The timer is cancelled on arrival of a
// callback that finds base has already moved past the segment it was
// scheduled for (spec.md section 5's timer-race guard).
func (e *Endpoint) setTimerLocked() {
	e.cancelTimerLocked()

	armedBase := e.base
	rto := time.Duration(e.rtoMs * float64(time.Millisecond))
	e.timer = time.AfterFunc(rto, func() {
		e.onTimeout(armedBase)
	})

	e.log.Record(events.TimerStarted, map[string]interface{}{
		"rto_ms": e.rtoMs, "base": e.base,
	})
}

func (e *Endpoint) cancelTimerLocked() {
	if e.timer == nil {
		return
	}
	e.timer.Stop()
	e.timer = nil
	e.log.Record(events.TimerCancelled, map[string]interface{}{"base": e.base})
}

// onTimeout is the retransmission timer's callback. It re-checks the
// precondition the timer was armed under before acting, because a
// cancelled timer's goroutine may already be running when cancellation
// happens (spec.md section 5's timer-race design note).
func (e *Endpoint) onTimeout(armedBase uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.base >= e.nextseq || e.base != armedBase {
		return
	}

	e.timeouts++
	if e.metrics != nil {
		e.metrics.EndpointTimeouts.WithLabelValues(e.name).Inc()
	}
	e.log.Record(events.Timeout, map[string]interface{}{
		"base": e.base, "timeout_count": e.timeouts, "rto_ms": e.rtoMs,
	})

	pkt, ok := e.sent[e.base]
	if !ok {
		return
	}
	e.resendLocked(pkt)

	if e.enableCC {
		e.cc.OnTimeout()
		if e.metrics != nil {
			e.metrics.EndpointCwnd.WithLabelValues(e.name).Set(e.cc.Cwnd())
			e.metrics.EndpointSsthresh.WithLabelValues(e.name).Set(float64(e.cc.Ssthresh()))
		}
	}
	e.log.Record(events.CongestionMD, map[string]interface{}{
		"trigger": "timeout", "new_cwnd": e.cc.Cwnd(), "new_ssthresh": e.cc.Ssthresh(),
	})

	e.rtoMs *= 2
	if e.rtoMs > float64(MaxRTO/time.Millisecond) {
		e.rtoMs = float64(MaxRTO / time.Millisecond)
	}
	e.setTimerLocked()
}

// RTTStats mirrors tcp_like.py's get_statistics rtt_stats block.
type RTTStats struct {
	AvgRTTMs float64 `json:"avg_rtt_ms"`
	SRTTMs   float64 `json:"srtt_ms"`
	RTTVarMs float64 `json:"rttvar_ms"`
	RTOMs    float64 `json:"rto_ms"`
	Samples  int     `json:"samples"`
}

// RTTParameters mirrors tcp_like.py's rtt_parameters block
// (SUPPLEMENTED FEATURES in SPEC_FULL.md).
type RTTParameters struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
	K     float64 `json:"k"`
}

// CongestionControl mirrors spec.md section 6's congestion_control
// statistics block.
type CongestionControl struct {
	Enabled  bool    `json:"enabled"`
	Cwnd     float64 `json:"cwnd"`
	Ssthresh uint32  `json:"ssthresh"`
	AIFactor float64 `json:"ai_factor"`
	MDFactor float64 `json:"md_factor"`
}

// CurrentState mirrors spec.md section 6's current_state block.
type CurrentState struct {
	Base      uint32 `json:"base"`
	NextSeq   uint32 `json:"nextseq"`
	LastAcked int64  `json:"last_acked"`
	DupCount  int    `json:"dup_count"`
}

// Statistics is the full statistics record from spec.md section 6,
// plus the derived rates SUPPLEMENTED FEATURES carries over from
// tcp_like.py's get_statistics (success_rate, retransmission_rate,
// throughput_bps).
type Statistics struct {
	Protocol             string             `json:"protocol"`
	Name                 string             `json:"name"`
	PacketsSent          uint64             `json:"packets_sent"`
	PacketsReceived      uint64             `json:"packets_received"`
	Retransmissions      uint64             `json:"retransmissions"`
	Timeouts             uint64             `json:"timeouts"`
	FastRetransmits      uint64             `json:"fast_retransmits"`
	TotalTimeSeconds     float64            `json:"total_time"`
	ThroughputBps        float64            `json:"throughput_bps"`
	SuccessRate          float64            `json:"success_rate"`
	RetransmissionRate   float64            `json:"retransmission_rate"`
	RTTStats             RTTStats           `json:"rtt_stats"`
	CongestionControl    CongestionControl  `json:"congestion_control"`
	RTTParameters        RTTParameters      `json:"rtt_parameters"`
	CurrentState         CurrentState       `json:"current_state"`
}

// GetStatistics snapshots the endpoint's counters, RTT estimator
// state, congestion state, and sequence state (spec.md section 6).
func (e *Endpoint) GetStatistics() Statistics {
	e.mu.Lock()
	defer e.mu.Unlock()

	totalTime := time.Since(e.startedAt).Seconds()

	var avgRTT float64
	if len(e.rttSamplesMs) > 0 {
		var sum float64
		for _, s := range e.rttSamplesMs {
			sum += s
		}
		avgRTT = sum / float64(len(e.rttSamplesMs))
	}

	var throughput float64
	if totalTime > 0 {
		throughput = float64(e.packetsReceived) / totalTime
	}

	sentDenominator := e.packetsSent
	if sentDenominator == 0 {
		sentDenominator = 1
	}

	aiFactor, mdFactor := congestionFactors(e.cc)

	return Statistics{
		Protocol:         "TCP-like",
		Name:             e.name,
		PacketsSent:      e.packetsSent,
		PacketsReceived:  e.packetsReceived,
		Retransmissions:  e.retransmissions,
		Timeouts:         e.timeouts,
		FastRetransmits:  e.fastRetransmits,
		TotalTimeSeconds: totalTime,
		ThroughputBps:    throughput,
		SuccessRate:      float64(e.packetsReceived) / float64(sentDenominator),
		RetransmissionRate: float64(e.retransmissions) / float64(sentDenominator),
		RTTStats: RTTStats{
			AvgRTTMs: avgRTT,
			SRTTMs:   e.srtt,
			RTTVarMs: e.rttvar,
			RTOMs:    e.rtoMs,
			Samples:  len(e.rttSamplesMs),
		},
		CongestionControl: CongestionControl{
			Enabled:  e.enableCC,
			Cwnd:     e.cc.Cwnd(),
			Ssthresh: e.cc.Ssthresh(),
			AIFactor: aiFactor,
			MDFactor: mdFactor,
		},
		RTTParameters: RTTParameters{Alpha: e.alpha, Beta: e.beta, K: e.k},
		CurrentState: CurrentState{
			Base: e.base, NextSeq: e.nextseq, LastAcked: e.lastAcked, DupCount: e.dupCount,
		},
	}
}

// hasAIMDFactors is implemented by congestion.AIMD but not by BBR,
// which has no additive-increase/multiplicative-decrease constants.
type hasAIMDFactors interface {
	AIFactor() float64
	MDFactor() float64
}

// congestionFactors reports the AI/MD factors for the statistics
// record when the controller exposes them (AIMD); BBR reports zero,
// since it has no equivalent constants.
func congestionFactors(cc congestion.Controller) (ai, md float64) {
	if a, ok := cc.(hasAIMDFactors); ok {
		return a.AIFactor(), a.MDFactor()
	}
	return 0, 0
}

// SaveLogs writes {"events": [...], "statistics": {...}} to path
// (spec.md section 6).
func (e *Endpoint) SaveLogs(path string) error {
	return events.Save(path, e.log, e.GetStatistics())
}
