package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus series exported for one run of the
// harness. Grounded on internal/gateway/metrics's registration style:
// one struct of pre-registered vectors, populated once in NewMetrics
// and updated from the hot path (here: the same call site that feeds
// the event Log).
type Metrics struct {
	LinkPacketsSent      *prometheus.CounterVec
	LinkPacketsLost      *prometheus.CounterVec
	LinkPacketsCorrupted *prometheus.CounterVec
	LinkPacketsReordered *prometheus.CounterVec

	EndpointCwnd    *prometheus.GaugeVec
	EndpointSsthresh *prometheus.GaugeVec
	EndpointRTOMs    *prometheus.GaugeVec
	EndpointRetransmissions *prometheus.CounterVec
	EndpointTimeouts        *prometheus.CounterVec
	EndpointFastRetransmits *prometheus.CounterVec
}

// NewMetrics registers the harness's series under namespace/subsystem
// on reg. Pass prometheus.NewRegistry() for test isolation, or
// prometheus.DefaultRegisterer in a real process.
func NewMetrics(namespace, subsystem string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		LinkPacketsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "link_packets_sent_total",
			Help: "Packets submitted to a link.",
		}, []string{"direction"}),
		LinkPacketsLost: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "link_packets_lost_total",
			Help: "Packets dropped by a link.",
		}, []string{"direction"}),
		LinkPacketsCorrupted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "link_packets_corrupted_total",
			Help: "Packets corrupted by a link.",
		}, []string{"direction"}),
		LinkPacketsReordered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "link_packets_reordered_total",
			Help: "Packets held back by a link's reorder buffer.",
		}, []string{"direction"}),
		EndpointCwnd: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "endpoint_cwnd",
			Help: "Current congestion window in segments.",
		}, []string{"endpoint"}),
		EndpointSsthresh: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "endpoint_ssthresh",
			Help: "Current slow-start threshold in segments.",
		}, []string{"endpoint"}),
		EndpointRTOMs: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "endpoint_rto_ms",
			Help: "Current retransmission timeout in milliseconds.",
		}, []string{"endpoint"}),
		EndpointRetransmissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "endpoint_retransmissions_total",
			Help: "Total retransmissions (timeout + fast).",
		}, []string{"endpoint"}),
		EndpointTimeouts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "endpoint_timeouts_total",
			Help: "Total retransmission-timer firings.",
		}, []string{"endpoint"}),
		EndpointFastRetransmits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "endpoint_fast_retransmits_total",
			Help: "Total triple-duplicate-ACK fast retransmits.",
		}, []string{"endpoint"}),
	}
}
