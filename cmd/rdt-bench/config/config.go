// Package config is rdt-bench's configuration surface, following this
// codebase's nested-struct-with-yaml-tags-and-DefaultConfig convention
// (cmd/session-service/config/config.go).
package config

import "time"

// Config is rdt-bench's top-level configuration.
type Config struct {
	Server  ServerConfig  `yaml:"Server"`
	LinkAB  LinkConfig    `yaml:"LinkAB"`
	LinkBA  LinkConfig    `yaml:"LinkBA"`
	Sender  EndpointConfig `yaml:"Sender"`
	Receiver EndpointConfig `yaml:"Receiver"`
	Workload WorkloadConfig `yaml:"Workload"`
	FEC     FECConfig     `yaml:"FEC"`
	Auth    AuthConfig    `yaml:"Auth"`
	Log     LogConfig     `yaml:"Log"`
	Metrics MetricsConfig `yaml:"Metrics"`
	Tracing TracingConfig `yaml:"Tracing"`
	Control ControlConfig `yaml:"Control"`
}

// ServerConfig binds the HTTP surface that multiplexes the metrics
// exporter, the live-stats websocket and the link control endpoints.
type ServerConfig struct {
	Host      string          `yaml:"Host"`
	Port      int             `yaml:"Port"`
	RateLimit RateLimitConfig `yaml:"RateLimit"`
}

// RateLimitConfig token-bucket-limits the control endpoints
// (POST /link/{ab,ba}/config) so a misbehaving or malicious caller
// can't hot-reload the link faster than the run can absorb it.
type RateLimitConfig struct {
	RatePerSecond float64 `yaml:"RatePerSecond"`
	Burst         int     `yaml:"Burst"`
}

// LinkConfig mirrors internal/rdt/link.Config with yaml tags and
// millisecond fields, since a YAML document can't express a
// time.Duration literal as naturally as an integer.
type LinkConfig struct {
	Loss             float64 `yaml:"Loss"`
	DelayMeanMs      int     `yaml:"DelayMeanMs"`
	DelayJitterMs    int     `yaml:"DelayJitterMs"`
	ReorderProb      float64 `yaml:"ReorderProb"`
	CorruptionProb   float64 `yaml:"CorruptionProb"`
}

// EndpointConfig mirrors internal/rdt/endpoint.Config's tunables for
// one direction's sender/receiver actor.
type EndpointConfig struct {
	Name                    string  `yaml:"Name"`
	InitRTOMs               int     `yaml:"InitRTOMs"`
	Alpha                   float64 `yaml:"Alpha"`
	Beta                    float64 `yaml:"Beta"`
	K                       float64 `yaml:"K"`
	EnableCongestionControl bool    `yaml:"EnableCongestionControl"`
	CongestionAlgorithm     string  `yaml:"CongestionAlgorithm"` // "aimd" or "bbr"
	StaticWindow            int     `yaml:"StaticWindow"`
}

// WorkloadConfig drives the synthetic traffic generator rdt-bench
// pushes across the channel once wired up.
type WorkloadConfig struct {
	MessageCount    int `yaml:"MessageCount"`
	PayloadSize     int `yaml:"PayloadSize"`
	SendIntervalMs  int `yaml:"SendIntervalMs"`
}

// FECConfig is the optional, disabled-by-default proactive forward
// error correction layer (internal/rdt/fec). It never replaces the
// cumulative-ACK retransmission path; when enabled it only runs a
// shadow encoder/decoder pair alongside it and reports overhead.
type FECConfig struct {
	Enable       bool `yaml:"Enable"`
	GroupSize    int  `yaml:"GroupSize"`
	ParityShards int  `yaml:"ParityShards"`
}

// AuthConfig configures the JWT bearer-token guard in front of the
// stats/control websocket (internal/rdt/statsserver/auth). Leaving
// Secret empty disables authentication entirely.
type AuthConfig struct {
	Secret       string `yaml:"Secret"`
	ExpireMinutes int   `yaml:"ExpireMinutes"`
	Issuer       string `yaml:"Issuer"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"Level"`  // debug, info, warn, error
	Format string `yaml:"Format"` // json, console
}

// MetricsConfig configures the Prometheus exporter mounted on Server.
type MetricsConfig struct {
	Enable bool   `yaml:"Enable"`
	Path   string `yaml:"Path"`
}

// TracingConfig mirrors internal/rdt/tracing.Config with yaml tags.
type TracingConfig struct {
	Enable       bool    `yaml:"Enable"`
	ServiceName  string  `yaml:"ServiceName"`
	Endpoint     string  `yaml:"Endpoint"`
	Exporter     string  `yaml:"Exporter"`
	SampleRate   float64 `yaml:"SampleRate"`
	Environment  string  `yaml:"Environment"`
	BatchTimeout int     `yaml:"BatchTimeout"`
	MaxQueueSize int     `yaml:"MaxQueueSize"`
}

// ControlConfig configures the optional etcd-backed live link
// reconfiguration watcher (internal/rdt/control). The watcher runs only
// when Enable is set.
type ControlConfig struct {
	Enable      bool     `yaml:"Enable"`
	Endpoints   []string `yaml:"Endpoints"`
	DialTimeoutMs int    `yaml:"DialTimeoutMs"`
	Username    string   `yaml:"Username"`
	Password    string   `yaml:"Password"`
	Key         string   `yaml:"Key"`
}

// DurationMs is a small helper the server package uses to convert the
// *Ms integer fields above back into time.Duration.
func DurationMs(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// DefaultConfig returns rdt-bench's default configuration: a lossy,
// jittery link in both directions, congestion control on, FEC and
// tracing off, auth disabled.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0", Port: 8090,
			RateLimit: RateLimitConfig{RatePerSecond: 5, Burst: 10},
		},
		LinkAB: LinkConfig{
			Loss: 0.02, DelayMeanMs: 40, DelayJitterMs: 10,
			ReorderProb: 0.01, CorruptionProb: 0.005,
		},
		LinkBA: LinkConfig{
			Loss: 0.02, DelayMeanMs: 40, DelayJitterMs: 10,
			ReorderProb: 0.01, CorruptionProb: 0.005,
		},
		Sender: EndpointConfig{
			Name: "A", InitRTOMs: 200, Alpha: 0.125, Beta: 0.25, K: 4.0,
			EnableCongestionControl: true, CongestionAlgorithm: "aimd", StaticWindow: 8,
		},
		Receiver: EndpointConfig{
			Name: "B", InitRTOMs: 200, Alpha: 0.125, Beta: 0.25, K: 4.0,
			EnableCongestionControl: true, CongestionAlgorithm: "aimd", StaticWindow: 8,
		},
		Workload: WorkloadConfig{
			MessageCount: 1000, PayloadSize: 512, SendIntervalMs: 5,
		},
		FEC: FECConfig{Enable: false, GroupSize: 10, ParityShards: 3},
		Auth: AuthConfig{Secret: "", ExpireMinutes: 60, Issuer: "rdt-bench"},
		Log:  LogConfig{Level: "info", Format: "console"},
		Metrics: MetricsConfig{Enable: true, Path: "/metrics"},
		Tracing: TracingConfig{
			Enable: false, ServiceName: "rdt-bench",
			Endpoint: "http://localhost:14268/api/traces", Exporter: "jaeger",
			SampleRate: 1.0, Environment: "development",
			BatchTimeout: 5, MaxQueueSize: 2048,
		},
		Control: ControlConfig{Enable: false, DialTimeoutMs: 5000, Key: "/rdt-bench/link"},
	}
}
