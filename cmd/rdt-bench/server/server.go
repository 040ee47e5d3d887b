// Package server wires rdt-bench's channel, endpoints, live-stats
// websocket and optional control-plane/tracing/FEC add-ons into one
// runnable process, following this codebase's Config+logger-in,
// Start/Stop-lifecycle convention (cmd/session-service/server/server.go).
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/aetherflow/rdt/cmd/rdt-bench/config"
	"github.com/aetherflow/rdt/internal/rdt/channel"
	"github.com/aetherflow/rdt/internal/rdt/congestion"
	"github.com/aetherflow/rdt/internal/rdt/control"
	"github.com/aetherflow/rdt/internal/rdt/endpoint"
	"github.com/aetherflow/rdt/internal/rdt/events"
	"github.com/aetherflow/rdt/internal/rdt/fec"
	"github.com/aetherflow/rdt/internal/rdt/link"
	"github.com/aetherflow/rdt/internal/rdt/statsserver"
	"github.com/aetherflow/rdt/internal/rdt/statsserver/auth"
	"github.com/aetherflow/rdt/internal/rdt/tracing"
)

// Server owns every moving part of one benchmark run: the simulated
// channel, its two endpoints, the metrics/stats HTTP surface, and the
// optional tracer/control-watcher/FEC shadow encoder.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	registry *prometheus.Registry
	metrics  *events.Metrics

	ch       *channel.Channel
	sender   *endpoint.Endpoint
	receiver *endpoint.Endpoint

	tracer  *tracing.Tracer
	stats   *statsserver.Server
	watcher *control.Watcher
	auth    *auth.Manager

	fecEncoder  *fec.Encoder
	linkLimiter *rate.Limiter

	httpServer *http.Server

	stopWorkload chan struct{}
	done         chan struct{}
}

// New constructs every component from cfg but starts nothing.
func New(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	registry := prometheus.NewRegistry()
	metrics := events.NewMetrics("rdt", "bench", registry)

	ab, err := link.New(toLinkConfig(cfg.LinkAB), time.Now().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("server: building AB link: %w", err)
	}
	ba, err := link.New(toLinkConfig(cfg.LinkBA), time.Now().UnixNano()+1)
	if err != nil {
		return nil, fmt.Errorf("server: building BA link: %w", err)
	}

	var tracer *tracing.Tracer
	if cfg.Tracing.Enable {
		tracer, err = tracing.New(toTracingConfig(cfg.Tracing), logger)
		if err != nil {
			return nil, fmt.Errorf("server: building tracer: %w", err)
		}
	} else {
		tracer, _ = tracing.New(tracing.DefaultConfig(), logger)
	}

	// The Channel must exist before either Endpoint (each needs a Sink
	// carved from it), so it is built with placeholder endpoints and
	// bound once both are constructed.
	ch := channel.New(nil, nil, ab, ba, channel.Config{
		EnableLogging: true, Logger: logger, Metrics: metrics,
	})

	sender, err := endpoint.New(toEndpointConfig(cfg.Sender, logger, metrics), channel.NewSink(ch, channel.AtoB))
	if err != nil {
		return nil, fmt.Errorf("server: building sender endpoint: %w", err)
	}
	receiver, err := endpoint.New(toEndpointConfig(cfg.Receiver, logger, metrics), channel.NewSink(ch, channel.BtoA))
	if err != nil {
		return nil, fmt.Errorf("server: building receiver endpoint: %w", err)
	}
	ch.SetEndpoints(sender, receiver)

	var authManager *auth.Manager
	if cfg.Auth.Secret != "" {
		authManager = auth.NewManager(cfg.Auth.Secret, time.Duration(cfg.Auth.ExpireMinutes)*time.Minute, cfg.Auth.Issuer)
	}
	stats := statsserver.New(logger, authManager)
	stats.RegisterSource("channel_stats", func() interface{} { return ch.GetStatistics() })
	stats.RegisterSource("endpoint_stats", func() interface{} {
		return map[string]interface{}{
			"sender":   sender.GetStatistics(),
			"receiver": receiver.GetStatistics(),
		}
	})

	var fecEncoder *fec.Encoder
	if cfg.FEC.Enable {
		fecEncoder, err = fec.NewEncoder(fec.Config{GroupSize: cfg.FEC.GroupSize, ParityShards: cfg.FEC.ParityShards})
		if err != nil {
			return nil, fmt.Errorf("server: building FEC encoder: %w", err)
		}
		stats.RegisterSource("fec_stats", func() interface{} {
			return map[string]interface{}{
				"overhead": fec.Overhead(fec.Config{GroupSize: cfg.FEC.GroupSize, ParityShards: cfg.FEC.ParityShards}),
			}
		})
	}

	return &Server{
		cfg:          cfg,
		logger:       logger,
		registry:     registry,
		metrics:      metrics,
		ch:           ch,
		sender:       sender,
		receiver:     receiver,
		tracer:       tracer,
		stats:        stats,
		auth:         authManager,
		fecEncoder:   fecEncoder,
		linkLimiter:  rate.NewLimiter(rate.Limit(cfg.Server.RateLimit.RatePerSecond), cfg.Server.RateLimit.Burst),
		stopWorkload: make(chan struct{}),
		done:         make(chan struct{}),
	}, nil
}

// Start mounts the HTTP surface (metrics + live-stats websocket),
// connects the optional control-plane watcher, and launches the
// synthetic workload generator and receiver drain loop. It blocks
// serving HTTP and returns when the listener stops (nil after Stop's
// shutdown); the workload runs in the background.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	if s.cfg.Metrics.Enable {
		mux.Handle(s.cfg.Metrics.Path, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/stats/ws", s.stats.HandleWebSocket())
	mux.HandleFunc("/link/ab/config", s.handleLinkConfig("ab"))
	mux.HandleFunc("/link/ba/config", s.handleLinkConfig("ba"))

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpServer = &http.Server{Addr: addr, Handler: mux}

	go s.stats.PushLoop(time.Second)

	if s.cfg.Control.Enable {
		watcher, err := control.NewWatcher(control.Config{
			Endpoints:   s.cfg.Control.Endpoints,
			DialTimeout: config.DurationMs(s.cfg.Control.DialTimeoutMs),
			Username:    s.cfg.Control.Username,
			Password:    s.cfg.Control.Password,
		}, s.logger)
		if err != nil {
			return fmt.Errorf("server: connecting control watcher: %w", err)
		}
		s.watcher = watcher
		if err := s.watcher.Watch(s.cfg.Control.Key, s.applyLinkUpdate); err != nil {
			return fmt.Errorf("server: starting control watch: %w", err)
		}
	}

	go s.runWorkload()

	s.logger.Info("rdt-bench server started",
		zap.String("address", addr),
		zap.Bool("tracing_enabled", s.tracer.IsEnabled()),
		zap.Bool("control_enabled", s.cfg.Control.Enable),
		zap.Bool("fec_enabled", s.cfg.FEC.Enable))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: http listener: %w", err)
	}
	return nil
}

// handleLinkConfig returns the bearer-token-guarded, rate-limited HTTP
// handler for POST /link/{direction}/config: the same live-reconfiguration
// path the etcd control.Watcher drives, exposed directly for a caller that
// just wants to curl a new loss/jitter setting in without standing up
// etcd. direction is fixed per registered route ("ab" or "ba"). The token
// bucket (s.linkLimiter) is shared across both directions, keeping a
// caller from reconfiguring the link faster than cfg.Server.RateLimit
// allows.
func (s *Server) handleLinkConfig(direction string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !s.linkLimiter.Allow() {
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		if s.auth != nil {
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if token == "" || token == r.Header.Get("Authorization") {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			if _, err := s.auth.VerifyToken(token); err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
		}

		var cfg link.Config
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			http.Error(w, fmt.Sprintf("decoding link config: %v", err), http.StatusBadRequest)
			return
		}
		if err := s.applyLinkUpdate(control.LinkUpdate{Direction: direction, Config: cfg}); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.logger.Info("link reconfigured via HTTP", zap.String("direction", direction))
		w.WriteHeader(http.StatusNoContent)
	}
}

// applyLinkUpdate routes a control-plane LinkUpdate to the right
// direction's link.
func (s *Server) applyLinkUpdate(update control.LinkUpdate) error {
	switch update.Direction {
	case "ab":
		return s.ch.LinkAB().Reconfigure(update.Config)
	case "ba":
		return s.ch.LinkBA().Reconfigure(update.Config)
	default:
		return fmt.Errorf("server: unknown link direction %q", update.Direction)
	}
}

// runWorkload feeds cfg.Workload's synthetic payloads into the sender
// endpoint and drains whatever the receiver delivers, recording one
// tracing span per segment when tracing is enabled.
func (s *Server) runWorkload() {
	defer close(s.done)

	ticker := time.NewTicker(config.DurationMs(s.cfg.Workload.SendIntervalMs))
	defer ticker.Stop()

	sent := 0
	payload := make([]byte, s.cfg.Workload.PayloadSize)

	for sent < s.cfg.Workload.MessageCount {
		select {
		case <-s.stopWorkload:
			return
		case <-ticker.C:
			rand.Read(payload)
			ctx, span := s.tracer.StartSegmentSpan(context.Background(), s.cfg.Sender.Name, uint32(sent))
			if s.sender.SendData(payload) {
				sent++
				if s.fecEncoder != nil {
					if _, _, _, err := s.fecEncoder.AddSegment(payload); err != nil {
						s.logger.Warn("fec: failed to add segment", zap.Error(err))
					}
				}
			} else {
				s.tracer.RecordLinkEvent(ctx, "send_window_full")
			}
			for {
				if _, ok := s.receiver.RecvAppData(); !ok {
					break
				}
			}
			span.End()
		}
	}
}

// Stop gracefully shuts the workload, HTTP server, stats hub, tracer
// and control watcher down.
func (s *Server) Stop() {
	close(s.stopWorkload)
	<-s.done

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(ctx)
	}
	s.stats.Close()
	if s.watcher != nil {
		_ = s.watcher.Close()
	}
	if s.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.tracer.Shutdown(ctx)
	}
	s.logger.Info("rdt-bench server stopped")
}

func toLinkConfig(c config.LinkConfig) link.Config {
	return link.Config{
		Loss:           c.Loss,
		DelayMean:      config.DurationMs(c.DelayMeanMs),
		DelayJitter:    config.DurationMs(c.DelayJitterMs),
		ReorderProb:    c.ReorderProb,
		CorruptionProb: c.CorruptionProb,
	}
}

func toEndpointConfig(c config.EndpointConfig, logger *zap.Logger, metrics *events.Metrics) endpoint.Config {
	var cc congestion.Controller
	if c.CongestionAlgorithm == "bbr" {
		bbrCfg := congestion.BBRConfig{Enabled: c.EnableCongestionControl}
		cc = congestion.NewBBR(bbrCfg)
	}
	return endpoint.Config{
		Name:                    c.Name,
		InitRTO:                 config.DurationMs(c.InitRTOMs),
		Alpha:                   c.Alpha,
		Beta:                    c.Beta,
		K:                       c.K,
		EnableCongestionControl: c.EnableCongestionControl,
		StaticWindow:            uint32(c.StaticWindow),
		Congestion:              cc,
		Logger:                  logger,
		Metrics:                 metrics,
	}
}

func toTracingConfig(c config.TracingConfig) tracing.Config {
	return tracing.Config{
		Enable:       c.Enable,
		ServiceName:  c.ServiceName,
		Endpoint:     c.Endpoint,
		Exporter:     c.Exporter,
		SampleRate:   c.SampleRate,
		Environment:  c.Environment,
		BatchTimeout: c.BatchTimeout,
		MaxQueueSize: c.MaxQueueSize,
	}
}
