// Package tracing provides the optional OpenTelemetry instrumentation
// layer SPEC_FULL.md's DOMAIN STACK names: one span per DATA segment
// (StartSegmentSpan), with outcomes attached as span events
// (RecordLinkEvent) or errors (RecordError). The channel and endpoint
// do not call it themselves; cmd/rdt-bench opens one span around each
// send attempt of its workload, so the link's loss/corruption/reorder
// decisions and the eventual delivery are not recorded on those spans.
package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Config configures the tracer. Disabled by default: spec.md's
// scenarios (section 8) don't exercise tracing, so a caller opts in
// explicitly by setting Enable.
type Config struct {
	Enable       bool
	ServiceName  string
	Endpoint     string
	Exporter     string // "jaeger" or "zipkin"
	SampleRate   float64
	Environment  string
	BatchTimeout int
	MaxQueueSize int
}

// DefaultConfig returns a disabled tracer pointed at a local Jaeger
// collector, mirroring the teacher's tracing.Config defaults.
func DefaultConfig() Config {
	return Config{
		Enable:       false,
		ServiceName:  "rdt-bench",
		Endpoint:     "http://localhost:14268/api/traces",
		Exporter:     "jaeger",
		SampleRate:   1.0,
		Environment:  "development",
		BatchTimeout: 5,
		MaxQueueSize: 2048,
	}
}

// Tracer wraps an OpenTelemetry TracerProvider, exposing the handful
// of operations the channel/endpoint pipeline needs without requiring
// every call site to check whether tracing is enabled.
type Tracer struct {
	config   Config
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	logger   *zap.Logger
}

// New constructs a Tracer. When cfg.Enable is false it returns a
// no-op Tracer whose methods are all safe, cheap no-ops — the same
// shape the teacher's gateway uses so call sites never branch on
// whether tracing is on.
func New(cfg Config, logger *zap.Logger) (*Tracer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enable {
		logger.Debug("tracing disabled")
		return &Tracer{config: cfg, logger: logger}, nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing: building resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "jaeger":
		exporter, err = jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.Endpoint)))
		if err != nil {
			return nil, fmt.Errorf("tracing: building jaeger exporter: %w", err)
		}
	case "zipkin":
		exporter, err = zipkin.New(cfg.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("tracing: building zipkin exporter: %w", err)
		}
	default:
		return nil, fmt.Errorf("tracing: unsupported exporter %q", cfg.Exporter)
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	batcher := sdktrace.NewBatchSpanProcessor(
		exporter,
		sdktrace.WithBatchTimeout(time.Duration(cfg.BatchTimeout)*time.Second),
		sdktrace.WithMaxQueueSize(cfg.MaxQueueSize),
	)

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
		sdktrace.WithSpanProcessor(batcher),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("tracing initialized",
		zap.String("service", cfg.ServiceName),
		zap.String("exporter", cfg.Exporter),
		zap.Float64("sample_rate", cfg.SampleRate),
	)

	return &Tracer{
		config:   cfg,
		provider: provider,
		tracer:   provider.Tracer(cfg.ServiceName),
		logger:   logger,
	}, nil
}

// Shutdown flushes and stops the tracer's span processor.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// IsEnabled reports whether this Tracer is exporting spans.
func (t *Tracer) IsEnabled() bool { return t.config.Enable }

// StartSegmentSpan begins a span for one DATA segment's journey
// through the channel, tagged with the fields a reader would want
// while correlating a trace against the event log (spec.md section 6).
func (t *Tracer) StartSegmentSpan(ctx context.Context, endpointName string, seq uint32) (context.Context, trace.Span) {
	if !t.config.Enable || t.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, "rdt.segment",
		trace.WithAttributes(
			attribute.String("rdt.endpoint", endpointName),
			attribute.Int64("rdt.seq", int64(seq)),
		),
	)
}

// RecordLinkEvent annotates the active span with a link-level outcome
// (dropped, corrupted, reordered, delivered) as an event rather than a
// new span, since these are sub-microsecond decisions within the
// segment's overall journey.
func (t *Tracer) RecordLinkEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	if !t.config.Enable {
		return
	}
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// RecordError records err on the active span, e.g. a checksum
// failure or a retransmission-exhaustion condition.
func (t *Tracer) RecordError(ctx context.Context, err error, attrs ...attribute.KeyValue) {
	if !t.config.Enable || err == nil {
		return
	}
	trace.SpanFromContext(ctx).RecordError(err, trace.WithAttributes(attrs...))
}

// TraceID returns the active span's trace id, or "" when tracing is
// disabled or no span is active.
func (t *Tracer) TraceID(ctx context.Context) string {
	if !t.config.Enable {
		return ""
	}
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return ""
	}
	return span.SpanContext().TraceID().String()
}

// InjectHeaders propagates the active trace context into an outgoing
// header map, for a control-plane request made while handling a
// traced segment.
func (t *Tracer) InjectHeaders(ctx context.Context, headers map[string]string) {
	if !t.config.Enable {
		return
	}
	otel.GetTextMapPropagator().Inject(ctx, &mapCarrier{headers: headers})
}

type mapCarrier struct{ headers map[string]string }

func (c *mapCarrier) Get(key string) string         { return c.headers[key] }
func (c *mapCarrier) Set(key, value string)         { c.headers[key] = value }
func (c *mapCarrier) Keys() []string {
	keys := make([]string, 0, len(c.headers))
	for k := range c.headers {
		keys = append(keys, k)
	}
	return keys
}
