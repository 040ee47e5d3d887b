package tracing

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNewRejectsUnsupportedExporter(t *testing.T) {
	_, err := New(Config{Enable: true, ServiceName: "x", Exporter: "invalid"}, zap.NewNop())
	if err == nil {
		t.Fatal("expected an unsupported exporter to be rejected")
	}
}

func TestDisabledTracerIsAllNoops(t *testing.T) {
	tr, err := New(Config{Enable: false}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if tr.IsEnabled() {
		t.Fatal("expected a disabled tracer")
	}

	ctx := context.Background()
	newCtx, span := tr.StartSegmentSpan(ctx, "A", 0)
	if newCtx == nil || span == nil {
		t.Fatal("StartSegmentSpan must return a usable (no-op) context and span even when disabled")
	}
	span.End()

	tr.RecordLinkEvent(ctx, "dropped")
	tr.RecordError(ctx, nil)

	if tr.TraceID(ctx) != "" {
		t.Fatal("expected an empty trace id from a disabled tracer")
	}

	headers := map[string]string{}
	tr.InjectHeaders(ctx, headers)
	if len(headers) != 0 {
		t.Fatal("expected no headers injected by a disabled tracer")
	}

	if err := tr.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown on a disabled tracer should be a no-op, got %v", err)
	}
}

func TestNewJaegerExporterConstructsSuccessfully(t *testing.T) {
	tr, err := New(Config{
		Enable:      true,
		ServiceName: "rdt-test",
		Endpoint:    "http://localhost:14268/api/traces",
		Exporter:    "jaeger",
		SampleRate:  1.0,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("expected jaeger exporter construction to succeed without a live collector, got %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = tr.Shutdown(ctx)
	}()

	if !tr.IsEnabled() {
		t.Fatal("expected the tracer to report enabled")
	}
}

func TestMapCarrierGetSetKeys(t *testing.T) {
	headers := make(map[string]string)
	c := &mapCarrier{headers: headers}

	c.Set("key1", "value1")
	c.Set("key2", "value2")

	if c.Get("key1") != "value1" {
		t.Fatalf("expected value1, got %q", c.Get("key1"))
	}
	if got := len(c.Keys()); got != 2 {
		t.Fatalf("expected 2 keys, got %d", got)
	}
	if c.Get("missing") != "" {
		t.Fatal("expected empty string for a missing key")
	}
}
