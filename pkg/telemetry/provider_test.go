// ABOUTME: Tests for the OpenTelemetry SDK provider built from TelemetryConfig
// ABOUTME: Uses the stdout exporters with a discarding writer so no network is needed

package telemetry

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/KevoDB/blockstore/pkg/config"
)

func enabledConfig() config.TelemetryConfig {
	return config.TelemetryConfig{
		Enabled:        true,
		ServiceName:    "blockstore-test",
		ServiceVersion: "test",
		Exporters:      []string{"stdout"},
		SampleRate:     1.0,
		OTLPEndpoint:   "localhost:4317",
		OTLPInsecure:   true,
		ExportInterval: time.Hour,
	}
}

func TestNewDisabled(t *testing.T) {
	cfg := enabledConfig()
	cfg.Enabled = false

	tel, err := New(cfg)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if _, ok := tel.(*NoopTelemetry); !ok {
		t.Errorf("expected NoopTelemetry, got %T", tel)
	}
}

func TestNew(t *testing.T) {
	var out bytes.Buffer
	tel, err := New(enabledConfig(), WithWriter(&out))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if _, ok := tel.(*TelemetryProvider); !ok {
		t.Fatalf("expected *TelemetryProvider, got %T", tel)
	}

	ctx := context.Background()
	tel.RecordCounter(ctx, "blockstore.test.ops", 1, attribute.String(AttrComponent, ComponentEngine))
	tel.RecordCounter(ctx, "blockstore.test.ops", 2)
	tel.RecordCounter(ctx, "blockstore.test.ops", -1)
	tel.RecordHistogram(ctx, "blockstore.test.duration", 0.25)

	spanCtx, span := tel.StartSpan(ctx, "blockstore.test.span", attribute.String(AttrFileName, "f"))
	if spanCtx == nil {
		t.Fatal("StartSpan returned nil context")
	}
	if !span.SpanContext().IsValid() {
		t.Error("expected a recording span with a valid span context")
	}
	span.End()

	if err := tel.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}

	// Shutdown flushes both the batcher and the periodic reader
	if out.Len() == 0 {
		t.Error("expected exporter output after shutdown")
	}
}

func TestProviderCachesInstruments(t *testing.T) {
	tel, err := New(enabledConfig(), WithWriter(io.Discard))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer tel.Shutdown(context.Background())

	p := tel.(*TelemetryProvider)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		p.RecordCounter(ctx, "c", 1)
		p.RecordHistogram(ctx, "h", 1)
	}
	if len(p.counters) != 1 || len(p.histograms) != 1 {
		t.Errorf("expected one cached instrument each, got %d counters %d histograms",
			len(p.counters), len(p.histograms))
	}
}

func TestNewWithInvalidConfigs(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.TelemetryConfig)
	}{
		{"empty service name", func(c *config.TelemetryConfig) { c.ServiceName = "" }},
		{"negative sample rate", func(c *config.TelemetryConfig) { c.SampleRate = -0.1 }},
		{"sample rate above one", func(c *config.TelemetryConfig) { c.SampleRate = 1.5 }},
		{"zero export interval", func(c *config.TelemetryConfig) { c.ExportInterval = 0 }},
		{"unknown exporter", func(c *config.TelemetryConfig) { c.Exporters = []string{"jaeger"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := enabledConfig()
			tt.modify(&cfg)
			if _, err := New(cfg, WithWriter(io.Discard)); err == nil {
				t.Error("expected error for invalid config")
			}
		})
	}
}

func TestOTLPExporterConstruction(t *testing.T) {
	// The gRPC client connects lazily, so construction succeeds without a collector
	for _, insecure := range []bool{true, false} {
		cfg := enabledConfig()
		cfg.Exporters = []string{"otlp"}
		cfg.OTLPInsecure = insecure

		if _, err := createOTLPTraceExporter(cfg); err != nil {
			t.Errorf("insecure=%v: createOTLPTraceExporter returned error: %v", insecure, err)
		}
	}
}
