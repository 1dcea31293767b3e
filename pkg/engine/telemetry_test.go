// ABOUTME: Tests for engine metrics over both the no-op and the SDK-backed telemetry
// ABOUTME: Verifies that instrumented engines behave exactly like uninstrumented ones

package engine

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/KevoDB/blockstore/pkg/common/log"
	"github.com/KevoDB/blockstore/pkg/config"
	"github.com/KevoDB/blockstore/pkg/disk"
	"github.com/KevoDB/blockstore/pkg/file"
	"github.com/KevoDB/blockstore/pkg/telemetry"
)

func TestNoopEngineMetrics(t *testing.T) {
	m := NewNoopEngineMetrics()
	ctx := context.Background()

	spanCtx, span := m.StartOperation(ctx, "insert")
	if spanCtx == nil || span == nil {
		t.Fatal("StartOperation returned nil")
	}
	endSpan(span, errors.New("boom"))

	m.RecordOperation(ctx, "insert", time.Now().Add(-time.Millisecond), nil)
	m.RecordPoolUsage(ctx, 1, 2)
	m.RecordRelocation(ctx, 3)
	m.RecordSnapshot(ctx, "write", "zstd", 128)

	if err := m.Close(); err != nil {
		t.Errorf("Close returned error: %v", err)
	}
}

func TestNewEngineMetricsNilTelemetry(t *testing.T) {
	if _, ok := NewEngineMetrics(nil).(*noopEngineMetrics); !ok {
		t.Error("expected no-op metrics for nil telemetry")
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, telemetry.StatusSuccess},
		{file.ErrNotFound, telemetry.StatusSuccess},
		{disk.ErrOutOfSpace, telemetry.StatusError},
		{ErrNoActiveFile, telemetry.StatusError},
	}
	for _, tt := range tests {
		if got := statusOf(tt.err); got != tt.want {
			t.Errorf("statusOf(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestErrorType(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{file.ErrFileFull, "file_full"},
		{disk.ErrOutOfSpace, "out_of_space"},
		{ErrFileActive, "file_active"},
		{errors.New("other"), "error"},
	}
	for _, tt := range tests {
		if got := errorType(tt.err); got != tt.want {
			t.Errorf("errorType(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestEngineWithTelemetryProvider(t *testing.T) {
	cfg := config.NewDefaultConfig(t.TempDir())
	cfg.PoolCapacity = 4
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Exporters = []string{"stdout"}
	cfg.Telemetry.ExportInterval = time.Hour

	var out bytes.Buffer
	tel, err := telemetry.New(cfg.Telemetry, telemetry.WithWriter(&out))
	if err != nil {
		t.Fatalf("Failed to create telemetry: %v", err)
	}

	eng, err := New(cfg, WithLogger(log.Nop()), WithTelemetry(tel))
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	if err := eng.CreateFile("traced", 3); err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}
	mustInsert(t, eng, 1, "a")
	mustInsert(t, eng, 2, "b")
	eng.Delete(1)
	if _, err := eng.Compact(); err != nil {
		t.Fatalf("Compact failed: %v", err)
	}
	if _, err := eng.Backup(); err != nil {
		t.Fatalf("Backup failed: %v", err)
	}
	if _, err := eng.Search(42); !errors.Is(err, file.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	mustVerify(t, eng)

	if err := eng.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	if !bytes.Contains(out.Bytes(), []byte("blockstore.engine.operation.duration")) {
		t.Error("expected operation duration metric in exporter output")
	}
}
