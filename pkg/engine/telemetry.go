// ABOUTME: Engine-level telemetry for block operations, pool usage and snapshot traffic
// ABOUTME: Wraps the telemetry interface so the engine never depends on the OpenTelemetry SDK

package engine

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/KevoDB/blockstore/pkg/file"
	"github.com/KevoDB/blockstore/pkg/telemetry"
)

// EngineMetrics defines the interface for engine-level telemetry
type EngineMetrics interface {
	// StartOperation opens a span for a menu operation
	StartOperation(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span)

	// RecordOperation records the time elapsed since start and the outcome of an operation
	RecordOperation(ctx context.Context, operation string, start time.Time, err error)

	// RecordPoolUsage records the number of used blocks
	RecordPoolUsage(ctx context.Context, used, capacity int)

	// RecordRelocation records the blocks moved by a compaction
	RecordRelocation(ctx context.Context, moved int)

	// RecordSnapshot records the size of a written or read snapshot
	RecordSnapshot(ctx context.Context, direction, codec string, bytes int)

	// Close releases resources held by the metrics, not the telemetry itself
	Close() error
}

// engineMetrics implements EngineMetrics using the telemetry interface
type engineMetrics struct {
	tel telemetry.Telemetry
}

// NewEngineMetrics creates a new EngineMetrics instance
func NewEngineMetrics(tel telemetry.Telemetry) EngineMetrics {
	if tel == nil {
		return NewNoopEngineMetrics()
	}
	return &engineMetrics{tel: tel}
}

// NewNoopEngineMetrics creates a no-op EngineMetrics for tests or when telemetry is disabled
func NewNoopEngineMetrics() EngineMetrics {
	return &noopEngineMetrics{}
}

func (m *engineMetrics) StartOperation(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String(telemetry.AttrOperationType, operation),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentEngine),
	)
	return m.tel.StartSpan(ctx, "blockstore.engine."+operation, attrs...)
}

// RecordOperation records a duration histogram and a counter split by status
func (m *engineMetrics) RecordOperation(ctx context.Context, operation string, start time.Time, err error) {
	defer silence()

	attrs := []attribute.KeyValue{
		attribute.String(telemetry.AttrOperationType, operation),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentEngine),
		attribute.String(telemetry.AttrStatus, statusOf(err)),
	}
	if err != nil {
		attrs = append(attrs, attribute.String(telemetry.AttrErrorType, errorType(err)))
	}

	telemetry.RecordDuration(ctx, m.tel, "blockstore.engine.operation.duration", start, attrs...)
	m.tel.RecordCounter(ctx, "blockstore.engine.operation.count", 1, attrs...)
}

func (m *engineMetrics) RecordPoolUsage(ctx context.Context, used, capacity int) {
	defer silence()

	attrs := []attribute.KeyValue{
		attribute.String(telemetry.AttrComponent, telemetry.ComponentDisk),
	}
	m.tel.RecordHistogram(ctx, "blockstore.disk.blocks.used", float64(used), attrs...)
	if capacity > 0 {
		m.tel.RecordHistogram(ctx, "blockstore.disk.utilization", float64(used)/float64(capacity)*100.0, attrs...)
	}
}

func (m *engineMetrics) RecordRelocation(ctx context.Context, moved int) {
	defer silence()

	m.tel.RecordCounter(ctx, "blockstore.disk.blocks.moved", int64(moved),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentDisk))
}

func (m *engineMetrics) RecordSnapshot(ctx context.Context, direction, codec string, bytes int) {
	defer silence()

	m.tel.RecordCounter(ctx, "blockstore.snapshot.bytes", int64(bytes),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentSnapshot),
		attribute.String(telemetry.AttrCodec, codec),
		attribute.String("snapshot.direction", direction),
	)
}

// Close is a no-op: the telemetry instance belongs to the caller
func (m *engineMetrics) Close() error {
	return nil
}

// noopEngineMetrics provides a no-op implementation for testing or disabled telemetry
type noopEngineMetrics struct{}

func (n *noopEngineMetrics) StartOperation(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return ctx, trace.SpanFromContext(ctx)
}
func (n *noopEngineMetrics) RecordOperation(ctx context.Context, operation string, start time.Time, err error) {
}
func (n *noopEngineMetrics) RecordPoolUsage(ctx context.Context, used, capacity int)           {}
func (n *noopEngineMetrics) RecordRelocation(ctx context.Context, moved int)                   {}
func (n *noopEngineMetrics) RecordSnapshot(ctx context.Context, direction, codec string, bytes int) {}
func (n *noopEngineMetrics) Close() error                                                      { return nil }

// endSpan marks span failed when err is set and ends it
func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, file.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// silence swallows telemetry panics
func silence() {
	_ = recover()
}

func statusOf(err error) string {
	if err == nil || errors.Is(err, file.ErrNotFound) {
		return telemetry.StatusSuccess
	}
	return telemetry.StatusError
}
