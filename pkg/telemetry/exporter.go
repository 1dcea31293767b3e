// ABOUTME: OpenTelemetry exporter factory for metric and trace exporters (stdout, OTLP)
// ABOUTME: Metrics only go to stdout; traces go to stdout and/or an OTLP collector

package telemetry

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc/credentials"

	"github.com/KevoDB/blockstore/pkg/config"
)

// createMetricExporters creates metric exporters based on configuration.
func createMetricExporters(cfg config.TelemetryConfig, w io.Writer) ([]metric.Exporter, error) {
	// otlp carries traces only in this setup, so metrics always go to stdout
	exporter, err := stdoutmetric.New(
		stdoutmetric.WithWriter(w),
		stdoutmetric.WithPrettyPrint(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout metric exporter: %w", err)
	}
	return []metric.Exporter{exporter}, nil
}

// createTraceExporters creates trace exporters based on configuration.
func createTraceExporters(cfg config.TelemetryConfig, w io.Writer) ([]trace.SpanExporter, error) {
	var exporters []trace.SpanExporter

	for _, exporterName := range cfg.Exporters {
		switch exporterName {
		case "otlp":
			exporter, err := createOTLPTraceExporter(cfg)
			if err != nil {
				return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
			}
			exporters = append(exporters, exporter)

		case "stdout":
			exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
			if err != nil {
				return nil, fmt.Errorf("failed to create stdout trace exporter: %w", err)
			}
			exporters = append(exporters, exporter)

		default:
			return nil, fmt.Errorf("unsupported exporter %q", exporterName)
		}
	}

	return exporters, nil
}

// createOTLPTraceExporter creates an OTLP trace exporter over gRPC.
func createOTLPTraceExporter(cfg config.TelemetryConfig) (trace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.OTLPInsecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	} else {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
	}
	return otlptracegrpc.New(context.Background(), opts...)
}
