// Package telemetry builds an OpenTelemetry tracer provider that exports
// spans to stdout, plus helpers that start a span for one upload pass,
// one restore stream, or one mirror sync. cmd/server constructs the
// provider; no component in this repository calls the span helpers, so
// no spans are produced unless a caller starts them.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Provider wraps the configured TracerProvider and the archive-core
// tracer derived from it.
type Provider struct {
	tp     *sdktrace.TracerProvider
	Tracer trace.Tracer
}

// NewProvider builds a stdout-exporting TracerProvider. Callers should
// defer Shutdown to flush buffered spans on process exit.
func NewProvider(ctx context.Context, serviceName string) (*Provider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("telemetry: create stdout exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return &Provider{tp: tp, Tracer: tp.Tracer("splitstore/archivecore")}, nil
}

// Shutdown flushes and closes the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.tp.Shutdown(ctx)
}

// StartUploadSpan starts a span for one archive's upload pass.
func (p *Provider) StartUploadSpan(ctx context.Context, archiveID string) (context.Context, trace.Span) {
	return p.Tracer.Start(ctx, "upload.process_archive", trace.WithAttributes(
		attrArchiveID(archiveID),
	))
}

// StartRestoreSpan starts a span for one restore stream (whole,
// bundle entry, or range).
func (p *Provider) StartRestoreSpan(ctx context.Context, archiveID, mode string) (context.Context, trace.Span) {
	return p.Tracer.Start(ctx, "restore.stream", trace.WithAttributes(
		attrArchiveID(archiveID),
		attrMode(mode),
	))
}

// StartMirrorSpan starts a span for one mirror sync operation.
func (p *Provider) StartMirrorSpan(ctx context.Context, archiveID string, partIndex int) (context.Context, trace.Span) {
	return p.Tracer.Start(ctx, "mirror.sync_part", trace.WithAttributes(
		attrArchiveID(archiveID),
		attrPartIndex(partIndex),
	))
}
