// Package http provides the HTTP transport adapter for the proxy.
package http

import (
	"context"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// tracerName identifies this package's spans in the otel tracer registry.
const tracerName = "github.com/Sentinel-Gate/Sentinelgate/internal/adapter/inbound/http"

// newTracerProvider builds a TracerProvider that exports completed spans as
// line-delimited JSON. w is the sink (os.Stderr in production, io.Discard
// in tests that don't want stdout noise). dev mode switches on
// WithPrettyPrint for human-readable span dumps.
func newTracerProvider(w io.Writer, dev bool) (*sdktrace.TracerProvider, error) {
	opts := []stdouttrace.Option{stdouttrace.WithWriter(w)}
	if dev {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", "sentinel-gate")))
	if err != nil {
		return nil, err
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}

// StartTracing installs a global TracerProvider and returns a shutdown
// func that flushes pending spans. Safe to call with a nil logger.
func StartTracing(w io.Writer, dev bool, logger *slog.Logger) (shutdown func(context.Context) error, err error) {
	tp, err := newTracerProvider(w, dev)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)
	if logger != nil {
		logger.Info("tracing initialized", "exporter", "stdouttrace", "pretty", dev)
	}
	return tp.Shutdown, nil
}

// requestTracer returns the package-scoped tracer. Called lazily (not
// cached at package init) so it always reflects whatever TracerProvider
// StartTracing most recently installed — relevant for tests, which install
// their own provider per-case.
func requestTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// dispatchAttributes builds the span attributes describing one dispatched
// JSON-RPC call.
func dispatchAttributes(tenant, method string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("mcp.method", method)}
	if tenant != "" {
		attrs = append(attrs, attribute.String("mcp.tenant", tenant))
	}
	return attrs
}
