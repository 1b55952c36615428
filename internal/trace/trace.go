// Package trace wires OpenTelemetry spans around the monitor tick and
// every external call it makes: protocol reads, price feed lookups,
// oracle completions, and transaction submission. Spans are exported
// to stdout so a tick's timeline can be read next to its log lines.
package trace

import (
	"context"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	serviceName    = "defi-position-manager"
	serviceVersion = "1.0.0"

	// LOG_TRACING_ENABLED=false turns spans off entirely; StartSpan
	// then passes contexts through untouched and the logger drops its
	// trace_id fields.
	enabledEnv = "LOG_TRACING_ENABLED"
)

var (
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	enabled  bool
)

// Init reads LOG_TRACING_ENABLED (default on) and installs a stdout
// span exporter. Call once at startup, before the monitor loop runs.
func Init() error {
	enabled = envOr(enabledEnv, "true") == "true"
	if !enabled {
		return nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return err
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return err
	}

	provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	tracer = otel.Tracer(serviceName)
	return nil
}

// Shutdown flushes any spans still batched in the exporter. Safe to
// call when tracing was never initialized.
func Shutdown(ctx context.Context) error {
	if provider == nil {
		return nil
	}
	return provider.Shutdown(ctx)
}

// StartSpan opens a child span under whatever span the context already
// carries. With tracing disabled it returns the context unchanged and
// a no-op span, so call sites never need to branch.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if !enabled || tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// Enabled reports whether Init turned tracing on.
func Enabled() bool {
	return enabled
}

// GetTraceFields pulls the current trace and span IDs out of ctx for
// the logger to attach to its records. ok is false when tracing is off
// or the context carries no live span.
func GetTraceFields(ctx context.Context) (traceID, spanID string, ok bool) {
	if !enabled {
		return "", "", false
	}
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return "", "", false
	}
	return sc.TraceID().String(), sc.SpanID().String(), true
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
