// Package telemetry wires per-execution-context tracing spans and a
// periodic structured snapshot reporter on top of the pool's own
// introspection API (internal/pool.Pool.Stats), following the same
// otel+Jaeger shape the teacher service uses for its own tracing.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Config configures Telemetry.
type Config struct {
	ServiceName    string
	JaegerEndpoint string
	TracingEnabled bool
}

// Telemetry owns the tracer provider behind StartContextSpan, which starts
// one span per execution context. Nothing in the pool or the runtime calls
// StartContextSpan.
type Telemetry struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
}

// New creates a Telemetry instance. If cfg.TracingEnabled is false, Tracer()
// returns otel's no-op tracer and StartContextSpan is a harmless no-op.
func New(cfg Config) (*Telemetry, error) {
	t := &Telemetry{}

	if !cfg.TracingEnabled {
		t.tracer = otel.Tracer(cfg.ServiceName)
		return t, nil
	}

	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.JaegerEndpoint)))
	if err != nil {
		return nil, fmt.Errorf("telemetry: failed to create jaeger exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(cfg.ServiceName),
		)),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(provider)

	t.provider = provider
	t.tracer = otel.Tracer(cfg.ServiceName)
	return t, nil
}

// Tracer returns the configured tracer.
func (t *Telemetry) Tracer() trace.Tracer { return t.tracer }

// StartContextSpan starts a span representing one execution context's
// lifetime, labelled with its pool-assigned id. The caller ends the span
// when the context is reclaimed.
func (t *Telemetry) StartContextSpan(ctx context.Context, contextID uint64) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "jsworker.context",
		trace.WithAttributes(attribute.Int64("jsworker.context_id", int64(contextID))),
	)
}

// Close flushes and shuts down the tracer provider, if tracing was enabled.
func (t *Telemetry) Close(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}
