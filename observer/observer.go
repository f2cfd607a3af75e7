// Package observer wires OpenTelemetry tracing for intvrface.
//
// It exports one Tracer per process via Init, backed by OTLP-over-HTTP.
// Configuration comes from the standard OTEL_EXPORTER_OTLP_* env vars.
// Metrics and logs are intentionally not exported here: every turn and
// every sandbox action already lands in the context store's working log,
// so a second telemetry surface for the same events would only duplicate
// it. NewTracer adapts the global provider to intvrface.Tracer; the turn
// engine and the hub do not create spans through it.
package observer

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/codespaceDrifter/intvrface/observer"

// Init sets up an OTLP/HTTP trace exporter and registers it as the global
// tracer provider. Returns a trace.Tracer scoped to this module and a
// shutdown function that must be called on process exit to flush pending
// spans.
func Init(ctx context.Context) (trace.Tracer, func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName("intvrface")),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	exp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Tracer(scopeName), tp.Shutdown, nil
}
