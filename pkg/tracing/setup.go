package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Ramsey-B/trellis/pkg/tracing/exporters"
)

// Setup configures the global tracer provider and the package tracer.
// Returns a shutdown function that flushes pending spans.
func Setup(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	exporter := &exporters.ConsoleExporter{}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
	)

	otel.SetTracerProvider(tp)
	SetTracer(tp.Tracer(serviceName))

	return tp.Shutdown, nil
}
