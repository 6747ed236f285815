package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Ramsey-B/fern/pkg/tracing/exporters"
)

// Configure installs a tracer provider backed by the given exporter and
// registers the package tracer under serviceName. A nil exporter falls back
// to the no-op console exporter.
func Configure(serviceName string, exporter sdktrace.SpanExporter) func(context.Context) error {
	if exporter == nil {
		exporter = &exporters.ConsoleExporter{}
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(provider)
	SetTracer(provider.Tracer(serviceName))

	return provider.Shutdown
}
