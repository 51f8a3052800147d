package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
)

// TracerName is the instrumentation name used for pipeline spans.
const TracerName = "campaign-messaging"

// Init installs a global OTLP/HTTP tracer provider and returns its shutdown
// function. exporterURL is either a collector URL ("http://collector:4318",
// path defaulting to /v1/traces) or a bare host:port reached over plain HTTP. With an empty exporter URL tracing stays on the no-op provider.
func Init(ctx context.Context, serviceName, exporterURL string) (func(context.Context) error, error) {
	if exporterURL == "" {
		return func(context.Context) error { return nil }, nil
	}
	if serviceName == "" {
		return nil, errors.New("service name cannot be empty")
	}

	opts, err := exporterOptions(exporterURL)
	if err != nil {
		return nil, err
	}
	client := otlptracehttp.NewClient(opts...)
	traceExporter, err := otlptrace.New(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(traceExporter),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

func exporterOptions(raw string) ([]otlptracehttp.Option, error) {
	u, err := url.Parse(raw)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		if u.Host == "" {
			return nil, fmt.Errorf("invalid exporter url %q: missing host", raw)
		}
		if u.Path == "" || u.Path == "/" {
			u.Path = "/v1/traces"
		}
		return []otlptracehttp.Option{otlptracehttp.WithEndpointURL(u.String())}, nil
	}
	if err == nil && u.Scheme != "" && u.Opaque == "" {
		return nil, fmt.Errorf("invalid exporter url %q: unsupported scheme %s", raw, u.Scheme)
	}
	return []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(raw),
		otlptracehttp.WithInsecure(),
	}, nil
}
