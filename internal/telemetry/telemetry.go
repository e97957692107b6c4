package telemetry

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"

	"github.com/unkn0wn-root/hydro/internal/errdef"
)

// Shutdown flushes pending spans and releases the exporter.
type Shutdown func(context.Context) error

func nopShutdown(context.Context) error { return nil }

// Setup builds the tracer provider described by cfg. When export is
// disabled it returns a no-op provider.
func Setup(ctx context.Context, cfg Config) (trace.TracerProvider, Shutdown, error) {
	if !cfg.Enabled() {
		return noop.NewTracerProvider(), nopShutdown, nil
	}

	exp, err := otlptrace.New(ctx, otlptracegrpc.NewClient(clientOptions(cfg)...))
	if err != nil {
		return nil, nil, errdef.Wrap(errdef.CodeConfig, err, "start otlp exporter")
	}

	attrs := []attribute.KeyValue{attribute.String("service.name", cfg.ServiceName)}
	if cfg.Version != "" {
		attrs = append(attrs, attribute.String("service.version", cfg.Version))
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewSchemaless(attrs...)),
	)
	return tp, tp.Shutdown, nil
}

func clientOptions(cfg Config) []otlptracegrpc.Option {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	var opts []otlptracegrpc.Option
	if strings.Contains(endpoint, "://") {
		opts = append(opts, otlptracegrpc.WithEndpointURL(endpoint))
	} else {
		opts = append(opts, otlptracegrpc.WithEndpoint(endpoint))
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}
	if d := cfg.DialTimeout.Std(); d > 0 {
		opts = append(opts, otlptracegrpc.WithTimeout(d))
	}
	ua := "hydro"
	if cfg.Version != "" {
		ua += "/" + cfg.Version
	}
	opts = append(opts, otlptracegrpc.WithDialOption(grpc.WithUserAgent(ua)))
	return opts
}
