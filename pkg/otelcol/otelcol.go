package otelcol

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"sponsorportal/pkg/config"
)

var Module = fx.Module("otelcol", fx.Invoke(Register))

func defaultTraceProviderOption(cfg *config.Config) []trace.TracerProviderOption {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.AppName),
		attribute.String("service.version", cfg.AppVersion),
		attribute.String("deployment.environment", cfg.AppEnv),
	))
	if err != nil {
		res = resource.Default()
	}

	return []trace.TracerProviderOption{
		trace.WithResource(res),
	}
}

func ProvideTrace(exporter trace.SpanExporter, opts ...trace.TracerProviderOption) *trace.TracerProvider {
	opts = append(opts, trace.WithBatcher(exporter))
	return trace.NewTracerProvider(opts...)
}

// NewExporter dials the OTLP collector over grpc or http depending on OTEL_PROTOCOL.
func NewExporter(cfg *config.Config) (*otlptrace.Exporter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch cfg.Otel.Protocol {
	case "http":
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(cfg.Otel.Endpoint),
			otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
		}
		if cfg.Otel.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	case "grpc", "":
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.Otel.Endpoint),
			otlptracegrpc.WithCompressor("gzip"),
		}
		if cfg.Otel.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
	default:
		return nil, fmt.Errorf("unsupported OTEL_PROTOCOL %q", cfg.Otel.Protocol)
	}
}

// Register installs the global tracer provider when OTEL_ENDPOINT is set. Otherwise
// the otel no-op provider stays in place and trace fields are simply absent from logs.
func Register(lc fx.Lifecycle, cfg *config.Config) error {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if cfg.Otel.Endpoint == "" {
		return nil
	}

	exporter, err := NewExporter(cfg)
	if err != nil {
		return err
	}

	tp := ProvideTrace(exporter, defaultTraceProviderOption(cfg)...)
	otel.SetTracerProvider(tp)
	zap.L().Info("tracing enabled", zap.String("endpoint", cfg.Otel.Endpoint), zap.String("protocol", cfg.Otel.Protocol))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})
	return nil
}
