// Package telemetry installs the process-wide OpenTelemetry tracer provider.
// Spans are exported over OTLP/HTTP when an endpoint is configured; otherwise
// the global no-op provider stays in place and instrumented code pays only
// for span creation.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// DefaultServiceName is reported as service.name when none is configured.
const DefaultServiceName = "recall"

// Config selects the trace exporter.
type Config struct {
	Endpoint    string            `yaml:"endpoint"`
	Insecure    bool              `yaml:"insecure"`
	ServiceName string            `yaml:"service_name"`
	SampleRate  float64           `yaml:"sample_rate"`
	Headers     map[string]string `yaml:"headers"`
}

// Enabled reports whether spans will be exported.
func (c Config) Enabled() bool { return c.Endpoint != "" }

// Validate checks the sample rate.
func (c Config) Validate() error {
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("telemetry: sample_rate %v outside 0..1", c.SampleRate)
	}
	return nil
}

// ShutdownFunc flushes and stops the exporter.
type ShutdownFunc func(context.Context) error

// Setup installs a global tracer provider for cfg. When cfg is disabled it
// returns a no-op shutdown and leaves the global provider untouched.
func Setup(ctx context.Context, cfg Config, version string, logger *slog.Logger) (ShutdownFunc, error) {
	noop := func(context.Context) error { return nil }
	if !cfg.Enabled() {
		return noop, nil
	}
	if err := cfg.Validate(); err != nil {
		return noop, err
	}

	tp, err := NewTracerProvider(ctx, cfg, version)
	if err != nil {
		return noop, err
	}
	otel.SetTracerProvider(tp)
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		if logger != nil {
			logger.Warn("telemetry export failed", "error", err)
		}
	}))
	if logger != nil {
		logger.Info("tracing enabled", "endpoint", cfg.Endpoint, "sample_rate", sampleRate(cfg))
	}
	return tp.Shutdown, nil
}

// NewTracerProvider builds an SDK tracer provider exporting to cfg.Endpoint.
func NewTracerProvider(ctx context.Context, cfg Config, version string) (*sdktrace.TracerProvider, error) {
	if !cfg.Enabled() {
		return nil, errors.New("telemetry: endpoint is required")
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create exporter: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(newResource(cfg, version)),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler(cfg))),
	), nil
}

func newResource(cfg Config, version string) *resource.Resource {
	name := cfg.ServiceName
	if name == "" {
		name = DefaultServiceName
	}
	attrs := []attribute.KeyValue{attribute.String("service.name", name)}
	if version != "" {
		attrs = append(attrs, attribute.String("service.version", version))
	}
	return resource.NewSchemaless(attrs...)
}

func sampleRate(cfg Config) float64 {
	if cfg.SampleRate <= 0 {
		return 1
	}
	return cfg.SampleRate
}

func sampler(cfg Config) sdktrace.Sampler {
	rate := sampleRate(cfg)
	if rate >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.TraceIDRatioBased(rate)
}

// Tracer returns a named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
