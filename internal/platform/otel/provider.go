// Package otel installs the process tracer provider and hands out tracers
// for service spans.
package otel

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/zmooth/zmooth/internal/platform/config"
)

// Settings selects where spans go. Tracing stays off without an endpoint.
type Settings struct {
	Endpoint         string  `env:"ZMOOTH_OTEL_ENDPOINT"`
	StandardEndpoint string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Enabled          string  `env:"ZMOOTH_OTEL_ENABLED"`
	SampleRatio      float64 `env:"ZMOOTH_OTEL_SAMPLE_RATIO" envDefault:"1"`
	Environment      string  `env:"ZMOOTH_ENVIRONMENT" envDefault:"development"`
}

func (s Settings) endpoint() string {
	if strings.EqualFold(strings.TrimSpace(s.Enabled), "false") {
		return ""
	}
	if endpoint := strings.TrimSpace(s.Endpoint); endpoint != "" {
		return endpoint
	}
	return strings.TrimSpace(s.StandardEndpoint)
}

func (s Settings) sampler() sdktrace.Sampler {
	ratio := s.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// Setup reads Settings from the environment and, when an endpoint is set,
// registers a batching OTLP/HTTP tracer provider. The returned shutdown
// flushes it; without an endpoint it is a no-op.
func Setup(ctx context.Context, serviceName string) (shutdown func(context.Context) error, err error) {
	var settings Settings
	if err := config.ParseEnv(&settings); err != nil {
		return nil, fmt.Errorf("otel settings: %w", err)
	}
	return SetupWith(ctx, serviceName, settings)
}

// SetupWith is Setup with explicit settings.
func SetupWith(ctx context.Context, serviceName string, settings Settings) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	endpoint := settings.endpoint()
	if endpoint == "" {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	if err != nil {
		return noop, fmt.Errorf("otlp exporter: %w", err)
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(serviceName),
		semconv.DeploymentEnvironment(settings.Environment),
	))
	if err != nil {
		return noop, fmt.Errorf("otel resource: %w", err)
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(settings.sampler()),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return provider.Shutdown, nil
}

// Tracer returns a named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer("github.com/zmooth/zmooth/" + name)
}
