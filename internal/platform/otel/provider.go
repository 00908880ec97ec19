// Package otel configures OpenTelemetry tracing for dofsim processes.
package otel

import (
	"context"
	"strings"

	"github.com/louisbranch/dofsim/internal/platform/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

type otelEnv struct {
	Endpoint string `env:"OTEL_ENDPOINT"`
	Enabled  string `env:"OTEL_ENABLED"`
	Sampling string `env:"OTEL_SAMPLER" envDefault:"always"`
}

// Setup initialises OpenTelemetry tracing for the given service.
//
// Tracing is opt-in: when DOFSIM_OTEL_ENDPOINT is empty or
// DOFSIM_OTEL_ENABLED is "false", Setup returns a no-op shutdown function
// and no global provider is registered. DOFSIM_OTEL_SAMPLER may be "always"
// or "parent" (parent-based, always-on root).
//
// The returned shutdown function flushes pending spans and should be deferred
// by the caller.
func Setup(ctx context.Context, serviceName string) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }

	var cfg otelEnv
	if err := config.ParseEnv(&cfg); err != nil {
		return noop, err
	}
	if strings.EqualFold(cfg.Enabled, "false") {
		return noop, nil
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(cfg.Endpoint),
	)
	if err != nil {
		return noop, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.Sampling)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}

// Tracer returns a named tracer from the global provider. Before Setup (or
// when tracing is disabled) it is a no-op tracer.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

func sampler(name string) sdktrace.Sampler {
	if strings.EqualFold(strings.TrimSpace(name), "parent") {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.AlwaysSample()
}
