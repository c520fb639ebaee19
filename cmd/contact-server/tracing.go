package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const serviceName = "contact-gateway"

// setupTracing liga o exporter OTLP/HTTP quando há endpoint. Sem endpoint o
// provider global continua no-op. A função devolvida faz flush no shutdown.
func setupTracing(ctx context.Context, cfg config) (func(context.Context) error, error) {
	if cfg.otlpEndpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	expCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	exporter, err := otlptracehttp.New(expCtx, exporterOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", serviceName),
		attribute.String("environment", cfg.env),
	))
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

// exporterOptions aceita a URL completa de OTEL_EXPORTER_OTLP_ENDPOINT
// (http://collector:4318) ou só host:port.
func exporterOptions(cfg config) []otlptracehttp.Option {
	if strings.Contains(cfg.otlpEndpoint, "://") {
		return []otlptracehttp.Option{otlptracehttp.WithEndpointURL(cfg.otlpEndpoint)}
	}
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.otlpEndpoint)}
	if cfg.otlpInsecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return opts
}
