// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

// Package telemetry bootstraps OpenTelemetry tracing. Spans are exported
// over OTLP/HTTP when TRAPLOC_OTLP_ENDPOINT is set; otherwise the default
// no-op provider is left in place and span creation is free.
package telemetry

import (
	"context"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/dotandev/traploc/internal/logger"
)

const tracerName = "github.com/dotandev/traploc"

var (
	mu       sync.Mutex
	provider *sdktrace.TracerProvider
)

// Init configures the global tracer provider. It is a no-op unless
// TRAPLOC_OTLP_ENDPOINT (host:port) is set in the environment.
func Init(ctx context.Context) error {
	endpoint := os.Getenv("TRAPLOC_OTLP_ENDPOINT")
	if endpoint == "" {
		return nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return err
	}

	res := sdkresource.NewSchemaless(
		attribute.String("service.name", "traploc"),
	)

	mu.Lock()
	defer mu.Unlock()
	provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	logger.Logger.Debug("OTLP trace exporter configured", "endpoint", endpoint)
	return nil
}

// Shutdown flushes and stops the tracer provider if one was installed.
func Shutdown(ctx context.Context) {
	mu.Lock()
	p := provider
	provider = nil
	mu.Unlock()

	if p == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		logger.Logger.Warn("Tracer provider shutdown failed", "error", err)
	}
}

// GetTracer returns the tracer used across traploc packages.
func GetTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}
