// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry wires the OpenTelemetry SDK for the Squad runtime.
//
// Components use otel.Tracer and otel.Meter directly; Init only decides
// where spans and metrics go. Exporters are chosen by name:
//
//   - traces: "otlp" (gRPC), "stdout", or "none"
//   - metrics: "prometheus" (served by MetricsHandler), "stdout", or "none"
//
// # Thread Safety
//
// Init is called once at boot. Every other function is safe for concurrent
// use.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Exporter names.
const (
	ExporterNone       = "none"
	ExporterStdout     = "stdout"
	ExporterOTLP       = "otlp"
	ExporterPrometheus = "prometheus"
)

var (
	// ErrNilContext is returned by Init for a nil context.
	ErrNilContext = errors.New("telemetry: nil context")

	// ErrUnknownExporter is returned for an unsupported exporter name.
	ErrUnknownExporter = errors.New("telemetry: unknown exporter")
)

// Config selects exporters and identifies the service.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	TraceExporter  string
	MetricExporter string
	OTLPEndpoint   string
	OTLPInsecure   bool
}

// ShutdownFunc flushes and stops the providers installed by Init.
type ShutdownFunc func(context.Context) error

var (
	metricsHandler   http.Handler
	metricsHandlerMu sync.RWMutex
)

// Init installs the global tracer and meter providers.
//
// Description:
//
//	Empty exporter names are treated as "none". When both are "none" the
//	otel no-op providers stay in place and the returned shutdown does
//	nothing.
//
// Inputs:
//
//	ctx - Used for exporter connections.
//	cfg - Exporter selection.
//
// Outputs:
//
//	ShutdownFunc - Must be called on exit. Never nil on success.
//	error - ErrNilContext, ErrUnknownExporter, or an exporter error.
func Init(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	var cleanups []ShutdownFunc
	shutdown := func(ctx context.Context) error {
		var errs []error
		for i := len(cleanups) - 1; i >= 0; i-- {
			if err := cleanups[i](ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
		attribute.String("deployment.environment", cfg.Environment),
	)

	if name := orNone(cfg.TraceExporter); name != ExporterNone {
		tp, err := newTracerProvider(ctx, name, cfg, res)
		if err != nil {
			return nil, fmt.Errorf("init tracer: %w", err)
		}
		otel.SetTracerProvider(tp)
		cleanups = append(cleanups, tp.Shutdown)
	}

	if name := orNone(cfg.MetricExporter); name != ExporterNone {
		mp, err := newMeterProvider(name, res)
		if err != nil {
			_ = shutdown(ctx)
			return nil, fmt.Errorf("init meter: %w", err)
		}
		otel.SetMeterProvider(mp)
		cleanups = append(cleanups, mp.Shutdown)
	}

	return shutdown, nil
}

func orNone(name string) string {
	if name == "" {
		return ExporterNone
	}
	return name
}

func newTracerProvider(ctx context.Context, name string, cfg Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch name {
	case ExporterOTLP:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	case ExporterStdout:
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, name)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s exporter: %w", name, err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	), nil
}

func newMeterProvider(name string, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	switch name {
	case ExporterPrometheus:
		exporter, err := promexporter.New()
		if err != nil {
			return nil, fmt.Errorf("create prometheus exporter: %w", err)
		}
		// The exporter registers with the default prometheus registry, which
		// also carries the promauto counters.
		metricsHandlerMu.Lock()
		metricsHandler = promhttp.Handler()
		metricsHandlerMu.Unlock()
		return sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		), nil

	case ExporterStdout:
		exporter, err := stdoutmetric.New(stdoutmetric.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout metric exporter: %w", err)
		}
		return sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, name)
	}
}

// MetricsHandler returns the /metrics handler.
//
// Without the prometheus exporter it still serves the default prometheus
// registry, so promauto counters remain scrapeable.
func MetricsHandler() http.Handler {
	metricsHandlerMu.RLock()
	defer metricsHandlerMu.RUnlock()
	if metricsHandler == nil {
		return promhttp.Handler()
	}
	return metricsHandler
}

// TraceID returns the hex trace ID in ctx, or "".
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}

// LoggerWithTrace attaches trace_id and span_id from ctx to logger.
// The logger is returned unchanged when ctx carries no valid span.
func LoggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return logger
	}
	return logger.With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
