// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry routes the pipeline's OpenTelemetry spans and metrics.
//
// The constraint packages call otel.Tracer and otel.Meter directly and never
// import this package. Init installs the global providers for one ucdl run,
// picking exporters by name from Config. Both signals default to "none", so a
// plain run opens no connections.
//
// The "stdout" exporters write to stderr. Standard output belongs to the
// command result, which may be a JSON document.
//
// A CLI run usually ends before Prometheus could scrape it. With the
// prometheus exporter, the registry is served by MetricsHandler while
// `ucdl migrate watch` runs, and can be written to a node_exporter textfile
// when the run shuts down.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
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
)

// Exporter names accepted in Config.
const (
	ExporterNone       = "none"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterPrometheus = "prometheus"
)

var (
	// ErrNilContext is returned when Init receives a nil context.
	ErrNilContext = errors.New("telemetry: nil context")

	// ErrUnknownExporter is returned for an exporter name with no constructor.
	ErrUnknownExporter = errors.New("telemetry: unknown exporter")
)

// diagnostics receives the output of the stdout exporters.
var diagnostics io.Writer = os.Stderr

// Config selects where a run's spans and metrics go. It is the telemetry
// section of the ucdl settings file.
type Config struct {
	ServiceName    string `json:"service_name" yaml:"service_name" mapstructure:"service_name"`
	ServiceVersion string `json:"service_version" yaml:"service_version" mapstructure:"service_version"`
	Environment    string `json:"environment" yaml:"environment" mapstructure:"environment"`

	// TraceExporter is one of otlp, stdout, none.
	TraceExporter string `json:"trace_exporter" yaml:"trace_exporter" mapstructure:"trace_exporter" validate:"oneof=otlp stdout none"`

	// MetricExporter is one of prometheus, stdout, none.
	MetricExporter string `json:"metric_exporter" yaml:"metric_exporter" mapstructure:"metric_exporter" validate:"oneof=prometheus stdout none"`

	// OTLPEndpoint and OTLPInsecure apply to the otlp trace exporter only.
	OTLPEndpoint string `json:"otlp_endpoint" yaml:"otlp_endpoint" mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `json:"otlp_insecure" yaml:"otlp_insecure" mapstructure:"otlp_insecure"`

	// MetricsTextfile receives the Prometheus registry on shutdown. Ignored
	// unless MetricExporter is prometheus.
	MetricsTextfile string `json:"metrics_textfile" yaml:"metrics_textfile" mapstructure:"metrics_textfile"`
}

// DefaultConfig returns the settings of a plain run. The standard OTel
// variables OTEL_TRACES_EXPORTER, OTEL_METRICS_EXPORTER and
// OTEL_EXPORTER_OTLP_ENDPOINT, and UCDL_ENV, override the defaults.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "aleutian-ucdl",
		ServiceVersion: "1.0.0",
		Environment:    envOr("UCDL_ENV", "development"),
		TraceExporter:  envOr("OTEL_TRACES_EXPORTER", ExporterNone),
		MetricExporter: envOr("OTEL_METRICS_EXPORTER", ExporterNone),
		OTLPEndpoint:   envOr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTLPInsecure:   true,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

type spanExporterFunc func(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error)

// metricReaderFunc builds a reader and, for pull exporters, the handler that
// serves it.
type metricReaderFunc func(cfg Config) (sdkmetric.Reader, http.Handler, error)

var spanExporters = map[string]spanExporterFunc{
	ExporterOTLP: func(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)
	},
	ExporterStdout: func(context.Context, Config) (sdktrace.SpanExporter, error) {
		return stdouttrace.New(stdouttrace.WithWriter(diagnostics), stdouttrace.WithPrettyPrint())
	},
}

var metricReaders = map[string]metricReaderFunc{
	// The prometheus exporter registers with the default registry, which is
	// what promhttp.Handler and WriteMetricsTextfile gather from.
	ExporterPrometheus: func(Config) (sdkmetric.Reader, http.Handler, error) {
		r, err := promexporter.New()
		if err != nil {
			return nil, nil, err
		}
		return r, promhttp.Handler(), nil
	},
	ExporterStdout: func(Config) (sdkmetric.Reader, http.Handler, error) {
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(diagnostics), stdoutmetric.WithPrettyPrint())
		if err != nil {
			return nil, nil, err
		}
		return sdkmetric.NewPeriodicReader(exp), nil, nil
	},
}

// Exporters lists the accepted trace and metric exporter names, "none"
// included, in sorted order.
func Exporters() (traces, metrics []string) {
	names := func(keys []string) []string {
		keys = append(keys, ExporterNone)
		slices.Sort(keys)
		return keys
	}
	var t, m []string
	for k := range spanExporters {
		t = append(t, k)
	}
	for k := range metricReaders {
		m = append(m, k)
	}
	return names(t), names(m)
}

// Validate reports an exporter name that Init could not build.
func (c Config) Validate() error {
	traces, metrics := Exporters()
	if c.TraceExporter != "" && !slices.Contains(traces, c.TraceExporter) {
		return fmt.Errorf("%w: trace exporter %q", ErrUnknownExporter, c.TraceExporter)
	}
	if c.MetricExporter != "" && !slices.Contains(metrics, c.MetricExporter) {
		return fmt.Errorf("%w: metric exporter %q", ErrUnknownExporter, c.MetricExporter)
	}
	return nil
}

func enabled(name string) bool {
	return name != "" && name != ExporterNone
}

// Init installs the global tracer and meter providers for a run.
//
// Description:
//
//	Exporter names are checked before anything is installed, so a bad name
//	leaves the no-op providers in place. A signal set to "none" keeps its
//	no-op provider.
//
// Outputs:
//   - shutdown: Flushes the providers and writes the metrics textfile when
//     configured. Must be called before the process exits.
//   - error: ErrNilContext, ErrUnknownExporter, or an exporter failure.
//
// Thread Safety: Call once per process.
func Init(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var steps []func(context.Context) error
	shutdown = func(ctx context.Context) error {
		var errs []error
		for _, step := range steps {
			errs = append(errs, step(ctx))
		}
		if err := errors.Join(errs...); err != nil {
			return fmt.Errorf("telemetry shutdown: %w", err)
		}
		return nil
	}

	res := resource.NewWithAttributes("",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
		attribute.String("deployment.environment", cfg.Environment),
	)

	if enabled(cfg.TraceExporter) {
		exp, err := spanExporters[cfg.TraceExporter](ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("create %s trace exporter: %w", cfg.TraceExporter, err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exp),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
		steps = append(steps, tp.Shutdown)
	}

	if enabled(cfg.MetricExporter) {
		reader, handler, err := metricReaders[cfg.MetricExporter](cfg)
		if err != nil {
			return nil, fmt.Errorf("create %s metric exporter: %w", cfg.MetricExporter, err)
		}
		setMetricsHandler(handler)
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(reader),
		)
		otel.SetMeterProvider(mp)
		if cfg.MetricExporter == ExporterPrometheus && cfg.MetricsTextfile != "" {
			path := cfg.MetricsTextfile
			steps = append(steps, func(context.Context) error { return WriteMetricsTextfile(path) })
		}
		steps = append(steps, mp.Shutdown)
	}

	return shutdown, nil
}

var (
	metricsMu      sync.RWMutex
	metricsHandler http.Handler
)

func setMetricsHandler(h http.Handler) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	metricsHandler = h
}

// MetricsHandler serves the Prometheus registry, or is nil when the
// prometheus exporter is not in use.
func MetricsHandler() http.Handler {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return metricsHandler
}

// WriteMetricsTextfile writes the default Prometheus registry to path in
// the node_exporter textfile format.
func WriteMetricsTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}
