// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "")
	t.Setenv("OTEL_METRICS_EXPORTER", "")
	cfg := DefaultConfig()

	if cfg.ServiceName != "aleutian-ucdl" {
		t.Errorf("ServiceName = %q, want %q", cfg.ServiceName, "aleutian-ucdl")
	}
	if cfg.TraceExporter != ExporterNone {
		t.Errorf("TraceExporter = %q, want %q", cfg.TraceExporter, ExporterNone)
	}
	if cfg.MetricExporter != ExporterNone {
		t.Errorf("MetricExporter = %q, want %q", cfg.MetricExporter, ExporterNone)
	}
	if cfg.OTLPEndpoint != "localhost:4317" && os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" {
		t.Errorf("OTLPEndpoint = %q, want %q", cfg.OTLPEndpoint, "localhost:4317")
	}
}

func TestDefaultConfig_EnvOverride(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "stdout")
	t.Setenv("UCDL_ENV", "ci")

	cfg := DefaultConfig()
	if cfg.TraceExporter != "stdout" {
		t.Errorf("TraceExporter = %q, want stdout", cfg.TraceExporter)
	}
	if cfg.Environment != "ci" {
		t.Errorf("Environment = %q, want ci", cfg.Environment)
	}
}

func TestInit_NilContext(t *testing.T) {
	cfg := DefaultConfig()

	//nolint:staticcheck // nil context is the case under test
	_, err := Init(nil, cfg)
	if err != ErrNilContext {
		t.Errorf("Init(nil, cfg) error = %v, want %v", err, ErrNilContext)
	}
}

func TestInit_NoopExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = ExporterNone
	cfg.MetricExporter = ExporterNone

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if shutdown == nil {
		t.Fatal("shutdown function is nil")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
}

func TestInit_StdoutExporter(t *testing.T) {
	var buf bytes.Buffer
	saved := diagnostics
	diagnostics = &buf
	t.Cleanup(func() { diagnostics = saved })

	cfg := DefaultConfig()
	cfg.TraceExporter = ExporterStdout
	cfg.MetricExporter = ExporterNone

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	_, span := otel.Tracer("test").Start(context.Background(), "migrate")
	if !span.SpanContext().IsValid() {
		t.Error("span context is not valid with stdout exporter")
	}
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown() error = %v", err)
	}
	if !strings.Contains(buf.String(), `"Name": "migrate"`) {
		t.Errorf("span not written to diagnostics writer:\n%s", buf.String())
	}
}

func TestExporters(t *testing.T) {
	traces, metrics := Exporters()
	if got, want := strings.Join(traces, ","), "none,otlp,stdout"; got != want {
		t.Errorf("trace exporters = %s, want %s", got, want)
	}
	if got, want := strings.Join(metrics, ","), "none,prometheus,stdout"; got != want {
		t.Errorf("metric exporters = %s, want %s", got, want)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		trace   string
		metric  string
		wantErr bool
	}{
		{"defaults", ExporterNone, ExporterNone, false},
		{"empty means none", "", "", false},
		{"all real", ExporterOTLP, ExporterPrometheus, false},
		{"jaeger is not an exporter name", "jaeger", ExporterNone, true},
		{"prometheus is metrics only", ExporterPrometheus, ExporterNone, true},
		{"otlp is traces only", ExporterNone, ExporterOTLP, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.TraceExporter = tt.trace
			cfg.MetricExporter = tt.metric
			err := cfg.Validate()
			if tt.wantErr != (err != nil) {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrUnknownExporter) {
				t.Errorf("Validate() error = %v, want ErrUnknownExporter", err)
			}
		})
	}
}

func TestInit_UnknownExporter(t *testing.T) {
	tests := []struct {
		name   string
		trace  string
		metric string
	}{
		{"trace", "zipkin", ExporterNone},
		{"metric", ExporterNone, "statsd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.TraceExporter = tt.trace
			cfg.MetricExporter = tt.metric

			_, err := Init(context.Background(), cfg)
			if !errors.Is(err, ErrUnknownExporter) {
				t.Errorf("Init() error = %v, want ErrUnknownExporter", err)
			}
		})
	}
}

func TestInit_PrometheusTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ucdl.prom")

	cfg := DefaultConfig()
	cfg.TraceExporter = ExporterNone
	cfg.MetricExporter = ExporterPrometheus
	cfg.MetricsTextfile = path

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	counter, err := otel.Meter("test").Int64Counter("ucdl_test_runs_total")
	if err != nil {
		t.Fatalf("create counter: %v", err)
	}
	counter.Add(context.Background(), 2)

	handler := MetricsHandler()
	if handler == nil {
		t.Fatal("MetricsHandler() = nil with prometheus exporter")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "ucdl_test_runs_total") {
		t.Errorf("/metrics missing counter:\n%s", rec.Body.String())
	}

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), "ucdl_test_runs_total") {
		t.Errorf("textfile missing counter:\n%s", data)
	}
}

func TestWriteMetricsTextfile_BadPath(t *testing.T) {
	err := WriteMetricsTextfile(filepath.Join(t.TempDir(), "missing", "dir", "x.prom"))
	if err == nil {
		t.Error("WriteMetricsTextfile() error = nil, want error for missing directory")
	}
}
