// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package source

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for source parsing.
var (
	tracer = otel.Tracer("aleutian.ucdl.source")
	meter  = otel.Meter("aleutian.ucdl.source")
)

var (
	parseLatency     metric.Float64Histogram
	parseTotal       metric.Int64Counter
	recordsExtracted metric.Int64Histogram
	parseErrors      metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		parseLatency, err = meter.Float64Histogram(
			"ucdl_source_parse_duration_seconds",
			metric.WithDescription("Duration of legacy source parsing"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		parseTotal, err = meter.Int64Counter(
			"ucdl_source_parse_total",
			metric.WithDescription("Total number of legacy sources parsed"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		recordsExtracted, err = meter.Int64Histogram(
			"ucdl_source_records_extracted",
			metric.WithDescription("Number of constraint records recovered per source"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		parseErrors, err = meter.Int64Counter(
			"ucdl_source_parse_errors_total",
			metric.WithDescription("Total number of sources that failed to parse"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordParseMetrics records metrics for one parse.
//
// Parameters:
//   - ctx: Context for metric recording
//   - kind: Format or grammar ("object", "database", "javascript", ...)
//   - duration: How long the parse took
//   - recordCount: Number of records recovered
//   - success: Whether the parse succeeded
func recordParseMetrics(ctx context.Context, kind string, duration time.Duration, recordCount int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("success", success),
	)

	parseLatency.Record(ctx, duration.Seconds(), attrs)
	parseTotal.Add(ctx, 1, attrs)

	if success {
		recordsExtracted.Record(ctx, int64(recordCount),
			metric.WithAttributes(attribute.String("kind", kind)),
		)
	} else {
		parseErrors.Add(ctx, 1,
			metric.WithAttributes(attribute.String("kind", kind)),
		)
	}
}

// startParseSpan creates a span for a parse. The caller must end it.
func startParseSpan(ctx context.Context, kind, filePath string, contentSize int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "source.Parse",
		trace.WithAttributes(
			attribute.String("ucdl.source.kind", kind),
			attribute.String("ucdl.source.file", filePath),
			attribute.Int("ucdl.source.content_size", contentSize),
		),
	)
}

// setParseSpanResult sets the result attributes on a parse span.
func setParseSpanResult(span trace.Span, recordCount int, errorCount int) {
	span.SetAttributes(
		attribute.Int("ucdl.source.record_count", recordCount),
		attribute.Int("ucdl.source.error_count", errorCount),
	)
}
