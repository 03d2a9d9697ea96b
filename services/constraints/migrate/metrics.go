// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package migrate

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("aleutian.ucdl.migrate")
	meter  = otel.Meter("aleutian.ucdl.migrate")
)

var (
	migrateLatency  metric.Float64Histogram
	migrateTotal    metric.Int64Counter
	migrateFailures metric.Int64Counter
	qualityScore    metric.Int64Histogram
	filesProcessed  metric.Int64Counter
	fileLatency     metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		migrateLatency, err = meter.Float64Histogram(
			"ucdl_migrate_duration_seconds",
			metric.WithDescription("Duration of single constraint migrations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		migrateTotal, err = meter.Int64Counter(
			"ucdl_migrate_total",
			metric.WithDescription("Total number of constraint migrations attempted"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		migrateFailures, err = meter.Int64Counter(
			"ucdl_migrate_failures_total",
			metric.WithDescription("Total number of failed constraint migrations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		qualityScore, err = meter.Int64Histogram(
			"ucdl_migrate_quality_score",
			metric.WithDescription("Validation score of migrated constraints"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		filesProcessed, err = meter.Int64Counter(
			"ucdl_migrate_files_total",
			metric.WithDescription("Total number of legacy files processed"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		fileLatency, err = meter.Float64Histogram(
			"ucdl_migrate_file_duration_seconds",
			metric.WithDescription("Duration of whole-file migrations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordMigrateMetrics records metrics for one migrated item.
func recordMigrateMetrics(ctx context.Context, r *Result) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("format", r.Format),
		attribute.Bool("success", r.Success),
	)
	migrateLatency.Record(ctx, r.Duration.Seconds(), attrs)
	migrateTotal.Add(ctx, 1, attrs)

	if !r.Success {
		migrateFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("format", r.Format)))
	}
	if r.Validation != nil {
		qualityScore.Record(ctx, int64(r.Validation.Score),
			metric.WithAttributes(attribute.String("impact", string(r.Validation.Details.PerformanceImpact))),
		)
	}
}

// recordFileMetrics counts one processed file.
func recordFileMetrics(ctx context.Context, parsed bool, duration time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("parsed", parsed))
	filesProcessed.Add(ctx, 1, attrs)
	fileLatency.Record(ctx, duration.Seconds(), attrs)
}

// startMigrateSpan creates a span for an operation. The caller must end it.
func startMigrateSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, "migrate."+name, trace.WithAttributes(attrs...))
}

// setBatchSpanResult sets the result attributes on a batch or file span.
func setBatchSpanResult(span trace.Span, total, failed int) {
	span.SetAttributes(
		attribute.Int("ucdl.migrate.total", total),
		attribute.Int("ucdl.migrate.failed", failed),
	)
}
