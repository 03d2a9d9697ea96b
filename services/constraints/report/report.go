// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package report accumulates migration outcomes into a run report with
// statistics and recommendations, exports it, and keeps a history of runs.
package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianUCDL/services/constraints/validate"
)

// topErrorLimit bounds Statistics.TopErrors.
const topErrorLimit = 5

// Entry records one attempted migration.
type Entry struct {
	ConstraintID      string          `json:"constraintId" yaml:"constraintId"`
	OriginalFormat    string          `json:"originalFormat" yaml:"originalFormat"`
	SourcePath        string          `json:"sourcePath,omitempty" yaml:"sourcePath,omitempty"`
	Success           bool            `json:"success" yaml:"success"`
	DurationMS        float64         `json:"durationMs" yaml:"durationMs"`
	Timestamp         time.Time       `json:"timestamp" yaml:"timestamp"`
	Errors            []string        `json:"errors,omitempty" yaml:"errors,omitempty"`
	Warnings          []string        `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	QualityScore      *int            `json:"qualityScore,omitempty" yaml:"qualityScore,omitempty"`
	PerformanceImpact validate.Impact `json:"performanceImpact,omitempty" yaml:"performanceImpact,omitempty"`
}

// SetDuration stores d as fractional milliseconds.
func (e *Entry) SetDuration(d time.Duration) {
	e.DurationMS = float64(d.Microseconds()) / 1000
}

// SetValidation copies the quality signals of a validation result.
func (e *Entry) SetValidation(r *validate.Result) {
	if r == nil {
		return
	}
	score := r.Score
	e.QualityScore = &score
	e.PerformanceImpact = r.Details.PerformanceImpact
}

// ErrorCount is one row of Statistics.TopErrors.
type ErrorCount struct {
	Message string `json:"message" yaml:"message"`
	Count   int    `json:"count" yaml:"count"`
}

// Statistics summarizes a run.
type Statistics struct {
	Total             int                     `json:"total" yaml:"total"`
	Successful        int                     `json:"successful" yaml:"successful"`
	Failed            int                     `json:"failed" yaml:"failed"`
	SuccessRate       float64                 `json:"successRate" yaml:"successRate"`
	AverageDurationMS float64                 `json:"averageDurationMs" yaml:"averageDurationMs"`
	AverageQuality    float64                 `json:"averageQuality" yaml:"averageQuality"`
	ByFormat          map[string]int          `json:"byFormat" yaml:"byFormat"`
	PerformanceImpact map[validate.Impact]int `json:"performanceImpact" yaml:"performanceImpact"`
	TopErrors         []ErrorCount            `json:"topErrors" yaml:"topErrors"`
}

// Report accumulates entries for one run.
//
// Thread Safety: Not safe for concurrent use. The orchestrating loop is the
// only writer; workers hand their results back to it.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Entries    []Entry
}

// New starts a report with a fresh run id.
func New() *Report {
	return &Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Entries:   []Entry{},
	}
}

// Add appends an entry. A zero timestamp is stamped with the current time.
func (r *Report) Add(e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	r.Entries = append(r.Entries, e)
}

// Finish stamps the end of the run.
func (r *Report) Finish() {
	r.FinishedAt = time.Now().UTC()
}

// Statistics computes run-level statistics from the entries.
func (r *Report) Statistics() Statistics {
	stats := Statistics{
		Total:             len(r.Entries),
		ByFormat:          map[string]int{},
		PerformanceImpact: map[validate.Impact]int{},
		TopErrors:         []ErrorCount{},
	}
	if stats.Total == 0 {
		return stats
	}

	var totalDuration, totalQuality float64
	scored := 0
	errorCounts := map[string]int{}
	for _, e := range r.Entries {
		if e.Success {
			stats.Successful++
		} else {
			stats.Failed++
		}
		totalDuration += e.DurationMS
		if e.OriginalFormat != "" {
			stats.ByFormat[e.OriginalFormat]++
		}
		if e.QualityScore != nil {
			totalQuality += float64(*e.QualityScore)
			scored++
		}
		if e.PerformanceImpact != "" {
			stats.PerformanceImpact[e.PerformanceImpact]++
		}
		for _, msg := range e.Errors {
			errorCounts[msg]++
		}
	}

	stats.SuccessRate = round2(100 * float64(stats.Successful) / float64(stats.Total))
	stats.AverageDurationMS = round2(totalDuration / float64(stats.Total))
	if scored > 0 {
		stats.AverageQuality = round2(totalQuality / float64(scored))
	}

	for msg, n := range errorCounts {
		stats.TopErrors = append(stats.TopErrors, ErrorCount{Message: msg, Count: n})
	}
	sort.Slice(stats.TopErrors, func(i, j int) bool {
		a, b := stats.TopErrors[i], stats.TopErrors[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Message < b.Message
	})
	if len(stats.TopErrors) > topErrorLimit {
		stats.TopErrors = stats.TopErrors[:topErrorLimit]
	}
	return stats
}

// Thresholds behind Recommendations.
const (
	minSuccessRate = 90.0
	minQuality     = 70.0
)

// Recommendations derives follow-up actions from the statistics.
func (r *Report) Recommendations() []string {
	stats := r.Statistics()
	if stats.Total == 0 {
		return []string{"No constraints were migrated; check the input path and file pattern"}
	}

	var recs []string
	if stats.SuccessRate < minSuccessRate {
		recs = append(recs, fmt.Sprintf("Success rate is %.1f%%; review the %d failed migrations before deploying", stats.SuccessRate, stats.Failed))
	}
	if len(stats.TopErrors) > 0 {
		top := stats.TopErrors[0]
		recs = append(recs, fmt.Sprintf("Most common error (%d occurrences): %s", top.Count, top.Message))
	}
	if stats.AverageQuality > 0 && stats.AverageQuality < minQuality {
		recs = append(recs, fmt.Sprintf("Average quality score is %.1f; fill in descriptions, parameters and metadata for migrated constraints", stats.AverageQuality))
	}
	if high := stats.PerformanceImpact[validate.ImpactHigh]; high > 0 {
		recs = append(recs, fmt.Sprintf("%d constraints have high performance impact; narrow their scope or simplify their conditions", high))
	}
	if stats.ByFormat["class"] > 0 {
		recs = append(recs, "Constraints migrated from classes lose their evaluate logic; re-express it as conditions and verify behavior")
	}
	if len(recs) == 0 {
		recs = append(recs, "All migrations succeeded; run the scheduler test suite against the migrated constraints")
	}
	return recs
}

// Document is the exported form of a report.
type Document struct {
	RunID           string     `json:"runId" yaml:"runId"`
	StartedAt       time.Time  `json:"startedAt" yaml:"startedAt"`
	FinishedAt      *time.Time `json:"finishedAt,omitempty" yaml:"finishedAt,omitempty"`
	Statistics      Statistics `json:"statistics" yaml:"statistics"`
	Recommendations []string   `json:"recommendations" yaml:"recommendations"`
	Entries         []Entry    `json:"entries" yaml:"entries"`
}

// Document snapshots the report with computed statistics.
func (r *Report) Document() Document {
	doc := Document{
		RunID:           r.RunID,
		StartedAt:       r.StartedAt,
		Statistics:      r.Statistics(),
		Recommendations: r.Recommendations(),
		Entries:         append([]Entry{}, r.Entries...),
	}
	if !r.FinishedAt.IsZero() {
		finished := r.FinishedAt
		doc.FinishedAt = &finished
	}
	return doc
}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}
