// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package migrate converts legacy constraint records into UCDL constraints.
//
// The Migrator maps parsed records with a set of ordered heuristics,
// optionally validates each result and the batch as a whole, writes the
// migrated constraints next to their source files, and records every
// attempted item in a run report.
package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianUCDL/services/constraints/config"
	"github.com/AleutianAI/AleutianUCDL/services/constraints/report"
	"github.com/AleutianAI/AleutianUCDL/services/constraints/source"
	"github.com/AleutianAI/AleutianUCDL/services/constraints/ucdl"
	"github.com/AleutianAI/AleutianUCDL/services/constraints/validate"
	"github.com/AleutianAI/AleutianUCDL/services/constraints/value"
)

// Result is the outcome of migrating one legacy record.
type Result struct {
	ConstraintID string           `json:"constraintId"`
	Name         string           `json:"name"`
	Success      bool             `json:"success"`
	Constraint   *ucdl.Constraint `json:"constraint,omitempty"`
	Errors       []string         `json:"errors"`
	Warnings     []string         `json:"warnings"`
	Validation   *validate.Result `json:"validation,omitempty"`
	SourcePath   string           `json:"sourcePath,omitempty"`
	Format       string           `json:"format"`
	Duration     time.Duration    `json:"duration"`
}

func newResult(format, path string) *Result {
	return &Result{Format: format, SourcePath: path, Errors: []string{}, Warnings: []string{}}
}

func (r *Result) fail(msg string) {
	r.Success = false
	r.Errors = append(r.Errors, msg)
}

// entry converts the result into a report entry.
func (r *Result) entry(at time.Time) report.Entry {
	e := report.Entry{
		ConstraintID:   r.ConstraintID,
		OriginalFormat: r.Format,
		SourcePath:     r.SourcePath,
		Success:        r.Success,
		Timestamp:      at.UTC(),
		Errors:         r.Errors,
		Warnings:       r.Warnings,
	}
	e.SetDuration(r.Duration)
	e.SetValidation(r.Validation)
	return e
}

// Option configures a Migrator.
type Option func(*Migrator)

// WithFs sets the file system used by file and directory migration.
func WithFs(fs afero.Fs) Option {
	return func(m *Migrator) {
		m.fs = fs
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Migrator) {
		m.logger = logger
	}
}

// WithParser replaces the source parser.
func WithParser(p *source.Parser) Option {
	return func(m *Migrator) {
		m.parser = p
	}
}

// WithValidator replaces the validator.
func WithValidator(v *validate.Validator) Option {
	return func(m *Migrator) {
		m.validator = v
	}
}

// WithReport appends to an existing report instead of a fresh one.
func WithReport(r *report.Report) Option {
	return func(m *Migrator) {
		m.report = r
	}
}

// WithClock replaces time.Now. Timestamps in metadata and ids use it.
func WithClock(now func() time.Time) Option {
	return func(m *Migrator) {
		m.now = now
	}
}

// WithIDGenerator replaces the generator used for records without an id.
func WithIDGenerator(gen func(time.Time) string) Option {
	return func(m *Migrator) {
		m.newID = gen
	}
}

// WithDebounce sets how long Watch waits for a file to settle.
func WithDebounce(d time.Duration) Option {
	return func(m *Migrator) {
		m.debounce = d
	}
}

// Migrator converts legacy records into UCDL constraints.
//
// Thread Safety: Safe for concurrent use. Report appends are serialized.
type Migrator struct {
	cfg       config.Config
	fs        afero.Fs
	logger    *slog.Logger
	parser    *source.Parser
	validator *validate.Validator
	now       func() time.Time
	newID     func(time.Time) string
	debounce  time.Duration

	mu     sync.Mutex
	report *report.Report
}

// New creates a Migrator for cfg.
//
// Description:
//
//	Defaults: the OS file system, slog.Default, a parser and validator with
//	their default settings, a fresh report, time.Now, and ids of the form
//	migrated_<epoch-ms>_<9 hex chars>. A BatchSize or Concurrency below one
//	is raised to one.
func New(cfg config.Config, opts ...Option) *Migrator {
	m := &Migrator{cfg: cfg, debounce: DefaultDebounce}
	for _, opt := range opts {
		opt(m)
	}
	if m.fs == nil {
		m.fs = afero.NewOsFs()
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.parser == nil {
		m.parser = source.NewParser(source.WithLogger(m.logger))
	}
	if m.validator == nil {
		m.validator = validate.New()
	}
	if m.report == nil {
		m.report = report.New()
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.newID == nil {
		m.newID = GenerateID
	}
	if m.cfg.BatchSize < 1 {
		m.cfg.BatchSize = 1
	}
	if m.cfg.Concurrency < 1 {
		m.cfg.Concurrency = 1
	}
	return m
}

// Report returns the run report the migrator appends to.
func (m *Migrator) Report() *report.Report {
	return m.report
}

// GenerateID returns migrated_<epoch-ms>_<first 9 hex chars of a uuid>.
func GenerateID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("migrated_%d_%s", now.UnixMilli(), suffix)
}

// ConvertToUCDL maps one record onto a UCDL constraint using time.Now,
// generated ids and preserved original data.
func ConvertToUCDL(rec *source.Record) (*ucdl.Constraint, []string, error) {
	return convert(rec, time.Now(), GenerateID, true)
}

// ConvertToUCDL maps one record onto a UCDL constraint.
//
// Description:
//
//	Applies the field heuristics in order: id, type, weight, scope,
//	category, priority, parameters, conditions, penalty, resolution
//	strategy, metadata. Each lossy decision (an evaluate method that was
//	dropped, a clamped value, an unparseable field) adds a warning.
//
// Outputs:
//   - *ucdl.Constraint: The migrated constraint.
//   - []string: Warnings, also stored in metadata.migrationInfo.warnings.
//   - error: ErrNilRecord for a nil or empty record.
func (m *Migrator) ConvertToUCDL(rec *source.Record) (*ucdl.Constraint, []string, error) {
	return convert(rec, m.now(), m.newID, m.cfg.PreserveMetadata)
}

func convert(rec *source.Record, now time.Time, newID func(time.Time) string, preserve bool) (*ucdl.Constraint, []string, error) {
	if rec == nil || rec.Fields == nil || rec.Metadata == nil {
		return nil, nil, ErrNilRecord
	}
	mp := &mapper{rec: rec, now: now, newID: newID, preserve: preserve}
	c := mp.convert()
	warnings := mp.warnings
	if warnings == nil {
		warnings = []string{}
	}
	if len(warnings) > 0 {
		c.Metadata.MigrationInfo.Warnings = append([]string{}, warnings...)
	}
	return c, warnings, nil
}

// MigrateOne parses input of the declared format and migrates the record
// it contains.
//
// Description:
//
//	Input holding more than one record migrates the first and warns.
//	A parse error, or input holding no record at all, yields a failed
//	result rather than an error. The result
//	is added to the report.
//
// Outputs:
//   - *Result: Always non-nil.
//   - error: Only for an unknown format or a cancelled context.
func (m *Migrator) MigrateOne(ctx context.Context, input []byte, format source.Format) (*Result, error) {
	recs, err := m.parser.Parse(ctx, input, format)
	return m.migrateParsed(ctx, recs, err, format)
}

// MigrateValue is MigrateOne for an already decoded value.
func (m *Migrator) MigrateValue(ctx context.Context, v value.Value, format source.Format) (*Result, error) {
	recs, err := m.parser.ParseValue(ctx, v, format)
	return m.migrateParsed(ctx, recs, err, format)
}

func (m *Migrator) migrateParsed(ctx context.Context, recs []*source.Record, err error, format source.Format) (*Result, error) {
	if err != nil {
		if ucdl.IsConfigurationError(err) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		res := newResult(string(format), "")
		res.fail(err.Error())
		m.addEntries(res)
		recordMigrateMetrics(ctx, res)
		return res, nil
	}

	if len(recs) == 0 {
		res := newResult(string(format), "")
		res.fail(fmt.Errorf("%w in input", source.ErrNoConstraints).Error())
		m.addEntries(res)
		recordMigrateMetrics(ctx, res)
		return res, nil
	}

	res := m.migrateRecord(ctx, recs[0])
	if len(recs) > 1 {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("Input contained %d constraints; only the first was migrated", len(recs)))
	}
	m.addEntries(res)
	return res, nil
}

// MigrateRecords migrates recs in batches of the configured size.
//
// Description:
//
//	Each batch fans out over at most Concurrency goroutines. Results are
//	stored by index, so the output order matches recs. A panic or error
//	while migrating one record becomes a failed result for that record
//	only. With validation enabled, the successful constraints are then
//	checked together and cross-constraint problems (duplicate ids,
//	missing dependencies, cycles, conflicts) are attached as warnings.
//	Every attempted record is added to the report in input order.
//
// Outputs:
//   - []*Result: One per attempted record, in input order.
//   - error: The context error if cancelled between batches. Results for
//     the batches already attempted are still returned and reported.
func (m *Migrator) MigrateRecords(ctx context.Context, recs []*source.Record) ([]*Result, error) {
	ctx, span := startMigrateSpan(ctx, "MigrateRecords",
		attribute.Int("ucdl.migrate.records", len(recs)),
		attribute.Int("ucdl.migrate.batch_size", m.cfg.BatchSize),
	)
	defer span.End()

	results := make([]*Result, 0, len(recs))
	var runErr error
	for start := 0; start < len(recs); start += m.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		end := min(start+m.cfg.BatchSize, len(recs))
		results = append(results, m.migrateBatch(ctx, recs[start:end])...)
		m.logger.Debug("migrated batch",
			slog.Int("start", start),
			slog.Int("size", end-start),
		)
	}

	if m.cfg.ValidateOutput {
		m.checkBatch(results)
	}
	m.addEntries(results...)

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	setBatchSpanResult(span, len(results), failed)
	return results, runErr
}

// migrateBatch migrates one batch concurrently.
func (m *Migrator) migrateBatch(ctx context.Context, batch []*source.Record) []*Result {
	out := make([]*Result, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Concurrency)
	for i, rec := range batch {
		i, rec := i, rec
		g.Go(func() error {
			out[i] = m.migrateRecord(gctx, rec)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// migrateRecord converts and validates one record. It never panics.
func (m *Migrator) migrateRecord(ctx context.Context, rec *source.Record) (res *Result) {
	start := time.Now()
	res = newResult("", "")
	if rec != nil && rec.Metadata != nil {
		res.Format = string(rec.SourceType())
		res.SourcePath = rec.FilePath()
		res.Name = rec.Name()
	}

	defer func() {
		if p := recover(); p != nil {
			m.logger.Error("panic while migrating constraint",
				slog.String("name", res.Name),
				slog.Any("panic", p),
				slog.String("stack", string(debug.Stack())),
			)
			res.Constraint = nil
			res.fail(fmt.Sprintf("internal error: %v", p))
		}
		res.Duration = time.Since(start)
		recordMigrateMetrics(ctx, res)
	}()

	c, warnings, err := m.ConvertToUCDL(rec)
	if err != nil {
		res.fail(err.Error())
		return res
	}
	res.Constraint = c
	res.ConstraintID = c.ID
	res.Name = c.Name
	res.Warnings = append(res.Warnings, warnings...)
	res.Success = true

	if m.cfg.ValidateOutput {
		vr := m.validator.Validate(c)
		res.Validation = vr
		res.Warnings = append(res.Warnings, vr.Warnings...)
		if !vr.IsValid {
			res.Success = false
			res.Errors = append(res.Errors, vr.Errors...)
		}
	}

	if !res.Success {
		m.logger.Warn("constraint migration failed",
			slog.String("id", res.ConstraintID),
			slog.String("name", res.Name),
			slog.Any("errors", res.Errors),
		)
	}
	return res
}

// checkBatch validates the successful constraints together and attaches
// failed batch checks as warnings.
func (m *Migrator) checkBatch(results []*Result) {
	var (
		items   []value.Value
		targets []*Result
	)
	for _, r := range results {
		if !r.Success || r.Constraint == nil {
			continue
		}
		v, err := r.Constraint.ToValue()
		if err != nil {
			r.fail(err.Error())
			continue
		}
		items = append(items, v)
		targets = append(targets, r)
	}
	if len(items) == 0 {
		return
	}

	for i, vr := range m.validator.ValidateAll(items) {
		for _, check := range vr.Checks {
			if check.Group == validate.GroupBatch && !check.Passed {
				targets[i].Warnings = append(targets[i].Warnings, check.Message)
			}
		}
	}
}

func (m *Migrator) addEntries(results ...*Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at := m.now()
	for _, r := range results {
		m.report.Add(r.entry(at))
	}
}
