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
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianUCDL/services/constraints/source"
	"github.com/AleutianAI/AleutianUCDL/services/constraints/ucdl"
	"github.com/AleutianAI/AleutianUCDL/services/constraints/value"
)

// OutputSuffix is appended to the base name of a migrated file.
const OutputSuffix = ".ucdl.json"

// backupMarker separates a source path from its backup timestamp.
const backupMarker = ".backup."

// ErrDirectoryNotFound is returned by MigrateDirectory for a missing root.
var ErrDirectoryNotFound = errors.New("directory not found")

// skippedDirs are never descended into during a directory walk.
var skippedDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
}

// FileResult is the outcome of migrating one file.
type FileResult struct {
	Path       string        `json:"path"`
	OutputPath string        `json:"outputPath,omitempty"`
	BackupPath string        `json:"backupPath,omitempty"`
	Results    []*Result     `json:"results"`
	Duration   time.Duration `json:"duration"`
}

// Successful counts the successful results.
func (f *FileResult) Successful() int {
	n := 0
	for _, r := range f.Results {
		if r.Success {
			n++
		}
	}
	return n
}

// Failed counts the failed results.
func (f *FileResult) Failed() int {
	return len(f.Results) - f.Successful()
}

// DirectoryResult is the outcome of migrating a directory tree.
type DirectoryResult struct {
	Dir      string        `json:"dir"`
	Files    []*FileResult `json:"files"`
	Duration time.Duration `json:"duration"`
}

// Totals sums the per-file counts.
func (d *DirectoryResult) Totals() (total, successful, failed int) {
	for _, f := range d.Files {
		total += len(f.Results)
		successful += f.Successful()
	}
	return total, successful, total - successful
}

// OutputPath returns where the migrated constraints of path are written:
// <dir>/<basename-without-ext>.ucdl.json.
func OutputPath(path string) string {
	base := filepath.Base(path)
	return filepath.Join(filepath.Dir(path), strings.TrimSuffix(base, filepath.Ext(base))+OutputSuffix)
}

// IsGenerated reports whether name is a migration output or a backup.
func IsGenerated(name string) bool {
	base := filepath.Base(name)
	return strings.HasSuffix(base, OutputSuffix) || strings.Contains(base, backupMarker)
}

// formatForPath guesses the source format of a file from its extension.
func formatForPath(path string) source.Format {
	if source.SourceExtensions[strings.ToLower(filepath.Ext(path))] != "" {
		return source.FormatClass
	}
	return source.FormatObject
}

// MigrateFile migrates every constraint defined in one file.
//
// Description:
//
//	Reads the file, writes a <path>.backup.<epoch-ms> copy when backups are
//	enabled, parses it by extension, and migrates the records. When at least
//	one record succeeded and this is not a dry run, the successful
//	constraints are written as an indented JSON array to OutputPath(path).
//
//	A file that cannot be parsed is not an error: it yields a FileResult
//	holding a single failed result with the parse error message.
//
// Outputs:
//   - *FileResult: The per-record outcomes.
//   - error: Read, backup or write failures, or a cancelled context.
func (m *Migrator) MigrateFile(ctx context.Context, path string) (*FileResult, error) {
	ctx, span := startMigrateSpan(ctx, "MigrateFile", attribute.String("ucdl.migrate.file", path))
	defer span.End()
	start := time.Now()

	fr := &FileResult{Path: path, Results: []*Result{}}
	content, err := afero.ReadFile(m.fs, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if m.cfg.GenerateBackup && !m.cfg.DryRun {
		backup := fmt.Sprintf("%s%s%d", path, backupMarker, m.now().UnixMilli())
		if err := afero.WriteFile(m.fs, backup, content, 0644); err != nil {
			return nil, fmt.Errorf("write backup %s: %w", backup, err)
		}
		fr.BackupPath = backup
	}

	recs, err := m.parser.ParseFile(ctx, path, content)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		m.logger.Warn("failed to parse legacy file",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		res := newResult(string(formatForPath(path)), path)
		res.Name = filepath.Base(path)
		res.fail(err.Error())
		res.Duration = time.Since(start)
		recordMigrateMetrics(ctx, res)
		m.addEntries(res)
		fr.Results = append(fr.Results, res)
		fr.Duration = time.Since(start)
		recordFileMetrics(ctx, false, fr.Duration)
		setBatchSpanResult(span, 1, 1)
		return fr, nil
	}

	results, err := m.MigrateRecords(ctx, recs)
	fr.Results = results
	if err != nil {
		return fr, err
	}

	if fr.Successful() > 0 && !m.cfg.DryRun {
		out := OutputPath(path)
		if err := m.WriteConstraints(out, results); err != nil {
			return fr, err
		}
		fr.OutputPath = out
	}

	fr.Duration = time.Since(start)
	recordFileMetrics(ctx, true, fr.Duration)
	setBatchSpanResult(span, len(results), fr.Failed())
	m.logger.Info("migrated legacy file",
		slog.String("path", path),
		slog.Int("constraints", len(results)),
		slog.Int("failed", fr.Failed()),
		slog.String("output", fr.OutputPath),
	)
	return fr, nil
}

// WriteConstraints writes the successful constraints of results to path as
// an indented JSON array.
func (m *Migrator) WriteConstraints(path string, results []*Result) error {
	items := make([]value.Value, 0, len(results))
	for _, r := range results {
		if !r.Success || r.Constraint == nil {
			continue
		}
		v, err := r.Constraint.ToValue()
		if err != nil {
			return err
		}
		items = append(items, v)
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := afero.WriteFile(m.fs, path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// matcher compiles pattern, falling back to the configured file pattern.
func (m *Migrator) matcher(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return m.cfg.FileMatcher()
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, &ucdl.ConfigurationError{Setting: "file pattern", Value: pattern, Cause: err}
	}
	return re, nil
}

// MigrateDirectory migrates every matching file under dir.
//
// Description:
//
//	Walks dir recursively in lexical order and migrates, one file at a
//	time, each file whose base name matches pattern (the configured file
//	pattern when empty). Migration outputs, backups, node_modules and .git
//	are skipped. A file that fails to read or write is recorded as a
//	failed result and the walk goes on.
//
// Outputs:
//   - *DirectoryResult: One FileResult per matched file.
//   - error: ErrDirectoryNotFound, a *ucdl.ConfigurationError for a bad
//     pattern, or a cancelled context.
func (m *Migrator) MigrateDirectory(ctx context.Context, dir, pattern string) (*DirectoryResult, error) {
	ctx, span := startMigrateSpan(ctx, "MigrateDirectory", attribute.String("ucdl.migrate.dir", dir))
	defer span.End()
	start := time.Now()

	re, err := m.matcher(pattern)
	if err != nil {
		return nil, err
	}
	files, err := m.listFiles(dir, re)
	if err != nil {
		return nil, err
	}

	dr := &DirectoryResult{Dir: dir, Files: make([]*FileResult, 0, len(files))}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			dr.Duration = time.Since(start)
			return dr, err
		}
		fr, err := m.MigrateFile(ctx, path)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return dr, ctxErr
			}
			m.logger.Error("failed to migrate file",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			if fr == nil {
				fr = m.failedFile(path, err)
			}
		}
		dr.Files = append(dr.Files, fr)
	}

	dr.Duration = time.Since(start)
	total, _, failed := dr.Totals()
	setBatchSpanResult(span, total, failed)
	m.logger.Info("migrated directory",
		slog.String("dir", dir),
		slog.Int("files", len(dr.Files)),
		slog.Int("constraints", total),
		slog.Int("failed", failed),
	)
	return dr, nil
}

// failedFile records a file that failed before any record was migrated as
// one failed result.
func (m *Migrator) failedFile(path string, err error) *FileResult {
	res := newResult(string(formatForPath(path)), path)
	res.Name = filepath.Base(path)
	res.fail(err.Error())
	m.addEntries(res)
	return &FileResult{Path: path, Results: []*Result{res}}
}

// listFiles returns the files under dir whose base name matches re.
func (m *Migrator) listFiles(dir string, re *regexp.Regexp) ([]string, error) {
	ok, err := afero.DirExists(m.fs, dir)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", dir, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDirectoryNotFound, dir)
	}

	var files []string
	err = afero.Walk(m.fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path != dir && skippedDirs[info.Name()] {
				return fs.SkipDir
			}
			return nil
		}
		if IsGenerated(path) || !re.MatchString(info.Name()) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	return files, nil
}
