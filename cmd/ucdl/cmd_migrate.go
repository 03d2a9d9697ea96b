// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianUCDL/pkg/telemetry"
	"github.com/AleutianAI/AleutianUCDL/pkg/ux"
	"github.com/AleutianAI/AleutianUCDL/services/constraints/migrate"
	"github.com/AleutianAI/AleutianUCDL/services/constraints/report"
	"github.com/AleutianAI/AleutianUCDL/services/constraints/source"
)

// runFlags are shared by every migrate subcommand.
type runFlags struct {
	reportPath   string
	reportFormat string
	noHistory    bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.reportPath, "report", "",
		"Write the migration report to this file")
	cmd.Flags().StringVar(&f.reportFormat, "report-format", "",
		"Report format: json, yaml (default: from the report file extension)")
	cmd.Flags().BoolVar(&f.noHistory, "no-history", false,
		"Do not record this run in the history database")
}

// MigrateOutput is the data of a migrate command's JSON envelope.
type MigrateOutput struct {
	RunID           string                `json:"run_id"`
	DryRun          bool                  `json:"dry_run"`
	Files           []*migrate.FileResult `json:"files,omitempty"`
	Results         []*migrate.Result     `json:"results,omitempty"`
	OutputPath      string                `json:"output_path,omitempty"`
	Statistics      report.Statistics     `json:"statistics"`
	Recommendations []string              `json:"recommendations"`
	LoggedProblems  int                   `json:"logged_problems"`
	ReportPath      string                `json:"report_path,omitempty"`
	HistorySaved    bool                  `json:"history_saved"`
}

func (a *app) migrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate legacy constraints to UCDL",
		Long: `Migrate legacy constraints to UCDL.

Each migrated file <name>.<ext> produces <name>.ucdl.json next to it
holding the successfully migrated constraints. Unless --dry-run is set,
a backup <name>.<ext>.backup.<epoch-ms> is written first.

Examples:
  ucdl migrate file rules/rest.js
  ucdl migrate dir ./legacy --pattern '\.ya?ml$'
  ucdl migrate db legacy.sqlite --table constraints
  ucdl migrate one --format database row.json
  ucdl migrate watch ./legacy --metric-exporter prometheus --metrics-addr :9464`,
	}
	cmd.AddCommand(
		a.migrateFileCommand(),
		a.migrateDirCommand(),
		a.migrateDBCommand(),
		a.migrateOneCommand(),
		a.migrateWatchCommand(),
	)
	return cmd
}

func (a *app) migrateFileCommand() *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "file <path>...",
		Short: "Migrate the constraints defined in files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			m := a.newMigrator()
			out := &MigrateOutput{}
			for _, path := range args {
				fr, err := m.MigrateFile(cmd.Context(), path)
				if err != nil {
					return err
				}
				out.Files = append(out.Files, fr)
				a.printFile(fr)
			}
			return a.finishRun(cmd, start, m, out, flags)
		},
	}
	flags.register(cmd)
	return cmd
}

func (a *app) migrateDirCommand() *cobra.Command {
	var (
		flags   runFlags
		pattern string
	)
	cmd := &cobra.Command{
		Use:   "dir <directory>",
		Short: "Migrate every matching file under a directory",
		Long: `Migrate every matching file under a directory.

Files are matched by base name against --pattern, a regular expression.
Migration outputs, backups, node_modules and .git are skipped. A file
that fails is reported and the walk continues.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			m := a.newMigrator()
			dr, err := m.MigrateDirectory(cmd.Context(), args[0], pattern)
			if err != nil {
				return err
			}
			for _, fr := range dr.Files {
				a.printFile(fr)
			}
			return a.finishRun(cmd, start, m, &MigrateOutput{Files: dr.Files}, flags)
		},
	}
	cmd.Flags().StringVar(&pattern, "pattern", "",
		"File name pattern (default: the configured file_pattern)")
	flags.register(cmd)
	return cmd
}

func (a *app) migrateDBCommand() *cobra.Command {
	var (
		flags   runFlags
		table   string
		outPath string
	)
	cmd := &cobra.Command{
		Use:   "db <sqlite-file>",
		Short: "Migrate the rows of a legacy SQLite constraints table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			db, err := source.OpenSQLite(args[0])
			if err != nil {
				return err
			}
			defer db.Close()

			recs, err := source.LoadSQLiteTable(cmd.Context(), db, table)
			if err != nil {
				return err
			}
			m := a.newMigrator()
			results, err := m.MigrateRecords(cmd.Context(), recs)
			if err != nil {
				return err
			}

			out := &MigrateOutput{Results: results}
			if outPath == "" {
				outPath = migrate.OutputPath(args[0])
			}
			if countSuccessful(results) > 0 && !a.cfg.DryRun {
				if err := m.WriteConstraints(outPath, results); err != nil {
					return err
				}
				out.OutputPath = outPath
			}
			a.printResults(fmt.Sprintf("%s:%s", args[0], table), results, out.OutputPath)
			return a.finishRun(cmd, start, m, out, flags)
		},
	}
	cmd.Flags().StringVar(&table, "table", source.DefaultTable, "Table holding the legacy constraints")
	cmd.Flags().StringVarP(&outPath, "out", "o", "",
		"Output file (default: <sqlite-file without extension>.ucdl.json)")
	flags.register(cmd)
	return cmd
}

func (a *app) migrateOneCommand() *cobra.Command {
	var (
		flags   runFlags
		format  string
		outPath string
	)
	cmd := &cobra.Command{
		Use:   "one [path|-]",
		Short: "Migrate a single constraint and print it",
		Long: `Migrate a single constraint and print the UCDL result.

The input is read from the given file, or from stdin when the path is
"-" or omitted. --format selects how it is read: object (JSON or YAML),
class (JavaScript or TypeScript source) or database (a JSON row).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			f, err := source.ParseFormat(format)
			if err != nil {
				return err
			}
			input, err := a.readInput(cmd, args)
			if err != nil {
				return err
			}

			m := a.newMigrator()
			res, err := m.MigrateOne(cmd.Context(), input, f)
			if err != nil {
				return err
			}
			out := &MigrateOutput{Results: []*migrate.Result{res}}
			if res.Success && outPath != "" && !a.cfg.DryRun {
				if err := m.WriteConstraints(outPath, out.Results); err != nil {
					return err
				}
				out.OutputPath = outPath
			}
			if a.human() && res.Success && outPath == "" {
				if err := a.printConstraint(res); err != nil {
					return err
				}
			}
			a.printResults("input", out.Results, out.OutputPath)
			return a.finishRun(cmd, start, m, out, flags)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", string(source.FormatObject),
		"Input format: object, class, database")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write the constraint to this file")
	flags.register(cmd)
	return cmd
}

func (a *app) migrateWatchCommand() *cobra.Command {
	var (
		flags       runFlags
		pattern     string
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "watch <directory>",
		Short: "Re-migrate files whenever they change",
		Long: `Watch a directory and re-migrate matching files whenever they change.

Runs until interrupted, then prints and records the report of every
migration made while watching. With --metrics-addr and the prometheus
metric exporter, /metrics is served on that address.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			m := a.newMigrator()
			out := &MigrateOutput{}

			g, ctx := errgroup.WithContext(cmd.Context())
			if metricsAddr != "" {
				handler := telemetry.MetricsHandler()
				if handler == nil {
					return errors.New("--metrics-addr requires --metric-exporter prometheus")
				}
				g.Go(func() error { return serveMetrics(ctx, metricsAddr, handler) })
			}
			g.Go(func() error {
				return m.Watch(ctx, args[0], pattern, func(fr *migrate.FileResult, err error) {
					if err != nil {
						if a.human() {
							a.printer.Error(err.Error())
						}
						return
					}
					out.Files = append(out.Files, fr)
					a.printFile(fr)
				})
			})
			if a.human() {
				a.printer.Info(fmt.Sprintf("Watching %s (Ctrl+C to stop)", args[0]))
			}
			if err := g.Wait(); err != nil {
				return err
			}
			return a.finishRun(cmd, start, m, out, flags)
		},
	}
	cmd.Flags().StringVar(&pattern, "pattern", "",
		"File name pattern (default: the configured file_pattern)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "",
		"Serve Prometheus metrics on this address, e.g. :9464")
	flags.register(cmd)
	return cmd
}

// serveMetrics serves handler on /metrics until ctx is done.
func serveMetrics(ctx context.Context, addr string, handler http.Handler) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve metrics on %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// readInput reads the single input of "migrate one".
func (a *app) readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := afero.ReadFile(a.fs, args[0])
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", args[0], err)
	}
	return data, nil
}

// finishRun closes the report, exports and records it, prints the summary
// and sets the exit code.
func (a *app) finishRun(cmd *cobra.Command, start time.Time, m *migrate.Migrator, out *MigrateOutput, flags runFlags) error {
	r := m.Report()
	r.Finish()

	if flags.reportPath != "" {
		if err := a.exportReport(r, flags.reportPath, flags.reportFormat); err != nil {
			return err
		}
		out.ReportPath = flags.reportPath
	}

	if !flags.noHistory {
		saved, err := a.saveHistory(cmd.Context(), r)
		if err != nil {
			a.logger.Warn("failed to record run history", "run_id", r.RunID, "error", err)
			if a.human() {
				a.printer.Warning(fmt.Sprintf("run history not saved: %v", err))
			}
		}
		out.HistorySaved = saved
	}

	stats := r.Statistics()
	out.RunID = r.RunID
	out.DryRun = a.cfg.DryRun
	out.Statistics = stats
	out.Recommendations = r.Recommendations()
	out.LoggedProblems = a.loggedProblems()

	if a.human() {
		a.printSummary(out)
	}
	a.exitCode = OutputResult(a.stdout, a.output, cmd.CommandPath(), start, out, stats.Failed > 0)
	return nil
}

// exportReport writes r to path in the requested or inferred format.
func (a *app) exportReport(r *report.Report, path, format string) error {
	if format == "" {
		format = strings.TrimPrefix(filepath.Ext(path), ".")
	}
	f, err := report.ParseExportFormat(format)
	if err != nil {
		return err
	}
	file, err := a.fs.Create(path)
	if err != nil {
		return fmt.Errorf("create report %s: %w", path, err)
	}
	if err := report.WriteDocument(file, r.Document(), f); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// saveHistory records r in the run history when it is enabled.
func (a *app) saveHistory(ctx context.Context, r *report.Report) (bool, error) {
	store, err := a.openHistory()
	if err != nil || store == nil {
		return false, err
	}
	defer store.Close()
	if err := store.Save(ctx, r); err != nil {
		return false, err
	}
	return true, nil
}

// printConstraint writes the migrated constraint as indented JSON.
func (a *app) printConstraint(res *migrate.Result) error {
	v, err := res.Constraint.ToValue()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode constraint: %w", err)
	}
	_, err = fmt.Fprintf(a.stdout, "%s\n", data)
	return err
}

// printFile prints the status line of one migrated file.
func (a *app) printFile(fr *migrate.FileResult) {
	a.printResults(fr.Path, fr.Results, fr.OutputPath)
}

func (a *app) printResults(label string, results []*migrate.Result, outputPath string) {
	if !a.human() {
		return
	}
	failed := len(results) - countSuccessful(results)
	icon := ux.IconSuccess
	switch {
	case len(results) == 0:
		icon = ux.IconPending
	case failed == len(results):
		icon = ux.IconError
	case failed > 0 || countWarnings(results) > 0:
		icon = ux.IconWarning
	}

	reason := fmt.Sprintf("%d constraints, %d failed", len(results), failed)
	if outputPath != "" {
		reason += fmt.Sprintf(" %s %s", ux.IconArrow, outputPath)
	}
	a.printer.FileStatus(label, icon, reason)

	for _, r := range results {
		if !r.Success && len(r.Errors) > 0 {
			a.printer.Muted(fmt.Sprintf("    %s: %s", r.Name, r.Errors[0]))
		}
	}
}

func (a *app) printSummary(out *MigrateOutput) {
	stats := out.Statistics
	a.printer.Summary(stats.Successful, stats.Failed, stats.Total)
	if stats.Total > 0 {
		a.printer.Info("Average quality " + a.printer.ScoreBar(stats.AverageQuality, 20))
	}
	if out.LoggedProblems > 0 {
		a.printer.Muted(fmt.Sprintf("%d warnings or errors were logged", out.LoggedProblems))
	}
	if len(out.Recommendations) > 0 {
		a.printer.Box("Recommendations", "• "+strings.Join(out.Recommendations, "\n• "))
	}
	if out.DryRun {
		a.printer.WarningBox("Dry run", "No files were written.")
	}
	if out.ReportPath != "" {
		a.printer.Success("Report written to " + out.ReportPath)
	}
}

func countSuccessful(results []*migrate.Result) int {
	n := 0
	for _, r := range results {
		if r.Success {
			n++
		}
	}
	return n
}

func countWarnings(results []*migrate.Result) int {
	n := 0
	for _, r := range results {
		n += len(r.Warnings)
	}
	return n
}
