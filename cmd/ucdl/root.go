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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianUCDL/pkg/logging"
	"github.com/AleutianAI/AleutianUCDL/pkg/telemetry"
	"github.com/AleutianAI/AleutianUCDL/pkg/ux"
	"github.com/AleutianAI/AleutianUCDL/services/constraints/config"
	"github.com/AleutianAI/AleutianUCDL/services/constraints/migrate"
	"github.com/AleutianAI/AleutianUCDL/services/constraints/report"
)

// annotationNoSetup marks commands that run without loading settings.
const annotationNoSetup = "ucdl/no-setup"

// app carries the state shared by every command of one invocation.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	fs     afero.Fs

	// Set by flags.
	configPath string
	output     OutputConfig

	// Set by setup.
	cfg      *config.Config
	logger   *logging.Logger
	logs     *logging.BufferedExporter
	printer  *ux.Printer
	shutdown func(context.Context) error

	exitCode int
}

func newApp(stdout, stderr io.Writer, fs afero.Fs) *app {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &app{stdout: stdout, stderr: stderr, fs: fs}
}

// execute runs the command line and returns the process exit code.
func (a *app) execute(ctx context.Context, args []string) int {
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(a.stdout)
	if a.stdin != nil {
		root.SetIn(a.stdin)
	}
	root.SetErr(a.stderr)

	cmd, err := root.ExecuteContextC(ctx)
	if tdErr := a.teardown(ctx); tdErr != nil {
		fmt.Fprintf(a.stderr, "Warning: %v\n", tdErr)
	}
	if err != nil {
		name := root.Name()
		if cmd != nil {
			name = cmd.CommandPath()
		}
		OutputError(a.stdout, a.stderr, a.output, name, err)
		return CLIExitError
	}
	return a.exitCode
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "ucdl",
		Short: "Migrate legacy scheduling constraints to UCDL",
		Long: `Migrate legacy scheduling constraints to the Unified Constraint
Definition Language.

Legacy constraints are read from JavaScript or TypeScript class sources,
JSON or YAML objects, and database rows. Each one is mapped to a UCDL
constraint, validated, and recorded in a migration report.

Settings are read from ucdl.yaml in the working directory or
~/.aleutian/ucdl, from UCDL_* environment variables, and from flags.

Exit Codes:
  0 = Every constraint migrated and validated
  1 = Some constraints failed or were invalid
  2 = Error (bad settings, unreadable input)`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Settings file (default: search for "+config.FileName+")")
	pf.BoolVar(&a.output.JSON, "json", false, "Output as JSON")
	pf.BoolVar(&a.output.Compact, "compact", false, "Compact JSON output")
	pf.BoolVarP(&a.output.Quiet, "quiet", "q", false, "Only exit code, no output")

	def := config.Default()
	pf.Bool("validate", def.ValidateOutput, "Validate every migrated constraint")
	pf.Bool("preserve-metadata", def.PreserveMetadata, "Keep the original record in migration metadata")
	pf.Bool("backup", def.GenerateBackup, "Write a timestamped backup before migrating a file")
	pf.Int("batch-size", def.BatchSize, "Constraints migrated per batch")
	pf.Int("concurrency", def.Concurrency, "Parallel workers within a batch")
	pf.Bool("dry-run", def.DryRun, "Migrate and report without writing files")
	pf.String("log-level", def.LogLevel, "Log level: debug, info, warn, error")
	pf.String("log-dir", def.LogDir, "Also write JSON logs to this directory")
	pf.String("history-dir", def.HistoryDir, "Run history database; empty disables history")
	pf.String("trace-exporter", def.Telemetry.TraceExporter, "Trace exporter: otlp, stdout, none")
	pf.String("metric-exporter", def.Telemetry.MetricExporter, "Metric exporter: prometheus, stdout, none")
	pf.String("metrics-textfile", def.Telemetry.MetricsTextfile, "Write Prometheus metrics to this file on exit")

	root.AddCommand(
		a.migrateCommand(),
		a.validateCommand(),
		a.historyCommand(),
		a.configCommand(),
	)
	return root
}

// setup loads the settings and starts logging and telemetry.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	a.printer = ux.NewPrinter(a.stdout, a.stderr)
	if cmd.Annotations[annotationNoSetup] == "true" {
		return nil
	}

	loader := config.NewLoader(a.fs)
	if err := loader.BindFlags(cmd.Flags()); err != nil {
		return err
	}
	cfg, err := loader.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.logs = logging.NewBufferedExporter()
	logCfg := cfg.Logging("ucdl")
	logCfg.Output = a.stderr
	logCfg.Quiet = a.output.Quiet
	logCfg.Exporter = a.logs
	a.logger = logging.New(logCfg)
	if used := loader.Used(); used != "" {
		a.logger.Debug("loaded settings", "file", used)
	}

	shutdown, err := telemetry.Init(cmd.Context(), cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	a.shutdown = shutdown
	return nil
}

// teardown flushes telemetry and closes the logger. It runs once after
// the command, whether or not the command failed.
func (a *app) teardown(ctx context.Context) error {
	var errs []error
	if a.shutdown != nil {
		defer func() { a.shutdown = nil }()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := a.shutdown(sctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown telemetry: %w", err))
		}
	}
	if a.logger != nil {
		if err := a.logger.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// human reports whether styled output should be printed.
func (a *app) human() bool {
	return !a.output.JSON && !a.output.Quiet
}

// slog returns the library-facing logger.
func (a *app) slog() *slog.Logger {
	if a.logger == nil {
		return slog.Default()
	}
	return a.logger.Slog()
}

// newMigrator builds a migrator over the app's file system with a fresh
// report.
func (a *app) newMigrator() *migrate.Migrator {
	return migrate.New(*a.cfg,
		migrate.WithFs(a.fs),
		migrate.WithLogger(a.slog()),
		migrate.WithReport(report.New()),
	)
}

// openHistory opens the configured run history. It returns nil when
// history is disabled.
func (a *app) openHistory() (*report.HistoryStore, error) {
	if a.cfg.HistoryDir == "" {
		return nil, nil
	}
	return report.OpenHistory(report.HistoryConfig{
		Path:   logging.ExpandPath(a.cfg.HistoryDir),
		Logger: a.slog(),
	})
}

// loggedProblems counts warnings and errors logged so far.
func (a *app) loggedProblems() int {
	if a.logs == nil {
		return 0
	}
	return len(a.logs.AtLeast(logging.LevelWarn))
}
