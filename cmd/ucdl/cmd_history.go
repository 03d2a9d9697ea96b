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
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianUCDL/services/constraints/report"
)

// ErrHistoryDisabled is returned by history commands when no history
// directory is configured.
var ErrHistoryDisabled = errors.New("run history is disabled (history_dir is empty)")

func (a *app) historyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect past migration runs",
	}
	cmd.AddCommand(a.historyListCommand(), a.historyShowCommand(), a.historyPruneCommand())
	return cmd
}

// withHistory opens the run history for the duration of fn.
func (a *app) withHistory(fn func(*report.HistoryStore) error) error {
	store, err := a.openHistory()
	if err != nil {
		return err
	}
	if store == nil {
		return ErrHistoryDisabled
	}
	defer store.Close()
	return fn(store)
}

func (a *app) historyListCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start := time.Now()
			return a.withHistory(func(store *report.HistoryStore) error {
				runs, err := store.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if a.human() {
					if len(runs) == 0 {
						a.printer.Muted("No runs recorded.")
					}
					for _, run := range runs {
						a.printer.Info(fmt.Sprintf("%s  %s  %d/%d successful (%.1f%%)",
							run.RunID, run.StartedAt.Local().Format(time.DateTime),
							run.Successful, run.Total, run.SuccessRate))
					}
				}
				a.exitCode = OutputResult(a.stdout, a.output, cmd.CommandPath(), start, runs, false)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to list (0 = all)")
	return cmd
}

func (a *app) historyShowCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print the report of a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			return a.withHistory(func(store *report.HistoryStore) error {
				doc, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if a.output.JSON {
					a.exitCode = OutputResult(a.stdout, a.output, cmd.CommandPath(), start, doc, false)
					return nil
				}
				if a.output.Quiet {
					return nil
				}
				f, err := report.ParseExportFormat(format)
				if err != nil {
					return err
				}
				return report.WriteDocument(a.stdout, *doc, f)
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "yaml", "Output format: json, yaml")
	return cmd
}

func (a *app) historyPruneCommand() *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start := time.Now()
			return a.withHistory(func(store *report.HistoryStore) error {
				removed, err := store.Prune(cmd.Context(), keep)
				if err != nil {
					return err
				}
				if a.human() {
					a.printer.Success(fmt.Sprintf("Removed %d runs, kept the newest %d", removed, keep))
				}
				data := map[string]int{"removed": removed, "kept": keep}
				a.exitCode = OutputResult(a.stdout, a.output, cmd.CommandPath(), start, data, false)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 50, "Number of newest runs to keep")
	return cmd
}
