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
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianUCDL/services/constraints/config"
)

func (a *app) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage ucdl settings",
	}
	cmd.AddCommand(a.configInitCommand(), a.configShowCommand())
	return cmd
}

func (a *app) configInitCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:         "init [path]",
		Short:       "Write the default settings file",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{annotationNoSetup: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			path := config.FileName
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteDefault(a.fs, path, force); err != nil {
				return err
			}
			if a.human() {
				a.printer.Success("Wrote " + path)
			}
			data := map[string]string{"path": path}
			a.exitCode = OutputResult(a.stdout, a.output, cmd.CommandPath(), start, data, false)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing file")
	return cmd
}

func (a *app) configShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings",
		Long: `Print the effective settings after merging the settings file,
UCDL_* environment variables and flags.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start := time.Now()
			if a.output.JSON {
				a.exitCode = OutputResult(a.stdout, a.output, cmd.CommandPath(), start, a.cfg, false)
				return nil
			}
			if a.output.Quiet {
				return nil
			}
			data, err := config.Marshal(*a.cfg)
			if err != nil {
				return err
			}
			_, err = a.stdout.Write(data)
			return err
		},
	}
}
