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
	"fmt"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianUCDL/pkg/ux"
	"github.com/AleutianAI/AleutianUCDL/services/constraints/ucdl"
	"github.com/AleutianAI/AleutianUCDL/services/constraints/validate"
	"github.com/AleutianAI/AleutianUCDL/services/constraints/value"
)

// ConstraintValidation is one validated constraint.
type ConstraintValidation struct {
	ID     string           `json:"id"`
	Name   string           `json:"name,omitempty"`
	Passed bool             `json:"passed"`
	Result *validate.Result `json:"result"`
}

// FileValidation groups the constraints of one document.
type FileValidation struct {
	Path        string                 `json:"path"`
	Error       string                 `json:"error,omitempty"`
	Constraints []ConstraintValidation `json:"constraints"`
}

// ValidateOutput is the data of the validate command's JSON envelope.
type ValidateOutput struct {
	Files        []FileValidation `json:"files"`
	Total        int              `json:"total"`
	Passed       int              `json:"passed"`
	Failed       int              `json:"failed"`
	AverageScore float64          `json:"average_score"`
}

type validatedItem struct {
	file  int
	value value.Value
}

func (a *app) validateCommand() *cobra.Command {
	var (
		minScore  int
		crossFile bool
	)
	cmd := &cobra.Command{
		Use:   "validate <file.ucdl.json>...",
		Short: "Validate UCDL documents",
		Long: `Validate UCDL documents: a JSON array of constraints or a single
constraint object per file.

Structure, types, logic, parameters, conditions, metadata and
performance are checked for every constraint, and duplicate ids,
missing dependencies, dependency cycles and conflicting hard
constraints across each document. With --cross-file all documents are
checked together, so dependencies may span files.

Examples:
  ucdl validate rules.ucdl.json
  ucdl validate --cross-file --min-score 80 legacy/*.ucdl.json

Exit Codes:
  0 = Every constraint is valid and meets --min-score
  1 = Some constraint is invalid, scores below --min-score, or a file could not be read
  2 = Error`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			v := validate.New()
			out := &ValidateOutput{Files: make([]FileValidation, len(args))}

			var pending []validatedItem
			flush := func() {
				values := make([]value.Value, len(pending))
				for i, it := range pending {
					values[i] = it.value
				}
				for i, res := range v.ValidateAll(values) {
					it := pending[i]
					out.Files[it.file].Constraints = append(out.Files[it.file].Constraints,
						newConstraintValidation(it.value, res, minScore))
				}
				pending = pending[:0]
			}

			for i, path := range args {
				out.Files[i] = FileValidation{Path: path, Constraints: []ConstraintValidation{}}
				items, err := a.readDocument(path)
				if err != nil {
					out.Files[i].Error = err.Error()
					continue
				}
				for _, item := range items {
					pending = append(pending, validatedItem{file: i, value: item})
				}
				if !crossFile {
					flush()
				}
			}
			flush()

			findings := out.tally()
			if a.human() {
				a.printValidation(out)
			}
			a.exitCode = OutputResult(a.stdout, a.output, cmd.CommandPath(), start, out, findings)
			return nil
		},
	}
	cmd.Flags().IntVar(&minScore, "min-score", 0, "Fail constraints scoring below this (0-100)")
	cmd.Flags().BoolVar(&crossFile, "cross-file", false, "Check dependencies and conflicts across all files")
	return cmd
}

func (a *app) readDocument(path string) ([]value.Value, error) {
	data, err := afero.ReadFile(a.fs, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	items, err := ucdl.DecodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return items, nil
}

func newConstraintValidation(item value.Value, res *validate.Result, minScore int) ConstraintValidation {
	id, _ := item.Get("id").AsString()
	name, _ := item.Get("name").AsString()
	return ConstraintValidation{
		ID:     id,
		Name:   name,
		Passed: res.IsValid && res.Score >= minScore,
		Result: res,
	}
}

// tally fills the counters and reports whether anything failed.
func (o *ValidateOutput) tally() bool {
	var scoreSum int
	unreadable := false
	for _, f := range o.Files {
		if f.Error != "" {
			unreadable = true
		}
		for _, c := range f.Constraints {
			o.Total++
			scoreSum += c.Result.Score
			if c.Passed {
				o.Passed++
			}
		}
	}
	o.Failed = o.Total - o.Passed
	if o.Total > 0 {
		o.AverageScore = float64(scoreSum) / float64(o.Total)
	}
	return unreadable || o.Failed > 0
}

func (a *app) printValidation(out *ValidateOutput) {
	for _, f := range out.Files {
		if f.Error != "" {
			a.printer.FileStatus(f.Path, ux.IconError, f.Error)
			continue
		}
		a.printer.Title(f.Path)
		for _, c := range f.Constraints {
			label := c.ID
			if label == "" {
				label = "(no id)"
			}
			icon := ux.IconSuccess
			switch {
			case !c.Passed:
				icon = ux.IconError
			case len(c.Result.Warnings) > 0:
				icon = ux.IconWarning
			}
			a.printer.FileStatus(label, icon, fmt.Sprintf("score %d", c.Result.Score))
			for _, msg := range c.Result.Errors {
				a.printer.Muted("    error: " + msg)
			}
			for _, msg := range c.Result.Warnings {
				a.printer.Muted("    warning: " + msg)
			}
		}
	}
	a.printer.Summary(out.Passed, out.Failed, out.Total)
	if out.Total > 0 {
		a.printer.Info("Average score " + a.printer.ScoreBar(out.AverageScore, 20))
	}
}
