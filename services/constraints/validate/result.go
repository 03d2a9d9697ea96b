// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validate

// Severity of a check.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Group names a family of checks.
type Group string

const (
	GroupStructure    Group = "structure"
	GroupTypes        Group = "types"
	GroupLogic        Group = "logic"
	GroupParameters   Group = "parameters"
	GroupConditions   Group = "conditions"
	GroupMetadata     Group = "metadata"
	GroupDependencies Group = "dependencies"
	GroupPerformance  Group = "performance"
	GroupBatch        Group = "batch"
)

// Impact is the coarse performance-impact estimate.
type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

// Check is the outcome of one named check.
type Check struct {
	Name     string   `json:"name"`
	Group    Group    `json:"group"`
	Severity Severity `json:"severity"`
	Passed   bool     `json:"passed"`
	Message  string   `json:"message,omitempty"`
}

// Details summarizes a result per concern.
type Details struct {
	StructureValid    bool   `json:"structureValid"`
	TypesValid        bool   `json:"typesValid"`
	LogicValid        bool   `json:"logicValid"`
	PerformanceImpact Impact `json:"performanceImpact"`
	Completeness      int    `json:"completeness"`
}

// Result is the validation outcome for one constraint.
//
// A result is invalid when any error-severity check failed. Warnings and
// info-level suggestions only lower the score.
type Result struct {
	IsValid     bool     `json:"isValid"`
	Errors      []string `json:"errors"`
	Warnings    []string `json:"warnings"`
	Suggestions []string `json:"suggestions"`
	Score       int      `json:"score"`
	Details     Details  `json:"details"`
	Checks      []Check  `json:"checks"`
}

// Score penalties.
const (
	errorPenalty   = 10
	warningPenalty = 3
)

func newResult() *Result {
	return &Result{
		Errors:      []string{},
		Warnings:    []string{},
		Suggestions: []string{},
		Checks:      []Check{},
	}
}

// pass records a passed check.
func (r *Result) pass(group Group, name string, severity Severity) {
	r.Checks = append(r.Checks, Check{Name: name, Group: group, Severity: severity, Passed: true})
}

// fail records a failed check and files its message by severity.
func (r *Result) fail(group Group, name string, severity Severity, message string) {
	r.Checks = append(r.Checks, Check{Name: name, Group: group, Severity: severity, Passed: false, Message: message})
	switch severity {
	case SeverityError:
		r.Errors = append(r.Errors, message)
	case SeverityWarning:
		r.Warnings = append(r.Warnings, message)
	default:
		r.Suggestions = append(r.Suggestions, message)
	}
}

// check records a check that passed when ok holds.
func (r *Result) check(ok bool, group Group, name string, severity Severity, message string) bool {
	if ok {
		r.pass(group, name, severity)
	} else {
		r.fail(group, name, severity, message)
	}
	return ok
}

// suggest adds a free-standing suggestion that is not tied to a check.
func (r *Result) suggest(message string) {
	r.Suggestions = append(r.Suggestions, message)
}

// groupFailed reports whether any check of group failed at or above
// severity.
func (r *Result) groupFailed(group Group, severity Severity) bool {
	for _, c := range r.Checks {
		if c.Group != group || c.Passed {
			continue
		}
		if c.Severity == SeverityError || (severity == SeverityWarning && c.Severity == SeverityWarning) {
			return true
		}
	}
	return false
}

// finalize derives validity, score and group flags from the checks.
func (r *Result) finalize() {
	r.IsValid = len(r.Errors) == 0
	score := 100 - errorPenalty*len(r.Errors) - warningPenalty*len(r.Warnings)
	if score < 0 {
		score = 0
	}
	r.Score = score
	r.Details.StructureValid = !r.groupFailed(GroupStructure, SeverityError)
	r.Details.TypesValid = !r.groupFailed(GroupTypes, SeverityError)
	r.Details.LogicValid = !r.groupFailed(GroupLogic, SeverityWarning)
}

// HasCheckFailure reports whether the named check failed.
func (r *Result) HasCheckFailure(name string) bool {
	for _, c := range r.Checks {
		if c.Name == name && !c.Passed {
			return true
		}
	}
	return false
}
