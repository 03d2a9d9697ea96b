// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ucdl defines the Unified Constraint Definition Language, the
// canonical representation every legacy scheduling constraint is migrated into.
//
// # Shape
//
// A Constraint is classified by four closed enumerations (Type, Scope,
// Category, Priority), carries typed Parameters and tagged Conditions, and
// declares its relationships to other constraints through DependsOn and
// Affects. JSON field names are camelCase and stable: the .ucdl.json files
// written by the migrator are consumed by the schedule generator.
//
// # Invariants
//
//   - ID matches IDPattern and is unique within a batch
//   - Weight is within [MinWeight, MaxWeight]
//   - Priority is within [PriorityCritical, PriorityOptional]
//   - The DependsOn graph of a batch is acyclic (checked by the validator,
//     never repaired)
package ucdl

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/AleutianAI/AleutianUCDL/services/constraints/value"
)

// CurrentVersion is the UCDL document version stamped on migrated constraints.
const CurrentVersion = "1.0.0"

// Weight bounds.
const (
	MinWeight = 0.0
	MaxWeight = 10.0
)

// IDPattern is the allowed shape of constraint identifiers.
var IDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// VersionPattern is the semver shape of Constraint.Version: three numeric
// parts and an optional pre-release or build suffix.
var VersionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+(?:[-+][0-9A-Za-z.-]+)?$`)

// ValidID reports whether id is a well-formed constraint identifier.
func ValidID(id string) bool {
	return IDPattern.MatchString(id)
}

// Parameter is a typed constraint parameter.
type Parameter struct {
	Type        ParameterType `json:"type"`
	Value       value.Value   `json:"value"`
	Required    bool          `json:"required"`
	Description string        `json:"description,omitempty"`
}

// Condition types produced by the migrator. Other types are preserved as-is.
const (
	ConditionFilter   = "filter"
	ConditionTemporal = "temporal"
	ConditionComplex  = "complex"
)

// TemporalPatterns lists the recognized patterns of temporal conditions.
var TemporalPatterns = []string{"range", "daily", "weekly", "monthly", "yearly", "recurring", "blackout"}

// Condition narrows when a constraint applies.
//
// It is a tagged union keyed by Type:
//   - "filter":   Field, Operator, Value
//   - "temporal": Pattern, Start, End
//   - anything else: free-form, Field/Operator/Value used when present
type Condition struct {
	Type     string       `json:"type"`
	Field    string       `json:"field,omitempty"`
	Operator string       `json:"operator,omitempty"`
	Value    *value.Value `json:"value,omitempty"`
	Pattern  string       `json:"pattern,omitempty"`
	Start    string       `json:"start,omitempty"`
	End      string       `json:"end,omitempty"`
}

// FilterCondition builds a filter condition.
func FilterCondition(field, operator string, v value.Value) Condition {
	return Condition{Type: ConditionFilter, Field: field, Operator: operator, Value: &v}
}

// TemporalCondition builds a temporal condition.
func TemporalCondition(pattern, start, end string) Condition {
	return Condition{Type: ConditionTemporal, Pattern: pattern, Start: start, End: end}
}

// MigrationInfo records where a constraint came from.
type MigrationInfo struct {
	SourceType   string       `json:"sourceType"`
	SourceFormat string       `json:"sourceFormat,omitempty"`
	SourcePath   string       `json:"sourcePath,omitempty"`
	MigratedAt   string       `json:"migratedAt"`
	ToolVersion  string       `json:"toolVersion"`
	HasEvaluate  bool         `json:"hasEvaluate,omitempty"`
	Complexity   int          `json:"complexity,omitempty"`
	Warnings     []string     `json:"warnings,omitempty"`
	OriginalData *value.Value `json:"originalData,omitempty"`
}

// Metadata is bookkeeping attached to every constraint.
type Metadata struct {
	Created       string         `json:"created"`
	LastModified  string         `json:"lastModified"`
	Author        string         `json:"author"`
	Tags          []string       `json:"tags"`
	Documentation string         `json:"documentation,omitempty"`
	MigrationInfo *MigrationInfo `json:"migrationInfo,omitempty"`
}

// Constraint is a UCDL constraint definition.
type Constraint struct {
	ID                 string               `json:"id"`
	Name               string               `json:"name"`
	Description        string               `json:"description"`
	Version            string               `json:"version"`
	Type               ConstraintType       `json:"type"`
	Scope              Scope                `json:"scope"`
	Category           Category             `json:"category"`
	Priority           Priority             `json:"priority"`
	Weight             float64              `json:"weight"`
	Penalty            float64              `json:"penalty"`
	Parameters         map[string]Parameter `json:"parameters"`
	Conditions         []Condition          `json:"conditions"`
	ResolutionStrategy ResolutionStrategy   `json:"resolutionStrategy"`
	FallbackOptions    []value.Value        `json:"fallbackOptions"`
	DependsOn          []string             `json:"dependsOn"`
	Affects            []string             `json:"affects"`
	IsActive           bool                 `json:"isActive"`
	Metadata           Metadata             `json:"metadata"`
}

// ToValue converts c into its untyped JSON form. Nil slices and maps are
// emitted as empty arrays and objects.
func (c *Constraint) ToValue() (value.Value, error) {
	normalized := *c
	if normalized.Parameters == nil {
		normalized.Parameters = map[string]Parameter{}
	}
	if normalized.Conditions == nil {
		normalized.Conditions = []Condition{}
	}
	if normalized.FallbackOptions == nil {
		normalized.FallbackOptions = []value.Value{}
	}
	if normalized.DependsOn == nil {
		normalized.DependsOn = []string{}
	}
	if normalized.Affects == nil {
		normalized.Affects = []string{}
	}
	if normalized.Metadata.Tags == nil {
		normalized.Metadata.Tags = []string{}
	}

	data, err := json.Marshal(&normalized)
	if err != nil {
		return value.Null(), fmt.Errorf("marshal constraint %s: %w", c.ID, err)
	}
	return value.Decode(data)
}

// DecodeDocument reads a UCDL document: either a JSON array of constraints
// or a single constraint object. Items are returned untyped so that the
// validator can report malformed fields instead of failing to decode.
func DecodeDocument(data []byte) ([]value.Value, error) {
	doc, err := value.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode UCDL document: %w", err)
	}
	if items, ok := doc.AsArray(); ok {
		return items, nil
	}
	if doc.Kind() == value.KindObject {
		return []value.Value{doc}, nil
	}
	return nil, fmt.Errorf("decode UCDL document: expected array or object, got %s", doc.Kind())
}
