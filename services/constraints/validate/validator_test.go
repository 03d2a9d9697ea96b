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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianUCDL/services/constraints/ucdl"
	"github.com/AleutianAI/AleutianUCDL/services/constraints/value"
)

const stamp = "2025-01-01T00:00:00.000Z"

func validConstraint(id string) *ucdl.Constraint {
	return &ucdl.Constraint{
		ID:          id,
		Name:        "Rest",
		Description: "Teams need rest",
		Version:     ucdl.CurrentVersion,
		Type:        ucdl.TypeSoft,
		Scope:       ucdl.ScopeTeam,
		Category:    ucdl.CategoryWellness,
		Priority:    ucdl.PriorityMedium,
		Weight:      3,
		Penalty:     30,
		Parameters: map[string]ucdl.Parameter{
			"minDays": {Type: ucdl.ParamDaysCount, Value: value.Int(2), Required: true},
		},
		Conditions:         []ucdl.Condition{ucdl.FilterCondition("entity", "equals", value.String("team"))},
		ResolutionStrategy: ucdl.ResolutionFallback,
		IsActive:           true,
		Metadata: ucdl.Metadata{
			Created:      stamp,
			LastModified: stamp,
			Author:       "migration_tool",
			Tags:         []string{"migrated", "legacy"},
		},
	}
}

func mustValue(t *testing.T, c *ucdl.Constraint) value.Value {
	t.Helper()
	v, err := c.ToValue()
	require.NoError(t, err)
	return v
}

func TestValidate_Valid(t *testing.T) {
	r := New().Validate(validConstraint("rest_1"))

	assert.True(t, r.IsValid)
	assert.Empty(t, r.Errors)
	assert.Empty(t, r.Warnings)
	assert.Equal(t, 100, r.Score)
	assert.True(t, r.Details.StructureValid)
	assert.True(t, r.Details.TypesValid)
	assert.True(t, r.Details.LogicValid)
	assert.Equal(t, ImpactLow, r.Details.PerformanceImpact)
	assert.Equal(t, 78, r.Details.Completeness)
	assert.Contains(t, r.Suggestions, "Consider adding fallbackOptions")
}

func TestValidate_PriorityOutOfRange(t *testing.T) {
	c := validConstraint("p6")
	c.Priority = 6

	r := New().Validate(c)
	assert.False(t, r.IsValid)
	assert.True(t, r.HasCheckFailure("priority_range"))
	assert.False(t, r.Details.TypesValid)
	assert.Len(t, r.Errors, 1)
	assert.Equal(t, 90, r.Score)
}

func TestValidate_IsPure(t *testing.T) {
	c := validConstraint("pure")
	c.Type = ucdl.TypeHard
	c.Scope = ucdl.ScopeGlobal
	c.Penalty = 10

	v := New()
	first := v.Validate(c)
	second := v.Validate(c)
	assert.Equal(t, first, second)
}

func TestValidate_BusinessRules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *ucdl.Constraint)
		check  string
		sev    Severity
	}{
		{"hard needs penalty", func(c *ucdl.Constraint) { c.Type = ucdl.TypeHard; c.Penalty = 50 }, "hard_penalty", SeverityWarning},
		{"soft weight too high", func(c *ucdl.Constraint) { c.Weight = 7 }, "soft_weight", SeverityWarning},
		{"soft weight zero", func(c *ucdl.Constraint) { c.Weight = 0 }, "soft_weight", SeverityWarning},
		{"critical must be hard", func(c *ucdl.Constraint) { c.Priority = ucdl.PriorityCritical }, "critical_priority_hard", SeverityWarning},
		{"tournament category", func(c *ucdl.Constraint) { c.Scope = ucdl.ScopeTournament }, "tournament_category", SeverityInfo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConstraint("biz")
			tt.mutate(c)
			r := New().Validate(c)
			assert.True(t, r.IsValid)
			require.True(t, r.HasCheckFailure(tt.check), "checks: %+v", r.Checks)
			if tt.sev == SeverityWarning {
				assert.False(t, r.Details.LogicValid)
				assert.Equal(t, 97, r.Score)
			} else {
				assert.True(t, r.Details.LogicValid)
				assert.Equal(t, 100, r.Score)
			}
		})
	}
}

func TestValidateValue_MissingFields(t *testing.T) {
	doc := value.FromObject(value.NewObject().Set("name", value.String("Bare")))
	r := New().ValidateValue(doc)

	assert.False(t, r.IsValid)
	assert.False(t, r.Details.StructureValid)
	assert.Contains(t, r.Errors, "Missing required field: id")
	assert.Contains(t, r.Errors, "Missing required field: metadata")
	assert.Equal(t, 0, r.Score)
	assert.Equal(t, 3, r.Details.Completeness)
}

func TestValidateValue_NotAnObject(t *testing.T) {
	r := New().ValidateValue(value.String("nope"))
	assert.False(t, r.IsValid)
	assert.True(t, r.HasCheckFailure("is_object"))
}

func TestValidateValue_StructureAndTypes(t *testing.T) {
	doc := mustValue(t, validConstraint("ok"))
	obj, _ := doc.AsObject()
	obj.Set("id", value.String("has space"))
	obj.Set("version", value.String("v1"))
	obj.Set("weight", value.Int(11))
	obj.Set("affects", value.String("x"))
	obj.Set("type", value.String("hard"))
	obj.Set("isActive", value.String("yes"))

	r := New().ValidateValue(doc)
	for _, name := range []string{"id_format", "version_format", "weight_range", "affects_is_array", "type_enum", "is_active_boolean"} {
		assert.True(t, r.HasCheckFailure(name), name)
	}
	assert.Contains(t, r.Warnings, "Version 'v1' does not follow semantic versioning (x.y.z)")
}

func TestValidate_VersionSuffix(t *testing.T) {
	c := validConstraint("v")
	c.Version = "1.0.0garbage"
	r := New().Validate(c)
	assert.True(t, r.HasCheckFailure("version_format"))

	c.Version = "1.2.3-beta.2"
	r = New().Validate(c)
	assert.False(t, r.HasCheckFailure("version_format"))
}

func TestParameterValueMatches(t *testing.T) {
	tests := []struct {
		ptype ucdl.ParameterType
		v     value.Value
		want  bool
	}{
		{ucdl.ParamInteger, value.Int(3), true},
		{ucdl.ParamInteger, value.Number(2.5), false},
		{ucdl.ParamFloat, value.Number(2.5), true},
		{ucdl.ParamBoolean, value.Bool(false), true},
		{ucdl.ParamBoolean, value.String("true"), false},
		{ucdl.ParamDate, value.String("2025-03-01"), true},
		{ucdl.ParamDate, value.String("2025-03-01T10:00:00Z"), true},
		{ucdl.ParamDate, value.String("2025-13-01"), false},
		{ucdl.ParamTime, value.String("19:30"), true},
		{ucdl.ParamTime, value.String("25:00"), false},
		{ucdl.ParamArray, value.Strings("a"), true},
		{ucdl.ParamObject, value.FromObject(value.NewObject()), true},
		{ucdl.ParamObject, value.Strings(), false},
		{ucdl.ParamDaysCount, value.Int(2), true},
		{ucdl.ParamDaysCount, value.Int(-1), false},
		{ucdl.ParameterType("STRING"), value.String("x"), false},
	}
	for _, tt := range tests {
		t.Run(string(tt.ptype)+"/"+tt.v.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, ParameterValueMatches(tt.ptype, tt.v))
		})
	}
}

func TestValidate_ParametersConditionsMetadata(t *testing.T) {
	c := validConstraint("mixed")
	c.Parameters["kickoff"] = ucdl.Parameter{Type: ucdl.ParamTime, Value: value.String("7pm")}
	c.Parameters["bogus"] = ucdl.Parameter{Type: "STRING", Value: value.String("x")}
	c.Conditions = append(c.Conditions,
		ucdl.TemporalCondition("hourly", "", ""),
		ucdl.Condition{Type: ucdl.ConditionFilter, Field: "sport"},
		ucdl.Condition{},
	)
	c.Metadata.Created = "yesterday"

	r := New().Validate(c)
	assert.False(t, r.IsValid)
	assert.True(t, r.HasCheckFailure("parameter_value:kickoff"))
	assert.True(t, r.HasCheckFailure("parameter_type:bogus"))
	assert.True(t, r.HasCheckFailure("condition_pattern:1"))
	assert.True(t, r.HasCheckFailure("condition_filter:2"))
	assert.True(t, r.HasCheckFailure("condition_type:3"))
	assert.True(t, r.HasCheckFailure("metadata_created_format"))
	assert.False(t, r.HasCheckFailure("metadata_lastModified_format"))
}

func TestValidate_Dependencies(t *testing.T) {
	c := validConstraint("deps")
	c.DependsOn = []string{"travel_1", "bad id"}
	c.Affects = []string{"travel_1"}

	r := New().Validate(c)
	assert.True(t, r.HasCheckFailure("dependsOn_id:bad id"))
	assert.True(t, r.HasCheckFailure("dependency_overlap:travel_1"))
}

func TestValidate_PerformanceImpact(t *testing.T) {
	c := validConstraint("perf")
	c.Type = ucdl.TypeHard
	c.Penalty = 1000
	c.Scope = ucdl.ScopeGlobal
	c.Conditions = append(c.Conditions, ucdl.Condition{Type: ucdl.ConditionComplex})

	r := New().Validate(c)
	assert.Equal(t, ImpactHigh, r.Details.PerformanceImpact)
	assert.True(t, r.HasCheckFailure("global_hard"))

	assert.Equal(t, ImpactMedium, ImpactFor(4))
	assert.Equal(t, ImpactLow, ImpactFor(3))
	assert.Equal(t, ImpactHigh, ImpactFor(8))
}

func TestCompleteness_Clamped(t *testing.T) {
	c := validConstraint("full")
	c.Description = "A thorough description that is comfortably longer than fifty characters."
	c.FallbackOptions = []value.Value{value.String("reschedule")}
	c.Metadata.Documentation = "See runbook."

	obj, _ := mustValue(t, c).AsObject()
	assert.Equal(t, 100, Completeness(obj))
}
