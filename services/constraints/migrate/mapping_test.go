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
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianUCDL/services/constraints/config"
	"github.com/AleutianAI/AleutianUCDL/services/constraints/source"
	"github.com/AleutianAI/AleutianUCDL/services/constraints/ucdl"
	"github.com/AleutianAI/AleutianUCDL/services/constraints/value"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

// sequentialIDs returns an id generator yielding gen_1, gen_2, ...
func sequentialIDs() func(time.Time) string {
	n := 0
	return func(time.Time) string {
		n++
		return fmt.Sprintf("gen_%d", n)
	}
}

func testMigrator(t *testing.T, opts ...Option) *Migrator {
	t.Helper()
	cfg := config.Default()
	base := []Option{WithClock(fixedClock), WithIDGenerator(sequentialIDs())}
	return New(cfg, append(base, opts...)...)
}

func parseOne(t *testing.T, raw string) *source.Record {
	t.Helper()
	recs, err := source.NewParser().Parse(context.Background(), []byte(raw), source.FormatObject)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	return recs[0]
}

func convertJSON(t *testing.T, raw string) (*ucdl.Constraint, []string) {
	t.Helper()
	c, warnings, err := testMigrator(t).ConvertToUCDL(parseOne(t, raw))
	require.NoError(t, err)
	return c, warnings
}

func TestConvert_MinimumRestDays(t *testing.T) {
	c, _ := convertJSON(t, `{"name":"Minimum Rest Days","type":"HARD","category":"REST","parameters":{"minDays":2},"weight":1.0,"isHard":true}`)

	assert.Equal(t, ucdl.TypeHard, c.Type)
	assert.Equal(t, ucdl.CategoryWellness, c.Category)
	assert.Equal(t, 1000.0, c.Penalty)
	assert.Equal(t, ucdl.ResolutionStrict, c.ResolutionStrategy)
	assert.Equal(t, ucdl.PriorityHigh, c.Priority)
	assert.Equal(t, ucdl.ScopeGame, c.Scope)
	assert.Equal(t, ucdl.CurrentVersion, c.Version)
	assert.True(t, c.IsActive)

	require.Contains(t, c.Parameters, "minDays")
	p := c.Parameters["minDays"]
	assert.Equal(t, ucdl.ParamDaysCount, p.Type)
	assert.True(t, p.Value.Equal(value.Int(2)))
	assert.True(t, p.Required)
}

func TestConvert_TypeRules(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ucdl.ConstraintType
		penalty float64
		res     ucdl.ResolutionStrategy
	}{
		{"soft by weight", `{"name":"Evening games","weight":0.8}`, ucdl.TypeSoft, 8, ucdl.ResolutionFallback},
		{"hard by weight", `{"name":"Venue lock","weight":3}`, ucdl.TypeHard, 1000, ucdl.ResolutionStrict},
		{"isHard wins over type", `{"name":"x","isHard":true,"type":"soft","weight":0.1}`, ucdl.TypeHard, 1000, ucdl.ResolutionStrict},
		{"type keyword", `{"name":"x","type":"Flexible Rule","weight":2}`, ucdl.TypeFlexible, 20, ucdl.ResolutionFallback},
		{"conditional keyword", `{"name":"x","constraintType":"conditional"}`, ucdl.TypeConditional, 10, ucdl.ResolutionFallback},
		{"isHard false", `{"name":"x","isHard":false,"weight":4}`, ucdl.TypeSoft, 40, ucdl.ResolutionFallback},
		{"no signal uses default weight", `{"name":"x"}`, ucdl.TypeHard, 1000, ucdl.ResolutionStrict},
		{"non-numeric weight uses default", `{"name":"x","weight":"heavy"}`, ucdl.TypeHard, 1000, ucdl.ResolutionStrict},
		{"unknown type falls back to weight", `{"name":"x","type":"mystery","weight":0.3}`, ucdl.TypeSoft, 3, ucdl.ResolutionFallback},
		{"explicit penalty", `{"name":"x","isHard":true,"penalty":250}`, ucdl.TypeHard, 250, ucdl.ResolutionStrict},
		{"override", `{"name":"x","weight":0.5,"allowOverride":true}`, ucdl.TypeSoft, 5, ucdl.ResolutionOverride},
		{"negotiable", `{"name":"x","weight":0.5,"negotiable":true}`, ucdl.TypeSoft, 5, ucdl.ResolutionNegotiate},
		{"explicit strategy", `{"name":"x","weight":0.5,"resolutionStrategy":"negotiate"}`, ucdl.TypeSoft, 5, ucdl.ResolutionNegotiate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := convertJSON(t, tt.input)
			assert.Equal(t, tt.want, c.Type)
			assert.Equal(t, tt.penalty, c.Penalty)
			assert.Equal(t, tt.res, c.ResolutionStrategy)
		})
	}
}

func TestConvert_ScopeAndCategory(t *testing.T) {
	tests := []struct {
		input    string
		scope    ucdl.Scope
		category ucdl.Category
	}{
		{`{"name":"Global blackout"}`, ucdl.ScopeGlobal, ucdl.CategoryOperational},
		{`{"name":"Team travel limit"}`, ucdl.ScopeTeam, ucdl.CategoryTravel},
		{`{"name":"Venue availability"}`, ucdl.ScopeVenue, ucdl.CategorySpatial},
		{`{"name":"No games before 10am","category":"time"}`, ucdl.ScopeGame, ucdl.CategoryTemporal},
		{`{"name":"Championship TV window","category":"broadcast"}`, ucdl.ScopeTournament, ucdl.CategoryBroadcast},
		{`{"name":"Season balance"}`, ucdl.ScopeSeason, ucdl.CategoryCompetitive},
		{`{"name":"Exam week","category":"academic"}`, ucdl.ScopeGame, ucdl.CategoryAcademic},
		{`{"name":"League rule 4.2"}`, ucdl.ScopeGame, ucdl.CategoryRegulatory},
		{`{"name":"anything","scope":"sport","category":"TRAVEL"}`, ucdl.ScopeSport, ucdl.CategoryTravel},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			c, _ := convertJSON(t, tt.input)
			assert.Equal(t, tt.scope, c.Scope)
			assert.Equal(t, tt.category, c.Category)
		})
	}
}

func TestConvert_Priority(t *testing.T) {
	tests := []struct {
		input string
		want  ucdl.Priority
	}{
		{`{"name":"x","priority":6}`, ucdl.PriorityOptional},
		{`{"name":"x","priority":-3}`, ucdl.PriorityCritical},
		{`{"name":"x","priority":2.4}`, ucdl.PriorityHigh},
		{`{"name":"x","priority":"4"}`, ucdl.PriorityLow},
		{`{"name":"x","priority":"Highest"}`, ucdl.PriorityCritical},
		{`{"name":"x","priority":"high"}`, ucdl.PriorityHigh},
		{`{"name":"x","priority":"optional"}`, ucdl.PriorityOptional},
		{`{"name":"x","priority":"whenever","weight":0.5}`, ucdl.PriorityMedium},
		{`{"name":"x","priority":"whenever"}`, ucdl.PriorityHigh},
		{`{"name":"x","priority":1e20}`, ucdl.PriorityOptional},
		{`{"name":"x","priority":-1e20}`, ucdl.PriorityCritical},
		{`{"name":"x","priority":1.7976931348623157e308}`, ucdl.PriorityOptional},
		{`{"name":"x","priority":"999"}`, ucdl.PriorityOptional},
		{`{"name":"x","priority":"-1e20"}`, ucdl.PriorityCritical},
		{`{"name":"x","isHard":true}`, ucdl.PriorityHigh},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			c, _ := convertJSON(t, tt.input)
			assert.Equal(t, tt.want, c.Priority)
		})
	}
}

func TestConvert_PriorityClampWarns(t *testing.T) {
	c, warnings := convertJSON(t, `{"name":"x","priority":1e20}`)
	assert.Equal(t, ucdl.PriorityOptional, c.Priority)
	assert.Contains(t, warnings, "Priority 1e+20 mapped to 5")

	c, warnings = convertJSON(t, `{"id":"p","name":"x","priority":3}`)
	assert.Equal(t, ucdl.PriorityMedium, c.Priority)
	assert.Empty(t, warnings)
}

func TestConvert_DefaultWeightIsHard(t *testing.T) {
	c, _ := convertJSON(t, `{"id":"p","name":"x"}`)
	assert.Equal(t, DefaultWeight, c.Weight)
	assert.Equal(t, ucdl.TypeHard, c.Type)
	assert.Equal(t, ucdl.PriorityHigh, c.Priority)
	assert.Equal(t, float64(HardPenalty), c.Penalty)
}

func TestConvert_IDs(t *testing.T) {
	c, warnings := convertJSON(t, `{"id":"rest-days_01","name":"x"}`)
	assert.Equal(t, "rest-days_01", c.ID)
	assert.Empty(t, warnings)

	c, warnings = convertJSON(t, `{"id":"rest days!","name":"x"}`)
	assert.Equal(t, "rest_days", c.ID)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "invalid characters")

	c, _ = convertJSON(t, `{"id":42,"name":"x"}`)
	assert.Equal(t, "42", c.ID)

	c, _ = convertJSON(t, `{"name":"x"}`)
	assert.Equal(t, "gen_1", c.ID)

	c, _ = convertJSON(t, `{"id":"!!!","name":"x"}`)
	assert.Equal(t, "gen_1", c.ID)
}

func TestGenerateID(t *testing.T) {
	id := GenerateID(fixedNow)
	assert.Regexp(t, regexp.MustCompile(`^migrated_1740830400000_[0-9a-f]{9}$`), id)
	assert.True(t, ucdl.ValidID(id))
	assert.NotEqual(t, id, GenerateID(fixedNow))
}

func TestConvert_Bounds(t *testing.T) {
	inputs := []string{
		`{"name":"heavy","weight":42}`,
		`{"name":"negative","weight":-1,"priority":0}`,
		`{"name":"text weight","weight":"2.5","priority":99}`,
		`{"id":"a b c","name":"spaces"}`,
	}
	for _, in := range inputs {
		c, _ := convertJSON(t, in)
		assert.True(t, ucdl.ValidID(c.ID), in)
		assert.GreaterOrEqual(t, c.Weight, ucdl.MinWeight, in)
		assert.LessOrEqual(t, c.Weight, ucdl.MaxWeight, in)
		assert.True(t, c.Priority.Valid(), in)
	}

	c, warnings := convertJSON(t, `{"name":"heavy","weight":42}`)
	assert.Equal(t, 10.0, c.Weight)
	assert.Contains(t, warnings, "Weight 42 clamped to 10")

	c, _ = convertJSON(t, `{"name":"text weight","weight":"2.5"}`)
	assert.Equal(t, 2.5, c.Weight)
}

func TestInferParameterType(t *testing.T) {
	tests := []struct {
		name string
		v    value.Value
		want ucdl.ParameterType
	}{
		{"minDays", value.Int(2), ucdl.ParamDaysCount},
		{"maxGames", value.Int(3), ucdl.ParamInteger},
		{"minRatio", value.Number(0.5), ucdl.ParamFloat},
		{"startDate", value.String("2025-01-01"), ucdl.ParamDate},
		{"teams", value.Strings("a", "b"), ucdl.ParamArray},
		{"enabled", value.Bool(true), ucdl.ParamBoolean},
		{"count", value.Int(7), ucdl.ParamInteger},
		{"factor", value.Number(1.5), ucdl.ParamFloat},
		{"kickoff", value.String("19:30"), ucdl.ParamTime},
		{"when", value.String("2025-06-01T10:00:00Z"), ucdl.ParamDate},
		{"label", value.String("north"), ucdl.ParamObject},
		{"minLabel", value.String("low"), ucdl.ParamObject},
		{"options", value.FromObject(value.NewObject().Set("a", value.Int(1))), ucdl.ParamObject},
		{"nothing", value.Null(), ucdl.ParamObject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InferParameterType(tt.name, tt.v))
		})
	}
}

func TestConvert_Parameters(t *testing.T) {
	c, warnings := convertJSON(t, `{"name":"x","parameters":{
		"maxGames": 3,
		"label": "north",
		"kept": {"type":"float","value":1.5,"required":false,"description":"kept as is"},
		"blackoutDate": "2025-12-25"
	}}`)

	require.Len(t, c.Parameters, 4)
	assert.Equal(t, ucdl.Parameter{Type: ucdl.ParamInteger, Value: value.Int(3), Required: true}, c.Parameters["maxGames"])

	label := c.Parameters["label"]
	assert.Equal(t, ucdl.ParamObject, label.Type)
	assert.Equal(t, "north", label.Value.Get("value").Text())
	assert.False(t, label.Required)
	assert.Contains(t, warnings, `Parameter 'label' value "north" wrapped as an object`)

	kept := c.Parameters["kept"]
	assert.Equal(t, ucdl.ParamFloat, kept.Type)
	assert.Equal(t, "kept as is", kept.Description)
	assert.False(t, kept.Required)

	assert.Equal(t, ucdl.ParamDate, c.Parameters["blackoutDate"].Type)
	assert.True(t, c.Parameters["blackoutDate"].Required)
}

func TestConvert_Conditions(t *testing.T) {
	c, _ := convertJSON(t, `{"name":"x",
		"appliesTo":["teamA","teamB"],
		"dateRange":{"start":"2025-01-01","end":"2025-02-01"},
		"sportType":"basketball",
		"conditions":[{"type":"complex","operator":"custom"},{"field":"venue","operator":"equals","value":"Arena"},"junk"]
	}`)

	require.Len(t, c.Conditions, 5)
	assert.Equal(t, ucdl.ConditionFilter, c.Conditions[0].Type)
	assert.Equal(t, "entity", c.Conditions[0].Field)
	assert.Equal(t, "in", c.Conditions[0].Operator)
	assert.True(t, c.Conditions[0].Value.Equal(value.Strings("teamA", "teamB")))

	assert.Equal(t, ucdl.TemporalCondition("range", "2025-01-01", "2025-02-01"), c.Conditions[1])

	assert.Equal(t, "sport", c.Conditions[2].Field)
	assert.Equal(t, "equals", c.Conditions[2].Operator)

	assert.Equal(t, ucdl.ConditionComplex, c.Conditions[3].Type)
	assert.Equal(t, ucdl.ConditionFilter, c.Conditions[4].Type)
	assert.Equal(t, "venue", c.Conditions[4].Field)
}

func TestConvert_ListsAndActive(t *testing.T) {
	c, _ := convertJSON(t, `{"name":"x","dependsOn":["a","b"],"affects":"c","alternatives":[1,"two"],"enabled":false,"tags":["travel","legacy"]}`)
	assert.Equal(t, []string{"a", "b"}, c.DependsOn)
	assert.Equal(t, []string{"c"}, c.Affects)
	require.Len(t, c.FallbackOptions, 2)
	assert.False(t, c.IsActive)
	assert.Equal(t, []string{"migrated", "legacy", "travel"}, c.Metadata.Tags)

	c, _ = convertJSON(t, `{"name":"x"}`)
	assert.NotNil(t, c.DependsOn)
	assert.NotNil(t, c.Affects)
	assert.NotNil(t, c.FallbackOptions)
	assert.NotNil(t, c.Conditions)
	assert.True(t, c.IsActive)
}

func TestConvert_Metadata(t *testing.T) {
	rec := parseOne(t, `{"name":"Minimum Rest Days","weight":2}`)

	cfg := config.Default()
	cfg.PreserveMetadata = true
	c, _, err := New(cfg, WithClock(fixedClock)).ConvertToUCDL(rec)
	require.NoError(t, err)

	md := c.Metadata
	assert.Equal(t, "2025-03-01T12:00:00.000Z", md.Created)
	assert.Equal(t, md.Created, md.LastModified)
	assert.Equal(t, Author, md.Author)
	assert.Equal(t, []string{"migrated", "legacy"}, md.Tags)
	require.NotNil(t, md.MigrationInfo)
	assert.Equal(t, "object", md.MigrationInfo.SourceType)
	assert.Equal(t, ToolVersion, md.MigrationInfo.ToolVersion)
	require.NotNil(t, md.MigrationInfo.OriginalData)
	assert.Equal(t, "Minimum Rest Days", md.MigrationInfo.OriginalData.Get("name").Text())

	cfg.PreserveMetadata = false
	c, _, err = New(cfg, WithClock(fixedClock)).ConvertToUCDL(rec)
	require.NoError(t, err)
	assert.Nil(t, c.Metadata.MigrationInfo.OriginalData)
}

func TestConvert_ClassRecordWarnsAboutEvaluate(t *testing.T) {
	src := `
/**
 * Teams need rest between games.
 * @param {number} minDays - minimum days off
 */
class MinimumRestConstraint extends BaseConstraint {
  constructor() {
    super('min_rest', 'Minimum Rest', 'Rest between games', 'hard', 'rest', { minDays: 2 }, 5);
  }
  evaluate(schedule) {
    if (schedule.length > 0 && schedule[0].days < 2) { return false; }
    return true;
  }
}`
	recs, err := source.NewParser().Parse(context.Background(), []byte(src), source.FormatClass)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	c, warnings, err := testMigrator(t).ConvertToUCDL(recs[0])
	require.NoError(t, err)
	assert.Equal(t, "min_rest", c.ID)
	assert.Equal(t, ucdl.TypeHard, c.Type)
	assert.Equal(t, ucdl.CategoryWellness, c.Category)
	assert.Equal(t, "minimum days off", c.Parameters["minDays"].Description)
	require.NotNil(t, c.Metadata.MigrationInfo)
	assert.True(t, c.Metadata.MigrationInfo.HasEvaluate)
	assert.Positive(t, c.Metadata.MigrationInfo.Complexity)
	assert.Contains(t, fmt.Sprint(warnings), "evaluate() logic was not migrated")
	assert.Equal(t, warnings, c.Metadata.MigrationInfo.Warnings)
}

func TestConvert_NilRecord(t *testing.T) {
	_, _, err := ConvertToUCDL(nil)
	assert.ErrorIs(t, err, ErrNilRecord)
}
