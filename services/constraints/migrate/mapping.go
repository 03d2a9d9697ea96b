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
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianUCDL/services/constraints/source"
	"github.com/AleutianAI/AleutianUCDL/services/constraints/ucdl"
	"github.com/AleutianAI/AleutianUCDL/services/constraints/validate"
	"github.com/AleutianAI/AleutianUCDL/services/constraints/value"
)

// Author stamped on migrated constraints.
const Author = "migration_tool"

// ToolVersion is recorded in metadata.migrationInfo.
const ToolVersion = "1.0.0"

// HardPenalty is the penalty given to HARD constraints without one.
const HardPenalty = 1000

// DefaultWeight is used when a record carries no numeric weight.
const DefaultWeight = 1.0

// timestampLayout is ISO-8601 with milliseconds, always UTC.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// MigrationTags are added to every migrated constraint.
var MigrationTags = []string{"migrated", "legacy"}

// ErrNilRecord is returned by ConvertToUCDL for a nil record.
var ErrNilRecord = errors.New("nil record")

type keywordRule[T any] struct {
	keywords []string
	result   T
}

// scopeRules are tried in order against the lowercased name and category.
var scopeRules = []keywordRule[ucdl.Scope]{
	{[]string{"global"}, ucdl.ScopeGlobal},
	{[]string{"sport"}, ucdl.ScopeSport},
	{[]string{"team"}, ucdl.ScopeTeam},
	{[]string{"game"}, ucdl.ScopeGame},
	{[]string{"venue"}, ucdl.ScopeVenue},
	{[]string{"date", "time"}, ucdl.ScopeDate},
	{[]string{"season"}, ucdl.ScopeSeason},
	{[]string{"tournament", "championship"}, ucdl.ScopeTournament},
}

// categoryRules are tried in order against the category, then the name.
var categoryRules = []keywordRule[ucdl.Category]{
	{[]string{"rest", "wellness"}, ucdl.CategoryWellness},
	{[]string{"travel"}, ucdl.CategoryTravel},
	{[]string{"venue", "location"}, ucdl.CategorySpatial},
	{[]string{"time", "date", "schedule"}, ucdl.CategoryTemporal},
	{[]string{"competitive", "balance"}, ucdl.CategoryCompetitive},
	{[]string{"broadcast", "tv"}, ucdl.CategoryBroadcast},
	{[]string{"academic"}, ucdl.CategoryAcademic},
	{[]string{"rule", "regulatory"}, ucdl.CategoryRegulatory},
}

// priorityRules map keywords to priorities. "highest" precedes "high".
var priorityRules = []keywordRule[ucdl.Priority]{
	{[]string{"critical", "highest"}, ucdl.PriorityCritical},
	{[]string{"high"}, ucdl.PriorityHigh},
	{[]string{"medium", "normal"}, ucdl.PriorityMedium},
	{[]string{"low"}, ucdl.PriorityLow},
	{[]string{"optional"}, ucdl.PriorityOptional},
}

// typeRules map legacy type keywords. Checked in order so that
// "conditional" and "flexible" are not mistaken for a weaker match.
var typeRules = []keywordRule[ucdl.ConstraintType]{
	{[]string{"conditional"}, ucdl.TypeConditional},
	{[]string{"flexible"}, ucdl.TypeFlexible},
	{[]string{"soft"}, ucdl.TypeSoft},
	{[]string{"hard"}, ucdl.TypeHard},
}

func matchKeyword[T any](rules []keywordRule[T], text string) (T, bool) {
	text = strings.ToLower(text)
	for _, rule := range rules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return rule.result, true
			}
		}
	}
	var zero T
	return zero, false
}

// mapper holds the per-conversion state: the record, the clock reading and
// the warnings collected so far.
type mapper struct {
	rec      *source.Record
	now      time.Time
	newID    func(time.Time) string
	preserve bool
	warnings []string
}

func (m *mapper) warnf(format string, args ...any) {
	m.warnings = append(m.warnings, fmt.Sprintf(format, args...))
}

// convert maps the record onto a UCDL constraint.
func (m *mapper) convert() *ucdl.Constraint {
	weight := m.weight()
	ctype := m.constraintType(weight)

	c := &ucdl.Constraint{
		ID:          m.id(),
		Name:        m.rec.Name(),
		Description: m.description(),
		Version:     ucdl.CurrentVersion,
		Type:        ctype,
		Scope:       m.scope(),
		Category:    m.category(),
		Priority:    m.priority(ctype),
		Weight:      weight,
		Parameters:  m.parameters(),
		Conditions:  m.conditions(),
		IsActive:    m.isActive(),
	}
	c.Penalty = m.penalty(ctype, weight)
	c.ResolutionStrategy = m.resolution(ctype)
	c.FallbackOptions = m.valueList("fallbackOptions", "alternatives")
	c.DependsOn = m.idList("dependsOn", "dependencies")
	c.Affects = m.idList("affects")
	c.Metadata = m.metadata()
	return c
}

// id returns the supplied id, sanitized, or a generated one.
func (m *mapper) id() string {
	raw := strings.TrimSpace(m.rec.Lookup("id").Text())
	if raw == "" {
		return m.newID(m.now)
	}
	if ucdl.ValidID(raw) {
		return raw
	}
	clean := sanitizeID(raw)
	if clean == "" {
		m.warnf("Id %q has no usable characters; generated a new id", raw)
		return m.newID(m.now)
	}
	m.warnf("Id %q contained invalid characters; migrated as %q", raw, clean)
	return clean
}

var invalidIDChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

func sanitizeID(id string) string {
	return strings.Trim(invalidIDChars.ReplaceAllString(id, "_"), "_")
}

func (m *mapper) description() string {
	if d := strings.TrimSpace(m.rec.Lookup("description").Text()); d != "" {
		return d
	}
	return strings.TrimSpace(m.rec.Metadata.Lookup(source.MetaDocumentation).Text())
}

// constraintType: isHard=true wins, then a type keyword, then isHard=false,
// then the weight rule.
func (m *mapper) constraintType(weight float64) ucdl.ConstraintType {
	hard := m.rec.Lookup("isHard")
	if b, ok := hard.AsBool(); ok && b {
		return ucdl.TypeHard
	}
	if typ := m.rec.Lookup("type"); !typ.IsNull() {
		if t, ok := matchKeyword(typeRules, typ.Text()); ok {
			return t
		}
		m.warnf("Unrecognized constraint type %q; inferred from weight", typ.Text())
	}
	if b, ok := hard.AsBool(); ok && !b {
		return ucdl.TypeSoft
	}
	if weight >= 1 {
		return ucdl.TypeHard
	}
	return ucdl.TypeSoft
}

// weight returns the legacy weight clamped to the UCDL range.
func (m *mapper) weight() float64 {
	w, ok := m.number("weight")
	if !ok {
		if m.rec.Has("weight") {
			m.warnf("Weight %s is not numeric; using %g", m.rec.Lookup("weight").String(), DefaultWeight)
		}
		return DefaultWeight
	}
	if w < ucdl.MinWeight || w > ucdl.MaxWeight {
		clamped := math.Min(math.Max(w, ucdl.MinWeight), ucdl.MaxWeight)
		m.warnf("Weight %g clamped to %g", w, clamped)
		return clamped
	}
	return w
}

// number reads a numeric field, accepting numeric strings.
func (m *mapper) number(key string) (float64, bool) {
	v := m.rec.Lookup(key)
	if n, ok := v.AsNumber(); ok && !math.IsNaN(n) && !math.IsInf(n, 0) {
		return n, true
	}
	if s, ok := v.AsString(); ok {
		n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err == nil && !math.IsNaN(n) && !math.IsInf(n, 0) {
			return n, true
		}
	}
	return 0, false
}

func (m *mapper) scope() ucdl.Scope {
	if s := ucdl.Scope(strings.ToUpper(m.rec.Lookup("scope").Text())); s.Valid() {
		return s
	}
	text := m.rec.Name() + " " + m.rec.Lookup("category").Text()
	if s, ok := matchKeyword(scopeRules, text); ok {
		return s
	}
	return ucdl.ScopeGame
}

func (m *mapper) category() ucdl.Category {
	raw := m.rec.Lookup("category").Text()
	if c := ucdl.Category(strings.ToUpper(raw)); c.Valid() {
		return c
	}
	if c, ok := matchKeyword(categoryRules, raw); ok {
		return c
	}
	if c, ok := matchKeyword(categoryRules, m.rec.Name()); ok {
		return c
	}
	return ucdl.CategoryOperational
}

func (m *mapper) priority(ctype ucdl.ConstraintType) ucdl.Priority {
	if n, ok := m.number("priority"); ok {
		// Clamp before converting: out-of-range float to int is undefined.
		clamped := math.Min(math.Max(math.Round(n), float64(ucdl.PriorityCritical)), float64(ucdl.PriorityOptional))
		p := ucdl.Priority(clamped)
		if clamped != n {
			m.warnf("Priority %g mapped to %d", n, p)
		}
		return p
	}
	if raw := m.rec.Lookup("priority"); !raw.IsNull() {
		if p, ok := matchKeyword(priorityRules, raw.Text()); ok {
			return p
		}
		m.warnf("Unrecognized priority %s; inferred from type", raw.String())
	}
	if ctype == ucdl.TypeHard {
		return ucdl.PriorityHigh
	}
	return ucdl.PriorityMedium
}

func (m *mapper) penalty(ctype ucdl.ConstraintType, weight float64) float64 {
	if p, ok := m.number("penalty"); ok {
		return p
	}
	if ctype == ucdl.TypeHard {
		return HardPenalty
	}
	return math.Round(weight * 10)
}

func (m *mapper) resolution(ctype ucdl.ConstraintType) ucdl.ResolutionStrategy {
	if r := ucdl.ResolutionStrategy(strings.ToUpper(m.rec.Lookup("resolutionStrategy").Text())); r.Valid() {
		return r
	}
	switch {
	case ctype == ucdl.TypeHard:
		return ucdl.ResolutionStrict
	case m.rec.Lookup("allowOverride").Truthy(), m.rec.Lookup("flexible").Truthy():
		return ucdl.ResolutionOverride
	case m.rec.Lookup("negotiable").Truthy():
		return ucdl.ResolutionNegotiate
	default:
		return ucdl.ResolutionFallback
	}
}

func (m *mapper) isActive() bool {
	for _, key := range []string{"isActive", "active", "enabled"} {
		if b, ok := m.rec.Lookup(key).AsBool(); ok {
			return b
		}
	}
	return true
}

// parameters converts the legacy parameter map into typed descriptors.
func (m *mapper) parameters() map[string]ucdl.Parameter {
	out := map[string]ucdl.Parameter{}
	raw := m.rec.Lookup("parameters")
	if raw.IsNull() {
		return out
	}
	params, ok := raw.AsObject()
	if !ok {
		m.warnf("Parameters %s are not an object; dropped", truncate(raw.String(), 60))
		return out
	}

	docs, _ := m.rec.Metadata.Lookup(source.MetaDocParams).AsObject()
	params.Range(func(name string, v value.Value) bool {
		p := m.parameter(name, v)
		if p.Description == "" && docs != nil {
			p.Description = docs.Lookup(name).Get("description").Text()
		}
		out[name] = p
		return true
	})
	return out
}

// parameter builds one descriptor. Values that already are descriptors with
// a valid type are kept.
func (m *mapper) parameter(name string, v value.Value) ucdl.Parameter {
	if obj, ok := v.AsObject(); ok && obj.Has("value") {
		if ptype := ucdl.ParameterType(strings.ToUpper(obj.Lookup("type").Text())); ptype.Valid() {
			required, isBool := obj.Lookup("required").AsBool()
			if !isBool {
				required = requiredByName(name)
			}
			return ucdl.Parameter{
				Type:        ptype,
				Value:       obj.Lookup("value"),
				Required:    required,
				Description: obj.Lookup("description").Text(),
			}
		}
	}

	ptype := InferParameterType(name, v)
	val := v
	if ptype == ucdl.ParamObject && v.Kind() != value.KindObject {
		val = value.FromObject(value.NewObject().Set("value", v))
		m.warnf("Parameter '%s' value %s wrapped as an object", name, truncate(v.String(), 40))
	}
	return ucdl.Parameter{Type: ptype, Value: val, Required: requiredByName(name)}
}

// InferParameterType picks a ParameterType from the parameter name, then the
// value's shape.
//
// Description:
//
//	Name rules come first: "days" means DAYS_COUNT, "date" means DATE, and
//	"min"/"max" mean INTEGER or FLOAT when the value is numeric. An array
//	value is ARRAY. Otherwise the shape decides: boolean, integer, float,
//	ISO date string, HH:MM string, array, object. Anything else is OBJECT.
func InferParameterType(name string, v value.Value) ucdl.ParameterType {
	key := strings.ToLower(name)
	_, numeric := v.AsNumber()
	switch {
	case strings.Contains(key, "days") && v.IsInteger():
		return ucdl.ParamDaysCount
	case strings.Contains(key, "date") && v.Kind() == value.KindString:
		return ucdl.ParamDate
	case (strings.Contains(key, "min") || strings.Contains(key, "max")) && numeric:
		if v.IsInteger() {
			return ucdl.ParamInteger
		}
		return ucdl.ParamFloat
	case v.Kind() == value.KindArray:
		return ucdl.ParamArray
	}
	return shapeType(v)
}

func shapeType(v value.Value) ucdl.ParameterType {
	switch v.Kind() {
	case value.KindBool:
		return ucdl.ParamBoolean
	case value.KindNumber:
		if v.IsInteger() {
			return ucdl.ParamInteger
		}
		return ucdl.ParamFloat
	case value.KindString:
		s, _ := v.AsString()
		switch {
		case validate.IsISODate(s):
			return ucdl.ParamDate
		case validate.IsTimeOfDay(s):
			return ucdl.ParamTime
		}
	case value.KindArray:
		return ucdl.ParamArray
	}
	return ucdl.ParamObject
}

func requiredByName(name string) bool {
	key := strings.ToLower(name)
	for _, kw := range []string{"min", "max", "date", "days"} {
		if strings.Contains(key, kw) {
			return true
		}
	}
	return false
}

// conditions derives conditions from appliesTo, dateRange and sportType,
// then appends any legacy conditions array.
func (m *mapper) conditions() []ucdl.Condition {
	out := []ucdl.Condition{}

	if applies := m.rec.Lookup("appliesTo"); !applies.IsNull() {
		out = append(out, ucdl.FilterCondition("entity", operatorFor(applies), applies.Clone()))
	}
	if dr := m.rec.Lookup("dateRange"); !dr.IsNull() {
		start, end := dr.Get("start").Text(), dr.Get("end").Text()
		if start == "" && end == "" {
			m.warnf("dateRange %s has neither start nor end; dropped", truncate(dr.String(), 60))
		} else {
			out = append(out, ucdl.TemporalCondition("range", start, end))
		}
	}
	if sport := m.rec.Lookup("sportType"); !sport.IsNull() {
		out = append(out, ucdl.FilterCondition("sport", operatorFor(sport), sport.Clone()))
	}

	legacy, ok := m.rec.Lookup("conditions").AsArray()
	for i, item := range legacy {
		cond, err := decodeCondition(item)
		if err != nil {
			m.warnf("Condition %d dropped: %v", i, err)
			continue
		}
		out = append(out, cond)
	}
	if !ok && m.rec.Has("conditions") {
		m.warnf("Conditions are not an array; dropped")
	}
	return out
}

func operatorFor(v value.Value) string {
	if v.Kind() == value.KindArray {
		return "in"
	}
	return "equals"
}

func decodeCondition(v value.Value) (ucdl.Condition, error) {
	var cond ucdl.Condition
	if v.Kind() != value.KindObject {
		return cond, fmt.Errorf("expected object, got %s", v.Kind())
	}
	data, err := json.Marshal(v)
	if err != nil {
		return cond, err
	}
	if err := json.Unmarshal(data, &cond); err != nil {
		return cond, err
	}
	if cond.Type == "" {
		if cond.Field != "" {
			cond.Type = ucdl.ConditionFilter
		} else {
			return cond, errors.New("missing type")
		}
	}
	return cond, nil
}

func (m *mapper) valueList(keys ...string) []value.Value {
	for _, key := range keys {
		if items, ok := m.rec.Lookup(key).AsArray(); ok {
			out := make([]value.Value, len(items))
			for i, item := range items {
				out[i] = item.Clone()
			}
			return out
		}
	}
	return []value.Value{}
}

func (m *mapper) idList(keys ...string) []string {
	for _, key := range keys {
		v := m.rec.Lookup(key)
		if v.IsNull() {
			continue
		}
		if s, ok := v.AsString(); ok {
			return []string{s}
		}
		items, ok := v.AsArray()
		if !ok {
			m.warnf("%s is not a list; dropped", key)
			return []string{}
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			if id := item.Text(); id != "" {
				out = append(out, id)
			}
		}
		return out
	}
	return []string{}
}

func (m *mapper) metadata() ucdl.Metadata {
	stamp := m.now.UTC().Format(timestampLayout)
	info := &ucdl.MigrationInfo{
		SourceType:  string(m.rec.SourceType()),
		SourcePath:  m.rec.FilePath(),
		MigratedAt:  stamp,
		ToolVersion: ToolVersion,
	}
	if path := info.SourcePath; path != "" {
		info.SourceFormat = sourceFormatOf(path)
	}
	if b, _ := m.rec.Metadata.Lookup(source.MetaHasEvaluate).AsBool(); b {
		info.HasEvaluate = true
		complexity, _ := m.rec.Metadata.Lookup(source.MetaComplexity).AsInt()
		info.Complexity = complexity
		m.warnf("evaluate() logic was not migrated (complexity %d); express it as conditions", complexity)
	}
	if skipped, ok := m.rec.Metadata.Lookup(source.MetaSkippedKeys).AsArray(); ok && len(skipped) > 0 {
		names := make([]string, len(skipped))
		for i, s := range skipped {
			names[i] = s.Text()
		}
		m.warnf("Non-literal properties skipped: %s", strings.Join(names, ", "))
	}
	if m.preserve {
		original := m.rec.Original().Clone()
		info.OriginalData = &original
	}

	tags := append([]string{}, MigrationTags...)
	if legacy, ok := m.rec.Lookup("tags").AsArray(); ok {
		for _, t := range legacy {
			if s, isStr := t.AsString(); isStr && s != "" && !containsString(tags, s) {
				tags = append(tags, s)
			}
		}
	}

	return ucdl.Metadata{
		Created:       stamp,
		LastModified:  stamp,
		Author:        Author,
		Tags:          tags,
		Documentation: strings.TrimSpace(m.rec.Metadata.Lookup(source.MetaDocumentation).Text()),
		MigrationInfo: info,
	}
}

// sourceFormatOf is the lowercased extension of path without the dot.
func sourceFormatOf(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
