// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validate checks UCDL constraints for structure, types, business
// rules and cross-constraint consistency, and scores them.
//
// # Purity
//
// Validation is a pure function of its input. It reads no clock, keeps no
// state between calls, and runs checks in a fixed order, so validating the
// same constraint twice yields identical results.
//
// # Input
//
// Constraints are validated in their untyped JSON form (value.Value) so
// that missing fields and wrongly typed fields are reported as check
// failures instead of decode errors. Validate accepts a typed
// *ucdl.Constraint and converts it first.
package validate

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"

	"github.com/go-openapi/strfmt"

	"github.com/AleutianAI/AleutianUCDL/services/constraints/ucdl"
	"github.com/AleutianAI/AleutianUCDL/services/constraints/value"
)

// RequiredFields must be present and non-null on every constraint.
var RequiredFields = []string{
	"id", "name", "version", "type", "scope", "category", "priority", "weight",
	"penalty", "parameters", "conditions", "resolutionStrategy", "dependsOn",
	"affects", "isActive", "metadata",
}

// RecommendedFields contribute to completeness when non-empty. Dotted
// names address metadata sub-fields.
var RecommendedFields = []string{
	"description", "fallbackOptions", "resolutionStrategy", "metadata.documentation", "metadata.tags",
}

// RequiredMetadataFields must be present on metadata.
var RequiredMetadataFields = []string{"created", "lastModified", "author", "tags"}

// arrayFields must hold arrays when present.
var arrayFields = []string{"conditions", "fallbackOptions", "dependsOn", "affects"}

// TournamentCategories are the categories expected under TOURNAMENT scope.
var TournamentCategories = []ucdl.Category{ucdl.CategoryTemporal, ucdl.CategoryCompetitive, ucdl.CategoryRegulatory}

// Business-rule thresholds.
const (
	MinHardPenalty = 100.0
	MaxSoftWeight  = 5.0
)

// Completeness weights.
const (
	requiredPoints    = 50.0
	recommendedPoints = 30.0
	qualityPoint      = 5
	longDescription   = 50
)

var timePattern = regexp.MustCompile(`^([01]?\d|2[0-3]):[0-5]\d(:[0-5]\d)?$`)

// DefaultMaxPairwise bounds the O(n²) conflict scan of a batch.
const DefaultMaxPairwise = 5000

// Validator validates constraints.
//
// Thread Safety: Safe for concurrent use. A Validator holds only
// configuration.
type Validator struct {
	maxPairwise int
}

// Option configures a Validator.
type Option func(*Validator)

// WithMaxPairwise sets the largest batch for which pairwise conflict
// detection runs. Larger batches skip the scan and get a suggestion
// instead. Zero or less means no limit.
func WithMaxPairwise(n int) Option {
	return func(v *Validator) {
		v.maxPairwise = n
	}
}

// New creates a Validator.
func New(opts ...Option) *Validator {
	v := &Validator{maxPairwise: DefaultMaxPairwise}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate validates a typed constraint.
func (v *Validator) Validate(c *ucdl.Constraint) *Result {
	doc, err := c.ToValue()
	if err != nil {
		r := newResult()
		r.fail(GroupStructure, "encodable", SeverityError, err.Error())
		r.finalize()
		return r
	}
	return v.ValidateValue(doc)
}

// ValidateValue runs every single-constraint check group over doc.
//
// Description:
//
//	Groups run in this order: structure, types, business logic, parameters,
//	conditions, metadata, dependencies, performance. Each check is recorded
//	in Result.Checks whether it passed or not; failed checks add their
//	message to Errors, Warnings or Suggestions by severity. Score is
//	100 - 10 per error - 3 per warning, floored at 0.
//
// Inputs:
//   - doc: A constraint in JSON form. Non-objects fail the structure group.
//
// Outputs:
//   - *Result: Never nil.
//
// Thread Safety: Safe for concurrent use.
func (v *Validator) ValidateValue(doc value.Value) *Result {
	r := newResult()

	obj, ok := doc.AsObject()
	if !ok {
		r.fail(GroupStructure, "is_object", SeverityError, fmt.Sprintf("Constraint must be an object, got %s", doc.Kind()))
		r.Details.PerformanceImpact = ImpactLow
		r.finalize()
		return r
	}

	checkStructure(r, obj)
	checkTypes(r, obj)
	checkLogic(r, obj)
	checkParameters(r, obj.Lookup("parameters"))
	checkConditions(r, obj.Lookup("conditions"))
	checkMetadata(r, obj.Lookup("metadata"))
	checkDependencies(r, obj)
	r.Details.PerformanceImpact = checkPerformance(r, obj)
	r.Details.Completeness = Completeness(obj)
	suggestMissingRecommended(r, obj)

	r.finalize()
	return r
}

func checkStructure(r *Result, obj *value.Object) {
	for _, field := range RequiredFields {
		r.check(!obj.Lookup(field).IsNull(), GroupStructure, "required_"+field, SeverityError,
			fmt.Sprintf("Missing required field: %s", field))
	}

	if id, ok := obj.Lookup("id").AsString(); ok {
		r.check(ucdl.ValidID(id), GroupStructure, "id_format", SeverityError,
			fmt.Sprintf("Invalid id format: '%s' (allowed: letters, digits, '_' and '-')", id))
	} else if obj.Has("id") && !obj.Lookup("id").IsNull() {
		r.fail(GroupStructure, "id_format", SeverityError, "Constraint id must be a string")
	}

	if version, ok := obj.Lookup("version").AsString(); ok {
		r.check(ucdl.VersionPattern.MatchString(version), GroupStructure, "version_format", SeverityWarning,
			fmt.Sprintf("Version '%s' does not follow semantic versioning (x.y.z)", version))
	}

	if w := obj.Lookup("weight"); !w.IsNull() {
		n, isNum := w.AsNumber()
		r.check(isNum && n >= ucdl.MinWeight && n <= ucdl.MaxWeight, GroupStructure, "weight_range", SeverityError,
			fmt.Sprintf("Weight must be a number between %g and %g", ucdl.MinWeight, ucdl.MaxWeight))
	}

	if p := obj.Lookup("penalty"); !p.IsNull() {
		n, isNum := p.AsNumber()
		r.check(isNum && n >= 0, GroupStructure, "penalty_range", SeverityError, "Penalty must be a non-negative number")
	}

	for _, field := range arrayFields {
		fv := obj.Lookup(field)
		if fv.IsNull() {
			continue
		}
		r.check(fv.Kind() == value.KindArray, GroupStructure, field+"_is_array", SeverityError,
			fmt.Sprintf("Field %s must be an array", field))
	}
}

func checkTypes(r *Result, obj *value.Object) {
	if t := obj.Lookup("type"); !t.IsNull() {
		r.check(ucdl.ConstraintType(t.Text()).Valid() && t.Kind() == value.KindString, GroupTypes, "type_enum", SeverityError,
			fmt.Sprintf("Invalid constraint type: %s (expected one of %s)", t.Text(), joinEnum(ucdl.ConstraintTypes)))
	}
	if s := obj.Lookup("scope"); !s.IsNull() {
		r.check(ucdl.Scope(s.Text()).Valid() && s.Kind() == value.KindString, GroupTypes, "scope_enum", SeverityError,
			fmt.Sprintf("Invalid scope: %s (expected one of %s)", s.Text(), joinEnum(ucdl.Scopes)))
	}
	if c := obj.Lookup("category"); !c.IsNull() {
		r.check(ucdl.Category(c.Text()).Valid() && c.Kind() == value.KindString, GroupTypes, "category_enum", SeverityError,
			fmt.Sprintf("Invalid category: %s (expected one of %s)", c.Text(), joinEnum(ucdl.Categories)))
	}
	if p := obj.Lookup("priority"); !p.IsNull() {
		n, isInt := p.AsInt()
		r.check(isInt && ucdl.Priority(n).Valid(), GroupTypes, "priority_range", SeverityError,
			fmt.Sprintf("Priority must be an integer between %d and %d, got %s", ucdl.PriorityCritical, ucdl.PriorityOptional, p.String()))
	}
	if rs := obj.Lookup("resolutionStrategy"); !rs.IsNull() {
		r.check(ucdl.ResolutionStrategy(rs.Text()).Valid() && rs.Kind() == value.KindString, GroupTypes, "resolution_strategy_enum", SeverityError,
			fmt.Sprintf("Invalid resolution strategy: %s (expected one of %s)", rs.Text(), joinEnum(ucdl.ResolutionStrategies)))
	}
	if a := obj.Lookup("isActive"); !a.IsNull() {
		r.check(a.Kind() == value.KindBool, GroupTypes, "is_active_boolean", SeverityError, "isActive must be a boolean")
	}
}

func checkLogic(r *Result, obj *value.Object) {
	ctype := ucdl.ConstraintType(obj.Lookup("type").Text())
	scope := ucdl.Scope(obj.Lookup("scope").Text())
	category := ucdl.Category(obj.Lookup("category").Text())

	if ctype == ucdl.TypeHard {
		penalty, _ := obj.Lookup("penalty").AsNumber()
		r.check(penalty >= MinHardPenalty, GroupLogic, "hard_penalty", SeverityWarning,
			fmt.Sprintf("HARD constraints should have a penalty of at least %g", MinHardPenalty))
	}
	if ctype == ucdl.TypeSoft {
		weight, _ := obj.Lookup("weight").AsNumber()
		r.check(weight > 0 && weight <= MaxSoftWeight, GroupLogic, "soft_weight", SeverityWarning,
			fmt.Sprintf("SOFT constraints should have a weight in (0, %g]", MaxSoftWeight))
	}
	if p, ok := obj.Lookup("priority").AsInt(); ok && ucdl.Priority(p) == ucdl.PriorityCritical {
		r.check(ctype == ucdl.TypeHard, GroupLogic, "critical_priority_hard", SeverityWarning,
			"CRITICAL priority constraints should be HARD")
	}
	if scope == ucdl.ScopeTournament {
		r.check(slices.Contains(TournamentCategories, category), GroupLogic, "tournament_category", SeverityInfo,
			fmt.Sprintf("TOURNAMENT scope is usually paired with a %s category", joinEnum(TournamentCategories)))
	}
}

func checkParameters(r *Result, params value.Value) {
	if params.IsNull() {
		return
	}
	obj, ok := params.AsObject()
	if !r.check(ok, GroupParameters, "parameters_object", SeverityError, "Parameters must be an object") {
		return
	}

	obj.Range(func(name string, desc value.Value) bool {
		d, ok := desc.AsObject()
		if !r.check(ok, GroupParameters, "parameter_descriptor:"+name, SeverityError,
			fmt.Sprintf("Parameter '%s' must be an object with type and value", name)) {
			return true
		}

		ptype := ucdl.ParameterType(d.Lookup("type").Text())
		if !r.check(ptype.Valid(), GroupParameters, "parameter_type:"+name, SeverityError,
			fmt.Sprintf("Parameter '%s' has invalid type: %s", name, d.Lookup("type").Text())) {
			return true
		}

		r.check(ParameterValueMatches(ptype, d.Lookup("value")), GroupParameters, "parameter_value:"+name, SeverityError,
			fmt.Sprintf("Parameter '%s' value %s does not match type %s", name, d.Lookup("value").String(), ptype))

		r.check(d.Lookup("required").Kind() == value.KindBool, GroupParameters, "parameter_required:"+name, SeverityInfo,
			fmt.Sprintf("Parameter '%s' should declare a boolean required flag", name))
		return true
	})
}

// ParameterValueMatches reports whether v is a valid value for ptype.
func ParameterValueMatches(ptype ucdl.ParameterType, v value.Value) bool {
	switch ptype {
	case ucdl.ParamInteger:
		return v.IsInteger()
	case ucdl.ParamFloat:
		_, ok := v.AsNumber()
		return ok
	case ucdl.ParamBoolean:
		return v.Kind() == value.KindBool
	case ucdl.ParamDate:
		s, ok := v.AsString()
		return ok && IsISODate(s)
	case ucdl.ParamTime:
		s, ok := v.AsString()
		return ok && timePattern.MatchString(s)
	case ucdl.ParamArray:
		return v.Kind() == value.KindArray
	case ucdl.ParamObject:
		return v.Kind() == value.KindObject
	case ucdl.ParamDaysCount:
		n, ok := v.AsNumber()
		return ok && v.IsInteger() && n >= 0
	}
	return false
}

// IsISODate reports whether s is an ISO-8601 date or date-time.
func IsISODate(s string) bool {
	return strfmt.IsDate(s) || strfmt.IsDateTime(s)
}

// IsTimeOfDay reports whether s is an HH:MM or HH:MM:SS time.
func IsTimeOfDay(s string) bool {
	return timePattern.MatchString(s)
}

func checkConditions(r *Result, conditions value.Value) {
	items, ok := conditions.AsArray()
	if !ok {
		return
	}
	for i, cond := range items {
		obj, ok := cond.AsObject()
		if !r.check(ok, GroupConditions, fmt.Sprintf("condition_object:%d", i), SeverityError,
			fmt.Sprintf("Condition %d must be an object", i)) {
			continue
		}
		ctype, _ := obj.Lookup("type").AsString()
		if !r.check(ctype != "", GroupConditions, fmt.Sprintf("condition_type:%d", i), SeverityError,
			fmt.Sprintf("Condition %d is missing a type", i)) {
			continue
		}
		switch ctype {
		case ucdl.ConditionTemporal:
			pattern := obj.Lookup("pattern").Text()
			r.check(slices.Contains(ucdl.TemporalPatterns, pattern), GroupConditions, fmt.Sprintf("condition_pattern:%d", i), SeverityWarning,
				fmt.Sprintf("Temporal condition %d uses unrecognized pattern '%s'", i, pattern))
		case ucdl.ConditionFilter:
			complete := obj.Lookup("field").Text() != "" && obj.Lookup("operator").Text() != "" && obj.Has("value")
			r.check(complete, GroupConditions, fmt.Sprintf("condition_filter:%d", i), SeverityError,
				fmt.Sprintf("Filter condition %d must declare field, operator and value", i))
		}
	}
}

func checkMetadata(r *Result, metadata value.Value) {
	if metadata.IsNull() {
		return
	}
	obj, ok := metadata.AsObject()
	if !r.check(ok, GroupMetadata, "metadata_object", SeverityError, "Metadata must be an object") {
		return
	}
	for _, field := range RequiredMetadataFields {
		r.check(!obj.Lookup(field).IsNull(), GroupMetadata, "metadata_"+field, SeverityError,
			fmt.Sprintf("Missing required metadata field: %s", field))
	}
	for _, field := range []string{"created", "lastModified"} {
		fv := obj.Lookup(field)
		if fv.IsNull() {
			continue
		}
		s, isStr := fv.AsString()
		r.check(isStr && IsISODate(s), GroupMetadata, "metadata_"+field+"_format", SeverityWarning,
			fmt.Sprintf("Metadata %s should be an ISO-8601 date", field))
	}
	if tags := obj.Lookup("tags"); !tags.IsNull() {
		r.check(isStringArray(tags), GroupMetadata, "metadata_tags_strings", SeverityError, "Metadata tags must be an array of strings")
	}
}

func checkDependencies(r *Result, obj *value.Object) {
	depends := stringsOf(obj.Lookup("dependsOn"))
	affects := stringsOf(obj.Lookup("affects"))

	for _, field := range []string{"dependsOn", "affects"} {
		items, ok := obj.Lookup(field).AsArray()
		if !ok {
			continue
		}
		for _, item := range items {
			id, isStr := item.AsString()
			r.check(isStr && ucdl.ValidID(id), GroupDependencies, field+"_id:"+item.Text(), SeverityError,
				fmt.Sprintf("Invalid id in %s: %s", field, item.String()))
		}
	}

	for _, id := range depends {
		if slices.Contains(affects, id) {
			r.fail(GroupDependencies, "dependency_overlap:"+id, SeverityWarning,
				fmt.Sprintf("Constraint both depends on and affects '%s'", id))
		}
	}
}

// PerformanceScore is the raw performance-impact score of a constraint.
func PerformanceScore(obj *value.Object) int {
	score := 0
	switch ucdl.Scope(obj.Lookup("scope").Text()) {
	case ucdl.ScopeGlobal:
		score += 3
	case ucdl.ScopeSport:
		score += 2
	case ucdl.ScopeTeam:
		score++
	}
	if ucdl.ConstraintType(obj.Lookup("type").Text()) == ucdl.TypeHard {
		score += 2
	}

	conditions, _ := obj.Lookup("conditions").AsArray()
	if len(conditions) > 5 {
		score += 2
	}
	if deps, _ := obj.Lookup("dependsOn").AsArray(); len(deps) > 3 {
		score++
	}
	if params, ok := obj.Lookup("parameters").AsObject(); ok && params.Len() > 10 {
		score += 2
	}
	for _, c := range conditions {
		if c.Get("type").Text() == ucdl.ConditionComplex || c.Get("operator").Text() == "custom" {
			score += 3
			break
		}
	}
	return score
}

// ImpactFor maps a performance score to an impact level.
func ImpactFor(score int) Impact {
	switch {
	case score >= 8:
		return ImpactHigh
	case score >= 4:
		return ImpactMedium
	default:
		return ImpactLow
	}
}

func checkPerformance(r *Result, obj *value.Object) Impact {
	impact := ImpactFor(PerformanceScore(obj))

	globalHard := ucdl.Scope(obj.Lookup("scope").Text()) == ucdl.ScopeGlobal &&
		ucdl.ConstraintType(obj.Lookup("type").Text()) == ucdl.TypeHard
	r.check(!globalHard, GroupPerformance, "global_hard", SeverityWarning,
		"GLOBAL scope combined with HARD type may significantly slow schedule generation")

	if impact == ImpactHigh {
		r.suggest("High performance impact: consider narrowing the scope or reducing conditions and dependencies")
	}
	return impact
}

// Completeness scores how fully a constraint is specified, from 0 to 100.
//
// Description:
//
//	50 points are spread evenly over RequiredFields (present and non-null),
//	30 points over RecommendedFields (non-empty), and up to 20 points come
//	from quality indicators: a description longer than 50 characters,
//	non-empty conditions, non-empty parameters and documentation, 5 each.
func Completeness(obj *value.Object) int {
	present := 0
	for _, field := range RequiredFields {
		if !obj.Lookup(field).IsNull() {
			present++
		}
	}
	recommended := 0
	for _, field := range RecommendedFields {
		if nonEmpty(lookupPath(obj, field)) {
			recommended++
		}
	}

	total := requiredPoints*float64(present)/float64(len(RequiredFields)) +
		recommendedPoints*float64(recommended)/float64(len(RecommendedFields))

	quality := 0
	if desc, ok := obj.Lookup("description").AsString(); ok && len([]rune(desc)) > longDescription {
		quality += qualityPoint
	}
	if nonEmpty(obj.Lookup("conditions")) {
		quality += qualityPoint
	}
	if nonEmpty(obj.Lookup("parameters")) {
		quality += qualityPoint
	}
	if nonEmpty(lookupPath(obj, "metadata.documentation")) {
		quality += qualityPoint
	}

	score := int(math.Round(total)) + quality
	if score > 100 {
		score = 100
	}
	return score
}

func suggestMissingRecommended(r *Result, obj *value.Object) {
	for _, field := range RecommendedFields {
		if !nonEmpty(lookupPath(obj, field)) {
			r.suggest(fmt.Sprintf("Consider adding %s", field))
		}
	}
}

// lookupPath resolves a dotted path of object keys.
func lookupPath(obj *value.Object, path string) value.Value {
	head, rest, nested := strings.Cut(path, ".")
	v := obj.Lookup(head)
	if !nested {
		return v
	}
	inner, ok := v.AsObject()
	if !ok {
		return value.Null()
	}
	return lookupPath(inner, rest)
}

// nonEmpty reports whether v is a non-empty string, array or object, or any
// other non-null scalar.
func nonEmpty(v value.Value) bool {
	switch v.Kind() {
	case value.KindNull:
		return false
	case value.KindString:
		return strings.TrimSpace(v.Text()) != ""
	case value.KindArray:
		items, _ := v.AsArray()
		return len(items) > 0
	case value.KindObject:
		o, _ := v.AsObject()
		return o.Len() > 0
	default:
		return true
	}
}

func isStringArray(v value.Value) bool {
	items, ok := v.AsArray()
	if !ok {
		return false
	}
	for _, item := range items {
		if item.Kind() != value.KindString {
			return false
		}
	}
	return true
}

// stringsOf returns the string elements of an array value.
func stringsOf(v value.Value) []string {
	items, _ := v.AsArray()
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.AsString(); ok {
			out = append(out, s)
		}
	}
	return out
}

func joinEnum[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}
