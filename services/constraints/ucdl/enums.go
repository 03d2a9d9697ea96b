// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ucdl

import "slices"

// ConstraintType is how strictly a constraint must hold.
type ConstraintType string

const (
	TypeHard        ConstraintType = "HARD"
	TypeSoft        ConstraintType = "SOFT"
	TypeFlexible    ConstraintType = "FLEXIBLE"
	TypeConditional ConstraintType = "CONDITIONAL"
)

// ConstraintTypes is the closed set of constraint types.
var ConstraintTypes = []ConstraintType{TypeHard, TypeSoft, TypeFlexible, TypeConditional}

// Valid reports membership in ConstraintTypes.
func (t ConstraintType) Valid() bool { return slices.Contains(ConstraintTypes, t) }

// Scope is the reach of a constraint.
type Scope string

const (
	ScopeGlobal     Scope = "GLOBAL"
	ScopeSport      Scope = "SPORT"
	ScopeTeam       Scope = "TEAM"
	ScopeGame       Scope = "GAME"
	ScopeVenue      Scope = "VENUE"
	ScopeDate       Scope = "DATE"
	ScopeSeason     Scope = "SEASON"
	ScopeTournament Scope = "TOURNAMENT"
)

// Scopes is the closed set of scopes.
var Scopes = []Scope{ScopeGlobal, ScopeSport, ScopeTeam, ScopeGame, ScopeVenue, ScopeDate, ScopeSeason, ScopeTournament}

// Valid reports membership in Scopes.
func (s Scope) Valid() bool { return slices.Contains(Scopes, s) }

// Category is the scheduling domain a constraint belongs to.
type Category string

const (
	CategoryWellness    Category = "WELLNESS"
	CategoryTravel      Category = "TRAVEL"
	CategorySpatial     Category = "SPATIAL"
	CategoryTemporal    Category = "TEMPORAL"
	CategoryCompetitive Category = "COMPETITIVE"
	CategoryBroadcast   Category = "BROADCAST"
	CategoryAcademic    Category = "ACADEMIC"
	CategoryRegulatory  Category = "REGULATORY"
	CategoryOperational Category = "OPERATIONAL"
)

// Categories is the closed set of categories.
var Categories = []Category{
	CategoryWellness, CategoryTravel, CategorySpatial, CategoryTemporal, CategoryCompetitive,
	CategoryBroadcast, CategoryAcademic, CategoryRegulatory, CategoryOperational,
}

// Valid reports membership in Categories.
func (c Category) Valid() bool { return slices.Contains(Categories, c) }

// Priority ranks constraints from 1 (critical) to 5 (optional).
type Priority int

const (
	PriorityCritical Priority = 1
	PriorityHigh     Priority = 2
	PriorityMedium   Priority = 3
	PriorityLow      Priority = 4
	PriorityOptional Priority = 5
)

// Valid reports whether p is within [PriorityCritical, PriorityOptional].
func (p Priority) Valid() bool { return p >= PriorityCritical && p <= PriorityOptional }

// String returns the keyword for p.
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityMedium:
		return "MEDIUM"
	case PriorityLow:
		return "LOW"
	case PriorityOptional:
		return "OPTIONAL"
	default:
		return "UNKNOWN"
	}
}

// ParameterType is the declared type of a parameter value.
type ParameterType string

const (
	ParamInteger   ParameterType = "INTEGER"
	ParamFloat     ParameterType = "FLOAT"
	ParamBoolean   ParameterType = "BOOLEAN"
	ParamDate      ParameterType = "DATE"
	ParamTime      ParameterType = "TIME"
	ParamArray     ParameterType = "ARRAY"
	ParamObject    ParameterType = "OBJECT"
	ParamDaysCount ParameterType = "DAYS_COUNT"
)

// ParameterTypes is the closed set of parameter types.
var ParameterTypes = []ParameterType{
	ParamInteger, ParamFloat, ParamBoolean, ParamDate, ParamTime, ParamArray, ParamObject, ParamDaysCount,
}

// Valid reports membership in ParameterTypes.
func (t ParameterType) Valid() bool { return slices.Contains(ParameterTypes, t) }

// ResolutionStrategy is how the scheduler handles a violation.
type ResolutionStrategy string

const (
	ResolutionStrict    ResolutionStrategy = "STRICT"
	ResolutionOverride  ResolutionStrategy = "OVERRIDE"
	ResolutionNegotiate ResolutionStrategy = "NEGOTIATE"
	ResolutionFallback  ResolutionStrategy = "FALLBACK"
)

// ResolutionStrategies is the closed set of strategies.
var ResolutionStrategies = []ResolutionStrategy{ResolutionStrict, ResolutionOverride, ResolutionNegotiate, ResolutionFallback}

// Valid reports membership in ResolutionStrategies.
func (r ResolutionStrategy) Valid() bool { return slices.Contains(ResolutionStrategies, r) }
