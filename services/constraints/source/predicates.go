// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package source

import (
	"slices"
	"strings"
)

// ConstraintBaseNames are superclass names accepted as constraint bases even
// though they do not contain the word "constraint".
var ConstraintBaseNames = []string{
	"BaseConstraint",
	"Constraint",
	"SchedulingConstraint",
	"Rule",
	"BaseRule",
}

// constraintShapeKeys are the keys whose presence marks an object as a
// constraint definition.
var constraintShapeKeys = []string{
	"name", "type", "category", "description", "weight",
	"priority", "parameters", "isHard", "evaluate",
}

// minShapeKeys is how many constraintShapeKeys an object needs.
const minShapeKeys = 2

// LooksLikeConstraint reports whether an object with the given keys
// structurally resembles a constraint definition: at least two of name, type,
// category, description, weight, priority, parameters, isHard and evaluate.
func LooksLikeConstraint(keys []string) bool {
	n := 0
	for _, k := range constraintShapeKeys {
		if slices.Contains(keys, k) {
			n++
			if n >= minShapeKeys {
				return true
			}
		}
	}
	return false
}

// IsConstraintClass reports whether a class extending superName defines a
// constraint. The name may be qualified ("rules.BaseRule"); only the last
// segment is considered.
func IsConstraintClass(superName string) bool {
	if i := strings.LastIndexByte(superName, '.'); i >= 0 {
		superName = superName[i+1:]
	}
	if superName == "" {
		return false
	}
	if strings.Contains(strings.ToLower(superName), "constraint") {
		return true
	}
	return slices.Contains(ConstraintBaseNames, superName)
}

// nameSuggestsConstraint reports whether a variable name hints at holding
// constraint definitions.
func nameSuggestsConstraint(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "constraint") || strings.Contains(lower, "rule")
}

// defaultClassName derives a constraint name from a class name.
func defaultClassName(className string) string {
	trimmed := strings.TrimSuffix(className, "Constraint")
	if trimmed == "" {
		return className
	}
	return trimmed
}
