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
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianUCDL/services/constraints/ucdl"
	"github.com/AleutianAI/AleutianUCDL/services/constraints/value"
)

// ValidateBatch validates every constraint and adds cross-constraint
// checks. Results are keyed by constraint id; see BatchKey for how
// duplicate and missing ids are keyed.
func (v *Validator) ValidateBatch(items []value.Value) map[string]*Result {
	results := v.ValidateAll(items)
	out := make(map[string]*Result, len(results))
	for i, item := range items {
		id, _ := item.Get("id").AsString()
		out[BatchKey(out, id, i)] = results[i]
	}
	return out
}

// BatchKey returns the map key for the item at index with the given id:
// the id itself, or "id#index" when the id is empty or already taken.
func BatchKey(taken map[string]*Result, id string, index int) string {
	if _, dup := taken[id]; id != "" && !dup {
		return id
	}
	return fmt.Sprintf("%s#%d", id, index)
}

// ValidateAll validates every constraint and adds cross-constraint checks,
// returning results in input order.
//
// Description:
//
//	After the single-constraint groups, the batch group adds:
//	  - duplicate ids (error on every occurrence)
//	  - dependsOn ids missing from the batch (error)
//	  - circular dependencies found by depth-first search over dependsOn
//	    edges with a visited set and a recursion stack (error on every
//	    constraint in the cycle)
//	  - pairwise conflicts (warning): same scope and category with both
//	    HARD, or both TEMPORAL in the same scope
//
//	The pairwise scan is O(n²). Batches larger than the configured limit
//	skip it and receive a suggestion instead.
//
// Inputs:
//   - items: Constraints in JSON form.
//
// Outputs:
//   - []*Result: One result per item, same order.
//
// Thread Safety: Safe for concurrent use.
func (v *Validator) ValidateAll(items []value.Value) []*Result {
	results := make([]*Result, len(items))
	for i, item := range items {
		results[i] = v.ValidateValue(item)
	}

	nodes := make([]batchNode, len(items))
	for i, item := range items {
		id, _ := item.Get("id").AsString()
		nodes[i] = batchNode{
			id:        id,
			dependsOn: stringsOf(item.Get("dependsOn")),
			ctype:     ucdl.ConstraintType(item.Get("type").Text()),
			scope:     ucdl.Scope(item.Get("scope").Text()),
			category:  ucdl.Category(item.Get("category").Text()),
		}
	}

	checkDuplicates(results, nodes)
	checkMissingDependencies(results, nodes)
	checkCycles(results, nodes)
	if v.maxPairwise <= 0 || len(items) <= v.maxPairwise {
		checkConflicts(results, nodes)
	} else {
		for _, r := range results {
			r.suggest(fmt.Sprintf("Pairwise conflict detection skipped: batch of %d exceeds limit %d", len(items), v.maxPairwise))
		}
	}

	for _, r := range results {
		r.finalize()
	}
	return results
}

type batchNode struct {
	id        string
	dependsOn []string
	ctype     ucdl.ConstraintType
	scope     ucdl.Scope
	category  ucdl.Category
}

func checkDuplicates(results []*Result, nodes []batchNode) {
	counts := make(map[string]int, len(nodes))
	for _, n := range nodes {
		if n.id != "" {
			counts[n.id]++
		}
	}
	for i, n := range nodes {
		if n.id == "" {
			continue
		}
		results[i].check(counts[n.id] == 1, GroupBatch, "unique_id", SeverityError,
			fmt.Sprintf("Duplicate constraint id '%s' appears %d times in batch", n.id, counts[n.id]))
	}
}

func checkMissingDependencies(results []*Result, nodes []batchNode) {
	known := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if n.id != "" {
			known[n.id] = true
		}
	}
	for i, n := range nodes {
		for _, dep := range n.dependsOn {
			results[i].check(known[dep], GroupBatch, "dependency_exists:"+dep, SeverityError,
				fmt.Sprintf("Dependency '%s' not found", dep))
		}
	}
}

// checkCycles runs a depth-first search over dependsOn edges. Visiting a
// node already on the recursion stack closes a cycle; every member of the
// cycle gets one circular-dependency error.
func checkCycles(results []*Result, nodes []batchNode) {
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		if _, dup := index[n.id]; n.id != "" && !dup {
			index[n.id] = i
		}
	}

	visited := make(map[string]bool, len(nodes))
	recStack := make(map[string]bool, len(nodes))
	path := make([]string, 0, len(nodes))
	inCycle := make(map[string]string)

	var dfs func(id string)
	dfs = func(id string) {
		visited[id] = true
		recStack[id] = true
		path = append(path, id)

		for _, dep := range nodes[index[id]].dependsOn {
			if _, ok := index[dep]; !ok {
				continue
			}
			if !visited[dep] {
				dfs(dep)
			} else if recStack[dep] {
				cycleStart := 0
				for i, p := range path {
					if p == dep {
						cycleStart = i
						break
					}
				}
				cycle := append(append([]string{}, path[cycleStart:]...), dep)
				desc := strings.Join(cycle, " -> ")
				for _, member := range cycle[:len(cycle)-1] {
					if _, marked := inCycle[member]; !marked {
						inCycle[member] = desc
					}
				}
			}
		}

		path = path[:len(path)-1]
		recStack[id] = false
	}

	for _, n := range nodes {
		if _, ok := index[n.id]; ok && !visited[n.id] {
			dfs(n.id)
		}
	}

	for i, n := range nodes {
		if n.id == "" {
			continue
		}
		desc, cyclic := inCycle[n.id]
		results[i].check(!cyclic, GroupBatch, "no_circular_dependency", SeverityError,
			fmt.Sprintf("Circular dependency detected: %s", desc))
	}
}

// checkConflicts flags pairs of constraints likely to contradict each other.
func checkConflicts(results []*Result, nodes []batchNode) {
	for i := 0; i < len(nodes); i++ {
		for j := i + 1; j < len(nodes); j++ {
			a, b := nodes[i], nodes[j]
			if a.scope == "" || a.scope != b.scope {
				continue
			}
			var reason string
			switch {
			case a.ctype == ucdl.TypeHard && b.ctype == ucdl.TypeHard && a.category == b.category:
				reason = fmt.Sprintf("both HARD with scope %s and category %s", a.scope, a.category)
			case a.category == ucdl.CategoryTemporal && b.category == ucdl.CategoryTemporal:
				reason = fmt.Sprintf("both TEMPORAL with scope %s", a.scope)
			default:
				continue
			}
			results[i].fail(GroupBatch, "conflict:"+b.id, SeverityWarning,
				fmt.Sprintf("Potential conflict with '%s': %s", b.id, reason))
			results[j].fail(GroupBatch, "conflict:"+a.id, SeverityWarning,
				fmt.Sprintf("Potential conflict with '%s': %s", a.id, reason))
		}
	}
}
