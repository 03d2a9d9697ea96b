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
	"strings"

	"github.com/AleutianAI/AleutianUCDL/services/constraints/value"
)

// databaseAliases maps legacy column names to canonical field names.
var databaseAliases = map[string]string{
	"constraint_id":          "id",
	"constraint_name":        "name",
	"constraint_description": "description",
	"constraint_type":        "type",
	"constraint_category":    "category",
	"constraint_parameters":  "parameters",
	"constraint_weight":      "weight",
	"constraint_priority":    "priority",
	"is_hard":                "isHard",
}

// databaseMetaColumns are bookkeeping columns kept as metadata.
var databaseMetaColumns = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"_table":     true,
}

// LooksLikeDatabaseRow reports whether obj is keyed by database aliases
// rather than canonical field names.
func LooksLikeDatabaseRow(obj *value.Object) bool {
	if obj.Has("name") {
		return false
	}
	return obj.Has("constraint_name") || obj.Has("constraint_id")
}

// databaseRecord maps one flat row onto a record.
func databaseRecord(row *value.Object) *Record {
	fields := value.NewObject()
	extra := value.NewObject()

	row.Range(func(column string, v value.Value) bool {
		if databaseMetaColumns[column] {
			extra.Set(column, v)
			return true
		}
		key := column
		if alias, ok := databaseAliases[column]; ok {
			key = alias
		}
		switch key {
		case "parameters":
			v = decodeEmbeddedJSON(v)
		case "isHard":
			v = coerceFlag(v)
		}
		fields.Set(key, v)
		return true
	})

	rec := newRecord(fields, FormatDatabase, value.FromObject(row.Clone()))
	extra.Range(func(column string, v value.Value) bool {
		rec.Metadata.Set(column, v)
		return true
	})
	return rec
}

// decodeEmbeddedJSON decodes a JSON document stored in a text column.
// Values that are not JSON text are returned unchanged.
func decodeEmbeddedJSON(v value.Value) value.Value {
	s, ok := v.AsString()
	if !ok {
		return v
	}
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || (trimmed[0] != '{' && trimmed[0] != '[') {
		return v
	}
	decoded, err := value.Decode([]byte(trimmed))
	if err != nil {
		return v
	}
	return decoded
}

// coerceFlag turns SQL-style boolean encodings (0/1, "t"/"f", "true") into
// booleans. Anything else is returned unchanged.
func coerceFlag(v value.Value) value.Value {
	switch v.Kind() {
	case value.KindNumber:
		n, _ := v.AsNumber()
		switch n {
		case 0:
			return value.Bool(false)
		case 1:
			return value.Bool(true)
		}
	case value.KindString:
		switch strings.ToLower(strings.TrimSpace(v.Text())) {
		case "1", "t", "true", "yes", "y":
			return value.Bool(true)
		case "0", "f", "false", "no", "n":
			return value.Bool(false)
		}
	}
	return v
}
