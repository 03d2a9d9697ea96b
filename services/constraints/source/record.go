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

	"github.com/AleutianAI/AleutianUCDL/services/constraints/ucdl"
	"github.com/AleutianAI/AleutianUCDL/services/constraints/value"
)

// Format identifies the shape of a legacy source.
type Format string

const (
	// FormatObject is a plain JSON object, a {constraints: [...]} envelope or
	// a bare array of objects.
	FormatObject Format = "object"

	// FormatClass is JavaScript or TypeScript source text defining
	// constraint classes.
	FormatClass Format = "class"

	// FormatDatabase is a flat row keyed by snake_case column aliases.
	FormatDatabase Format = "database"
)

// Formats lists the supported source formats.
var Formats = []Format{FormatObject, FormatClass, FormatDatabase}

// ParseFormat resolves a format name, case-insensitively.
//
// Returns a *ucdl.ConfigurationError for unknown names.
func ParseFormat(name string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", ucdl.NewUnknownFormatError("source format", name)
}

// DefaultName is given to records that carry no usable name.
const DefaultName = "Unnamed Constraint"

// Metadata keys set on Record.Metadata.
const (
	MetaSourceType     = "sourceType"
	MetaOriginalFormat = "originalFormat"
	MetaFilePath       = "filePath"
	MetaLine           = "line"
	MetaClassName      = "className"
	MetaExtends        = "extends"
	MetaHasEvaluate    = "hasEvaluate"
	MetaComplexity     = "complexity"
	MetaDocParams      = "docParams"
	MetaDocumentation  = "documentation"
	MetaProperties     = "properties"
	MetaSkippedKeys    = "skippedKeys"
)

// Record is the loosely typed result of parsing one legacy constraint.
//
// Fields holds the recovered constraint fields under canonical names. Name is
// always present. Metadata holds provenance: the source type, the verbatim
// original payload, and whatever the particular source shape contributed.
type Record struct {
	Fields   *value.Object
	Metadata *value.Object
}

// newRecord normalizes fields and stamps the provenance metadata.
func newRecord(fields *value.Object, format Format, original value.Value) *Record {
	if fields == nil {
		fields = value.NewObject()
	}
	normalizeFields(fields)

	meta := value.NewObject()
	meta.Set(MetaSourceType, value.String(string(format)))
	meta.Set(MetaOriginalFormat, original)
	return &Record{Fields: fields, Metadata: meta}
}

// normalizeFields applies the key renames and the name default.
func normalizeFields(fields *value.Object) {
	fields.Rename("constraintType", "type")
	fields.Rename("hard", "isHard")
	fields.Rename("params", "parameters")

	name := fields.Lookup("name")
	switch name.Kind() {
	case value.KindString:
		if strings.TrimSpace(name.Text()) == "" {
			fields.Set("name", value.String(DefaultName))
		}
	case value.KindNumber, value.KindBool:
		fields.Set("name", value.String(name.Text()))
	default:
		fields.Set("name", value.String(DefaultName))
	}
}

// Name returns the record's name.
func (r *Record) Name() string {
	return r.Fields.Lookup("name").Text()
}

// SourceType returns the format the record was parsed from.
func (r *Record) SourceType() Format {
	return Format(r.Metadata.Lookup(MetaSourceType).Text())
}

// Original returns the verbatim original payload.
func (r *Record) Original() value.Value {
	return r.Metadata.Lookup(MetaOriginalFormat)
}

// FilePath returns the file the record came from, if any.
func (r *Record) FilePath() string {
	v := r.Metadata.Lookup(MetaFilePath)
	if v.IsNull() {
		return ""
	}
	return v.Text()
}

// Lookup returns a field by key. Class records keep unrecognized properties
// under metadata; Lookup falls back to those so that mapping heuristics see
// the same keys for every source shape.
func (r *Record) Lookup(key string) value.Value {
	if v, ok := r.Fields.Get(key); ok {
		return v
	}
	if props, ok := r.Metadata.Lookup(MetaProperties).AsObject(); ok {
		return props.Lookup(key)
	}
	return value.Null()
}

// Has reports whether Lookup would find key.
func (r *Record) Has(key string) bool {
	if r.Fields.Has(key) {
		return true
	}
	props, ok := r.Metadata.Lookup(MetaProperties).AsObject()
	return ok && props.Has(key)
}

// setFilePath records where the record came from.
func (r *Record) setFilePath(path string) {
	if path != "" {
		r.Metadata.Set(MetaFilePath, value.String(path))
	}
}
