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
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianUCDL/services/constraints/ucdl"
	"github.com/AleutianAI/AleutianUCDL/services/constraints/value"
)

func TestParse_ObjectSingle(t *testing.T) {
	p := NewParser()
	raw := []byte(`{"name":"Minimum Rest Days","type":"HARD","parameters":{"minDays":2},"weight":1.0,"isHard":true}`)

	recs, err := p.Parse(context.Background(), raw, FormatObject)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	r := recs[0]
	assert.Equal(t, "Minimum Rest Days", r.Name())
	assert.Equal(t, FormatObject, r.SourceType())
	assert.Equal(t, []string{"name", "type", "parameters", "weight", "isHard"}, r.Fields.Keys())

	original := r.Original()
	assert.Equal(t, value.KindObject, original.Kind())
	assert.Equal(t, "Minimum Rest Days", original.Get("name").Text())
}

func TestParse_ObjectEnvelopeAndArray(t *testing.T) {
	p := NewParser()
	ctx := context.Background()

	recs, err := p.Parse(ctx, []byte(`{"constraints":[{"name":"A"},{"name":"B"}]}`), FormatObject)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "A", recs[0].Name())
	assert.Equal(t, "B", recs[1].Name())

	recs, err = p.Parse(ctx, []byte(`[{"name":"X"},{"name":"Y"},{"name":"Z"}]`), FormatObject)
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}

func TestParse_Normalization(t *testing.T) {
	p := NewParser()
	recs, err := p.Parse(context.Background(), []byte(`{"constraintType":"soft","hard":false,"params":{"maxGames":3}}`), FormatObject)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	f := recs[0].Fields
	assert.Equal(t, DefaultName, recs[0].Name())
	assert.Equal(t, "soft", f.Lookup("type").Text())
	assert.True(t, f.Has("isHard"))
	assert.False(t, f.Has("hard"))
	assert.True(t, f.Has("parameters"))
	assert.False(t, f.Has("params"))
	assert.False(t, f.Has("constraintType"))

	// The original payload is untouched by normalization.
	assert.True(t, recs[0].Original().Has("constraintType"))
}

func TestParse_BlankNameGetsDefault(t *testing.T) {
	recs, err := NewParser().Parse(context.Background(), []byte(`{"name":"   ","weight":2}`), FormatObject)
	require.NoError(t, err)
	assert.Equal(t, DefaultName, recs[0].Name())
}

func TestParse_LiteralFallback(t *testing.T) {
	raw := []byte(`{
		// legacy fixture
		name: 'Travel Cap',
		weight: .5,
		tags: ['travel', "road",],
		window: { start: -1, end: +3 },
	};`)

	recs, err := NewParser().Parse(context.Background(), raw, FormatObject)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	f := recs[0].Fields
	assert.Equal(t, "Travel Cap", recs[0].Name())
	w, _ := f.Lookup("weight").AsNumber()
	assert.Equal(t, 0.5, w)
	tags, _ := f.Lookup("tags").AsArray()
	assert.Len(t, tags, 2)
	start, _ := f.Lookup("window").Get("start").AsNumber()
	assert.Equal(t, -1.0, start)
}

func TestParse_LiteralRejectsCode(t *testing.T) {
	raw := []byte(`{ name: 'x', weight: require('fs').readFileSync('/etc/passwd') }`)

	_, err := NewParser().Parse(context.Background(), raw, FormatObject)
	require.Error(t, err)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.True(t, errors.Is(err, ErrInvalidContent))
	assert.Equal(t, 1, perr.Line)
	assert.Greater(t, perr.Column, 1)
	assert.Contains(t, perr.Snippet, "require")
	assert.Contains(t, perr.Message, "function call")
}

func TestParse_InvalidContent(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"unterminated", `{"name": "x"`},
		{"scalar", `42`},
		{"non-object element", `[{"name":"a"}, 7]`},
		{"empty", `   `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser().Parse(context.Background(), []byte(tt.raw), FormatObject)
			require.Error(t, err)
			assert.True(t, IsParseError(err), "got %T: %v", err, err)
		})
	}
}

func TestParse_UnknownFormat(t *testing.T) {
	_, err := NewParser().Parse(context.Background(), []byte(`{}`), Format("xml"))
	require.Error(t, err)
	assert.True(t, ucdl.IsConfigurationError(err))
	assert.True(t, errors.Is(err, ucdl.ErrUnknownFormat))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" Database ")
	require.NoError(t, err)
	assert.Equal(t, FormatDatabase, f)

	_, err = ParseFormat("csv")
	assert.True(t, ucdl.IsConfigurationError(err))
}

func TestParse_Database(t *testing.T) {
	raw := []byte(`{
		"constraint_id": "db_rest",
		"constraint_name": "Rest Window",
		"constraint_type": "hard",
		"constraint_parameters": "{\"minDays\": 2}",
		"constraint_weight": 4,
		"is_hard": 1,
		"applies_to": "team",
		"created_at": "2023-04-01T00:00:00Z",
		"_table": "legacy_constraints"
	}`)

	recs, err := NewParser().Parse(context.Background(), raw, FormatDatabase)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	r := recs[0]
	assert.Equal(t, FormatDatabase, r.SourceType())
	assert.Equal(t, "db_rest", r.Fields.Lookup("id").Text())
	assert.Equal(t, "Rest Window", r.Name())
	assert.Equal(t, "hard", r.Fields.Lookup("type").Text())

	hard, ok := r.Fields.Lookup("isHard").AsBool()
	assert.True(t, ok)
	assert.True(t, hard)

	minDays, ok := r.Fields.Lookup("parameters").Get("minDays").AsInt()
	assert.True(t, ok)
	assert.Equal(t, 2, minDays)

	assert.False(t, r.Fields.Has("created_at"))
	assert.False(t, r.Fields.Has("_table"))
	assert.Equal(t, "2023-04-01T00:00:00Z", r.Metadata.Lookup("created_at").Text())
	assert.Equal(t, "legacy_constraints", r.Metadata.Lookup("_table").Text())
	assert.Equal(t, "team", r.Lookup("applies_to").Text())
}

func TestParseValue(t *testing.T) {
	obj := value.NewObject().Set("name", value.String("From Value")).Set("weight", value.Int(3))
	recs, err := NewParser().ParseValue(context.Background(), value.FromObject(obj), FormatObject)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "From Value", recs[0].Name())

	_, err = NewParser().ParseValue(context.Background(), value.Int(1), FormatClass)
	assert.True(t, IsParseError(err))
}

func TestParseFile_Dispatch(t *testing.T) {
	p := NewParser()
	ctx := context.Background()

	t.Run("json", func(t *testing.T) {
		recs, err := p.ParseFile(ctx, "rules/rest.json", []byte(`[{"name":"A","weight":1}]`))
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "rules/rest.json", recs[0].FilePath())
	})

	t.Run("json database rows", func(t *testing.T) {
		recs, err := p.ParseFile(ctx, "export.json", []byte(`[{"constraint_name":"Row","constraint_weight":2}]`))
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, FormatDatabase, recs[0].SourceType())
		assert.Equal(t, "Row", recs[0].Name())
	})

	t.Run("yaml keeps order", func(t *testing.T) {
		content := "constraints:\n  - name: Late Games\n    weight: 2.5\n    type: soft\n    isHard: false\n"
		recs, err := p.ParseFile(ctx, "late.yml", []byte(content))
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, []string{"name", "weight", "type", "isHard"}, recs[0].Fields.Keys())
		w, _ := recs[0].Fields.Lookup("weight").AsNumber()
		assert.Equal(t, 2.5, w)
		b, ok := recs[0].Fields.Lookup("isHard").AsBool()
		assert.True(t, ok)
		assert.False(t, b)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		_, err := p.ParseFile(ctx, "bad.yaml", []byte("name: [unclosed"))
		assert.True(t, errors.Is(err, ErrInvalidContent))
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := p.ParseFile(ctx, "rules.xml", []byte(`<rules/>`))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnsupportedFormat))
		assert.Contains(t, err.Error(), "rules.xml")
	})

	t.Run("source without constraints", func(t *testing.T) {
		_, err := p.ParseFile(ctx, "util.js", []byte(`export function add(a, b) { return a + b; }`))
		assert.True(t, errors.Is(err, ErrNoConstraints))
	})

	for name, tc := range map[string]struct{ path, content string }{
		"empty json array":    {"empty.json", `[]`},
		"empty json envelope": {"empty.json", `{"constraints":[]}`},
		"empty yaml envelope": {"empty.yaml", "constraints: []\n"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := p.ParseFile(ctx, tc.path, []byte(tc.content))
			assert.True(t, errors.Is(err, ErrNoConstraints))
		})
	}
}

func TestParse_FileTooLarge(t *testing.T) {
	p := NewParser(WithMaxFileSize(16))
	_, err := p.Parse(context.Background(), []byte(strings.Repeat(" ", 17)), FormatObject)
	assert.True(t, errors.Is(err, ErrFileTooLarge))
}

func TestParseError_Format(t *testing.T) {
	err := &ParseError{FilePath: "a.json", Line: 3, Column: 7, Message: "bad", Snippet: "x y", Cause: ErrInvalidContent}
	assert.Equal(t, `a.json:3:7: bad (near "x y")`, err.Error())

	err = &ParseError{Message: "bad"}
	assert.Equal(t, "<input>: bad", err.Error())
}

func TestLineColumnAndSnippet(t *testing.T) {
	content := []byte("ab\ncd\nef")
	line, col := lineColumn(content, 4)
	assert.Equal(t, 2, line)
	assert.Equal(t, 2, col)
	assert.Equal(t, "ab cd ef", snippetAt(content, 4))
}
