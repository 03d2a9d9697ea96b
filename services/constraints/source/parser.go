// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package source recovers loosely typed constraint records from legacy
// sources: JSON or YAML objects, JavaScript and TypeScript source text, and
// flat database rows.
//
// Nothing in this package executes legacy code. Object literals that are not
// valid JSON go through a strict literal-subset evaluator, and class
// definitions are read from a tree-sitter syntax tree.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianUCDL/services/constraints/ucdl"
	"github.com/AleutianAI/AleutianUCDL/services/constraints/value"
)

// DefaultMaxFileSize is the default content size limit (10MB).
const DefaultMaxFileSize = 10 * 1024 * 1024

// Parser converts legacy sources into records.
//
// Thread Safety: Safe for concurrent use.
type Parser struct {
	analyzer    SourceAnalyzer
	logger      *slog.Logger
	maxFileSize int
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithAnalyzer replaces the source-text analyzer.
func WithAnalyzer(a SourceAnalyzer) ParserOption {
	return func(p *Parser) {
		p.analyzer = a
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ParserOption {
	return func(p *Parser) {
		p.logger = logger
	}
}

// WithMaxFileSize sets the content size limit. Zero disables the check.
func WithMaxFileSize(bytes int) ParserOption {
	return func(p *Parser) {
		p.maxFileSize = bytes
	}
}

// NewParser creates a Parser. By default it analyzes source text with a
// TreeSitterAnalyzer and logs to slog.Default.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.analyzer == nil {
		p.analyzer = NewTreeSitterAnalyzer(p.logger)
	}
	return p
}

// Parse converts raw input of the declared format into records.
//
// Description:
//
//	FormatObject and FormatDatabase accept JSON, falling back to the
//	literal-subset evaluator when the text is not valid JSON. A single
//	object yields one record; {"constraints": [...]} and bare arrays yield
//	one record per element. FormatClass runs the source analyzer.
//
// Inputs:
//   - ctx: Context for cancellation.
//   - raw: The source bytes.
//   - format: Declared format.
//
// Outputs:
//   - []*Record: At least one record on success.
//   - error: *ParseError for malformed input, *ucdl.ConfigurationError for
//     an unknown format.
//
// Thread Safety: Safe for concurrent use.
func (p *Parser) Parse(ctx context.Context, raw []byte, format Format) ([]*Record, error) {
	if err := p.checkSize("", raw); err != nil {
		return nil, err
	}

	switch format {
	case FormatObject, FormatDatabase:
		v, err := p.decodeObjectText(ctx, "", raw)
		if err != nil {
			return nil, err
		}
		return p.fromValue(v, format, "", false)

	case FormatClass:
		recs, err := p.analyzer.Analyze(ctx, raw, "")
		if err != nil {
			return nil, err
		}
		if len(recs) == 0 {
			return nil, &ParseError{Message: "no constraint class found", Snippet: snippetAt(raw, 0), Cause: ErrNoConstraints}
		}
		return recs, nil

	default:
		return nil, ucdl.NewUnknownFormatError("source format", string(format))
	}
}

// ParseValue converts an already decoded value. For FormatClass the value
// must be a string holding source text.
func (p *Parser) ParseValue(ctx context.Context, v value.Value, format Format) ([]*Record, error) {
	switch format {
	case FormatObject, FormatDatabase:
		return p.fromValue(v, format, "", false)
	case FormatClass:
		text, ok := v.AsString()
		if !ok {
			return nil, &ParseError{Message: fmt.Sprintf("class source must be a string, got %s", v.Kind()), Cause: ErrInvalidContent}
		}
		return p.Parse(ctx, []byte(text), FormatClass)
	default:
		return nil, ucdl.NewUnknownFormatError("source format", string(format))
	}
}

// ParseFile dispatches on the file extension.
//
// Description:
//
//	.json is read as object format; rows keyed by database aliases are
//	mapped with the database format. .yaml and .yml are decoded and then
//	read as object format. JavaScript and TypeScript extensions (see
//	SourceExtensions) go through the source analyzer. Every record gets
//	the file path in its metadata.
//
// Inputs:
//   - ctx: Context for cancellation.
//   - path: File path. Only the extension and the name are used.
//   - content: File contents.
//
// Outputs:
//   - []*Record: Records in file order.
//   - error: *ParseError wrapping ErrUnsupportedFormat for unknown
//     extensions, ErrNoConstraints for a file that defines nothing, or
//     another sentinel for malformed content.
//
// Thread Safety: Safe for concurrent use.
func (p *Parser) ParseFile(ctx context.Context, path string, content []byte) ([]*Record, error) {
	if err := p.checkSize(path, content); err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(path))
	var (
		recs []*Record
		err  error
	)
	switch {
	case ext == ".json":
		var v value.Value
		v, err = p.decodeObjectText(ctx, path, content)
		if err == nil {
			recs, err = p.fromValue(v, FormatObject, path, true)
		}

	case ext == ".yaml" || ext == ".yml":
		start := time.Now()
		var v value.Value
		v, err = decodeYAML(path, content)
		if err == nil {
			recs, err = p.fromValue(v, FormatObject, path, true)
		}
		recordParseMetrics(ctx, "yaml", time.Since(start), len(recs), err == nil)

	case SourceExtensions[ext] != "":
		recs, err = p.analyzer.Analyze(ctx, content, path)

	default:
		return nil, &ParseError{
			FilePath: path,
			Message:  fmt.Sprintf("unsupported file extension %q", ext),
			Cause:    ErrUnsupportedFormat,
		}
	}
	if err == nil && len(recs) == 0 {
		err = &ParseError{FilePath: path, Message: "no constraint definitions found", Cause: ErrNoConstraints}
	}
	if err != nil {
		return nil, err
	}

	for _, r := range recs {
		r.setFilePath(path)
	}
	p.logger.Debug("parsed legacy file",
		slog.String("path", path),
		slog.Int("records", len(recs)),
	)
	return recs, nil
}

// decodeObjectText decodes JSON, falling back to the literal evaluator.
func (p *Parser) decodeObjectText(ctx context.Context, path string, raw []byte) (value.Value, error) {
	ctx, span := startParseSpan(ctx, "object", path, len(raw))
	defer span.End()
	start := time.Now()

	v, jsonErr := value.Decode(raw)
	if jsonErr == nil {
		recordParseMetrics(ctx, "json", time.Since(start), 1, true)
		return v, nil
	}

	v, err := ParseLiteral(ctx, raw)
	if err != nil {
		recordParseMetrics(ctx, "literal", time.Since(start), 0, false)
		var perr *ParseError
		if errors.As(err, &perr) {
			perr.FilePath = path
			perr.Message = "invalid JSON or object literal: " + perr.Message
			return value.Null(), perr
		}
		return value.Null(), &ParseError{FilePath: path, Message: err.Error(), Cause: ErrInvalidContent}
	}

	p.logger.Debug("decoded object literal after JSON failure",
		slog.String("path", path),
		slog.String("json_error", jsonErr.Error()),
	)
	recordParseMetrics(ctx, "literal", time.Since(start), 1, true)
	return v, nil
}

// fromValue splits a decoded document into records. detectRows maps objects
// keyed by database aliases with the database format.
func (p *Parser) fromValue(v value.Value, format Format, path string, detectRows bool) ([]*Record, error) {
	var items []value.Value
	switch v.Kind() {
	case value.KindObject:
		if list, ok := v.Get("constraints").AsArray(); ok {
			items = list
		} else {
			items = []value.Value{v}
		}
	case value.KindArray:
		items, _ = v.AsArray()
	default:
		return nil, &ParseError{
			FilePath: path,
			Message:  fmt.Sprintf("expected an object or array of constraints, got %s", v.Kind()),
			Snippet:  truncate(v.String(), 2*snippetRadius),
			Cause:    ErrInvalidContent,
		}
	}

	recs := make([]*Record, 0, len(items))
	for i, item := range items {
		obj, ok := item.AsObject()
		if !ok {
			return nil, &ParseError{
				FilePath: path,
				Message:  fmt.Sprintf("constraint %d is %s, expected object", i, item.Kind()),
				Snippet:  truncate(item.String(), 2*snippetRadius),
				Cause:    ErrInvalidContent,
			}
		}
		switch {
		case format == FormatDatabase, detectRows && LooksLikeDatabaseRow(obj):
			recs = append(recs, databaseRecord(obj))
		default:
			recs = append(recs, newRecord(obj.Clone(), FormatObject, item))
		}
	}
	return recs, nil
}

func (p *Parser) checkSize(path string, content []byte) error {
	if p.maxFileSize > 0 && len(content) > p.maxFileSize {
		return &ParseError{
			FilePath: path,
			Message:  fmt.Sprintf("content is %d bytes, limit is %d", len(content), p.maxFileSize),
			Cause:    ErrFileTooLarge,
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
