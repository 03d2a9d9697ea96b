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
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Sentinel errors for parse failure categories. Check with errors.Is.
var (
	// ErrUnsupportedFormat indicates a file extension no parser handles.
	ErrUnsupportedFormat = errors.New("unsupported source format")

	// ErrInvalidContent indicates malformed input: bad JSON, a literal
	// containing code, non-UTF-8 bytes, or a syntax error in source text.
	ErrInvalidContent = errors.New("invalid content")

	// ErrNoConstraints indicates well-formed input that defines no constraint.
	ErrNoConstraints = errors.New("no constraint definitions found")

	// ErrFileTooLarge indicates content over the configured size limit.
	ErrFileTooLarge = errors.New("file too large")
)

// snippetRadius is how many bytes of context a ParseError snippet shows on
// each side of the failure offset.
const snippetRadius = 30

// ParseError describes why one legacy source could not be parsed.
//
// A ParseError is fatal for that source only. The parser never recovers from
// it internally; the migrator decides whether the surrounding batch goes on.
//
// Example:
//
//	_, err := parser.Parse(ctx, raw, source.FormatObject)
//	var perr *source.ParseError
//	if errors.As(err, &perr) {
//	    fmt.Printf("%d:%d near %q\n", perr.Line, perr.Column, perr.Snippet)
//	}
type ParseError struct {
	// FilePath is the source file, or empty for in-memory input.
	FilePath string

	// Line is 1-indexed; 0 when unknown.
	Line int

	// Column is 1-indexed; 0 when unknown.
	Column int

	// Message is a human-readable description.
	Message string

	// Snippet is the offending text around the failure point.
	Snippet string

	// Cause is the underlying error, usually one of the sentinels above.
	Cause error
}

// Error formats the error as "file:line:col: message (near "...")".
func (e *ParseError) Error() string {
	path := e.FilePath
	if path == "" {
		path = "<input>"
	}

	var b strings.Builder
	switch {
	case e.Line > 0 && e.Column > 0:
		fmt.Fprintf(&b, "%s:%d:%d: %s", path, e.Line, e.Column, e.Message)
	case e.Line > 0:
		fmt.Fprintf(&b, "%s:%d: %s", path, e.Line, e.Message)
	default:
		fmt.Fprintf(&b, "%s: %s", path, e.Message)
	}
	if e.Snippet != "" {
		fmt.Fprintf(&b, " (near %q)", e.Snippet)
	}
	return b.String()
}

// Unwrap returns the cause.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// newParseErrorAt builds a ParseError located at a byte offset in content.
func newParseErrorAt(filePath string, content []byte, offset int, message string, cause error) *ParseError {
	line, col := lineColumn(content, offset)
	return &ParseError{
		FilePath: filePath,
		Line:     line,
		Column:   col,
		Message:  message,
		Snippet:  snippetAt(content, offset),
		Cause:    cause,
	}
}

// IsParseError reports whether err is or wraps a ParseError.
func IsParseError(err error) bool {
	var perr *ParseError
	return errors.As(err, &perr)
}

// lineColumn converts a byte offset into 1-indexed line and column.
func lineColumn(content []byte, offset int) (int, int) {
	if offset < 0 {
		return 0, 0
	}
	if offset > len(content) {
		offset = len(content)
	}
	line, col := 1, 1
	for _, r := range string(content[:offset]) {
		if r == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}

// snippetAt returns up to snippetRadius bytes on each side of offset, cut at
// rune boundaries and with newlines flattened.
func snippetAt(content []byte, offset int) string {
	if len(content) == 0 {
		return ""
	}
	if offset < 0 {
		offset = 0
	}
	if offset > len(content) {
		offset = len(content)
	}
	start := offset - snippetRadius
	if start < 0 {
		start = 0
	}
	end := offset + snippetRadius
	if end > len(content) {
		end = len(content)
	}
	for start > 0 && !utf8.RuneStart(content[start]) {
		start--
	}
	for end < len(content) && !utf8.RuneStart(content[end]) {
		end++
	}
	s := strings.ReplaceAll(string(content[start:end]), "\n", " ")
	return strings.TrimSpace(s)
}
