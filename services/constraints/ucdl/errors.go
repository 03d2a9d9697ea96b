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

import (
	"errors"
	"fmt"
)

// ErrUnknownFormat indicates that a caller asked for an import or export
// format the pipeline does not know.
var ErrUnknownFormat = errors.New("unknown format")

// ConfigurationError reports a caller mistake that no retry can fix: an
// unknown source format, an unknown export format, or invalid settings.
// It is always fatal and propagated.
type ConfigurationError struct {
	// Setting names what was misconfigured (e.g. "format", "export format").
	Setting string

	// Value is the offending value as supplied.
	Value string

	// Cause is the underlying error, usually ErrUnknownFormat.
	Cause error
}

// Error implements error.
func (e *ConfigurationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("configuration error: %s: %v", e.Setting, e.Cause)
	}
	return fmt.Sprintf("configuration error: %s %q: %v", e.Setting, e.Value, e.Cause)
}

// Unwrap returns the cause.
func (e *ConfigurationError) Unwrap() error { return e.Cause }

// NewUnknownFormatError builds a ConfigurationError for an unknown format.
func NewUnknownFormatError(setting, format string) *ConfigurationError {
	return &ConfigurationError{Setting: setting, Value: format, Cause: ErrUnknownFormat}
}

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}
