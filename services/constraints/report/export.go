// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianUCDL/services/constraints/ucdl"
)

// ExportFormat names a report serialization.
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportYAML ExportFormat = "yaml"
)

// ParseExportFormat resolves a user-supplied format name. Unknown names
// yield a *ucdl.ConfigurationError.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json", "":
		return ExportJSON, nil
	case "yaml", "yml":
		return ExportYAML, nil
	default:
		return "", ucdl.NewUnknownFormatError("export format", s)
	}
}

// Export writes the report document to w.
func (r *Report) Export(w io.Writer, format string) error {
	f, err := ParseExportFormat(format)
	if err != nil {
		return err
	}
	return WriteDocument(w, r.Document(), f)
}

// WriteDocument serializes doc to w. JSON is indented with two spaces.
func WriteDocument(w io.Writer, doc Document, f ExportFormat) error {
	switch f {
	case ExportYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode report yaml: %w", err)
		}
		return enc.Close()
	case ExportJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode report json: %w", err)
		}
		return nil
	default:
		return ucdl.NewUnknownFormatError("export format", string(f))
	}
}
