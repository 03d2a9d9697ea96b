// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Exit codes for CLI commands.
const (
	CLIExitSuccess  = 0 // Operation completed successfully
	CLIExitFindings = 1 // Operation completed with failed or invalid constraints
	CLIExitError    = 2 // Operation failed
)

// APIVersion is reported in every JSON envelope.
const APIVersion = "1.0"

// OutputConfig controls output behavior.
type OutputConfig struct {
	JSON    bool // Output as JSON
	Compact bool // No indentation
	Quiet   bool // No output, exit code only
}

// CommandResult wraps command output with metadata.
type CommandResult struct {
	APIVersion string    `json:"api_version"`
	Command    string    `json:"command"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"`
	Success    bool      `json:"success"`
	Data       any       `json:"data,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// OutputJSON writes structured data as JSON to w.
//
// # Inputs
//
//   - w: Destination, normally stdout.
//   - data: The data to encode. Must be JSON-serializable.
//   - compact: If true, output without indentation.
//
// # Outputs
//
//   - error: Non-nil if encoding fails.
func OutputJSON(w io.Writer, data any, compact bool) error {
	encoder := json.NewEncoder(w)
	if !compact {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

// OutputError writes an error in the appropriate format. JSON mode writes
// an envelope to stdout; otherwise the message goes to stderr.
func OutputError(stdout, stderr io.Writer, cfg OutputConfig, cmd string, err error) {
	if cfg.Quiet {
		return
	}
	if cfg.JSON {
		result := CommandResult{
			APIVersion: APIVersion,
			Command:    cmd,
			Timestamp:  time.Now().UTC(),
			Success:    false,
			Error:      err.Error(),
		}
		if encErr := OutputJSON(stdout, result, cfg.Compact); encErr == nil {
			return
		}
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
}

// OutputResult writes the JSON envelope when JSON mode is on and maps the
// outcome to an exit code.
//
// # Inputs
//
//   - w: Destination for the JSON envelope.
//   - cfg: Output configuration.
//   - cmd: Command name for metadata.
//   - start: Start time for duration calculation.
//   - data: The data to output.
//   - hasFindings: Whether any constraint failed or was invalid.
//
// # Outputs
//
//   - int: The exit code to use.
func OutputResult(w io.Writer, cfg OutputConfig, cmd string, start time.Time, data any, hasFindings bool) int {
	if cfg.JSON && !cfg.Quiet {
		result := CommandResult{
			APIVersion: APIVersion,
			Command:    cmd,
			Timestamp:  time.Now().UTC(),
			DurationMs: time.Since(start).Milliseconds(),
			Success:    !hasFindings,
			Data:       data,
		}
		if err := OutputJSON(w, result, cfg.Compact); err != nil {
			return CLIExitError
		}
	}
	if hasFindings {
		return CLIExitFindings
	}
	return CLIExitSuccess
}
