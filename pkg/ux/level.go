// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Level controls how rich the terminal output is.
type Level string

const (
	// LevelRich enables colors, icons and boxes.
	LevelRich Level = "rich"

	// LevelMinimal uses icons without colors.
	LevelMinimal Level = "minimal"

	// LevelMachine outputs plain, line-oriented text for scripts.
	LevelMachine Level = "machine"
)

// EnvLevel overrides the detected output level.
const EnvLevel = "UCDL_OUTPUT"

// ParseLevel converts a string to a Level. Unknown values select LevelRich.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minimal", "min", "m":
		return LevelMinimal
	case "machine", "plain", "quiet", "q":
		return LevelMachine
	default:
		return LevelRich
	}
}

// DetectLevel picks the level for w.
//
// UCDL_OUTPUT wins when set. Otherwise writers that are not a terminal get
// LevelMachine, and NO_COLOR downgrades a terminal to LevelMinimal.
func DetectLevel(w io.Writer) Level {
	if env := os.Getenv(EnvLevel); env != "" {
		return ParseLevel(env)
	}
	if !isTerminal(w) {
		return LevelMachine
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return LevelMinimal
	}
	return LevelRich
}

// isTerminal checks whether w is a terminal file descriptor.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
