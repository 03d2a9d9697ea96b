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
	"bytes"
	"strings"
	"testing"
)

func machinePrinter() (*Printer, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return NewPrinterAt(&out, &errOut, LevelMachine), &out, &errOut
}

// =============================================================================
// Icon Tests
// =============================================================================

func TestIcon_Render(t *testing.T) {
	for _, icon := range []Icon{IconSuccess, IconWarning, IconError, IconPending, IconArrow} {
		if icon.Render() == "" {
			t.Errorf("expected non-empty render for %q", icon)
		}
	}
}

func TestIcon_Label(t *testing.T) {
	tests := map[Icon]string{
		IconSuccess: "OK",
		IconWarning: "WARN",
		IconError:   "FAIL",
		IconPending: "SKIP",
		IconArrow:   "→",
	}
	for icon, want := range tests {
		if got := icon.Label(); got != want {
			t.Errorf("Label(%q) = %q, want %q", icon, got, want)
		}
	}
}

// =============================================================================
// Level Tests
// =============================================================================

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"machine", LevelMachine},
		{"PLAIN", LevelMachine},
		{"q", LevelMachine},
		{"minimal", LevelMinimal},
		{" m ", LevelMinimal},
		{"rich", LevelRich},
		{"nonsense", LevelRich},
		{"", LevelRich},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDetectLevel_NonTerminal(t *testing.T) {
	t.Setenv(EnvLevel, "")
	if got := DetectLevel(&bytes.Buffer{}); got != LevelMachine {
		t.Errorf("DetectLevel(buffer) = %q, want %q", got, LevelMachine)
	}
}

func TestDetectLevel_EnvOverride(t *testing.T) {
	t.Setenv(EnvLevel, "minimal")
	if got := DetectLevel(&bytes.Buffer{}); got != LevelMinimal {
		t.Errorf("DetectLevel with %s=minimal = %q", EnvLevel, got)
	}
}

func TestNewPrinter_DetectsMachineForBuffers(t *testing.T) {
	t.Setenv(EnvLevel, "")
	p := NewPrinter(&bytes.Buffer{}, nil)
	if p.Level() != LevelMachine {
		t.Errorf("Level() = %q, want %q", p.Level(), LevelMachine)
	}
}

// =============================================================================
// Machine Output Tests
// =============================================================================

func TestPrinter_Machine_StatusLines(t *testing.T) {
	p, out, errOut := machinePrinter()

	p.Title("Migration")
	p.Muted("secondary")
	p.Success("done")
	p.Info("3 files")
	p.Warning("careful")
	p.Error("broken")

	if got, want := out.String(), "OK: done\n3 files\n"; got != want {
		t.Errorf("stdout = %q, want %q", got, want)
	}
	if got, want := errOut.String(), "WARN: careful\nERROR: broken\n"; got != want {
		t.Errorf("stderr = %q, want %q", got, want)
	}
}

func TestPrinter_Machine_FileStatus(t *testing.T) {
	p, out, _ := machinePrinter()

	p.FileStatus("rules/a.js", IconSuccess, "")
	p.FileStatus("rules/b.js", IconError, "parse error")

	want := "OK\trules/a.js\t\nFAIL\trules/b.js\tparse error\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestPrinter_Machine_Summary(t *testing.T) {
	p, out, _ := machinePrinter()

	p.Summary(8, 2, 10)

	if want := "SUMMARY: successful=8 failed=2 total=10\n"; out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestPrinter_Machine_Box(t *testing.T) {
	p, out, errOut := machinePrinter()

	p.Box("Recommendations", "first\nsecond")
	p.WarningBox("Dry run", "nothing written")

	if want := "Recommendations: first; second\n"; out.String() != want {
		t.Errorf("box = %q, want %q", out.String(), want)
	}
	if want := "WARN Dry run: nothing written\n"; errOut.String() != want {
		t.Errorf("warning box = %q, want %q", errOut.String(), want)
	}
}

func TestPrinter_ScoreBar(t *testing.T) {
	p, _, _ := machinePrinter()
	if got := p.ScoreBar(87.4, 20); got != "87/100" {
		t.Errorf("machine ScoreBar = %q", got)
	}
	if got := p.ScoreBar(140, 20); got != "100/100" {
		t.Errorf("clamped ScoreBar = %q", got)
	}

	minimal := NewPrinterAt(&bytes.Buffer{}, nil, LevelMinimal)
	bar := minimal.ScoreBar(50, 10)
	if strings.Count(bar, "█") != 5 || strings.Count(bar, "░") != 5 {
		t.Errorf("minimal ScoreBar = %q, want half filled", bar)
	}
}

// =============================================================================
// Minimal Output Tests
// =============================================================================

func TestPrinter_Minimal_UsesPlainIcons(t *testing.T) {
	var out bytes.Buffer
	p := NewPrinterAt(&out, nil, LevelMinimal)

	p.Success("done")
	p.Warning("careful")
	p.FileStatus("a.js", IconError, "ignored reason")
	p.Summary(1, 1, 2)

	want := "✓ done\n⚠ careful\n✗ a.js\nSUMMARY: successful=1 failed=1 total=2\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestPrinter_Rich_WritesEverything(t *testing.T) {
	var out bytes.Buffer
	p := NewPrinterAt(&out, nil, LevelRich)

	p.Title("Migration")
	p.Box("Recommendations", "review warnings")
	p.FileStatus("a.js", IconWarning, "2 warnings")

	for _, want := range []string{"Migration", "Recommendations", "review warnings", "a.js", "2 warnings"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("rich output missing %q:\n%s", want, out.String())
		}
	}
}
