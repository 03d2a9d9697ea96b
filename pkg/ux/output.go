// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides terminal output styling for the ucdl CLI.
package ux

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Aleutian color palette - deep ocean teals and arctic waters
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // highlights, success
	ColorTealPrimary = lipgloss.Color("#20B9B4") // main brand color
	ColorTealDeep    = lipgloss.Color("#16858E") // borders, accents
	ColorSlate       = lipgloss.Color("#2C4A54") // muted text, borders

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Bold     lipgloss.Style
	Muted    lipgloss.Style
	Success  lipgloss.Style
	Warning  lipgloss.Style
	Error    lipgloss.Style

	Box        lipgloss.Style
	WarningBox lipgloss.Style
}{
	Title:    lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Subtitle: lipgloss.NewStyle().Foreground(ColorTealPrimary),
	Bold:     lipgloss.NewStyle().Bold(true),
	Muted:    lipgloss.NewStyle().Foreground(ColorSlate),
	Success:  lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:  lipgloss.NewStyle().Foreground(ColorWarning),
	Error:    lipgloss.NewStyle().Foreground(ColorError),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
	WarningBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorWarning).
		Padding(0, 1),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
)

// Label is the plain-text word used for the icon in machine output.
func (i Icon) Label() string {
	switch i {
	case IconSuccess:
		return "OK"
	case IconWarning:
		return "WARN"
	case IconError:
		return "FAIL"
	case IconPending:
		return "SKIP"
	default:
		return string(i)
	}
}

// Render returns the icon with appropriate styling
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// Printer writes styled output at a fixed Level. Status lines go to out;
// machine-level warnings and errors go to errOut.
//
// Thread Safety: Not safe for concurrent use.
type Printer struct {
	out    io.Writer
	errOut io.Writer
	level  Level
}

// NewPrinter creates a printer whose level is detected from out.
func NewPrinter(out, errOut io.Writer) *Printer {
	return NewPrinterAt(out, errOut, DetectLevel(out))
}

// NewPrinterAt creates a printer with an explicit level.
func NewPrinterAt(out, errOut io.Writer, level Level) *Printer {
	if errOut == nil {
		errOut = out
	}
	return &Printer{out: out, errOut: errOut, level: level}
}

// Level returns the printer's output level.
func (p *Printer) Level() Level {
	return p.level
}

// Title prints a styled title
func (p *Printer) Title(text string) {
	if p.level == LevelMachine {
		return
	}
	fmt.Fprintln(p.out, p.style(Styles.Title, text))
}

// Success prints a success message with checkmark
func (p *Printer) Success(text string) {
	switch p.level {
	case LevelMachine:
		fmt.Fprintf(p.out, "OK: %s\n", text)
	case LevelMinimal:
		fmt.Fprintf(p.out, "%s %s\n", IconSuccess, text)
	default:
		fmt.Fprintf(p.out, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
	}
}

// Warning prints a warning message
func (p *Printer) Warning(text string) {
	switch p.level {
	case LevelMachine:
		fmt.Fprintf(p.errOut, "WARN: %s\n", text)
	case LevelMinimal:
		fmt.Fprintf(p.out, "%s %s\n", IconWarning, text)
	default:
		fmt.Fprintf(p.out, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
	}
}

// Error prints an error message
func (p *Printer) Error(text string) {
	switch p.level {
	case LevelMachine:
		fmt.Fprintf(p.errOut, "ERROR: %s\n", text)
	case LevelMinimal:
		fmt.Fprintf(p.out, "%s %s\n", IconError, text)
	default:
		fmt.Fprintf(p.out, "%s %s\n", IconError.Render(), Styles.Error.Render(text))
	}
}

// Info prints an informational message
func (p *Printer) Info(text string) {
	if p.level == LevelMachine {
		fmt.Fprintln(p.out, text)
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", p.style(Styles.Muted, "│"), text)
}

// Muted prints secondary text. Machine output drops it.
func (p *Printer) Muted(text string) {
	if p.level == LevelMachine {
		return
	}
	fmt.Fprintln(p.out, p.style(Styles.Muted, text))
}

// Box prints text in a rounded box
func (p *Printer) Box(title, content string) {
	p.box(Styles.Box, Styles.Title, title, content)
}

// WarningBox prints text in a warning-styled box
func (p *Printer) WarningBox(title, content string) {
	if p.level == LevelMachine {
		fmt.Fprintf(p.errOut, "WARN %s: %s\n", title, content)
		return
	}
	p.box(Styles.WarningBox, Styles.Warning.Bold(true), title, content)
}

func (p *Printer) box(frame, heading lipgloss.Style, title, content string) {
	switch p.level {
	case LevelMachine:
		fmt.Fprintf(p.out, "%s: %s\n", title, strings.ReplaceAll(content, "\n", "; "))
	case LevelMinimal:
		fmt.Fprintf(p.out, "%s\n%s\n", title, content)
	default:
		fmt.Fprintln(p.out, frame.Width(60).Render(heading.Render(title)+"\n"+content))
	}
}

// FileStatus prints a path with its migration status
func (p *Printer) FileStatus(path string, status Icon, reason string) {
	switch p.level {
	case LevelMachine:
		fmt.Fprintf(p.out, "%s\t%s\t%s\n", status.Label(), path, reason)
	case LevelMinimal:
		fmt.Fprintf(p.out, "%s %s\n", status, path)
	default:
		if reason != "" {
			fmt.Fprintf(p.out, "%s %s %s\n", status.Render(), path, Styles.Muted.Render("("+reason+")"))
		} else {
			fmt.Fprintf(p.out, "%s %s\n", status.Render(), path)
		}
	}
}

// Summary prints a summary line with counts
func (p *Printer) Summary(successful, failed, total int) {
	if p.level != LevelRich {
		fmt.Fprintf(p.out, "SUMMARY: successful=%d failed=%d total=%d\n", successful, failed, total)
		return
	}
	fmt.Fprintf(p.out, "\n%s %s  %s %s  %s %s\n",
		Styles.Success.Render(fmt.Sprintf("%d", successful)), Styles.Muted.Render("successful"),
		Styles.Error.Render(fmt.Sprintf("%d", failed)), Styles.Muted.Render("failed"),
		Styles.Bold.Render(fmt.Sprintf("%d", total)), Styles.Muted.Render("total"),
	)
}

// ScoreBar renders a 0-100 quality score as a bar of the given width.
func (p *Printer) ScoreBar(score float64, width int) string {
	score = max(0, min(100, score))
	if p.level == LevelMachine {
		return fmt.Sprintf("%.0f/100", score)
	}
	filled := int(score / 100 * float64(width))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	if p.level == LevelMinimal {
		return fmt.Sprintf("%s %3.0f", bar, score)
	}
	style := Styles.Success
	switch {
	case score < 50:
		style = Styles.Error
	case score < 80:
		style = Styles.Warning
	}
	return fmt.Sprintf("%s %3.0f", style.Render(bar), score)
}

func (p *Printer) style(s lipgloss.Style, text string) string {
	if p.level != LevelRich {
		return text
	}
	return s.Render(text)
}
