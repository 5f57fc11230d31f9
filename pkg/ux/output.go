// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.


// Package ux provides styled terminal output for the squad CLI.
//
// A Printer renders with colors and icons when writing to a terminal and
// falls back to plain or tab-separated machine output otherwise.
package ux

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Squad palette.
var (
	ColorPrimary = lipgloss.Color("#7C3AED")
	ColorAccent  = lipgloss.Color("#A78BFA")
	ColorSuccess = lipgloss.Color("#22C55E")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
	ColorMuted   = lipgloss.Color("#6B7280")
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title   lipgloss.Style
	Key     lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style

	Box        lipgloss.Style
	WarningBox lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary),
	Key:     lipgloss.NewStyle().Foreground(ColorAccent),
	Muted:   lipgloss.NewStyle().Foreground(ColorMuted),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorPrimary).
		Padding(0, 1),
	WarningBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorWarning).
		Padding(0, 1),
}

// Icon is a status glyph.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconBullet  Icon = "•"
)

func (i Icon) render() string {
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

// =============================================================================
// Levels
// =============================================================================

// Level selects how much decoration a Printer adds.
type Level string

const (
	// LevelStyled uses colors, icons and boxes.
	LevelStyled Level = "styled"

	// LevelPlain uses icons without colors.
	LevelPlain Level = "plain"

	// LevelMachine prints tab-separated lines for scripts.
	LevelMachine Level = "machine"
)

// ParseLevel converts a flag value to a Level. Unknown values yield "".
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "styled", "color", "full":
		return LevelStyled
	case "plain", "minimal":
		return LevelPlain
	case "machine", "script":
		return LevelMachine
	default:
		return ""
	}
}

// DetectLevel returns LevelStyled for terminals and LevelPlain otherwise.
func DetectLevel(w io.Writer) Level {
	if f, ok := w.(*os.File); ok {
		fd := f.Fd()
		if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
			return LevelStyled
		}
	}
	return LevelPlain
}

// =============================================================================
// Printer
// =============================================================================

// Printer writes decorated output to w.
type Printer struct {
	w     io.Writer
	level Level
}

// NewPrinter creates a Printer. An empty level is detected from w.
func NewPrinter(w io.Writer, level Level) *Printer {
	if level == "" {
		level = DetectLevel(w)
	}
	return &Printer{w: w, level: level}
}

// Level returns the printer's level.
func (p *Printer) Level() Level { return p.level }

// Writer returns the destination.
func (p *Printer) Writer() io.Writer { return p.w }

func (p *Printer) styled() bool { return p.level == LevelStyled }

// Title prints a heading. Machine output omits it.
func (p *Printer) Title(text string) {
	switch p.level {
	case LevelMachine:
	case LevelStyled:
		fmt.Fprintln(p.w, Styles.Title.Render(text))
	default:
		fmt.Fprintln(p.w, text)
	}
}

// Status prints one line prefixed by icon.
func (p *Printer) Status(icon Icon, text string) {
	switch p.level {
	case LevelMachine:
		fmt.Fprintf(p.w, "%s\t%s\n", icon.machine(), text)
	case LevelStyled:
		fmt.Fprintf(p.w, "%s %s\n", icon.render(), text)
	default:
		fmt.Fprintf(p.w, "%s %s\n", icon, text)
	}
}

func (i Icon) machine() string {
	switch i {
	case IconSuccess:
		return "OK"
	case IconWarning:
		return "WARN"
	case IconError:
		return "ERROR"
	case IconPending:
		return "PENDING"
	default:
		return "-"
	}
}

// Success prints a success line.
func (p *Printer) Success(text string) { p.Status(IconSuccess, text) }

// Warning prints a warning line.
func (p *Printer) Warning(text string) { p.Status(IconWarning, text) }

// Error prints an error line.
func (p *Printer) Error(text string) { p.Status(IconError, text) }

// Muted prints secondary text. Machine output omits it.
func (p *Printer) Muted(text string) {
	switch p.level {
	case LevelMachine:
	case LevelStyled:
		fmt.Fprintln(p.w, Styles.Muted.Render(text))
	default:
		fmt.Fprintln(p.w, text)
	}
}

// KeyValues prints aligned key/value pairs in sorted key order.
func (p *Printer) KeyValues(pairs map[string]string) {
	keys := make([]string, 0, len(pairs))
	width := 0
	for k := range pairs {
		keys = append(keys, k)
		if len(k) > width {
			width = len(k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		switch p.level {
		case LevelMachine:
			fmt.Fprintf(p.w, "%s\t%s\n", k, pairs[k])
		case LevelStyled:
			fmt.Fprintf(p.w, "%s  %s\n", Styles.Key.Render(fmt.Sprintf("%-*s", width, k)), pairs[k])
		default:
			fmt.Fprintf(p.w, "%-*s  %s\n", width, k, pairs[k])
		}
	}
}

// Box prints content under a title, boxed when styled.
func (p *Printer) Box(title, content string) {
	p.box(Styles.Box, Styles.Title, title, content)
}

// WarningBox is Box with warning colors.
func (p *Printer) WarningBox(title, content string) {
	p.box(Styles.WarningBox, Styles.Warning.Bold(true), title, content)
}

func (p *Printer) box(box, heading lipgloss.Style, title, content string) {
	if !p.styled() {
		fmt.Fprintf(p.w, "%s: %s\n", title, content)
		return
	}
	fmt.Fprintln(p.w, box.Width(64).Render(heading.Render(title)+"\n"+content))
}
