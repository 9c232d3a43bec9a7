// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides terminal output styling for the taskapply CLI.
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
	IconSuccess   Icon = "✓"
	IconWarning   Icon = "⚠"
	IconError     Icon = "✗"
	IconPending   Icon = "○"
	IconUnchanged Icon = "="
	IconArrow     Icon = "→"
)

// Render returns the icon with appropriate styling
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending, IconUnchanged:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// =============================================================================
// Printer
// =============================================================================

// Printer writes human-facing output. A plain Printer emits stable
// tab-separated lines without styling, for pipes and scripts.
type Printer struct {
	w      io.Writer
	styled bool
}

// NewPrinter creates a Printer writing to w.
func NewPrinter(w io.Writer, styled bool) *Printer {
	return &Printer{w: w, styled: styled}
}

// Styled reports whether the printer renders styles.
func (p *Printer) Styled() bool {
	return p.styled
}

// Title prints a styled title. Plain printers skip it.
func (p *Printer) Title(text string) {
	if !p.styled {
		return
	}
	fmt.Fprintln(p.w, Styles.Title.Render(text))
}

// Success prints a success message with checkmark
func (p *Printer) Success(text string) {
	if !p.styled {
		fmt.Fprintf(p.w, "OK: %s\n", text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
}

// Warning prints a warning message
func (p *Printer) Warning(text string) {
	if !p.styled {
		fmt.Fprintf(p.w, "WARN: %s\n", text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
}

// Error prints an error message
func (p *Printer) Error(text string) {
	if !p.styled {
		fmt.Fprintf(p.w, "ERROR: %s\n", text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", IconError.Render(), Styles.Error.Render(text))
}

// Info prints an informational message
func (p *Printer) Info(text string) {
	if !p.styled {
		fmt.Fprintln(p.w, text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", Styles.Muted.Render("│"), text)
}

// FileStatus prints one file with its status icon and an optional detail.
func (p *Printer) FileStatus(path string, status Icon, detail string) {
	if !p.styled {
		fmt.Fprintf(p.w, "%s\t%s\t%s\n", status, path, detail)
		return
	}
	if detail != "" {
		fmt.Fprintf(p.w, "%s %s %s\n", status.Render(), path, Styles.Muted.Render("("+detail+")"))
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", status.Render(), path)
}

// Summary prints the per-run counts.
func (p *Printer) Summary(applied, unchanged, conflicted int) {
	if !p.styled {
		fmt.Fprintf(p.w, "SUMMARY: applied=%d unchanged=%d conflicted=%d\n", applied, unchanged, conflicted)
		return
	}
	fmt.Fprintf(p.w, "\n%s %s  %s %s  %s %s\n",
		Styles.Success.Render(fmt.Sprintf("%d", applied)), Styles.Muted.Render("applied"),
		Styles.Muted.Render(fmt.Sprintf("%d", unchanged)), Styles.Muted.Render("unchanged"),
		Styles.Warning.Render(fmt.Sprintf("%d", conflicted)), Styles.Muted.Render("conflicted"),
	)
}

// WarningBox prints lines in a warning-styled box.
func (p *Printer) WarningBox(title string, lines []string) {
	if !p.styled {
		fmt.Fprintf(p.w, "WARN %s:\n", title)
		for _, line := range lines {
			fmt.Fprintf(p.w, "  %s\n", line)
		}
		return
	}
	content := Styles.Warning.Bold(true).Render(title) + "\n" + strings.Join(lines, "\n")
	fmt.Fprintln(p.w, Styles.WarningBox.Width(60).Render(content))
}

// Box prints lines in a rounded box under a title.
func (p *Printer) Box(title string, lines []string) {
	if !p.styled {
		fmt.Fprintf(p.w, "%s:\n", title)
		for _, line := range lines {
			fmt.Fprintf(p.w, "  %s\n", line)
		}
		return
	}
	content := Styles.Title.Render(title) + "\n" + strings.Join(lines, "\n")
	fmt.Fprintln(p.w, Styles.Box.Width(60).Render(content))
}
