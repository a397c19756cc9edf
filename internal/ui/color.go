// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui provides terminal output helpers for the codedoc CLI.
//
// Colors follow one convention: red for failures, yellow for warnings and
// placeholders, green for success, cyan for counts and info, bold for
// headers. They are disabled by --no-color, by NO_COLOR, and when stdout is
// not a terminal.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

var (
	Red    = color.New(color.FgRed)
	Yellow = color.New(color.FgYellow)
	Green  = color.New(color.FgGreen)
	Cyan   = color.New(color.FgCyan)
	Bold   = color.New(color.Bold)
	Dim    = color.New(color.Faint)
)

// InitColors sets the global color state. Call it once after flag parsing.
func InitColors(noColor bool) {
	color.NoColor = noColor || os.Getenv("NO_COLOR") != "" || !IsTerminal(os.Stdout)
}

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Printer writes status lines to Out. A quiet Printer drops everything except
// errors.
type Printer struct {
	Out   io.Writer
	Quiet bool
}

// NewPrinter returns a Printer on stdout.
func NewPrinter(quiet bool) *Printer {
	return &Printer{Out: os.Stdout, Quiet: quiet}
}

func (p *Printer) line(c *color.Color, prefix, format string, args ...any) {
	_, _ = c.Fprintf(p.Out, prefix+format+"\n", args...)
}

func (p *Printer) Successf(format string, args ...any) {
	if !p.Quiet {
		p.line(Green, "✓ ", format, args...)
	}
}

func (p *Printer) Warningf(format string, args ...any) {
	if !p.Quiet {
		p.line(Yellow, "⚠ ", format, args...)
	}
}

func (p *Printer) Infof(format string, args ...any) {
	if !p.Quiet {
		p.line(Cyan, "ℹ ", format, args...)
	}
}

// Errorf always prints.
func (p *Printer) Errorf(format string, args ...any) {
	p.line(Red, "✗ ", format, args...)
}

// Header prints a bold title underlined with '='.
func (p *Printer) Header(text string) {
	if p.Quiet {
		return
	}
	_, _ = Bold.Fprintln(p.Out, text)
	fmt.Fprintln(p.Out, strings.Repeat("=", len(text)))
}

// Field prints an indented "label value" pair.
func (p *Printer) Field(label string, value any) {
	if !p.Quiet {
		fmt.Fprintf(p.Out, "  %s %v\n", Label(label), value)
	}
}

// Label returns text in bold.
func Label(text string) string {
	return Bold.Sprint(text)
}

// DimText returns text in the faint style, used for paths.
func DimText(text string) string {
	return Dim.Sprint(text)
}

// CountText returns a count in cyan.
func CountText(count int) string {
	return Cyan.Sprint(count)
}

// OutcomeText colors a batch outcome: green when parsed, yellow otherwise.
func OutcomeText(outcome string) string {
	if outcome == "parsed" {
		return Green.Sprint(outcome)
	}
	return Yellow.Sprint(outcome)
}
