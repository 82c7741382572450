// Package ui renders CLI output.
package ui

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
)

// Printer writes styled output. Colors are dropped when NoColor is set.
type Printer struct {
	w       io.Writer
	noColor bool
}

// NewPrinter creates a printer writing to w
func NewPrinter(w io.Writer, noColor bool) *Printer {
	return &Printer{w: w, noColor: noColor}
}

// Writer returns the underlying writer
func (p *Printer) Writer() io.Writer {
	return p.w
}

func (p *Printer) style(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if p.noColor {
		c.DisableColor()
	} else {
		c.EnableColor()
	}
	return c
}

// Heading prints a bold title underlined to its width
func (p *Printer) Heading(title string) {
	p.style(color.Bold, color.FgCyan).Fprintln(p.w, title)
	p.style(color.FgHiBlack).Fprintln(p.w, strings.Repeat("─", width(title)))
}

// Success prints a green check line
func (p *Printer) Success(format string, args ...interface{}) {
	p.style(color.FgGreen, color.Bold).Fprintf(p.w, "✓ "+format+"\n", args...)
}

// Warn prints a yellow warning line
func (p *Printer) Warn(format string, args ...interface{}) {
	p.style(color.FgYellow).Fprintf(p.w, "! "+format+"\n", args...)
}

// Info prints a plain cyan line
func (p *Printer) Info(format string, args ...interface{}) {
	p.style(color.FgCyan).Fprintf(p.w, format+"\n", args...)
}

// Line prints an unstyled line
func (p *Printer) Line(format string, args ...interface{}) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

// Cell is a table cell with an optional color
type Cell struct {
	Text  string
	Color []color.Attribute
}

// Plain wraps strings as uncolored cells
func Plain(values ...string) []Cell {
	cells := make([]Cell, len(values))
	for i, v := range values {
		cells[i] = Cell{Text: v}
	}
	return cells
}

// Table prints rows under a header, padding each column to its widest cell
func (p *Printer) Table(headers []string, rows [][]Cell) {
	if len(headers) == 0 {
		return
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && width(cell.Text) > widths[i] {
				widths[i] = width(cell.Text)
			}
		}
	}

	head := p.style(color.Bold, color.FgCyan)
	rule := p.style(color.FgHiBlack)
	last := len(headers) - 1
	for i, h := range headers {
		head.Fprint(p.w, pad(h, widths[i], i == last))
		p.gap(i, last)
	}
	fmt.Fprintln(p.w)
	for i, w := range widths {
		rule.Fprint(p.w, strings.Repeat("─", w))
		p.gap(i, last)
	}
	fmt.Fprintln(p.w)

	for _, row := range rows {
		end := len(row) - 1
		if end > last {
			end = last
		}
		for i := 0; i <= end; i++ {
			text := pad(row[i].Text, widths[i], i == end)
			if len(row[i].Color) > 0 {
				p.style(row[i].Color...).Fprint(p.w, text)
			} else {
				fmt.Fprint(p.w, text)
			}
			p.gap(i, end)
		}
		fmt.Fprintln(p.w)
	}
}

func (p *Printer) gap(i, last int) {
	if i < last {
		fmt.Fprint(p.w, "  ")
	}
}

// KeyValue is one row of a KeyValues block
type KeyValue struct {
	Key   string
	Value string
}

// KeyValues prints aligned "key: value" rows
func (p *Printer) KeyValues(rows []KeyValue) {
	keyWidth := 0
	for _, row := range rows {
		if w := width(row.Key) + 1; w > keyWidth {
			keyWidth = w
		}
	}
	key := p.style(color.FgCyan)
	for _, row := range rows {
		key.Fprint(p.w, pad(row.Key+":", keyWidth, false))
		fmt.Fprintf(p.w, " %s\n", row.Value)
	}
}

func width(s string) int {
	return utf8.RuneCountInString(s)
}

// pad right-pads s to w runes. The last column is left unpadded.
func pad(s string, w int, last bool) string {
	if last || width(s) >= w {
		return s
	}
	return s + strings.Repeat(" ", w-width(s))
}
