package ui

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// ErrorLevel represents the severity of a message block
type ErrorLevel int

const (
	ErrorLevelError ErrorLevel = iota
	ErrorLevelWarning
	ErrorLevelInfo
)

// ErrorOptions configures a message block
type ErrorOptions struct {
	Level        ErrorLevel
	Context      string
	Problem      string
	Detail       string
	Suggestions  []string
	HelpCommands []string
}

// FormatError renders a message block:
//
//	✗ ENTITY NOT FOUND: Cannot find entity 'Movi'.
//
//	   Did you mean: Movie, MovieQuote?
//
//	   → List entities: gravitycar entity list
func (p *Printer) FormatError(opts ErrorOptions) string {
	var b strings.Builder

	var header, body *color.Color
	var symbol string
	switch opts.Level {
	case ErrorLevelWarning:
		header, body, symbol = p.style(color.FgYellow, color.Bold), p.style(color.FgYellow), "!"
	case ErrorLevelInfo:
		header, body, symbol = p.style(color.FgCyan, color.Bold), p.style(color.FgCyan), "i"
	default:
		header, body, symbol = p.style(color.FgRed, color.Bold), p.style(color.FgRed), "✗"
	}

	if opts.Context != "" {
		header.Fprintf(&b, "%s %s: %s\n", symbol, strings.ToUpper(opts.Context), opts.Problem)
	} else {
		header.Fprintf(&b, "%s %s\n", symbol, opts.Problem)
	}

	if opts.Detail != "" {
		b.WriteString("\n")
		for _, line := range strings.Split(strings.TrimRight(opts.Detail, "\n"), "\n") {
			body.Fprintf(&b, "   %s\n", line)
		}
	}

	if len(opts.Suggestions) > 0 {
		b.WriteString("\n")
		p.style(color.FgYellow).Fprintf(&b, "   Did you mean: %s?\n", strings.Join(opts.Suggestions, ", "))
	}

	if len(opts.HelpCommands) > 0 {
		b.WriteString("\n")
		cyan := p.style(color.FgCyan)
		for _, cmd := range opts.HelpCommands {
			cyan.Fprintf(&b, "   → %s\n", cmd)
		}
	}

	return b.String()
}

// WriteError writes a formatted message block
func (p *Printer) WriteError(opts ErrorOptions) {
	fmt.Fprint(p.w, p.FormatError(opts))
}

// EntityNotFound reports an unknown entity name with close matches
func (p *Printer) EntityNotFound(name string, known []string) string {
	return p.FormatError(ErrorOptions{
		Context:      "entity not found",
		Problem:      fmt.Sprintf("Cannot find entity '%s'.", name),
		Suggestions:  Suggest(name, known, 3),
		HelpCommands: []string{"List entities: gravitycar entity list"},
	})
}

// SchemaFailure reports a failed schema apply. Nothing was committed.
func (p *Printer) SchemaFailure(message, statement string) string {
	return p.FormatError(ErrorOptions{
		Context: "schema apply failed",
		Problem: message,
		Detail:  statement,
		HelpCommands: []string{
			"Review pending changes: gravitycar schema plan --sql",
			"Show the driver error: gravitycar schema apply --verbose",
		},
	})
}

// ConfigFailure reports an invalid configuration
func (p *Printer) ConfigFailure(message string) string {
	return p.FormatError(ErrorOptions{
		Context: "configuration error",
		Problem: message,
		HelpCommands: []string{
			"View config: cat gravitycar.yaml",
			"Get help: gravitycar --help",
		},
	})
}
