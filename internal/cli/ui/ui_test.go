package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestPrinter_Table(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, true)

	p.Table([]string{"ENTITY", "TABLE"}, [][]Cell{
		Plain("Movie", "movies"),
		{{Text: "MovieQuote"}, {Text: "movie_quotes", Color: []color.Attribute{color.FgGreen}}},
	})

	want := "ENTITY      TABLE\n" +
		"──────────  ────────────\n" +
		"Movie       movies\n" +
		"MovieQuote  movie_quotes\n"
	if buf.String() != want {
		t.Errorf("unexpected table output:\n%q\nwant:\n%q", buf.String(), want)
	}
}

func TestPrinter_TableWithoutHeaders(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf, true).Table(nil, [][]Cell{Plain("x")})
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestPrinter_KeyValues(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf, true).KeyValues([]KeyValue{
		{Key: "Table", Value: "movies"},
		{Key: "Display", Value: "name"},
	})

	want := "Table:   movies\nDisplay: name\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestPrinter_Lines(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, true)
	p.Heading("Movie")
	p.Success("applied %d statements", 3)
	p.Warn("orphan column %s", "legacy")

	want := "Movie\n─────\n✓ applied 3 statements\n! orphan column legacy\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestPrinter_ColorEnabled(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf, false).Info("hello")
	if !strings.Contains(buf.String(), "\x1b[") {
		t.Errorf("expected ANSI escape in colored output, got %q", buf.String())
	}
}

func TestFormatError(t *testing.T) {
	p := NewPrinter(&bytes.Buffer{}, true)

	out := p.EntityNotFound("Movi", []string{"Genre", "Movie", "MovieQuote", "User"})
	for _, want := range []string{
		"✗ ENTITY NOT FOUND: Cannot find entity 'Movi'.",
		"Did you mean: Movie?",
		"→ List entities: gravitycar entity list",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}

	out = p.SchemaFailure("schema statement 2 failed", "ALTER TABLE \"movies\"\nADD COLUMN x")
	if !strings.Contains(out, "   ALTER TABLE \"movies\"\n   ADD COLUMN x\n") {
		t.Errorf("expected indented statement in:\n%s", out)
	}

	out = p.FormatError(ErrorOptions{Level: ErrorLevelWarning, Problem: "careful"})
	if !strings.HasPrefix(out, "! careful\n") {
		t.Errorf("unexpected warning block %q", out)
	}
}

func TestSuggest(t *testing.T) {
	candidates := []string{"Movie", "MovieQuote", "Genre", "User", "Profile"}

	tests := []struct {
		target string
		limit  int
		want   []string
	}{
		{"movie", 3, []string{"Movie"}},
		{"Usr", 3, []string{"User"}},
		{"Genra", 3, []string{"Genre"}},
		{"Xylophone", 3, nil},
		{"Movies", 1, []string{"Movie"}},
	}
	for _, tt := range tests {
		got := Suggest(tt.target, candidates, tt.limit)
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Errorf("Suggest(%q) = %v, want %v", tt.target, got, tt.want)
		}
	}
}

func TestDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "abc", 3},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"saturday", "sunday", 3},
		{"héllo", "hello", 1},
		{"same", "same", 0},
	}
	for _, tt := range tests {
		if got := Distance(tt.a, tt.b); got != tt.want {
			t.Errorf("Distance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
