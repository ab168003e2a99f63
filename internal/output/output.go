// Package output renders human-facing CLI output and builds the structured
// loggers long-running components write to. Terminal capabilities (color,
// interactivity) are detected once per Writer.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"
)

// Writer prints styled progress and result lines. Create one with New() or
// NewWriter(); tests use NewTest().
type Writer struct {
	w           io.Writer
	interactive bool // terminal AND not CI
	color       bool // terminal AND not NO_COLOR
}

// KeyValue is one row of Result output.
type KeyValue struct {
	Key   string
	Value string
}

// New returns a Writer on stderr.
func New() *Writer {
	return NewWriter(os.Stderr)
}

// NewWriter returns a Writer on w, probing w's file descriptor when it has
// one.
func NewWriter(w io.Writer) *Writer {
	isTerm := false
	if f, ok := w.(interface{ Fd() uintptr }); ok {
		isTerm = term.IsTerminal(int(f.Fd()))
	}

	return &Writer{
		w:           w,
		interactive: isTerm && !isCI(),
		color:       isTerm && os.Getenv("NO_COLOR") == "",
	}
}

// NewTest returns a plain, non-interactive Writer.
func NewTest(w io.Writer) *Writer {
	return &Writer{w: w}
}

func isCI() bool {
	for _, key := range []string{"CI", "BUILD_NUMBER", "GITHUB_ACTIONS", "EAS_BUILD"} {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return false
}

// IsInteractive reports whether prompts and spinners may be shown.
func (w *Writer) IsInteractive() bool {
	return w.interactive
}

// Out is the underlying stream, for callers that render their own output.
func (w *Writer) Out() io.Writer {
	return w.w
}

func (w *Writer) labeled(label, color, format string, args []interface{}) {
	msg := fmt.Sprintf(format, args...)
	if w.color {
		label = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(color)).Render(label)
	}
	fmt.Fprintf(w.w, "%s %s\n", label, msg)
}

// Step prints "-> message".
func (w *Writer) Step(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	arrow := "->"
	if w.color {
		arrow = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Render(arrow)
	}
	fmt.Fprintf(w.w, "%s %s\n", arrow, msg)
}

// Success prints "OK message".
func (w *Writer) Success(format string, args ...interface{}) {
	w.labeled("OK", "2", format, args)
}

// Error prints "ERROR message".
func (w *Writer) Error(format string, args ...interface{}) {
	w.labeled("ERROR", "1", format, args)
}

// Warning prints "WARNING message".
func (w *Writer) Warning(format string, args ...interface{}) {
	w.labeled("WARNING", "3", format, args)
}

// Info prints a detail line indented under the current step.
func (w *Writer) Info(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if w.color {
		msg = lipgloss.NewStyle().Faint(true).Render(msg)
	}
	fmt.Fprintf(w.w, "   %s\n", msg)
}

// Result prints aligned key/value pairs after a blank line.
func (w *Writer) Result(pairs []KeyValue) {
	if len(pairs) == 0 {
		return
	}

	width := 0
	for _, p := range pairs {
		width = max(width, len(p.Key))
	}

	fmt.Fprintln(w.w)
	for _, p := range pairs {
		key := p.Key
		if w.color {
			key = lipgloss.NewStyle().Bold(true).Render(key)
		}
		fmt.Fprintf(w.w, "  %s%s  %s\n", key, strings.Repeat(" ", width-len(p.Key)), p.Value)
	}
}

// Table renders rows under a header without borders.
func (w *Writer) Table(headers []string, rows [][]string) {
	t := table.New().
		Headers(headers...).
		Rows(rows...).
		BorderRow(false).
		BorderColumn(false).
		BorderLeft(false).
		BorderRight(false).
		BorderTop(false).
		BorderBottom(false)

	if w.color {
		header := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
		t = t.StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return lipgloss.NewStyle()
		})
	}

	fmt.Fprintln(w.w, t.Render())
}

// Println prints an unstyled line.
func (w *Writer) Println(format string, args ...interface{}) {
	fmt.Fprintf(w.w, format+"\n", args...)
}
