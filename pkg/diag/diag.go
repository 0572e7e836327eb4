// Package diag renders user-facing compile diagnostics: analysis errors
// (memory leak, infinite loop), pass warnings, and propagated front-end
// errors. Rendering degrades gracefully: source-snippet form when a span is
// available, function+block form when not.
package diag

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

// Severity classifies a Diagnostic. Any Error-severity diagnostic is fatal
// to the build.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Diagnostic is one analysis-reported finding. Function and Block name where
// it was found; File/Line/Col are zero when the originating IR carried no
// source span.
type Diagnostic struct {
	Severity Severity
	Pass     string
	Function string
	Block    string
	Message  string
	Reason   string

	File string
	Line int
	Col  int
}

func (d Diagnostic) hasSpan() bool { return d.File != "" && d.Line > 0 }

// Emitter writes diagnostics to a stream, colorized when the stream supports
// it (fatih/color handles the TTY detection).
type Emitter struct {
	out      io.Writer
	warnings int
	errors   int
}

// NewEmitter constructs an Emitter targeting w; pass nil for os.Stderr.
func NewEmitter(w io.Writer) *Emitter {
	if w == nil {
		w = os.Stderr
	}
	return &Emitter{out: w}
}

var (
	errorLabel = color.New(color.FgRed, color.Bold)
	warnLabel  = color.New(color.FgYellow, color.Bold)
	locStyle   = color.New(color.FgCyan)
	dimStyle   = color.New(color.Faint)
)

// Emit renders one diagnostic.
func (e *Emitter) Emit(d Diagnostic) {
	label := warnLabel
	if d.Severity == SeverityError {
		label = errorLabel
		e.errors++
	} else {
		e.warnings++
	}

	fmt.Fprintf(e.out, "%s: %s\n", label.Sprint(d.Severity.String()), d.Message)
	if d.hasSpan() {
		fmt.Fprintf(e.out, "  %s %s:%d:%d\n", dimStyle.Sprint("-->"), locStyle.Sprint(d.File), d.Line, d.Col)
		e.emitSnippet(d)
	} else {
		fmt.Fprintf(e.out, "  %s in %s, block %s\n", dimStyle.Sprint("-->"), locStyle.Sprint(d.Function), d.Block)
	}
	if d.Reason != "" {
		fmt.Fprintf(e.out, "  %s %s\n", dimStyle.Sprint("="), d.Reason)
	}
}

// emitSnippet prints the offending source line with a caret, when the file
// is readable. Unreadable files degrade silently to the location line alone.
func (e *Emitter) emitSnippet(d Diagnostic) {
	data, err := os.ReadFile(d.File)
	if err != nil {
		return
	}
	lines := strings.Split(string(data), "\n")
	if d.Line > len(lines) {
		return
	}
	src := lines[d.Line-1]
	fmt.Fprintf(e.out, "   %s\n", dimStyle.Sprint("|"))
	fmt.Fprintf(e.out, "%2d %s %s\n", d.Line, dimStyle.Sprint("|"), src)
	caret := strings.Repeat(" ", max(d.Col-1, 0)) + "^"
	fmt.Fprintf(e.out, "   %s %s\n", dimStyle.Sprint("|"), errorLabel.Sprint(caret))
}

// EmitAll renders a batch in order.
func (e *Emitter) EmitAll(ds []Diagnostic) {
	for _, d := range ds {
		e.Emit(d)
	}
}

// Errors reports how many error-severity diagnostics have been emitted.
func (e *Emitter) Errors() int { return e.errors }

// Warnings reports how many warning-severity diagnostics have been emitted.
func (e *Emitter) Warnings() int { return e.warnings }

// HasErrors reports whether any fatal diagnostic was emitted; the driver
// aborts the compile when true.
func (e *Emitter) HasErrors() bool { return e.errors > 0 }

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
