package compiler

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for error classification.
var (
	// ErrCompile indicates fatal diagnostics in the widget source.
	// Results carrying this error have empty code and must not be mounted.
	ErrCompile = errors.New("compile error")

	// ErrConfiguration indicates an invalid compiler configuration.
	ErrConfiguration = errors.New("compiler configuration error")
)

// Diagnostic is one message produced while transforming widget source.
type Diagnostic struct {
	// Message describes the problem.
	Message string

	// Line is the 1-based line number, zero when unknown.
	Line int

	// Column is the 1-based column number, zero when unknown.
	Column int

	// Fatal marks diagnostics that make the output unusable.
	Fatal bool
}

// String formats the diagnostic with its location when known.
func (d Diagnostic) String() string {
	if d.Line > 0 {
		return fmt.Sprintf("%s (line %d, col %d)", d.Message, d.Line, d.Column)
	}
	return d.Message
}

// CompileError carries the diagnostics of a failed compile.
type CompileError struct {
	// Diagnostics holds every message the transform produced, fatal
	// ones first.
	Diagnostics []Diagnostic
}

// Error returns the joined diagnostic text.
func (e *CompileError) Error() string {
	if len(e.Diagnostics) == 0 {
		return "compile error"
	}
	parts := make([]string, 0, len(e.Diagnostics))
	for _, d := range e.Diagnostics {
		parts = append(parts, d.String())
	}
	return "compile error: " + strings.Join(parts, "; ")
}

// Is reports whether this error matches ErrCompile, allowing
// sentinel-style checks with errors.Is.
func (e *CompileError) Is(target error) bool {
	return target == ErrCompile
}
