// Package errs implements the engine's error taxonomy: a single typed error
// carrying a Kind, a human message, an optional cause chain, and an
// optional source location.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is one of the orthogonal error categories the engine distinguishes.
type Kind string

const (
	Misuse      Kind = "MISUSE"
	Parse       Kind = "PARSE"
	Resolve     Kind = "RESOLVE"
	Type        Kind = "TYPE"
	Constraint  Kind = "CONSTRAINT"
	NotFound    Kind = "NOTFOUND"
	IO          Kind = "IO"
	Unsupported Kind = "UNSUPPORTED"
	Internal    Kind = "INTERNAL"
	Readonly    Kind = "READONLY"
)

// Location is a source position attached to an error when one is known.
type Location struct {
	Line   int
	Column int
}

// Error is the engine's user-visible error type.
type Error struct {
	Kind     Kind
	Message  string
	Cause    error
	Location *Location
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Location != nil {
		fmt.Fprintf(&b, " (line %d, col %d)", e.Location.Line, e.Location.Column)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an existing cause, preserving the
// chain for Unwrap/errors.Is/errors.As.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithLocation returns a copy of e annotated with a source location.
func (e *Error) WithLocation(line, col int) *Error {
	cp := *e
	cp.Location = &Location{Line: line, Column: col}
	return &cp
}

// KindOf extracts the Kind of err if it (or something in its chain) is an
// *Error; otherwise returns Internal, since an un-taxonomized error
// surfacing out of the engine is itself a bug per spec §7.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Format renders the full cause chain, one entry per line, innermost last.
// Mirrors the teacher's Applier.displayPreflightChecks chain rendering but
// generalized to an arbitrary error chain instead of a fixed warning list.
func Format(err error) string {
	if err == nil {
		return ""
	}
	var lines []string
	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		if e, ok := cur.(*Error); ok {
			lines = append(lines, e.Error())
		} else {
			lines = append(lines, cur.Error())
		}
	}
	return strings.Join(lines, "\n  caused by: ")
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var e *Error
	for errors.As(err, &e) {
		if e.Kind == kind {
			return true
		}
		if e.Cause == nil {
			return false
		}
		err = e.Cause
		e = nil
	}
	return false
}
