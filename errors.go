package ics

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedLine is wrapped by every LexError.
	ErrMalformedLine = errors.New("malformed content line")
	// ErrStructure is wrapped by every StructuralError.
	ErrStructure = errors.New("malformed calendar")
	// ErrInvalidValue is wrapped by every CodecError.
	ErrInvalidValue = errors.New("invalid property value")
	// ErrPropertyNotFound is the error returned if the requested property is
	// not set.
	ErrPropertyNotFound = errors.New("property not found")
	// ErrNoTodo is returned when a calendar expected to carry a VTODO does not.
	ErrNoTodo = errors.New("calendar does not contain a VTODO")
)

// LexError reports a content line that could not be split into name,
// parameters and value. Line is the 1-based logical (unfolded) line number.
type LexError struct {
	Line int
	Msg  string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("%s: line %d: %s", ErrMalformedLine, e.Line, e.Msg)
}

func (e *LexError) Unwrap() error { return ErrMalformedLine }

// StructuralError reports BEGIN/END nesting problems.
type StructuralError struct {
	Msg string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("%s; %s", ErrStructure, e.Msg)
}

func (e *StructuralError) Is(target error) bool { return target == ErrStructure }

func structuralf(format string, args ...any) error {
	return &StructuralError{Msg: fmt.Sprintf(format, args...)}
}

// CodecError reports a property value that does not match its type grammar.
type CodecError struct {
	Property string
	Value    string
	Err      error
}

func (e *CodecError) Error() string {
	if e.Property == "" {
		return fmt.Sprintf("%s %q: %v", ErrInvalidValue, e.Value, e.Err)
	}
	return fmt.Sprintf("%s %s:%q: %v", ErrInvalidValue, e.Property, e.Value, e.Err)
}

func (e *CodecError) Unwrap() []error { return []error{ErrInvalidValue, e.Err} }
