// Package mcperrors defines the closed error-kind taxonomy shared by the
// MCP client fabric (spec.md §7), in the teacher's own error style: plain
// fmt.Errorf wrapping plus one small sentinel-kind struct, inspected with
// errors.As/errors.Is — never a typed-error library like pkg/errors (the
// teacher itself never imports one, despite it being an indirect
// dependency elsewhere in the corpus).
package mcperrors

import (
	"errors"
	"fmt"
)

// Kind tags the category of an Error.
type Kind int

const (
	KindUnknown Kind = iota
	KindTimeout
	KindProtocol
	KindTransport
	KindAlreadyRunning
	KindNotFound
	KindInvalidArguments
	KindExecution
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "Timeout"
	case KindProtocol:
		return "Protocol"
	case KindTransport:
		return "Transport"
	case KindAlreadyRunning:
		return "AlreadyRunning"
	case KindNotFound:
		return "NotFound"
	case KindInvalidArguments:
		return "InvalidArguments"
	case KindExecution:
		return "Execution"
	default:
		return "Unknown"
	}
}

// Error is a kinded error: the fabric's callers switch on Kind, not on
// string matching.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a kinded error wrapping err (err may be nil).
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Newf builds a kinded error from a format string.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
