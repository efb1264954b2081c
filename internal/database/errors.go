package database

import (
	"errors"
	"fmt"
)

// ErrKind categorises a database-layer failure. Every error produced by this
// package carries exactly one kind, so callers can map failures to the result
// envelope without inspecting driver-specific errors.
type ErrKind int

const (
	ErrKindUnknown       ErrKind = iota
	ErrKindConfiguration         // missing or invalid connection settings
	ErrKindConnection            // pool cannot be established or was lost
	ErrKindValidation            // bad identifier, empty payload, batch limit
	ErrKindExecution             // the database rejected a statement
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindConfiguration:
		return "configuration"
	case ErrKindConnection:
		return "connection"
	case ErrKindValidation:
		return "validation"
	case ErrKindExecution:
		return "execution"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by the database layer.
type Error struct {
	Kind ErrKind
	Msg  string
	Err  error // wrapped driver error, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// NewError creates an Error without an underlying cause.
func NewError(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapError attaches a kind and message to an underlying driver error.
func WrapError(kind ErrKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return hasKind(err, ErrKindValidation) }

// IsConnection reports whether err is a connection error.
func IsConnection(err error) bool { return hasKind(err, ErrKindConnection) }

// IsExecution reports whether err is an execution error.
func IsExecution(err error) bool { return hasKind(err, ErrKindExecution) }

func hasKind(err error, kind ErrKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
