// Package dberr defines the error taxonomy shared by every storage and
// query layer in the engine.
package dberr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code classifies an error into one of the categories the engine
// distinguishes when deciding how a failure should propagate.
type Code int

const (
	// InvalidArgument means the caller supplied a malformed request:
	// wrong arity, wrong length, an unknown column, bad syntax.
	InvalidArgument Code = iota
	// NotFound means a referenced table, index, column, or record does
	// not exist.
	NotFound
	// Conflict means a uniqueness or referential constraint was violated.
	Conflict
	// CapacityExceeded means a page, buffer pool, or catalog budget was
	// exhausted.
	CapacityExceeded
	// Corrupted means on-disk state failed an internal consistency check.
	Corrupted
	// DomainError means an operation is mathematically or semantically
	// undefined for its operands (division by zero, type mismatch).
	DomainError
	// LogicError means an internal invariant was violated; it signals a
	// bug in the engine rather than a problem with caller input.
	LogicError
)

func (c Code) String() string {
	switch c {
	case InvalidArgument:
		return "InvalidArgument"
	case NotFound:
		return "NotFound"
	case Conflict:
		return "Conflict"
	case CapacityExceeded:
		return "CapacityExceeded"
	case Corrupted:
		return "Corrupted"
	case DomainError:
		return "DomainError"
	case LogicError:
		return "LogicError"
	default:
		return "Unknown"
	}
}

// Error is the typed error carried through every layer of the engine.
// The Cause chain is preserved via github.com/pkg/errors so that callers
// near the top of the stack can still inspect the root failure.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap lets errors.Is / errors.As see through to the wrapped cause.
func (e *Error) Unwrap() error { return e.cause }

// New builds a bare *Error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds a bare *Error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an existing error, preserving it as
// the cause so errors.Is / errors.As can still reach the original failure
// through Unwrap.
func Wrap(code Code, cause error, message string) *Error {
	return &Error{Code: code, Message: message, cause: errors.Wrap(cause, message)}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(code Code, cause error, format string, args ...interface{}) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{Code: code, Message: msg, cause: errors.Wrap(cause, msg)}
}

// Is reports whether err is a *Error carrying the given code.
func Is(err error, code Code) bool {
	var e *Error
	for err != nil {
		if ce, ok := err.(*Error); ok {
			e = ce
			break
		}
		err = errors.Unwrap(err)
	}
	return e != nil && e.Code == code
}

// CodeOf extracts the Code from err, defaulting to LogicError when err is
// not a *Error — an untyped error reaching this boundary is itself a bug.
func CodeOf(err error) Code {
	var e *Error
	cur := err
	for cur != nil {
		if ce, ok := cur.(*Error); ok {
			e = ce
			break
		}
		cur = errors.Unwrap(cur)
	}
	if e == nil {
		return LogicError
	}
	return e.Code
}
