// Package errs implements the three-tier error taxonomy the rest of
// velcro-core assumes: programming errors (violated invariants, handled
// by panic in development builds and logged in release builds), data
// errors (malformed input, accumulated in a per-operation ErrorHandler
// rather than aborting the whole traversal), and allocator failures
// (handled by the allocator package itself via nil return).
package errs

import (
	"fmt"
	"os"
)

// Debug controls whether ProgrammingError panics (true, development
// build) or logs and continues (false, release build). Hosts flip this
// once at startup; it is not meant to be toggled per call.
var Debug = true

// ProgrammingError signals a violated invariant: a contract the caller
// broke, as opposed to bad data flowing through a well-formed call.
// RaiseProgrammingError is the sole entry point, so Debug is
// always consulted consistently.
type ProgrammingError struct {
	Message string
}

func (e *ProgrammingError) Error() string {
	return "programming error: " + e.Message
}

// RaiseProgrammingError panics with a *ProgrammingError when Debug is
// true; otherwise it writes the message to stderr and returns normally,
// leaving the caller to decide how to proceed with a best-effort
// fallback.
func RaiseProgrammingError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if Debug {
		panic(&ProgrammingError{Message: msg})
	}
	fmt.Fprintf(os.Stderr, "programming error: %s\n", msg)
}

// DbgStackEntry is one frame of context an ErrorHandler attaches to
// every error and warning it records, letting a caller reconstruct
// where in a traversal a data error occurred without unwinding Go's own
// call stack.
type DbgStackEntry struct {
	Tag string // e.g. a field name, container index, or class name
}

// DataError is a single malformed-input finding recorded by an
// ErrorHandler: a wrong type, a missing required field, a version the
// handler doesn't know how to upgrade.
type DataError struct {
	Message string
	Warning bool
	Stack   []DbgStackEntry
	Cause   error
}

func (e *DataError) Error() string {
	return fmt.Sprintf("%s: %s", formatStack(e.Stack), e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Cause
}

func formatStack(stack []DbgStackEntry) string {
	if len(stack) == 0 {
		return "<root>"
	}
	out := ""
	for i, entry := range stack {
		if i > 0 {
			out += "/"
		}
		out += entry.Tag
	}
	return out
}

// ErrorHandler accumulates DataErrors and warnings over the course of
// one serialization, clone, or traversal operation, rather than
// aborting on the first bad field. Callers inspect NErrors/NWarnings
// after the operation to decide whether the result is usable.
type ErrorHandler struct {
	stack    []DbgStackEntry
	errors   []*DataError
	warnings []*DataError
}

// NewErrorHandler returns an empty ErrorHandler.
func NewErrorHandler() *ErrorHandler {
	return &ErrorHandler{}
}

// Push adds tag to the current stack context; pair with a deferred Pop
// around whatever scope tag describes (a field, a container element).
func (h *ErrorHandler) Push(tag string) {
	h.stack = append(h.stack, DbgStackEntry{Tag: tag})
}

// Pop removes the most recently pushed stack entry.
func (h *ErrorHandler) Pop() {
	if len(h.stack) == 0 {
		return
	}
	h.stack = h.stack[:len(h.stack)-1]
}

func (h *ErrorHandler) snapshotStack() []DbgStackEntry {
	out := make([]DbgStackEntry, len(h.stack))
	copy(out, h.stack)
	return out
}

// ReportError records a data error at the current stack context.
func (h *ErrorHandler) ReportError(format string, args ...any) {
	h.errors = append(h.errors, &DataError{
		Message: fmt.Sprintf(format, args...),
		Stack:   h.snapshotStack(),
	})
}

// ReportErrorCause records a data error wrapping cause.
func (h *ErrorHandler) ReportErrorCause(cause error, format string, args ...any) {
	h.errors = append(h.errors, &DataError{
		Message: fmt.Sprintf(format, args...),
		Stack:   h.snapshotStack(),
		Cause:   cause,
	})
}

// ReportWarning records a recoverable data issue at the current stack
// context: something the traversal can proceed past, e.g. an unknown
// attribute it chose to skip.
func (h *ErrorHandler) ReportWarning(format string, args ...any) {
	h.warnings = append(h.warnings, &DataError{
		Message: fmt.Sprintf(format, args...),
		Warning: true,
		Stack:   h.snapshotStack(),
	})
}

// NErrors returns the number of recorded errors.
func (h *ErrorHandler) NErrors() int { return len(h.errors) }

// NWarnings returns the number of recorded warnings.
func (h *ErrorHandler) NWarnings() int { return len(h.warnings) }

// Errors returns every recorded error, in report order.
func (h *ErrorHandler) Errors() []*DataError { return h.errors }

// Warnings returns every recorded warning, in report order.
func (h *ErrorHandler) Warnings() []*DataError { return h.warnings }

// Format renders every error and warning as a multi-line string,
// suitable for logging at the end of an operation.
func (h *ErrorHandler) Format() string {
	out := ""
	for _, e := range h.errors {
		out += "error: " + e.Error() + "\n"
	}
	for _, w := range h.warnings {
		out += "warning: " + w.Error() + "\n"
	}
	return out
}

// Reset discards every recorded error, warning, and stack entry, so the
// handler can be reused for another operation.
func (h *ErrorHandler) Reset() {
	h.stack = nil
	h.errors = nil
	h.warnings = nil
}
