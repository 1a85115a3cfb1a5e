// Package domainerrors defines the error taxonomy services speak. Handlers map
// codes to HTTP statuses; tests assert on codes instead of message text.
//
// Stores do not use this package directly: they return pkg/platform/sentinel
// errors, which services translate into coded errors with enough context
// (entity ref, attempted transition) to reconstruct what was refused.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for callers.
type Code string

const (
	// CodeValidation marks malformed or missing input. The caller must fix
	// the request; nothing was persisted.
	CodeValidation Code = "validation"
	// CodeInvalidTransition marks a status change not permitted from the
	// entity's current state. Never retried automatically.
	CodeInvalidTransition Code = "invalid_transition"
	// CodeConflict marks an optimistic-lock version mismatch. The caller
	// reloads and retries.
	CodeConflict Code = "conflict"
	// CodeIntegration marks a failed required external call. Local state is
	// left as if the operation never started.
	CodeIntegration Code = "integration"
	// CodeNotFound marks a reference that does not resolve.
	CodeNotFound Code = "not_found"
	// CodeInternal marks unexpected infrastructure failures.
	CodeInternal Code = "internal"
)

// Error carries a code, a human-readable message, optional structured meta and
// an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Meta    map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates an underlying error with a code and message. Returns nil
// when err is nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// WithMeta attaches a key/value pair to the error and returns it, so context
// can be chained fluently at the raise site.
func (e *Error) WithMeta(key, value string) *Error {
	if e.Meta == nil {
		e.Meta = make(map[string]string)
	}
	e.Meta[key] = value
	return e
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for errors
// that did not originate in this package.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
