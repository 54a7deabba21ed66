// Package errors provides a structured error type with wrapping and stable codes
package errors

// Always import the project errors package as perr (platform/errors)

import (
	stderrs "errors"
	"fmt"
)

// ErrorCode classifies failures across services
// Values are stable; add sparingly
type ErrorCode uint16

const (
	// ErrorCodeUnknown is for unclassified errors
	ErrorCodeUnknown ErrorCode = iota

	// ErrorCodeUnavailable is for failed remote platform calls where retry may succeed
	ErrorCodeUnavailable

	// ErrorCodeTooManyRequests is for rate limiting by the remote platform
	ErrorCodeTooManyRequests

	// ErrorCodeForbidden is for capability check failures
	ErrorCodeForbidden

	// ErrorCodeAlreadyInState is for idempotency guards (already muted, already
	// claimed, already closed); success-adjacent, not an operator error
	ErrorCodeAlreadyInState

	// ErrorCodeNotConfigured is for a required external identifier missing from
	// configuration; rejected before any side effect
	ErrorCodeNotConfigured

	// ErrorCodeStaleEntity is for sidecar metadata missing expected fields;
	// the entity is not usable and is never guessed-and-repaired
	ErrorCodeStaleEntity

	// ErrorCodeNotFound is for missing resources
	ErrorCodeNotFound

	// ErrorCodeValidation is for input validation failures
	ErrorCodeValidation

	// ErrorCodeInvalidArgument is for bad input parameters
	ErrorCodeInvalidArgument

	// ErrorCodeDB is for durable store errors
	ErrorCodeDB
)

// String returns a stable label for logs and rendering
func (c ErrorCode) String() string {
	switch c {
	case ErrorCodeUnavailable:
		return "unavailable"
	case ErrorCodeTooManyRequests:
		return "too_many_requests"
	case ErrorCodeForbidden:
		return "forbidden"
	case ErrorCodeAlreadyInState:
		return "already_in_state"
	case ErrorCodeNotConfigured:
		return "not_configured"
	case ErrorCodeStaleEntity:
		return "stale_entity"
	case ErrorCodeNotFound:
		return "not_found"
	case ErrorCodeValidation:
		return "validation"
	case ErrorCodeInvalidArgument:
		return "invalid_argument"
	case ErrorCodeDB:
		return "db"
	default:
		return "unknown"
	}
}

// ErrNotFound is a sentinel not found error for convenience
var ErrNotFound = New(ErrorCodeNotFound, "not found")

// Error is the structured error type with wrapping and metadata
// msg is human/developer facing; code is machine facing; op is optional
type Error struct {
	orig error
	msg  string
	code ErrorCode
	op   string
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.orig != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.orig)
	}
	return e.msg
}

// Unwrap returns the wrapped error, if any
func (e *Error) Unwrap() error { return e.orig }

// Code returns the error code
func (e *Error) Code() ErrorCode { return e.code }

// Op returns the operation label, if set
func (e *Error) Op() string { return e.op }

// Msg returns the message without the wrapped cause
func (e *Error) Msg() string { return e.msg }

// Root returns the deepest wrapped cause
func Root(err error) error {
	for err != nil {
		u := stderrs.Unwrap(err)
		if u == nil {
			return err
		}
		err = u
	}
	return nil
}

// CodeOf extracts an ErrorCode from any error, defaulting to Unknown
func CodeOf(err error) ErrorCode {
	if e, ok := As(err); ok {
		return e.code
	}
	return ErrorCodeUnknown
}

// IsCode reports whether err has the given code
func IsCode(err error, code ErrorCode) bool { return CodeOf(err) == code }

// As unwraps and returns (*Error, true) if err is one of ours
func As(err error) (*Error, bool) {
	var e *Error
	if stderrs.As(err, &e) {
		return e, true
	}
	return nil, false
}

// WithOp attaches an operation label to an *Error (copy-on-write).
// If err isn't *Error, returns err unchanged
func WithOp(err error, op string) error {
	if e, ok := As(err); ok {
		c := *e
		c.op = op
		return &c
	}
	return err
}

// Constructors

// New returns a new *Error with the given code and message
func New(code ErrorCode, msg string) error { return &Error{code: code, msg: msg} }

// Newf returns a new *Error with code and formatted message
func Newf(code ErrorCode, format string, a ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, a...)}
}

// Wrap returns a new *Error that wraps orig with code and message
func Wrap(orig error, code ErrorCode, msg string) error {
	return &Error{code: code, msg: msg, orig: orig}
}

// Wrapf returns a new *Error that wraps orig with code and formatted message
func Wrapf(orig error, code ErrorCode, format string, a ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, a...), orig: orig}
}

// WrapIf wraps only when err != nil (helper for 1-liners)
func WrapIf(err error, code ErrorCode, msg string) error {
	if err == nil {
		return nil
	}
	return Wrap(err, code, msg)
}

// Sugar

// NotFoundf returns a not found error
func NotFoundf(format string, a ...any) error { return Newf(ErrorCodeNotFound, format, a...) }

// Forbiddenf returns a capability check failure
func Forbiddenf(format string, a ...any) error { return Newf(ErrorCodeForbidden, format, a...) }

// AlreadyInStatef returns an idempotency guard error
func AlreadyInStatef(format string, a ...any) error { return Newf(ErrorCodeAlreadyInState, format, a...) }

// NotConfiguredf returns a missing configuration error
func NotConfiguredf(format string, a ...any) error { return Newf(ErrorCodeNotConfigured, format, a...) }

// StaleEntityf returns an unusable entity error
func StaleEntityf(format string, a ...any) error { return Newf(ErrorCodeStaleEntity, format, a...) }

// Unavailablef returns a remote platform failure
func Unavailablef(format string, a ...any) error { return Newf(ErrorCodeUnavailable, format, a...) }

// InvalidArgf returns an invalid argument error
func InvalidArgf(format string, a ...any) error { return Newf(ErrorCodeInvalidArgument, format, a...) }

// DBf returns a durable store error
func DBf(format string, a ...any) error { return Newf(ErrorCodeDB, format, a...) }

// Internalf returns a generic internal error
func Internalf(format string, a ...any) error { return Newf(ErrorCodeUnknown, format, a...) }

// Terminal reports whether the error should be reported verbatim to the
// requester with no retry (capability and configuration failures)
func Terminal(err error) bool {
	switch CodeOf(err) {
	case ErrorCodeForbidden, ErrorCodeNotConfigured, ErrorCodeValidation, ErrorCodeInvalidArgument:
		return true
	default:
		return false
	}
}
