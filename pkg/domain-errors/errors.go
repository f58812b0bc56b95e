// Package dErrors provides coded domain errors.
//
// Services return these so transport layers can translate failures into
// stable, user-facing responses without string matching. Stores return
// sentinel errors (pkg/platform/sentinel); services wrap them into coded
// errors at the boundary between infrastructure facts and domain outcomes.
package dErrors

import (
	"errors"
	"fmt"
)

// Code identifies a class of domain failure. Codes are stable API surface:
// handlers map them to HTTP statuses and clients branch on them.
type Code string

const (
	// Input and request errors. Never retried automatically.
	CodeBadRequest   Code = "bad_request"
	CodeInvalidInput Code = "invalid_input"
	CodeValidation   Code = "validation_failed"

	// Authn/authz.
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"

	// Entity state errors.
	CodeNotFound               Code = "not_found"
	CodeConflict               Code = "conflict"
	CodeInvalidState           Code = "invalid_state"
	CodeDuplicateApproval      Code = "duplicate_approval"
	CodeSelfApproval           Code = "self_approval"
	CodeDuplicateDispute       Code = "duplicate_dispute"
	CodeConcurrentModification Code = "concurrent_modification"
	CodePropertyFrozen         Code = "property_frozen"

	// Ledger errors. Both are retryable by the caller; timeout means the
	// submission may still confirm and must be re-polled, not resubmitted.
	CodeLedgerUnavailable Code = "ledger_unavailable"
	CodeLedgerTimeout     Code = "ledger_timeout"

	// Invariant violations signal a bug or corrupted state, not bad input.
	CodeInvariantViolation Code = "invariant_violation"
	CodeInternal           Code = "internal_error"
)

// Error is a domain error with a stable code and a human-readable message.
// The wrapped cause, if any, is preserved for errors.Is/As chains.
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

func (e *Error) Unwrap() error { return e.cause }

// New constructs a coded domain error.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf constructs a coded domain error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. If err is nil,
// Wrap returns nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether any error in err's chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
		if err == nil {
			return false
		}
	}
	return false
}

// Is is an alias for HasCode kept for readability at call sites:
//
//	if dErrors.Is(err, dErrors.CodeNotFound) { ... }
func Is(err error, code Code) bool { return HasCode(err, code) }

// CodeOf returns the outermost code in err's chain, or CodeInternal when err
// carries no domain code.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the outermost domain message, or empty when err carries
// no domain error.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}
