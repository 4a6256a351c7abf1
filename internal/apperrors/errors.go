package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a business-rule failure. Kinds are a closed set:
// handlers map them to HTTP statuses and callers branch on them, so a
// new kind is an API change.
type Kind int

const (
	KindInternal Kind = iota
	KindForbidden
	KindNotFound
	KindNotEligible
	KindRoleConflict
	KindInvariantViolation
	KindNoOpTransfer
)

func (k Kind) String() string {
	switch k {
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindNotEligible:
		return "not_eligible"
	case KindRoleConflict:
		return "role_conflict"
	case KindInvariantViolation:
		return "invariant_violation"
	case KindNoOpTransfer:
		return "noop_transfer"
	}
	return "internal"
}

// HTTPStatus returns the status a handler should respond with.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindNotEligible, KindRoleConflict, KindInvariantViolation:
		return http.StatusConflict
	case KindNoOpTransfer:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

type Error struct {
	kind  Kind
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.msg
	}
	return fmt.Sprintf("%s: %v", e.msg, e.cause)
}

func (e *Error) Kind() Kind      { return e.kind }
func (e *Error) Message() string { return e.msg }
func (e *Error) Unwrap() error   { return e.cause }

// New builds a classified error. The message is surfaced verbatim to
// the caller, so it must be a human-readable reason.
func New(kind Kind, msg string) error {
	return &Error{kind: kind, msg: msg}
}

func Newf(kind Kind, format string, args ...interface{}) error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause without changing the surfaced message.
func Wrap(kind Kind, msg string, cause error) error {
	return &Error{kind: kind, msg: msg, cause: cause}
}

// KindOf extracts the kind from an error chain; unclassified errors
// report KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindInternal
}

// MessageOf returns the surfaced message for classified errors and a
// generic one otherwise, so infrastructure detail never leaks out.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.msg
	}
	return "internal server error"
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
