// Package errs defines the gateway error taxonomy. The queue uses the kind
// of an error to decide whether a failed job is retried, and HTTP handlers
// use it to pick a status code.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for retry and HTTP mapping decisions.
type Kind string

const (
	// KindUnauthorized marks a failed webhook signature or token check.
	// Requests failing with it are rejected at the boundary and never enqueued.
	KindUnauthorized Kind = "unauthorized"
	// KindValidation marks a payload that does not represent an actionable
	// message. Jobs failing with it complete as a no-op.
	KindValidation Kind = "validation"
	// KindNotFound marks a missing tenant, session, or user during resolution.
	KindNotFound Kind = "not_found"
	// KindExternalService marks a non-2xx response from a provider API.
	KindExternalService Kind = "external_service"
	// KindInternal marks any unexpected failure in the pipeline.
	KindInternal Kind = "internal"
)

// Error is a kind-tagged error with an optional wrapped cause.
type Error struct {
	kind  Kind
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Kind returns the error's classification.
func (e *Error) Kind() Kind {
	return e.kind
}

// New creates a kind-tagged error.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap creates a kind-tagged error wrapping a cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...), cause: cause}
}

// KindOf returns the kind of err. Untagged non-nil errors classify as
// KindInternal; nil returns the empty kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindInternal
}

// IsKind reports whether err classifies as the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether a job failing with err is eligible for retry.
// Validation failures are swallowed and unauthorized errors never reach the
// queue, so neither is retryable.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindNotFound, KindExternalService, KindInternal:
		return true
	default:
		return false
	}
}
