// Package apperrors provides structured application errors with HTTP status
// mapping and wire error codes for the ingestion protocol.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrRejected   = errors.New("rejected")
	ErrInternal   = errors.New("internal error")
)

// Wire error codes returned to producers.
const (
	CodeMissingServerLogin = "missing_server_login"
	CodeInvalidEnvelope    = "invalid_envelope"
	CodeInternalError      = "internal_error"
)

// internalRetryAfterSeconds is the retry hint attached to downgraded
// internal errors; the producer's backoff policy honors it.
const internalRetryAfterSeconds = 5

// Error provides structured error with context.
type Error struct {
	Sentinel          error  // Wrapped sentinel for errors.Is() classification
	Code              string // Wire error code (e.g. "missing_server_login")
	Message           string // Human-readable message
	Field             string // For validation errors (e.g., "idempotency_key")
	Op                string // Operation that failed (e.g., "store.IngestEvent")
	Cause             error  // Underlying error
	Retryable         bool   // Whether the producer should retry
	RetryAfterSeconds int    // Retry hint, 0 when not applicable
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the sentinel error for errors.Is() classification.
func (e *Error) Unwrap() error {
	return e.Sentinel
}

// Validation creates a non-retryable validation error for a specific field.
func Validation(field, code, message string) error {
	return &Error{
		Sentinel: ErrValidation,
		Code:     code,
		Message:  message,
		Field:    field,
	}
}

// NotFound creates a not found error for a resource.
func NotFound(resource, id string) error {
	return &Error{
		Sentinel: ErrNotFound,
		Code:     "not_found",
		Message:  fmt.Sprintf("%s %s not found", resource, id),
	}
}

// Rejected creates a non-retryable permanent rejection with a wire code.
func Rejected(code, reason string) error {
	return &Error{
		Sentinel: ErrRejected,
		Code:     code,
		Message:  reason,
	}
}

// Internal creates a retryable internal error wrapping an underlying cause.
// Producers are expected to back off and retry these.
func Internal(op string, cause error) error {
	return &Error{
		Sentinel:          ErrInternal,
		Code:              CodeInternalError,
		Message:           fmt.Sprintf("%s: %v", op, cause),
		Op:                op,
		Cause:             cause,
		Retryable:         true,
		RetryAfterSeconds: internalRetryAfterSeconds,
	}
}

// As extracts the structured *Error from err, downgrading unknown errors to
// a retryable internal error so producers always get a uniform shape.
func As(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return &Error{
		Sentinel:          ErrInternal,
		Code:              CodeInternalError,
		Message:           "internal error",
		Cause:             err,
		Retryable:         true,
		RetryAfterSeconds: internalRetryAfterSeconds,
	}
}
