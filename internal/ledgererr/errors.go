// Package ledgererr defines the typed errors the ledger surfaces to its
// callers. Every error carries an HTTP-status-like severity code and a
// message the caller can forward verbatim.
package ledgererr

import (
	"errors"
	"net/http"
)

type Error struct {
	Status  int
	Message string
	Err     error

	retryable bool
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func BadRequest(message string) *Error {
	return &Error{Status: http.StatusBadRequest, Message: message}
}

func Conflict(message string) *Error {
	return &Error{Status: http.StatusConflict, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Status: http.StatusNotFound, Message: message}
}

// Retryable marks concurrency conflicts that are safe for the caller to
// retry. The transaction coordinator surfaces them on the first occurrence;
// it never re-runs the transaction on its own.
func Retryable(message string, err error) *Error {
	return &Error{Status: http.StatusConflict, Message: message, Err: err, retryable: true}
}

// RetryableConflict reports whether the caller may safely repeat the
// operation that produced this error.
func (e *Error) RetryableConflict() bool {
	return e.retryable
}

func Internal(err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Message: "internal error", Err: err}
}

// Wrap lifts a validation error from a lower layer into a 400 without
// losing the original for errors.Is checks.
func Wrap(err error) *Error {
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	return &Error{Status: http.StatusBadRequest, Message: err.Error(), Err: err}
}

// StatusOf reports the severity code of any error, defaulting to 500.
func StatusOf(err error) int {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Status
	}
	return http.StatusInternalServerError
}
