package ledgererr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestWrapKeepsTypedError(t *testing.T) {
	original := Conflict("You are all settled up")
	wrapped := Wrap(fmt.Errorf("settle: %w", original))
	if wrapped.Status != http.StatusConflict {
		t.Fatalf("expected 409, got %d", wrapped.Status)
	}
	if wrapped.Message != "You are all settled up" {
		t.Fatalf("unexpected message: %q", wrapped.Message)
	}
}

func TestWrapLiftsPlainError(t *testing.T) {
	plain := errors.New("shares do not reconcile")
	wrapped := Wrap(plain)
	if wrapped.Status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", wrapped.Status)
	}
	if !errors.Is(wrapped, plain) {
		t.Fatalf("expected wrapped error to unwrap to original")
	}
}

func TestRetryableMarksConflict(t *testing.T) {
	err := Retryable("row changed underneath the lock", nil)
	if !err.RetryableConflict() {
		t.Fatalf("expected retryable marker")
	}
	if err.Status != http.StatusConflict {
		t.Fatalf("expected 409, got %d", err.Status)
	}
	if Conflict("plain conflict").RetryableConflict() {
		t.Fatalf("plain conflicts must not be retryable")
	}
}

func TestStatusOf(t *testing.T) {
	if got := StatusOf(NotFound("expense not found")); got != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", got)
	}
	if got := StatusOf(errors.New("boom")); got != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", got)
	}
	if got := StatusOf(fmt.Errorf("outer: %w", BadRequest("bad"))); got != http.StatusBadRequest {
		t.Fatalf("expected 400 through wrapping, got %d", got)
	}
}
