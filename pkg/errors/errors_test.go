package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestErrorIncludesInternal(t *testing.T) {
	internal := stdErrors.New("boom")
	err := Wrap(internal, "failed")

	if err.Error() != "failed: boom" {
		t.Fatalf("unexpected error string: %s", err.Error())
	}
}

func TestWithInternalCopies(t *testing.T) {
	base := New("TEST", "test", 400)
	with := base.WithInternal(stdErrors.New("oops"))

	if with == base {
		t.Fatal("expected WithInternal to return a copy")
	}

	if base.Internal != nil {
		t.Fatal("expected original error to remain unchanged")
	}

	if with.Internal == nil {
		t.Fatal("expected internal error to be set")
	}
}

func TestFromError(t *testing.T) {
	appErr := ErrNotFound
	if out := FromError(appErr); out != appErr {
		t.Fatal("expected FromError to return the same AppError instance")
	}

	raw := stdErrors.New("raw")
	out := FromError(raw)
	if out.Code != ErrInternalServer.Code {
		t.Fatalf("expected internal server code, got %s", out.Code)
	}
	if out.Internal == nil {
		t.Fatal("expected internal error to be attached")
	}
}

func TestNewBadRequest(t *testing.T) {
	err := NewBadRequest("invalid payload")
	if err.Code != ErrBadRequest.Code {
		t.Fatalf("expected %s, got %s", ErrBadRequest.Code, err.Code)
	}
	if err.Message != "invalid payload" {
		t.Fatalf("unexpected message: %s", err.Message)
	}
	if err.StatusCode != ErrBadRequest.StatusCode {
		t.Fatalf("unexpected status: %d", err.StatusCode)
	}
}

func TestWithMessageCopies(t *testing.T) {
	with := ErrConflict.WithMessage("email already registered")
	if with == ErrConflict {
		t.Fatal("expected WithMessage to return a copy")
	}
	if ErrConflict.Message != "Resource already exists" {
		t.Fatalf("expected original message untouched, got %s", ErrConflict.Message)
	}
	if with.StatusCode != ErrConflict.StatusCode {
		t.Fatalf("unexpected status: %d", with.StatusCode)
	}
}

func TestHasCode(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", ErrRateLimit)
	if !HasCode(wrapped, "RATE_LIMIT_EXCEEDED") {
		t.Fatal("expected wrapped AppError code to match")
	}
	if HasCode(stdErrors.New("plain"), "RATE_LIMIT_EXCEEDED") {
		t.Fatal("expected plain error not to match")
	}
}
