package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorIncludesInternal(t *testing.T) {
	internal := stdErrors.New("boom")
	err := Wrap(internal, "failed")

	if err.Error() != "failed: boom" {
		t.Fatalf("unexpected error string: %s", err.Error())
	}
	if !stdErrors.Is(err, internal) {
		t.Fatal("expected wrapped error to unwrap to the internal cause")
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

func TestIsMatchesByCode(t *testing.T) {
	custom := ErrValidation.WithMessage("password too short")
	if !stdErrors.Is(custom, ErrValidation) {
		t.Fatal("expected copy to match sentinel")
	}

	wrapped := fmt.Errorf("register: %w", ErrEmailTaken)
	if !stdErrors.Is(wrapped, ErrEmailTaken) {
		t.Fatal("expected wrapped sentinel to match")
	}
	if stdErrors.Is(wrapped, ErrUserIDTaken) {
		t.Fatal("expected different codes not to match")
	}
}

func TestFromError(t *testing.T) {
	appErr := ErrNotFound
	if out := FromError(appErr); out != appErr {
		t.Fatal("expected FromError to return the same AppError instance")
	}

	wrapped := fmt.Errorf("lookup: %w", ErrWorkspaceNotFound)
	if out := FromError(wrapped); out.Code != ErrWorkspaceNotFound.Code {
		t.Fatalf("expected workspace not found, got %s", out.Code)
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

func TestNewValidation(t *testing.T) {
	err := NewValidation("invalid payload")
	if err.Code != ErrValidation.Code {
		t.Fatalf("expected %s, got %s", ErrValidation.Code, err.Code)
	}
	if err.Message != "invalid payload" {
		t.Fatalf("unexpected message: %s", err.Message)
	}
	if err.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", err.StatusCode)
	}
}

func TestStatusTaxonomy(t *testing.T) {
	cases := map[*AppError]int{
		ErrInvalidProvider:     http.StatusBadRequest,
		ErrInvalidRefreshToken: http.StatusUnauthorized,
		ErrForbiddenAction:     http.StatusForbidden,
		ErrLastLoginMethod:     http.StatusConflict,
		ErrInviteFlowDisabled:  http.StatusGone,
	}
	for err, status := range cases {
		if err.StatusCode != status {
			t.Fatalf("%s: expected %d got %d", err.Code, status, err.StatusCode)
		}
	}
}
