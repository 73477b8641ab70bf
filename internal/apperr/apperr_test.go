package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindsMatchWithErrorsIs(t *testing.T) {
	cases := []struct {
		err  error
		kind error
	}{
		{Validation("bad"), ErrValidation},
		{Format("bad date"), ErrFormat},
		{NotFound("missing"), ErrNotFound},
		{Forbidden("nope"), ErrForbidden},
		{Auth("who"), ErrAuth},
		{Externalf(nil, "down"), ErrExternal},
	}
	for _, tc := range cases {
		wrapped := fmt.Errorf("op: %w", tc.err)
		if !errors.Is(wrapped, tc.kind) {
			t.Fatalf("expected %v to match %v", wrapped, tc.kind)
		}
	}
	if errors.Is(NotFound("x"), ErrForbidden) {
		t.Fatalf("not found must not match forbidden")
	}
}

func TestExternalKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Externalf(cause, "summarize failed")
	if !errors.Is(err, ErrExternal) {
		t.Fatalf("expected external kind")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable")
	}
	if got := Message(err, "x"); got != "summarize failed" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestMessageFallback(t *testing.T) {
	if got := Message(errors.New("db down"), "internal error"); got != "internal error" {
		t.Fatalf("expected fallback, got %q", got)
	}
	if got := Message(Validation("Passwords do not match."), ""); got != "Passwords do not match." {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Validation("x"), http.StatusBadRequest},
		{fmt.Errorf("edit: %w", Format("x")), http.StatusBadRequest},
		{Auth("x"), http.StatusUnauthorized},
		{Forbidden("x"), http.StatusForbidden},
		{NotFound("x"), http.StatusNotFound},
		{Externalf(errors.New("eof"), "x"), http.StatusBadGateway},
		{Unavailable("x"), http.StatusServiceUnavailable},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Fatalf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
	if !errors.Is(Unavailable("x"), ErrExternal) {
		t.Fatalf("unavailable must also be external")
	}
}
