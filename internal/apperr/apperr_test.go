package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestFromStatus(t *testing.T) {
	tests := []struct {
		code int
		want Kind
	}{
		{http.StatusUnauthorized, KindAuthExpired},
		{http.StatusForbidden, KindAuthForbidden},
		{http.StatusNotFound, KindNotFound},
		{http.StatusConflict, KindConflict},
		{http.StatusBadRequest, KindValidation},
		{http.StatusBadGateway, KindTransient},
		{http.StatusInternalServerError, KindTransient},
		{http.StatusTeapot, KindUnknown},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			err := FromStatus(tt.code, "x")
			if got := KindOf(err); got != tt.want {
				t.Fatalf("KindOf(FromStatus(%d)) = %v, want %v", tt.code, got, tt.want)
			}
		})
	}
}

func TestIsMatchesKindThroughWrapping(t *testing.T) {
	err := fmt.Errorf("submit: %w", Conflict(""))
	if !errors.Is(err, ErrConflict) {
		t.Fatal("wrapped conflict should match ErrConflict")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("conflict must not match ErrNotFound")
	}
	if Message(err) != "already submitted" {
		t.Fatalf("unexpected message %q", Message(err))
	}
	if Status(err) != http.StatusConflict {
		t.Fatalf("unexpected status %d", Status(err))
	}
}

func TestMessageForForeignError(t *testing.T) {
	if Message(errors.New("boom")) == "boom" {
		t.Fatal("raw internal errors must not leak to the user")
	}
	if Status(errors.New("boom")) != http.StatusInternalServerError {
		t.Fatal("foreign errors are server errors")
	}
	if !IsRetriable(Transient(errors.New("dial tcp"))) {
		t.Fatal("transient should be retriable")
	}
}
