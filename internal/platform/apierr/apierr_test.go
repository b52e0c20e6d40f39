package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestFrom(t *testing.T) {
	base := New(http.StatusNotFound, "graph_not_found", errors.New("graph not found"))
	wrapped := fmt.Errorf("load: %w", base)

	got := From(wrapped, "internal")
	if got.Status != http.StatusNotFound || got.Code != "graph_not_found" {
		t.Fatalf("From(wrapped): want=404/graph_not_found got=%d/%s", got.Status, got.Code)
	}

	plain := errors.New("boom")
	got = From(plain, "generation_failed")
	if got.Status != http.StatusInternalServerError || got.Code != "generation_failed" {
		t.Fatalf("From(plain): want=500/generation_failed got=%d/%s", got.Status, got.Code)
	}
	if !errors.Is(got, plain) {
		t.Fatalf("From(plain): expected cause to unwrap")
	}
}

func TestErrorMessage(t *testing.T) {
	cases := []struct {
		err  *Error
		want string
	}{
		{New(http.StatusBadRequest, "invalid_request", errors.New("input is required")), "input is required"},
		{New(http.StatusForbidden, "forbidden", nil), "forbidden"},
		{New(http.StatusTeapot, "", nil), "api error (418)"},
	}
	for _, tc := range cases {
		if got := tc.err.Error(); got != tc.want {
			t.Fatalf("Error(): want=%q got=%q", tc.want, got)
		}
	}
}
