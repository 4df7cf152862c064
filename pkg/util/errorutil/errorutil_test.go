package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"validation", NewValidationError("bad", nil), false},
		{"malformed", NewMalformedMessage(errors.New("eof")), false},
		{"no operators", NewNoEligibleOperators("Franchise"), true},
		{"directory", NewDirectoryUnavailable(errors.New("timeout")), true},
		{"persistence", NewPersistenceError(errors.New("conn refused")), true},
		{"wrapped persistence", fmt.Errorf("process: %w", NewPersistenceError(errors.New("x"))), true},
		{"plain error", errors.New("boom"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRetryable(tc.err); got != tc.want {
				t.Fatalf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestSentinelMatching(t *testing.T) {
	err := fmt.Errorf("assign: %w", NewNoEligibleOperators("Franchise"))
	if !errors.Is(err, ErrNoEligibleOperators) {
		t.Fatal("expected errors.Is to match ErrNoEligibleOperators")
	}
	if errors.Is(err, ErrPersistence) {
		t.Fatal("did not expect errors.Is to match ErrPersistence")
	}
	if CodeOf(err) != CodeNoEligibleOperators {
		t.Fatalf("unexpected code %q", CodeOf(err))
	}
}

func TestToDomainErrorWrapsUnknown(t *testing.T) {
	de := ToDomainError(errors.New("boom"))
	if de.Code != CodeInternal || de.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("unexpected domain error %+v", de)
	}
	if de.Message != "Internal Server Error" {
		t.Fatalf("unexpected message %q", de.Message)
	}
}
