package ergerr

import (
	"errors"
	"strings"
	"testing"
)

func TestPositionErrorMessage(t *testing.T) {
	err := &PositionError{Host: "laptop", Expected: 100, Got: 40}
	msg := err.Error()
	if !strings.Contains(msg, "laptop") || !strings.Contains(msg, "100") || !strings.Contains(msg, "40") {
		t.Errorf("Error() = %q, want it to mention host, expected, and got", msg)
	}
}

func TestCorruptionErrorMessage(t *testing.T) {
	err := &CorruptionError{Reason: "edges out of order"}
	if got, want := err.Error(), "corruption: edges out of order"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestBadInputErrorMessage(t *testing.T) {
	err := &BadInputError{Reason: "duration must be positive"}
	if got, want := err.Error(), "bad input: duration must be positive"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorsAsMatchesConcreteType(t *testing.T) {
	var err error = &BadInputError{Reason: "nope"}

	var bad *BadInputError
	if !errors.As(err, &bad) {
		t.Fatal("errors.As failed to match *BadInputError")
	}
	if bad.Reason != "nope" {
		t.Errorf("Reason = %q, want %q", bad.Reason, "nope")
	}

	var pos *PositionError
	if errors.As(err, &pos) {
		t.Error("errors.As should not match *PositionError for a BadInputError")
	}
}
