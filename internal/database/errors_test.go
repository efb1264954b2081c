package database

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKinds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind ErrKind
		want string
	}{
		{ErrKindUnknown, "unknown"},
		{ErrKindConfiguration, "configuration"},
		{ErrKindConnection, "connection"},
		{ErrKindValidation, "validation"},
		{ErrKindExecution, "execution"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("ErrKind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestNewError(t *testing.T) {
	t.Parallel()

	err := NewError(ErrKindValidation, "invalid %s name: %q", "table", "x;y")
	if err.Error() != `invalid table name: "x;y"` {
		t.Errorf("Error() = %q", err.Error())
	}
	if !IsValidation(err) {
		t.Error("IsValidation = false, want true")
	}
	if IsConnection(err) || IsExecution(err) {
		t.Error("error matched a kind it does not carry")
	}
}

func TestWrapError(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := WrapError(ErrKindConnection, cause, "failed to connect to %s", "localhost")

	if !errors.Is(err, cause) {
		t.Error("wrapped cause not reachable via errors.Is")
	}
	if !IsConnection(err) {
		t.Error("IsConnection = false, want true")
	}
	want := "failed to connect to localhost: connection refused"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	t.Parallel()

	inner := NewError(ErrKindValidation, "bad identifier")
	outer := fmt.Errorf("statement 3 failed: %w", inner)

	if !IsValidation(outer) {
		t.Error("IsValidation(wrapped) = false, want true")
	}
	if IsValidation(errors.New("plain")) {
		t.Error("IsValidation(plain error) = true, want false")
	}
}
