package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := New(LLMError, "trace-1", "call failed after %d attempts", 3)
	if err.Error() != "[E_LLM_ERROR] call failed after 3 attempts" {
		t.Errorf("unexpected message: %q", err.Error())
	}
	if err.TraceID != "trace-1" {
		t.Errorf("expected trace id, got %q", err.TraceID)
	}
}

func TestCodeOfWrapped(t *testing.T) {
	inner := errors.New("boom")
	err := fmt.Errorf("pushing: %w", Wrap(AnkiConnectError, "", inner, "cannot reach AnkiConnect"))

	if CodeOf(err) != AnkiConnectError {
		t.Errorf("expected %s, got %s", AnkiConnectError, CodeOf(err))
	}
	if !errors.Is(err, inner) {
		t.Error("expected wrapped error to be reachable")
	}
	if Message(err) != "cannot reach AnkiConnect" {
		t.Errorf("unexpected message %q", Message(err))
	}
}

func TestCodeOfPlainError(t *testing.T) {
	if CodeOf(errors.New("x")) != Unknown {
		t.Error("expected Unknown for plain errors")
	}
	if Message(nil) != "" {
		t.Error("expected empty message for nil")
	}
}
