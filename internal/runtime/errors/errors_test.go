package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"ErrMissingPayload", ErrMissingPayload, "contractflow: missing request data"},
		{"ErrNoError", ErrNoError, "contractflow: reply is not an error"},
		{"ErrNotBound", ErrNotBound, "contractflow: server is not bound"},
		{"ErrAlreadyAcknowledged", ErrAlreadyAcknowledged, "contractflow: message already acknowledged"},
		{"ErrNoResponse", ErrNoResponse, "contractflow: no response was sent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestUnsupportedSchemaTypeUnwrapsToInferenceError(t *testing.T) {
	err := error(&UnsupportedSchemaTypeError{Type: "chan int"})

	var inference *SchemaInferenceError
	if !errors.As(err, &inference) {
		t.Fatal("expected UnsupportedSchemaTypeError to unwrap to SchemaInferenceError")
	}
	if inference.Type != "chan int" {
		t.Fatalf("unexpected type %q", inference.Type)
	}
}

func TestDecodeErrorUnwrap(t *testing.T) {
	inner := errors.New("bad json")
	err := &DecodeError{Type: "demo.Request", Err: inner}

	if !errors.Is(err, inner) {
		t.Fatal("expected DecodeError to unwrap to inner error")
	}
	if !strings.Contains(err.Error(), "demo.Request") {
		t.Fatalf("expected type in message, got %q", err.Error())
	}
}

func TestDuplicateSubjectErrorNamesBothHandlers(t *testing.T) {
	err := &DuplicateSubjectError{First: "operation a", Second: "operation b", Subject: "foo.*"}

	msg := err.Error()
	if !strings.Contains(msg, "operation a") || !strings.Contains(msg, "operation b") {
		t.Fatalf("expected both handlers in message, got %q", msg)
	}
}

func TestConfigValidationError(t *testing.T) {
	inner := errors.New("invalid port")
	err := ConfigValidationError{Err: inner}

	if !errors.Is(err, inner) {
		t.Fatal("expected unwrap to inner error")
	}
	if err.Error() != "contractflow: invalid configuration: invalid port" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
