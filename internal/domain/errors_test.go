package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestValidationError(t *testing.T) {
	tests := []struct {
		name     string
		field    string
		message  string
		value    interface{}
		expected string
	}{
		{
			name:     "Field error",
			field:    "age",
			message:  "Age must be between 0 and 120 years",
			value:    150,
			expected: "validation error for field 'age': Age must be between 0 and 120 years",
		},
		{
			name:     "Message only",
			field:    "",
			message:  "No recognized features found",
			value:    nil,
			expected: "No recognized features found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewValidationError(tt.field, tt.message, tt.value)
			if err.Error() != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, err.Error())
			}
		})
	}
}

func TestFeatureMismatchError(t *testing.T) {
	err := &FeatureMismatchError{Expected: 68, Got: 39, Hints: []string{"check MODEL_PATH"}}

	msg := err.Error()
	if !strings.Contains(msg, "expects 68") || !strings.Contains(msg, "has 39") {
		t.Errorf("Unexpected message: %s", msg)
	}
	if !strings.Contains(msg, "check MODEL_PATH") {
		t.Errorf("Hints missing from message: %s", msg)
	}

	wrapped := fmt.Errorf("predicting: %w", err)
	var target *FeatureMismatchError
	if !errors.As(wrapped, &target) {
		t.Fatal("expected errors.As to find FeatureMismatchError")
	}
	if target.Expected != 68 {
		t.Errorf("Expected 68, got %d", target.Expected)
	}
}

func TestSentinelErrorsWrap(t *testing.T) {
	err := fmt.Errorf("patient not found: %w", ErrNotFound)
	if !errors.Is(err, ErrNotFound) {
		t.Error("expected wrapped ErrNotFound to match")
	}
	if errors.Is(err, ErrModelNotLoaded) {
		t.Error("did not expect ErrModelNotLoaded to match")
	}
}
