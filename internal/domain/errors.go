package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared across layers
var (
	ErrNotFound          = errors.New("not found")
	ErrModelNotLoaded    = errors.New("model not loaded")
	ErrStoreUnavailable  = errors.New("database not configured")
	ErrMethodUnavailable = errors.New("explainer method not available")
	ErrNoInputFeatures   = errors.New("patient has no input features")
)

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// FeatureMismatchError is returned when the prepared input width differs
// from what the loaded model was trained on.
type FeatureMismatchError struct {
	Expected int
	Got      int
	Hints    []string
}

// Error implements the error interface
func (e *FeatureMismatchError) Error() string {
	msg := fmt.Sprintf("feature count mismatch: model expects %d features but input has %d", e.Expected, e.Got)
	if len(e.Hints) > 0 {
		msg += ". Hints: " + strings.Join(e.Hints, "; ")
	}
	return msg
}
