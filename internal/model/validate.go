package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MaxEventIDLength bounds provider-assigned identifiers.
const MaxEventIDLength = 255

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ValidateEvent checks an event about to be ingested.
// It returns a *ValidationError if any rules fail, or nil if the event is valid.
func ValidateEvent(e *Event) error {
	var ve ValidationError

	id := strings.TrimSpace(e.ID)
	if id == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "id", Message: "is required"})
	} else if len(id) > MaxEventIDLength {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "id",
			Message: fmt.Sprintf("must be %d characters or fewer", MaxEventIDLength),
		})
	}

	if strings.TrimSpace(e.Type) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "type", Message: "is required"})
	}

	if !e.Class.IsValid() {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "class",
			Message: fmt.Sprintf("invalid value %q", e.Class),
		})
	}

	if len(e.Payload) == 0 {
		ve.Errors = append(ve.Errors, FieldError{Field: "payload", Message: "is required"})
	} else if !json.Valid(e.Payload) {
		ve.Errors = append(ve.Errors, FieldError{Field: "payload", Message: "must be valid JSON"})
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}
