package model

import (
	"encoding/json"
	"strings"
	"testing"
)

// validEvent returns an Event that passes all validation rules.
func validEvent() Event {
	return Event{
		ID:      "evt_1",
		Type:    TypePaymentConfirmed,
		Class:   ClassPayments,
		Payload: json.RawMessage(`{"payment_id":"pay_1","order_id":"ord_1"}`),
	}
}

// fieldErrors extracts a *ValidationError from err or fails the test.
func fieldErrors(t *testing.T, err error) []FieldError {
	t.Helper()
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	return ve.Errors
}

// hasFieldError reports whether the error list contains an error for the given field.
func hasFieldError(errs []FieldError, field string) bool {
	for _, fe := range errs {
		if fe.Field == field {
			return true
		}
	}
	return false
}

func TestValidateEvent_Valid(t *testing.T) {
	e := validEvent()
	if err := ValidateEvent(&e); err != nil {
		t.Fatalf("expected valid event, got %v", err)
	}
}

func TestValidateEvent_Rules(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mutate func(*Event)
		field  string
	}{
		{"missing id", func(e *Event) { e.ID = "  " }, "id"},
		{"long id", func(e *Event) { e.ID = strings.Repeat("x", MaxEventIDLength+1) }, "id"},
		{"missing type", func(e *Event) { e.Type = "" }, "type"},
		{"bad class", func(e *Event) { e.Class = "laundry" }, "class"},
		{"missing payload", func(e *Event) { e.Payload = nil }, "payload"},
		{"invalid payload", func(e *Event) { e.Payload = json.RawMessage(`{nope`) }, "payload"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			e := validEvent()
			tc.mutate(&e)
			errs := fieldErrors(t, ValidateEvent(&e))
			if !hasFieldError(errs, tc.field) {
				t.Errorf("expected error on %q, got %v", tc.field, errs)
			}
		})
	}
}

func TestValidationError_Message(t *testing.T) {
	e := Event{}
	err := ValidateEvent(&e)
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	if !strings.HasPrefix(msg, "validation failed: ") {
		t.Errorf("message = %q", msg)
	}
	for _, field := range []string{"id", "type", "class", "payload"} {
		if !strings.Contains(msg, field+":") {
			t.Errorf("message %q missing field %q", msg, field)
		}
	}
}
