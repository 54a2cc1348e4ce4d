package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Well-known event types.
const (
	TypePaymentConfirmed       = "payment.confirmed"
	TypePaymentFailed          = "payment.failed"
	TypePaymentRefunded        = "payment.refunded"
	TypeImageVariantsRequested = "image.variants.requested"
	TypeMenuImportRequested    = "menu.import.requested"
)

// ErrUnknownPayload is returned by DecodePayload for a type with no payload
// definition.
var ErrUnknownPayload = errors.New("unknown payload type")

// Payload is the decoded body of an event. The concrete type is selected by
// the event type tag, see DecodePayload.
type Payload interface {
	EventType() string
}

// PaymentPayload carries a payment provider status transition.
type PaymentPayload struct {
	Type          string `json:"-"`
	PaymentID     string `json:"payment_id"`
	OrderID       string `json:"order_id"`
	RestaurantID  string `json:"restaurant_id,omitempty"`
	AmountMinor   int64  `json:"amount_minor"`
	Currency      string `json:"currency"`
	FailureReason string `json:"failure_reason,omitempty"`
}

func (p *PaymentPayload) EventType() string { return p.Type }

// ImageVariantsPayload requests resized renditions of an uploaded image.
type ImageVariantsPayload struct {
	ImageID   string `json:"image_id"`
	SourceKey string `json:"source_key"`
	Widths    []int  `json:"widths"`
}

func (p *ImageVariantsPayload) EventType() string { return TypeImageVariantsRequested }

// MenuImportPayload requests parsing of an uploaded menu file.
type MenuImportPayload struct {
	ImportID     string `json:"import_id"`
	RestaurantID string `json:"restaurant_id"`
	SourceKey    string `json:"source_key"`
	ContentType  string `json:"content_type,omitempty"`
	Filename     string `json:"filename,omitempty"`
}

func (p *MenuImportPayload) EventType() string { return TypeMenuImportRequested }

// DecodePayload decodes raw into the payload type registered for eventType.
func DecodePayload(eventType string, raw json.RawMessage) (Payload, error) {
	var p Payload
	switch eventType {
	case TypePaymentConfirmed, TypePaymentFailed, TypePaymentRefunded:
		p = &PaymentPayload{Type: eventType}
	case TypeImageVariantsRequested:
		p = &ImageVariantsPayload{}
	case TypeMenuImportRequested:
		p = &MenuImportPayload{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPayload, eventType)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("decode %s payload: empty", eventType)
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
	}
	return p, nil
}
