// Package events publishes the pipeline's outbound notifications: the
// effects handlers announce to the rest of the platform once a job is done.
package events

import (
	"context"
	"time"
)

// Topic constants. All live under "menujobs." so `mj watch` can follow
// everything with one wildcard.
const (
	TopicAll = "menujobs.>"

	TopicOrderPaymentConfirmed = "menujobs.order.payment.confirmed"
	TopicOrderPaymentFailed    = "menujobs.order.payment.failed"
	TopicOrderPaymentRefunded  = "menujobs.order.payment.refunded"

	TopicImageVariantsReady = "menujobs.image.variants.ready"

	TopicMenuImported = "menujobs.menu.imported"
)

// Keyed is implemented by notifications that carry an idempotency key.
// Publishers forward it so consumers can drop redeliveries.
type Keyed interface {
	IdempotencyKey() string
}

// OrderPaymentStatus tells the order service a payment changed state.
type OrderPaymentStatus struct {
	Key           string    `json:"idempotency_key"`
	OrderID       string    `json:"order_id"`
	PaymentID     string    `json:"payment_id"`
	RestaurantID  string    `json:"restaurant_id,omitempty"`
	Status        string    `json:"status"`
	AmountMinor   int64     `json:"amount_minor"`
	Currency      string    `json:"currency"`
	FailureReason string    `json:"failure_reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func (n OrderPaymentStatus) IdempotencyKey() string { return n.Key }

// ImageVariant is one rendered size of an image.
type ImageVariant struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Key    string `json:"key"`
}

type ImageVariantsReady struct {
	Key      string         `json:"idempotency_key"`
	ImageID  string         `json:"image_id"`
	Variants []ImageVariant `json:"variants"`
}

func (n ImageVariantsReady) IdempotencyKey() string { return n.Key }

type MenuImported struct {
	Key          string `json:"idempotency_key"`
	ImportID     string `json:"import_id"`
	RestaurantID string `json:"restaurant_id"`
	MenuKey      string `json:"menu_key"`
	Items        int    `json:"items"`
	Sections     int    `json:"sections"`
}

func (n MenuImported) IdempotencyKey() string { return n.Key }

// Publisher is the interface for emitting notifications.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
