// Package payments forwards payment provider status changes to the order
// service as notifications.
package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alfredjeanlab/menujobs/internal/events"
	"github.com/alfredjeanlab/menujobs/internal/model"
	"github.com/alfredjeanlab/menujobs/internal/registry"
)

// Order payment states as the order service names them.
const (
	StatusPaid     = "paid"
	StatusFailed   = "payment_failed"
	StatusRefunded = "refunded"
)

var transitions = map[string]struct {
	topic  string
	status string
}{
	model.TypePaymentConfirmed: {events.TopicOrderPaymentConfirmed, StatusPaid},
	model.TypePaymentFailed:    {events.TopicOrderPaymentFailed, StatusFailed},
	model.TypePaymentRefunded:  {events.TopicOrderPaymentRefunded, StatusRefunded},
}

// Handler publishes one notification per payment transition.
type Handler struct {
	pub events.Publisher
	now func() time.Time
}

// Register adds the payment event types to r.
func Register(r *registry.Registry, pub events.Publisher) *Handler {
	h := &Handler{pub: pub, now: time.Now}
	for _, t := range []string{model.TypePaymentConfirmed, model.TypePaymentFailed, model.TypePaymentRefunded} {
		r.Register(t, registry.Typed(h.Handle))
	}
	return h
}

// Handle publishes the order status change. The idempotency key is derived
// from the payment and the transition, so a redelivered event produces an
// identical notification.
func (h *Handler) Handle(ctx context.Context, resourceID string, p *model.PaymentPayload) error {
	tr, ok := transitions[p.Type]
	if !ok {
		return registry.Permanent(fmt.Errorf("unsupported payment event %q", p.Type))
	}
	orderID := p.OrderID
	if orderID == "" {
		orderID = resourceID
	}
	if orderID == "" || p.PaymentID == "" {
		return registry.Permanent(errors.New("payment event without order_id or payment_id"))
	}

	n := events.OrderPaymentStatus{
		Key:           p.PaymentID + ":" + tr.status,
		OrderID:       orderID,
		PaymentID:     p.PaymentID,
		RestaurantID:  p.RestaurantID,
		Status:        tr.status,
		AmountMinor:   p.AmountMinor,
		Currency:      p.Currency,
		FailureReason: p.FailureReason,
		OccurredAt:    h.now().UTC(),
	}
	if err := h.pub.Publish(ctx, tr.topic, n); err != nil {
		return fmt.Errorf("notify order %s: %w", orderID, err)
	}
	return nil
}
