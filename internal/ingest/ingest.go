// Package ingest is the write path into the pipeline: it records an event
// exactly once and hands its id to the job class queue.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/menujobs/internal/model"
	"github.com/alfredjeanlab/menujobs/internal/queue"
	"github.com/alfredjeanlab/menujobs/internal/store"
)

// ErrMalformed is returned for a webhook body that is not a provider
// envelope.
var ErrMalformed = errors.New("malformed envelope")

// Request is an event to record.
type Request struct {
	ID   string
	Type string
	// Class is derived from Type when empty.
	Class           model.JobClass
	ResourceID      string
	SourceAccountID string
	Payload         json.RawMessage
	ReceivedAt      time.Time
}

// Result reports what Ingest did.
type Result struct {
	Event *model.Event
	// IsNew is false for a duplicate delivery; nothing was enqueued.
	IsNew bool
}

// Ingestor records events and enqueues new ones.
type Ingestor struct {
	store  store.Store
	queue  queue.Transport
	queues map[model.JobClass]string
	logger *slog.Logger
	now    func() time.Time
}

// New returns an Ingestor. queues maps each job class to its queue name;
// missing classes fall back to "menujobs:<class>".
func New(s store.Store, q queue.Transport, queues map[model.JobClass]string, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{store: s, queue: q, queues: queues, logger: logger, now: time.Now}
}

// QueueFor returns the queue name for class.
func (i *Ingestor) QueueFor(class model.JobClass) string {
	if name, ok := i.queues[class]; ok && name != "" {
		return name
	}
	return "menujobs:" + string(class)
}

// Ingest validates req, inserts it if its id is unseen and enqueues it only
// then. A duplicate returns the stored event with IsNew false. When the
// enqueue fails the event is already stored as PENDING; the error is
// returned so the sender retries, and the retry is deduplicated.
func (i *Ingestor) Ingest(ctx context.Context, req Request) (Result, error) {
	event := &model.Event{
		ID:              req.ID,
		Type:            req.Type,
		Class:           req.Class,
		ResourceID:      req.ResourceID,
		SourceAccountID: req.SourceAccountID,
		Payload:         req.Payload,
		Status:          model.StatusPending,
		ReceivedAt:      req.ReceivedAt,
	}
	if event.Class == "" {
		event.Class, _ = model.ClassFor(event.Type)
	}
	if event.ResourceID == "" {
		event.ResourceID = resourceOf(event.Type, event.Payload)
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = i.now().UTC()
	}
	if err := model.ValidateEvent(event); err != nil {
		return Result{}, err
	}

	isNew, err := i.store.Ingest(ctx, event)
	if err != nil {
		return Result{}, fmt.Errorf("store event %s: %w", event.ID, err)
	}
	log := i.logger.With("event_id", event.ID, "type", event.Type)
	if !isNew {
		log.Info("duplicate event ignored")
		if stored, err := i.store.GetEvent(ctx, event.ID); err == nil {
			event = stored
		}
		return Result{Event: event, IsNew: false}, nil
	}

	name := i.QueueFor(event.Class)
	if err := i.queue.Enqueue(ctx, name, event.ID); err != nil {
		log.Error("enqueue failed, event left pending", "queue", name, "err", err)
		return Result{Event: event, IsNew: true}, fmt.Errorf("enqueue event %s: %w", event.ID, err)
	}
	log.Info("event ingested", "queue", name)
	return Result{Event: event, IsNew: true}, nil
}

// Requeue pushes a stored event's id back onto its class queue. The
// recovery sweep uses it for events whose enqueue was lost.
func (i *Ingestor) Requeue(ctx context.Context, event *model.Event) error {
	if err := i.queue.Enqueue(ctx, i.QueueFor(event.Class), event.ID); err != nil {
		return fmt.Errorf("requeue event %s: %w", event.ID, err)
	}
	return nil
}

// Replay resets a FAILED event and enqueues it again.
func (i *Ingestor) Replay(ctx context.Context, id string) (*model.Event, error) {
	if err := i.store.ResetForReplay(ctx, id); err != nil {
		return nil, fmt.Errorf("reset event %s: %w", id, err)
	}
	event, err := i.store.GetEvent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load event %s: %w", id, err)
	}
	if err := i.Requeue(ctx, event); err != nil {
		return event, err
	}
	i.logger.Info("event replayed", "event_id", id, "queue", i.QueueFor(event.Class))
	return event, nil
}

// Envelope is the payment provider's webhook body.
type Envelope struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Account string          `json:"account,omitempty"`
	Data    json.RawMessage `json:"data"`
}

// DecodeEnvelope parses a verified webhook body into a Request.
func DecodeEnvelope(body []byte) (Request, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.ID == "" || env.Type == "" || len(env.Data) == 0 {
		return Request{}, fmt.Errorf("%w: id, type and data are required", ErrMalformed)
	}
	return Request{
		ID:              env.ID,
		Type:            env.Type,
		SourceAccountID: env.Account,
		Payload:         env.Data,
	}, nil
}

// resourceOf picks the business key handlers deduplicate effects on.
func resourceOf(eventType string, raw json.RawMessage) string {
	p, err := model.DecodePayload(eventType, raw)
	if err != nil {
		return ""
	}
	switch p := p.(type) {
	case *model.PaymentPayload:
		return p.OrderID
	case *model.ImageVariantsPayload:
		return p.ImageID
	case *model.MenuImportPayload:
		return p.ImportID
	}
	return ""
}
