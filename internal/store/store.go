package store

import (
	"context"
	"errors"

	"github.com/alfredjeanlab/menujobs/internal/model"
)

// ErrNotFound is returned when no event exists for the requested id.
var ErrNotFound = errors.New("event not found")

// ErrConflict is returned when a status update is not allowed from the
// record's current status (for example marking a PROCESSED event FAILED).
var ErrConflict = errors.New("event status conflict")

// Store is the durable, deduplicating event ledger. It does not interpret
// payloads.
type Store interface {
	// Ingest inserts the event unless a record with the same id exists.
	// isNew reports whether this call created the record.
	Ingest(ctx context.Context, event *model.Event) (isNew bool, err error)
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	ListEvents(ctx context.Context, filter model.EventFilter) ([]*model.Event, error)

	// Status mutators. None of them touches a PROCESSED record.
	MarkProcessing(ctx context.Context, id string) error
	MarkProcessed(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, lastErr string) error
	// IncrementRetry records a failed attempt, hands the record back to
	// PENDING and returns the new retry count.
	IncrementRetry(ctx context.Context, id string, lastErr string) (int, error)

	// ResetForReplay moves a FAILED event back to PENDING with a zero
	// retry count.
	ResetForReplay(ctx context.Context, id string) error

	// CountByStatus returns event counts per status for a class ("" = all).
	CountByStatus(ctx context.Context, class model.JobClass) (map[model.Status]int, error)

	// Lifecycle
	Close() error
}
