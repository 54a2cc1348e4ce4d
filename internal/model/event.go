package model

import (
	"encoding/json"
	"time"
)

// Status is the processing state of an event record.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusProcessed  Status = "PROCESSED"
	StatusFailed     Status = "FAILED"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsValid checks whether the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusProcessed, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further processing happens without an
// explicit replay.
func (s Status) IsTerminal() bool {
	return s == StatusProcessed || s == StatusFailed
}

// CanTransition reports whether a record may move from s to next.
// PROCESSED is final. FAILED only leaves through a replay, which is not a
// transition the processor makes.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusProcessed || next == StatusFailed
	case StatusProcessing:
		// PENDING is allowed so a retry can hand the record back to the queue.
		return next == StatusPending || next == StatusProcessing || next == StatusProcessed || next == StatusFailed
	}
	return false
}

// Event is a durably recorded occurrence: a provider webhook delivery or a
// caller-initiated job request.
type Event struct {
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	Class           JobClass        `json:"class"`
	ResourceID      string          `json:"resource_id,omitempty"`
	SourceAccountID string          `json:"source_account_id,omitempty"`
	Payload         json.RawMessage `json:"payload"`
	Status          Status          `json:"status"`
	RetryCount      int             `json:"retry_count"`
	LastError       string          `json:"last_error,omitempty"`
	ReceivedAt      time.Time       `json:"received_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	ProcessedAt     *time.Time      `json:"processed_at,omitempty"`
	ReplayedAt      *time.Time      `json:"replayed_at,omitempty"`
}

// Resource returns the identifier handlers key their effects on. It falls
// back to the event id when the ingestion path did not supply one.
func (e *Event) Resource() string {
	if e.ResourceID != "" {
		return e.ResourceID
	}
	return e.ID
}
