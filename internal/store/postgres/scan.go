package postgres

import (
	"database/sql"
	"encoding/json"

	"github.com/alfredjeanlab/menujobs/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanEvent scans a single row into a model.Event.
// The row must contain columns in the order defined by eventColumns.
func scanEvent(row scannable) (*model.Event, error) {
	var e model.Event
	var (
		resourceID      sql.NullString
		sourceAccountID sql.NullString
		payload         []byte
		lastError       sql.NullString
		processedAt     sql.NullTime
		replayedAt      sql.NullTime
	)

	err := row.Scan(
		&e.ID,
		&e.Type,
		&e.Class,
		&resourceID,
		&sourceAccountID,
		&payload,
		&e.Status,
		&e.RetryCount,
		&lastError,
		&e.ReceivedAt,
		&e.UpdatedAt,
		&processedAt,
		&replayedAt,
	)
	if err != nil {
		return nil, err
	}

	e.ResourceID = resourceID.String
	e.SourceAccountID = sourceAccountID.String
	e.LastError = lastError.String
	if len(payload) > 0 {
		e.Payload = json.RawMessage(payload)
	}
	if processedAt.Valid {
		t := processedAt.Time
		e.ProcessedAt = &t
	}
	if replayedAt.Valid {
		t := replayedAt.Time
		e.ReplayedAt = &t
	}
	return &e, nil
}

// scanEvents scans multiple rows into a slice of model.Event pointers.
func scanEvents(rows *sql.Rows) ([]*model.Event, error) {
	var events []*model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// nullString converts a string to sql.NullString; empty string is null.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// jsonbBytes converts json.RawMessage to a []byte suitable for JSONB columns.
func jsonbBytes(m json.RawMessage) []byte {
	if len(m) == 0 {
		return nil
	}
	return []byte(m)
}
