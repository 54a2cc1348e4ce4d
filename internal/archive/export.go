package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/alfredjeanlab/menujobs/internal/model"
	"github.com/alfredjeanlab/menujobs/internal/store"
)

// maxExport caps how many events one export reads.
const maxExport = 10000

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version    string         `json:"version"`
	Type       string         `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	Status     []model.Status `json:"status,omitempty"`
	EventCount int            `json:"event_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExportJSONL writes the events matching filter from the store as JSONL to
// w, sorted by ID, and returns how many it wrote.
func ExportJSONL(ctx context.Context, s store.Store, filter model.EventFilter, w io.Writer) (int, error) {
	if filter.Limit <= 0 {
		filter.Limit = maxExport
	}
	events, err := s.ListEvents(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("list events: %w", err)
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].ID < events[j].ID
	})

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:    "1",
		Type:       "header",
		Timestamp:  time.Now().UTC(),
		Status:     filter.Status,
		EventCount: len(events),
	}); err != nil {
		return 0, fmt.Errorf("encode header: %w", err)
	}

	for _, e := range events {
		if err := enc.Encode(record{Type: "event", Data: e}); err != nil {
			return 0, fmt.Errorf("encode event %s: %w", e.ID, err)
		}
	}

	return len(events), nil
}
