// Package memory implements store.Store in process memory. It backs tests
// and the single-process development mode of `mj serve`.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/alfredjeanlab/menujobs/internal/model"
	"github.com/alfredjeanlab/menujobs/internal/store"
)

// Store is an in-memory event ledger. Each call holds a single mutex, which
// gives the same per-record atomicity as the guarded SQL updates.
type Store struct {
	mu     sync.Mutex
	events map[string]*model.Event
	now    func() time.Time
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		events: make(map[string]*model.Event),
		now:    time.Now,
	}
}

func (s *Store) Ingest(_ context.Context, event *model.Event) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[event.ID]; ok {
		return false, nil
	}
	e := clone(event)
	e.Status = model.StatusPending
	e.RetryCount = 0
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = s.now().UTC()
	}
	e.UpdatedAt = e.ReceivedAt
	s.events[e.ID] = e
	return true, nil
}

func (s *Store) GetEvent(_ context.Context, id string) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(e), nil
}

func (s *Store) ListEvents(_ context.Context, filter model.EventFilter) ([]*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.Event
	for _, e := range s.events {
		if len(filter.Status) > 0 && !slices.Contains(filter.Status, e.Status) {
			continue
		}
		if len(filter.Type) > 0 && !slices.Contains(filter.Type, e.Type) {
			continue
		}
		if len(filter.Class) > 0 && !slices.Contains(filter.Class, e.Class) {
			continue
		}
		if !filter.UpdatedBefore.IsZero() && !e.UpdatedAt.Before(filter.UpdatedBefore) {
			continue
		}
		out = append(out, clone(e))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ReceivedAt.Equal(out[j].ReceivedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ReceivedAt.Before(out[j].ReceivedAt)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkProcessing(_ context.Context, id string) error {
	return s.transition(id, model.StatusProcessing, func(e *model.Event) {})
}

func (s *Store) MarkProcessed(_ context.Context, id string) error {
	return s.transition(id, model.StatusProcessed, func(e *model.Event) {
		t := s.now().UTC()
		e.ProcessedAt = &t
		e.LastError = ""
	})
}

func (s *Store) MarkFailed(_ context.Context, id string, lastErr string) error {
	return s.transition(id, model.StatusFailed, func(e *model.Event) {
		e.LastError = lastErr
	})
}

func (s *Store) IncrementRetry(_ context.Context, id string, lastErr string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok {
		return 0, store.ErrNotFound
	}
	if e.Status.IsTerminal() {
		return 0, fmt.Errorf("%w: %s is %s", store.ErrConflict, id, e.Status)
	}
	e.RetryCount++
	e.Status = model.StatusPending
	e.LastError = lastErr
	e.UpdatedAt = s.now().UTC()
	return e.RetryCount, nil
}

func (s *Store) ResetForReplay(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok {
		return store.ErrNotFound
	}
	if e.Status != model.StatusFailed {
		return fmt.Errorf("%w: %s is %s", store.ErrConflict, id, e.Status)
	}
	now := s.now().UTC()
	e.Status = model.StatusPending
	e.RetryCount = 0
	e.LastError = ""
	e.ReplayedAt = &now
	e.UpdatedAt = now
	return nil
}

func (s *Store) CountByStatus(_ context.Context, class model.JobClass) (map[model.Status]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[model.Status]int)
	for _, e := range s.events {
		if class != "" && e.Class != class {
			continue
		}
		counts[e.Status]++
	}
	return counts, nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

// transition applies a processor status update. Setting the status a record
// already has is a no-op so duplicate deliveries stay harmless.
func (s *Store) transition(id string, next model.Status, apply func(*model.Event)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok {
		return store.ErrNotFound
	}
	if e.Status == next && next != model.StatusProcessing {
		return nil
	}
	if !e.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s is %s", store.ErrConflict, id, e.Status)
	}
	e.Status = next
	e.UpdatedAt = s.now().UTC()
	apply(e)
	return nil
}

func clone(e *model.Event) *model.Event {
	c := *e
	c.Payload = slices.Clone(e.Payload)
	if e.ProcessedAt != nil {
		t := *e.ProcessedAt
		c.ProcessedAt = &t
	}
	if e.ReplayedAt != nil {
		t := *e.ReplayedAt
		c.ReplayedAt = &t
	}
	return &c
}
