package queue

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Transport built from plain slices. Waiting
// consumers are woken through a per-queue channel that is closed and
// replaced on every push.
type Memory struct {
	mu     sync.Mutex
	lists  map[string][]string
	notify map[string]chan struct{}
	closed bool
	done   chan struct{}
}

// Compile-time check that Memory implements Transport.
var _ Transport = (*Memory)(nil)

// NewMemory returns an empty in-memory transport.
func NewMemory() *Memory {
	return &Memory{
		lists:  make(map[string][]string),
		notify: make(map[string]chan struct{}),
		done:   make(chan struct{}),
	}
}

func (m *Memory) Enqueue(_ context.Context, queue, id string) error {
	return m.push(queue, id)
}

func (m *Memory) DeadLetter(_ context.Context, queue, id string) error {
	return m.push(DeadLetterName(queue), id)
}

func (m *Memory) push(name, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.lists[name] = append(m.lists[name], id)
	if ch, ok := m.notify[name]; ok {
		close(ch)
		delete(m.notify, name)
	}
	return nil
}

func (m *Memory) Dequeue(ctx context.Context, queue string, timeout time.Duration) (string, error) {
	var deadline <-chan time.Time
	if timeout != Forever {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return "", ErrClosed
		}
		if list := m.lists[queue]; len(list) > 0 {
			id := list[0]
			m.lists[queue] = list[1:]
			m.mu.Unlock()
			return id, nil
		}
		wait, ok := m.notify[queue]
		if !ok {
			wait = make(chan struct{})
			m.notify[queue] = wait
		}
		m.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline:
			return "", ErrTimeout
		case <-m.done:
			return "", ErrClosed
		}
	}
}

func (m *Memory) Len(_ context.Context, queue string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lists[queue]), nil
}

func (m *Memory) DeadLetters(_ context.Context, queue string, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.lists[DeadLetterName(queue)]
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	out := make([]string, len(list))
	copy(out, list)
	return out, nil
}

// Close wakes every blocked consumer with ErrClosed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}
