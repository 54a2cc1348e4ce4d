// Package queue carries event ids between the ingestion path and the
// processors. Queues hold references only; the event store stays the source
// of truth, so a lost or duplicated entry is recoverable.
package queue

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Forever makes Dequeue block until an id arrives or ctx is cancelled.
const Forever time.Duration = 0

// deadSuffix is appended to a queue name to form its dead-letter list.
const deadSuffix = ":dead"

var (
	// ErrTimeout is returned by Dequeue when the timeout elapses first.
	ErrTimeout = errors.New("queue: dequeue timed out")
	// ErrClosed is returned after the transport has been closed.
	ErrClosed = errors.New("queue: transport closed")
)

// Transport is a blocking list-based queue per job class, with a companion
// dead-letter list per queue. Implementations must be safe for concurrent use.
type Transport interface {
	// Enqueue appends id to the named queue.
	Enqueue(ctx context.Context, queue, id string) error
	// Dequeue pops the next id, blocking until one is available, the timeout
	// elapses (ErrTimeout) or ctx is done (ctx.Err()). A timeout of Forever
	// waits indefinitely.
	Dequeue(ctx context.Context, queue string, timeout time.Duration) (string, error)
	// DeadLetter appends id to DeadLetterName(queue). Dead-letter lists are
	// never consumed by Dequeue callers in this service.
	DeadLetter(ctx context.Context, queue, id string) error
	// Len reports the number of ids waiting on a queue or dead-letter list.
	Len(ctx context.Context, queue string) (int, error)
	// DeadLetters returns up to limit ids from the queue's dead-letter list,
	// oldest first, without removing them.
	DeadLetters(ctx context.Context, queue string, limit int) ([]string, error)
	Close() error
}

// DeadLetterName derives the dead-letter list name for a queue.
func DeadLetterName(queue string) string {
	return queue + deadSuffix
}

// IsDeadLetterName reports whether name is a dead-letter list name.
func IsDeadLetterName(name string) bool {
	return strings.HasSuffix(name, deadSuffix)
}
