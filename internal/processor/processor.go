// Package processor runs the per-class worker loop: pop an event id, load
// the event, dispatch it to its handler and record the outcome. Failures
// are retried with backoff up to a fixed budget and then dead-lettered.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alfredjeanlab/menujobs/internal/model"
	"github.com/alfredjeanlab/menujobs/internal/queue"
	"github.com/alfredjeanlab/menujobs/internal/registry"
	"github.com/alfredjeanlab/menujobs/internal/store"
)

// DefaultMaxRetries is the number of failed handler attempts after which an
// event is dead-lettered.
const DefaultMaxRetries = 3

// requeueTimeout bounds a single re-enqueue, including the flush of delayed
// retries during shutdown.
const requeueTimeout = 5 * time.Second

// deadLetterGrace is how long a failing dead-letter push keeps retrying
// after the processor has been stopped.
const deadLetterGrace = 10 * time.Second

// minDeadLetterDelay spaces dead-letter push attempts when TransportBackoff
// is the zero value.
const minDeadLetterDelay = 10 * time.Millisecond

// Outcome describes what ProcessOnce did with an event.
type Outcome int

const (
	// OutcomeError means a store or queue call failed before an outcome
	// could be recorded. The event is left for the recovery sweep.
	OutcomeError Outcome = iota
	OutcomeProcessed
	// OutcomeUnhandled means no handler was registered; the event is
	// marked processed.
	OutcomeUnhandled
	// OutcomeSkipped means the event was already terminal.
	OutcomeSkipped
	// OutcomeMissing means the id did not resolve to a stored event.
	OutcomeMissing
	OutcomeRetry
	OutcomeDeadLettered
)

func (o Outcome) String() string {
	switch o {
	case OutcomeProcessed:
		return "processed"
	case OutcomeUnhandled:
		return "unhandled"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeMissing:
		return "missing"
	case OutcomeRetry:
		return "retry"
	case OutcomeDeadLettered:
		return "dead_lettered"
	default:
		return "error"
	}
}

// Config holds the settings for one processor.
type Config struct {
	Class model.JobClass
	// Queue defaults to "menujobs:<class>".
	Queue string
	// MaxRetries defaults to DefaultMaxRetries.
	MaxRetries int
	// RetryBackoff spaces handler retries. The zero value re-enqueues
	// immediately.
	RetryBackoff Backoff
	// TransportBackoff spaces dequeue attempts after queue errors.
	TransportBackoff Backoff
	// HandlerTimeout bounds a single handler call. Zero means no limit.
	HandlerTimeout time.Duration
	// DequeueTimeout is passed to Transport.Dequeue. Zero blocks until an id
	// arrives or the processor is stopped.
	DequeueTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Queue == "" {
		c.Queue = "menujobs:" + string(c.Class)
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	return c
}

// Processor consumes one job class queue. Run it with Run, or with
// Start/Stop from a service that owns its lifecycle.
type Processor struct {
	cfg      Config
	store    store.Store
	queue    queue.Transport
	registry *registry.Registry
	logger   *slog.Logger
	metrics  Metrics

	retries sync.WaitGroup
	running atomic.Bool

	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Processor.
type Option func(*Processor)

// WithMetrics sets the metrics recorder. The default is NoopMetrics.
func WithMetrics(m Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// New creates a processor for cfg.Class.
func New(cfg Config, s store.Store, q queue.Transport, r *registry.Registry, logger *slog.Logger, opts ...Option) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	p := &Processor{
		cfg:      cfg,
		store:    s,
		queue:    q,
		registry: r,
		logger:   logger.With("class", string(cfg.Class), "queue", cfg.Queue),
		metrics:  NoopMetrics{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the effective configuration.
func (p *Processor) Config() Config { return p.cfg }

// Running reports whether Run is currently looping.
func (p *Processor) Running() bool { return p.running.Load() }

// Start runs the loop in a goroutine until Stop is called or ctx ends.
func (p *Processor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go func() {
		defer close(p.done)
		p.Run(ctx)
	}()
}

// Stop cancels the loop and waits for the in-flight event and any delayed
// retries to be flushed.
func (p *Processor) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
}

// Run loops until ctx is cancelled. It never returns on a handler, store or
// transport error. Cancelling ctx unblocks the pending dequeue; an event
// already popped is still processed to completion, and delayed retries are
// pushed back onto the queue before Run returns.
func (p *Processor) Run(ctx context.Context) {
	p.running.Store(true)
	defer p.running.Store(false)
	p.logger.Info("processor started", "max_retries", p.cfg.MaxRetries)

	failures := 0
	for ctx.Err() == nil {
		id, err := p.queue.Dequeue(ctx, p.cfg.Queue, p.cfg.DequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, queue.ErrTimeout) {
				continue
			}
			failures++
			p.metrics.RecordTransportError(ctx, string(p.cfg.Class))
			delay := p.cfg.TransportBackoff.Delay(failures)
			p.logger.Error("dequeue failed", "err", err, "attempt", failures, "backoff", delay)
			if !sleep(ctx, delay) {
				break
			}
			continue
		}

		if _, err := p.process(ctx, id); err != nil {
			failures++
			delay := p.cfg.TransportBackoff.Delay(failures)
			p.logger.Error("processing interrupted", "event_id", id, "err", err, "backoff", delay)
			if !sleep(ctx, delay) {
				break
			}
			continue
		}
		failures = 0
	}

	p.retries.Wait()
	p.logger.Info("processor stopped")
}

// ProcessOnce handles a single event id as the loop would after popping it.
// A returned error means a store or queue call failed; handler failures are
// reported through the Outcome instead.
func (p *Processor) ProcessOnce(ctx context.Context, id string) (Outcome, error) {
	return p.process(ctx, id)
}

func (p *Processor) process(ctx context.Context, id string) (Outcome, error) {
	outcome, err := p.handle(ctx, id)
	p.metrics.RecordOutcome(context.WithoutCancel(ctx), string(p.cfg.Class), outcome)
	return outcome, err
}

// handle carries the state machine for one popped id. Store writes run
// detached from ctx so shutdown never abandons an event half way.
func (p *Processor) handle(ctx context.Context, id string) (Outcome, error) {
	work := context.WithoutCancel(ctx)
	log := p.logger.With("event_id", id)

	event, err := p.store.GetEvent(work, id)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("event not found, dropping queue entry")
		return OutcomeMissing, nil
	}
	if err != nil {
		p.requeue(ctx, id)
		return OutcomeError, fmt.Errorf("load event %s: %w", id, err)
	}
	if event.Status.IsTerminal() {
		log.Debug("event already finished, skipping", "status", event.Status)
		return OutcomeSkipped, nil
	}
	if event.RetryCount >= p.cfg.MaxRetries {
		return p.deadLetter(ctx, log, id, event.LastError)
	}

	if err := p.store.MarkProcessing(work, id); err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			log.Debug("event finished concurrently, skipping")
			return OutcomeSkipped, nil
		case errors.Is(err, store.ErrNotFound):
			return OutcomeMissing, nil
		}
		p.requeue(ctx, id)
		return OutcomeError, fmt.Errorf("mark processing %s: %w", id, err)
	}

	handled, herr := p.dispatch(ctx, event)
	if herr == nil {
		if err := p.store.MarkProcessed(work, id); err != nil {
			return OutcomeError, fmt.Errorf("mark processed %s: %w", id, err)
		}
		if !handled {
			log.Info("no handler registered, marking processed", "type", event.Type)
			return OutcomeUnhandled, nil
		}
		log.Debug("event processed", "type", event.Type)
		return OutcomeProcessed, nil
	}

	count, err := p.store.IncrementRetry(work, id, herr.Error())
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return OutcomeSkipped, nil
		}
		return OutcomeError, fmt.Errorf("increment retry %s: %w", id, err)
	}

	if registry.IsPermanent(herr) {
		log.Warn("handler failed permanently", "type", event.Type, "err", herr)
		return p.deadLetter(ctx, log, id, herr.Error())
	}
	if count >= p.cfg.MaxRetries {
		log.Warn("retries exhausted", "type", event.Type, "attempts", count, "err", herr)
		return p.deadLetter(ctx, log, id, herr.Error())
	}

	delay := p.cfg.RetryBackoff.Delay(count)
	log.Warn("handler failed, retrying", "type", event.Type, "attempt", count, "backoff", delay, "err", herr)
	p.scheduleRetry(ctx, id, delay)
	return OutcomeRetry, nil
}

// dispatch runs the handler under HandlerTimeout, turning a panic into an
// ordinary failure.
func (p *Processor) dispatch(ctx context.Context, event *model.Event) (handled bool, err error) {
	hctx := context.WithoutCancel(ctx)
	if p.cfg.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(hctx, p.cfg.HandlerTimeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("handler panicked", "event_id", event.ID, "type", event.Type,
				"panic", r, "stack", string(debug.Stack()))
			handled = true
			err = fmt.Errorf("handler panic: %v", r)
		}
		if handled {
			p.metrics.RecordHandler(hctx, string(p.cfg.Class), event.Type, time.Since(start), err)
		}
	}()

	return p.registry.Dispatch(hctx, event.Type, event.Resource(), event.Payload)
}

// deadLetter finalizes an event. The status is written before the push so a
// crash in between leaves a FAILED event rather than a duplicate DLQ entry.
// A FAILED event is never redelivered, so the push is retried until it lands.
func (p *Processor) deadLetter(ctx context.Context, log *slog.Logger, id, lastErr string) (Outcome, error) {
	if err := p.store.MarkFailed(context.WithoutCancel(ctx), id, lastErr); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return OutcomeSkipped, nil
		}
		return OutcomeError, fmt.Errorf("mark failed %s: %w", id, err)
	}
	if err := p.pushDeadLetter(ctx, log, id); err != nil {
		log.Error("event FAILED but not dead-lettered", "dead_letter_queue", queue.DeadLetterName(p.cfg.Queue), "err", err)
		return OutcomeError, fmt.Errorf("dead-letter %s: %w", id, err)
	}
	log.Error("event dead-lettered", "dead_letter_queue", queue.DeadLetterName(p.cfg.Queue), "last_error", lastErr)
	return OutcomeDeadLettered, nil
}

// pushDeadLetter retries the DLQ push with TransportBackoff while ctx is
// live, then for at most deadLetterGrace once it has ended.
func (p *Processor) pushDeadLetter(ctx context.Context, log *slog.Logger, id string) error {
	var deadline time.Time
	for attempt := 1; ; attempt++ {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), requeueTimeout)
		err := p.queue.DeadLetter(pctx, p.cfg.Queue, id)
		cancel()
		if err == nil {
			return nil
		}
		p.metrics.RecordTransportError(context.WithoutCancel(ctx), string(p.cfg.Class))

		delay := max(p.cfg.TransportBackoff.Delay(attempt), minDeadLetterDelay)
		if ctx.Err() == nil {
			log.Warn("dead-letter push failed, retrying", "attempt", attempt, "backoff", delay, "err", err)
			sleep(ctx, delay)
			continue
		}
		if deadline.IsZero() {
			deadline = time.Now().Add(deadLetterGrace)
		}
		if time.Now().Add(delay).After(deadline) {
			return err
		}
		time.Sleep(delay)
	}
}

// scheduleRetry re-enqueues id after delay, or at once when ctx ends.
func (p *Processor) scheduleRetry(ctx context.Context, id string, delay time.Duration) {
	if delay <= 0 {
		p.requeue(ctx, id)
		return
	}
	p.retries.Add(1)
	go func() {
		defer p.retries.Done()
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
		}
		p.requeue(ctx, id)
	}()
}

func (p *Processor) requeue(ctx context.Context, id string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), requeueTimeout)
	defer cancel()
	if err := p.queue.Enqueue(ctx, p.cfg.Queue, id); err != nil {
		p.logger.Error("re-enqueue failed, leaving event to recovery", "event_id", id, "err", err)
	}
}

// sleep waits for d or until ctx is done, reporting whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
