package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/menujobs/internal/ingest"
	"github.com/alfredjeanlab/menujobs/internal/model"
	"github.com/alfredjeanlab/menujobs/internal/store"
)

// RecovererConfig controls the recovery sweep.
type RecovererConfig struct {
	// Interval between sweeps. The first sweep runs at Start.
	Interval time.Duration
	// PendingAfter is how long a PENDING event may sit untouched before it
	// is assumed lost from the queue. Keep it above the longest retry delay.
	PendingAfter time.Duration
	// StaleAfter is how long a PROCESSING event may sit before its worker is
	// assumed dead.
	StaleAfter time.Duration
	// Batch caps how many events of each status one sweep re-enqueues.
	Batch int
}

// Recoverer re-enqueues events the store says are unfinished but no queue
// is likely to hold: an enqueue that failed after the insert, or a worker
// that died mid-handler. Delivery stays at-least-once; handlers are
// idempotent.
type Recoverer struct {
	store  store.Store
	ingest *ingest.Ingestor
	cfg    RecovererConfig
	logger *slog.Logger
	now    func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRecoverer(s store.Store, ing *ingest.Ingestor, cfg RecovererConfig, logger *slog.Logger) *Recoverer {
	if cfg.Batch <= 0 {
		cfg.Batch = 500
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recoverer{store: s, ingest: ing, cfg: cfg, logger: logger, now: time.Now}
}

// Start sweeps once immediately, then on every Interval.
func (r *Recoverer) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(ctx)
	}()
}

// Stop cancels the loop and waits for a running sweep to finish.
func (r *Recoverer) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *Recoverer) run(ctx context.Context) {
	r.sweepAndLog(ctx)
	if r.cfg.Interval <= 0 {
		return
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepAndLog(ctx)
		}
	}
}

func (r *Recoverer) sweepAndLog(ctx context.Context) {
	n, err := r.Sweep(ctx)
	if err != nil {
		r.logger.Error("recovery sweep failed", "err", err)
		return
	}
	if n > 0 {
		r.logger.Warn("recovered unfinished events", "count", n)
	}
}

// Sweep re-enqueues overdue PENDING and PROCESSING events and returns how
// many it pushed.
func (r *Recoverer) Sweep(ctx context.Context) (int, error) {
	now := r.now()
	total := 0
	for _, pass := range []struct {
		status model.Status
		age    time.Duration
	}{
		{model.StatusPending, r.cfg.PendingAfter},
		{model.StatusProcessing, r.cfg.StaleAfter},
	} {
		overdue, err := r.store.ListEvents(ctx, model.EventFilter{
			Status:        []model.Status{pass.status},
			UpdatedBefore: now.Add(-pass.age),
			Limit:         r.cfg.Batch,
		})
		if err != nil {
			return total, fmt.Errorf("list %s events: %w", pass.status, err)
		}
		for _, e := range overdue {
			if err := r.ingest.Requeue(ctx, e); err != nil {
				return total, err
			}
			r.logger.Info("re-enqueued event", "event_id", e.ID, "status", e.Status, "updated_at", e.UpdatedAt)
			total++
		}
	}
	return total, nil
}
