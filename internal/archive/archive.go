// Package archive periodically exports dead-lettered (FAILED) events as JSONL
// to the blob store, one timestamped object per run.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang/snappy"

	"github.com/alfredjeanlab/menujobs/internal/blob"
	"github.com/alfredjeanlab/menujobs/internal/model"
	"github.com/alfredjeanlab/menujobs/internal/store"
)

const (
	contentTypeJSONL  = "application/x-ndjson"
	contentTypeSnappy = "application/x-snappy-framed"
)

// Config controls the archive scheduler.
type Config struct {
	Prefix   string        // object key prefix, e.g. "archive/failed"
	Interval time.Duration // time between runs
	Snappy   bool          // compress with the snappy framing format
}

// Scheduler runs periodic archives of FAILED events to a blob store.
type Scheduler struct {
	store  store.Store
	dest   blob.Store
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that exports from the store to dest at
// the configured interval.
func NewScheduler(s store.Store, dest blob.Store, cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:  s,
		dest:   dest,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Start begins periodic archiving. It runs once immediately, then on each
// tick.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for the current run (if any) to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	s.archiveAndLog(ctx)
	if s.cfg.Interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.archiveAndLog(ctx)
		}
	}
}

func (s *Scheduler) archiveAndLog(ctx context.Context) {
	key, n, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Error("archive failed", "err", err)
		return
	}
	if n == 0 {
		s.logger.Debug("archive skipped, no failed events")
		return
	}
	s.logger.Info("archive completed", "key", key, "events", n)
}

// RunOnce exports every FAILED event to a new object and returns its key
// and the event count. Nothing is written when there are no FAILED events.
func (s *Scheduler) RunOnce(ctx context.Context) (string, int, error) {
	var buf bytes.Buffer
	n, err := ExportJSONL(ctx, s.store, model.EventFilter{Status: []model.Status{model.StatusFailed}}, &buf)
	if err != nil {
		return "", 0, err
	}
	if n == 0 {
		return "", 0, nil
	}

	data, contentType := buf.Bytes(), contentTypeJSONL
	key := s.Key(s.now())
	if s.cfg.Snappy {
		if data, err = compress(data); err != nil {
			return "", 0, err
		}
		contentType = contentTypeSnappy
	}

	if err := s.dest.Put(ctx, key, data, contentType); err != nil {
		return "", 0, fmt.Errorf("write archive %s: %w", key, err)
	}
	return key, n, nil
}

// Key returns the object key for a run at t:
// <prefix>/YYYY/MM/DD/failed-YYYYMMDDTHHMMSSZ.jsonl[.sz].
func (s *Scheduler) Key(t time.Time) string {
	t = t.UTC()
	name := "failed-" + t.Format("20060102T150405Z") + ".jsonl"
	if s.cfg.Snappy {
		name += ".sz"
	}
	return blob.Join(s.cfg.Prefix, t.Format("2006/01/02"), name)
}

func compress(data []byte) ([]byte, error) {
	var out bytes.Buffer
	w := snappy.NewBufferedWriter(&out)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("snappy write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("snappy close: %w", err)
	}
	return out.Bytes(), nil
}
