// Package pipeline assembles the background side of menujobs: one or more
// processors per job class and the recovery sweep, started and stopped as a
// unit.
package pipeline

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/alfredjeanlab/menujobs/internal/config"
	"github.com/alfredjeanlab/menujobs/internal/ingest"
	"github.com/alfredjeanlab/menujobs/internal/model"
	"github.com/alfredjeanlab/menujobs/internal/processor"
	"github.com/alfredjeanlab/menujobs/internal/queue"
	"github.com/alfredjeanlab/menujobs/internal/registry"
	"github.com/alfredjeanlab/menujobs/internal/store"
)

// Service owns the processors and the recoverer.
type Service struct {
	processors map[model.JobClass][]*processor.Processor
	recoverer  *Recoverer
	logger     *slog.Logger
}

// Deps are the shared collaborators of every processor.
type Deps struct {
	Store    store.Store
	Queue    queue.Transport
	Registry *registry.Registry
	Ingestor *ingest.Ingestor
	Metrics  processor.Metrics
	Logger   *slog.Logger
}

// New builds processors for every configured class. A nil recover config
// disables the recovery sweep.
func New(classes map[model.JobClass]config.ClassConfig, rc *RecovererConfig, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = processor.NoopMetrics{}
	}

	s := &Service{processors: make(map[model.JobClass][]*processor.Processor), logger: logger}
	for class, cc := range classes {
		workers := max(cc.Workers, 1)
		for range workers {
			p := processor.New(ProcessorConfig(class, cc), deps.Store, deps.Queue, deps.Registry, logger,
				processor.WithMetrics(metrics))
			s.processors[class] = append(s.processors[class], p)
		}
	}
	if rc != nil && deps.Ingestor != nil {
		s.recoverer = NewRecoverer(deps.Store, deps.Ingestor, *rc, logger)
	}
	return s
}

// ProcessorConfig translates a class's file/env settings into a processor
// config.
func ProcessorConfig(class model.JobClass, cc config.ClassConfig) processor.Config {
	return processor.Config{
		Class:      class,
		Queue:      cc.Queue,
		MaxRetries: cc.MaxRetries,
		RetryBackoff: processor.Backoff{
			Initial: cc.Retry.Initial,
			Max:     cc.Retry.Max,
			Factor:  cc.Retry.Factor,
			Jitter:  cc.Retry.Jitter,
		},
		TransportBackoff: processor.DefaultTransportBackoff,
		HandlerTimeout:   cc.HandlerTimeout,
		DequeueTimeout:   queue.Forever,
	}
}

// Classes returns the served job classes, sorted.
func (s *Service) Classes() []model.JobClass {
	out := make([]model.JobClass, 0, len(s.processors))
	for class := range s.processors {
		out = append(out, class)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Start launches every processor and the recoverer.
func (s *Service) Start(ctx context.Context) {
	for class, ps := range s.processors {
		for _, p := range ps {
			p.Start(ctx)
		}
		s.logger.Info("processors started", "class", string(class), "workers", len(ps))
	}
	if s.recoverer != nil {
		s.recoverer.Start()
	}
}

// Stop stops the recoverer, then drains every processor. It returns once
// in-flight events have finished and delayed retries are back on their
// queues.
func (s *Service) Stop() {
	if s.recoverer != nil {
		s.recoverer.Stop()
	}
	var wg sync.WaitGroup
	for _, ps := range s.processors {
		for _, p := range ps {
			wg.Add(1)
			go func() {
				defer wg.Done()
				p.Stop()
			}()
		}
	}
	wg.Wait()
}

// Serving reports whether at least one processor for class is running.
func (s *Service) Serving(class model.JobClass) bool {
	for _, p := range s.processors[class] {
		if p.Running() {
			return true
		}
	}
	return false
}
