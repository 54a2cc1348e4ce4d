package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/menujobs/internal/blob"
	"github.com/alfredjeanlab/menujobs/internal/events"
	"github.com/alfredjeanlab/menujobs/internal/ingest"
	"github.com/alfredjeanlab/menujobs/internal/ingest/webhookauth"
	"github.com/alfredjeanlab/menujobs/internal/model"
	"github.com/alfredjeanlab/menujobs/internal/queue"
	"github.com/alfredjeanlab/menujobs/internal/store"
)

// DefaultIngestTimeout bounds the store write and enqueue of one request.
const DefaultIngestTimeout = 5 * time.Second

// Deps are the collaborators of the HTTP surface.
type Deps struct {
	Ingestor      *ingest.Ingestor
	Store         store.Store
	Queue         queue.Transport
	Blobs         blob.Store
	Verifier      *webhookauth.Verifier
	IngestTimeout time.Duration
	Logger        *slog.Logger
	// Serving reports whether a class's processors run; nil leaves class
	// status out of the health response.
	Serving func(model.JobClass) bool
}

// Server serves the ingestion endpoints, event inspection and the
// notification stream.
type Server struct {
	ingest        *ingest.Ingestor
	store         store.Store
	queue         queue.Transport
	blobs         blob.Store
	verifier      *webhookauth.Verifier
	ingestTimeout time.Duration
	logger        *slog.Logger
	serving       func(model.JobClass) bool
	sseHub        *sseHub
}

// New returns a Server. A nil Verifier rejects every webhook.
func New(deps Deps) *Server {
	s := &Server{
		ingest:        deps.Ingestor,
		store:         deps.Store,
		queue:         deps.Queue,
		blobs:         deps.Blobs,
		verifier:      deps.Verifier,
		ingestTimeout: deps.IngestTimeout,
		logger:        deps.Logger,
		serving:       deps.Serving,
		sseHub:        newSSEHub(),
	}
	if s.verifier == nil {
		s.verifier = webhookauth.NewVerifier(nil)
	}
	if s.ingestTimeout <= 0 {
		s.ingestTimeout = DefaultIngestTimeout
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Publisher wraps next so every notification a handler publishes is also
// fanned out to connected SSE clients.
func (s *Server) Publisher(next events.Publisher) events.Publisher {
	return &broadcastPublisher{next: next, server: s}
}

type broadcastPublisher struct {
	next   events.Publisher
	server *Server
}

func (p *broadcastPublisher) Publish(ctx context.Context, topic string, event any) error {
	if p.next != nil {
		if err := p.next.Publish(ctx, topic, event); err != nil {
			return err
		}
	}
	p.server.broadcastEvent(topic, event)
	return nil
}

func (p *broadcastPublisher) Close() error {
	if p.next != nil {
		return p.next.Close()
	}
	return nil
}

// queueStats collects depth and status counts for every job class.
func (s *Server) queueStats(ctx context.Context) ([]model.QueueStats, error) {
	out := make([]model.QueueStats, 0, len(model.JobClasses))
	for _, class := range model.JobClasses {
		st, err := s.classStats(ctx, class)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *Server) classStats(ctx context.Context, class model.JobClass) (model.QueueStats, error) {
	name := s.ingest.QueueFor(class)
	st := model.QueueStats{Class: class, Queue: name}

	var err error
	if st.Depth, err = s.queue.Len(ctx, name); err != nil {
		return st, err
	}
	if st.Dead, err = s.queue.Len(ctx, queue.DeadLetterName(name)); err != nil {
		return st, err
	}
	if st.Counts, err = s.store.CountByStatus(ctx, class); err != nil {
		return st, err
	}
	return st, nil
}

// broadcastEvent fans a notification out to SSE clients.
func (s *Server) broadcastEvent(topic string, event any) {
	if s.sseHub == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("failed to marshal event for SSE broadcast", "topic", topic, "err", err)
		return
	}
	s.sseHub.broadcast(topic, payload)
}
