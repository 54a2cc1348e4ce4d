// Package client provides a transport-agnostic interface for the menujobs
// service and an HTTP/JSON implementation that talks to its REST API.
package client

import (
	"context"

	"github.com/alfredjeanlab/menujobs/internal/model"
)

// Client is the interface the mj CLI commands use to talk to a running
// server. It is implemented by HTTPClient.
type Client interface {
	// Events
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	ListEvents(ctx context.Context, req *ListEventsRequest) ([]*model.Event, error)
	ReplayEvent(ctx context.Context, id string) (*model.Event, error)

	// Queues
	ListQueues(ctx context.Context) ([]model.QueueStats, error)
	DeadLetters(ctx context.Context, class model.JobClass, limit int) ([]*model.Event, error)

	// Ingestion
	SendWebhook(ctx context.Context, body []byte, secret string) (*IngestResult, error)
	SubmitImageJob(ctx context.Context, req *ImageJobRequest) (*IngestResult, error)
	UploadMenu(ctx context.Context, req *UploadMenuRequest) (*IngestResult, error)

	// Health
	Health(ctx context.Context) (*HealthStatus, error)

	// Lifecycle
	Close() error
}

// ListEventsRequest holds filters for listing events.
type ListEventsRequest struct {
	Status []string
	Type   []string
	Class  []string
	Limit  int
}

// ImageJobRequest requests resized variants of an uploaded image. ID is
// optional and makes the request idempotent.
type ImageJobRequest struct {
	ID        string `json:"id,omitempty"`
	ImageID   string `json:"image_id"`
	SourceKey string `json:"source_key"`
	Widths    []int  `json:"widths"`
}

// UploadMenuRequest holds a menu file for import.
type UploadMenuRequest struct {
	RestaurantID string
	Filename     string
	ContentType  string
	Data         []byte
}

// IngestResult is the server's answer to an ingestion request.
type IngestResult struct {
	ID     string         `json:"id"`
	IsNew  bool           `json:"is_new"`
	Class  model.JobClass `json:"class,omitempty"`
	Status model.Status   `json:"status,omitempty"`
}

// HealthStatus is the body of GET /v1/health.
type HealthStatus struct {
	Status  string                    `json:"status"`
	Classes map[model.JobClass]string `json:"classes,omitempty"`
}
