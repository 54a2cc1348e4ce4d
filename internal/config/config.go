package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/alfredjeanlab/menujobs/internal/model"
)

// DefaultMaxRetries is the handler failure budget per event.
const DefaultMaxRetries = 3

type Config struct {
	DatabaseURL string // MENUJOBS_DATABASE_URL (empty = in-memory store, development only)
	GRPCAddr    string // MENUJOBS_GRPC_ADDR (default ":9090")
	HTTPAddr    string // MENUJOBS_HTTP_ADDR (default ":8080")
	NATSURL     string // MENUJOBS_NATS_URL (empty = in-memory queues, no notifications)
	NATSStream  string // MENUJOBS_NATS_STREAM (default "MENUJOBS")
	AuthToken   string // MENUJOBS_AUTH_TOKEN (optional, empty = auth disabled)
	ConfigFile  string // MENUJOBS_CONFIG (optional TOML file with per-class settings)

	WebhookSecrets []string      // MENUJOBS_WEBHOOK_SECRETS (comma separated; first is current)
	IngestTimeout  time.Duration // MENUJOBS_INGEST_TIMEOUT (default 5s)

	// Blob storage for uploads and rendered artifacts.
	BlobBucket   string // MENUJOBS_BLOB_S3_BUCKET (empty = in-memory)
	BlobEndpoint string // MENUJOBS_BLOB_S3_ENDPOINT (custom endpoint for MinIO)
	BlobRegion   string // MENUJOBS_BLOB_S3_REGION (default "us-east-1")
	BlobPrefix   string // MENUJOBS_BLOB_S3_PREFIX
	// Static credentials; empty falls back to the default AWS chain.
	BlobAccessKeyID     string // MENUJOBS_BLOB_S3_ACCESS_KEY_ID
	BlobSecretAccessKey string // MENUJOBS_BLOB_S3_SECRET_ACCESS_KEY

	// Recovery sweep for events whose enqueue was lost or whose worker died.
	RecoverInterval time.Duration // MENUJOBS_RECOVER_INTERVAL (default 1m; 0 = disabled)
	RecoverAfter    time.Duration // MENUJOBS_RECOVER_AFTER (default 5m)
	StaleAfter      time.Duration // MENUJOBS_STALE_AFTER (default 15m)

	// Archive of dead-lettered events.
	ArchiveInterval time.Duration // MENUJOBS_ARCHIVE_INTERVAL (default 0 = disabled)
	ArchivePrefix   string        // MENUJOBS_ARCHIVE_PREFIX (default "archive/failed")
	ArchiveSnappy   bool          // MENUJOBS_ARCHIVE_SNAPPY (default true)

	// Processor metrics are written to stdout as JSON at this interval.
	MetricsInterval time.Duration // MENUJOBS_METRICS_INTERVAL (default 0 = not exported)

	// Classes holds one entry per job class, defaults merged with the file.
	Classes map[model.JobClass]ClassConfig
}

// ClassConfig tunes one job class processor.
type ClassConfig struct {
	Queue          string        `toml:"queue"`
	MaxRetries     int           `toml:"max_retries"`
	Workers        int           `toml:"workers"`
	HandlerTimeout time.Duration `toml:"handler_timeout"`
	Retry          BackoffConfig `toml:"retry"`
}

// BackoffConfig mirrors processor.Backoff in the file format.
type BackoffConfig struct {
	Initial time.Duration `toml:"initial"`
	Max     time.Duration `toml:"max"`
	Factor  float64       `toml:"factor"`
	Jitter  float64       `toml:"jitter"`
}

// fileConfig is the layout of MENUJOBS_CONFIG.
type fileConfig struct {
	Classes map[string]ClassConfig `toml:"classes"`
}

// DefaultClass returns the built-in settings for class.
func DefaultClass(class model.JobClass) ClassConfig {
	return ClassConfig{
		Queue:          "menujobs:" + string(class),
		MaxRetries:     DefaultMaxRetries,
		Workers:        1,
		HandlerTimeout: 30 * time.Second,
		Retry: BackoffConfig{
			Initial: 2 * time.Second,
			Max:     2 * time.Minute,
			Factor:  4,
			Jitter:  0.2,
		},
	}
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:    os.Getenv("MENUJOBS_DATABASE_URL"),
		GRPCAddr:       envOrDefault("MENUJOBS_GRPC_ADDR", ":9090"),
		HTTPAddr:       envOrDefault("MENUJOBS_HTTP_ADDR", ":8080"),
		NATSURL:        os.Getenv("MENUJOBS_NATS_URL"),
		NATSStream:     envOrDefault("MENUJOBS_NATS_STREAM", "MENUJOBS"),
		AuthToken:      os.Getenv("MENUJOBS_AUTH_TOKEN"),
		ConfigFile:     os.Getenv("MENUJOBS_CONFIG"),
		WebhookSecrets: splitList(os.Getenv("MENUJOBS_WEBHOOK_SECRETS")),
		BlobBucket:     os.Getenv("MENUJOBS_BLOB_S3_BUCKET"),
		BlobEndpoint:   os.Getenv("MENUJOBS_BLOB_S3_ENDPOINT"),
		BlobRegion:     envOrDefault("MENUJOBS_BLOB_S3_REGION", "us-east-1"),
		BlobPrefix:     os.Getenv("MENUJOBS_BLOB_S3_PREFIX"),
		ArchivePrefix:  envOrDefault("MENUJOBS_ARCHIVE_PREFIX", "archive/failed"),

		BlobAccessKeyID:     os.Getenv("MENUJOBS_BLOB_S3_ACCESS_KEY_ID"),
		BlobSecretAccessKey: os.Getenv("MENUJOBS_BLOB_S3_SECRET_ACCESS_KEY"),
	}

	durations := []struct {
		key      string
		fallback string
		dst      *time.Duration
	}{
		{"MENUJOBS_INGEST_TIMEOUT", "5s", &c.IngestTimeout},
		{"MENUJOBS_RECOVER_INTERVAL", "1m", &c.RecoverInterval},
		{"MENUJOBS_RECOVER_AFTER", "5m", &c.RecoverAfter},
		{"MENUJOBS_STALE_AFTER", "15m", &c.StaleAfter},
		{"MENUJOBS_ARCHIVE_INTERVAL", "0", &c.ArchiveInterval},
		{"MENUJOBS_METRICS_INTERVAL", "0", &c.MetricsInterval},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(envOrDefault(d.key, d.fallback))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = v
	}

	snappy, err := strconv.ParseBool(envOrDefault("MENUJOBS_ARCHIVE_SNAPPY", "true"))
	if err != nil {
		return nil, fmt.Errorf("MENUJOBS_ARCHIVE_SNAPPY: %w", err)
	}
	c.ArchiveSnappy = snappy

	c.Classes = make(map[model.JobClass]ClassConfig, len(model.JobClasses))
	for _, class := range model.JobClasses {
		c.Classes[class] = DefaultClass(class)
	}
	if c.ConfigFile != "" {
		if err := c.loadFile(c.ConfigFile); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// loadFile overlays per-class settings from a TOML file. Zero values in the
// file keep the defaults.
func (c *Config) loadFile(path string) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("MENUJOBS_CONFIG %s: %w", path, err)
	}
	for name, over := range fc.Classes {
		class, ok := model.ParseJobClass(name)
		if !ok {
			return fmt.Errorf("MENUJOBS_CONFIG %s: unknown job class %q", path, name)
		}
		cc := c.Classes[class]
		if over.Queue != "" {
			cc.Queue = over.Queue
		}
		if over.MaxRetries > 0 {
			cc.MaxRetries = over.MaxRetries
		}
		if over.Workers > 0 {
			cc.Workers = over.Workers
		}
		if over.HandlerTimeout > 0 {
			cc.HandlerTimeout = over.HandlerTimeout
		}
		if over.Retry.Initial > 0 {
			cc.Retry.Initial = over.Retry.Initial
		}
		if over.Retry.Max > 0 {
			cc.Retry.Max = over.Retry.Max
		}
		if over.Retry.Factor > 0 {
			cc.Retry.Factor = over.Retry.Factor
		}
		if over.Retry.Jitter > 0 {
			cc.Retry.Jitter = over.Retry.Jitter
		}
		c.Classes[class] = cc
	}
	return nil
}

// Queues maps each class to its queue name.
func (c *Config) Queues() map[model.JobClass]string {
	out := make(map[model.JobClass]string, len(c.Classes))
	for class, cc := range c.Classes {
		out[class] = cc.Queue
	}
	return out
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
