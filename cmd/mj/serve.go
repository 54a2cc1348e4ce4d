package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc/health"

	"github.com/alfredjeanlab/menujobs/internal/archive"
	"github.com/alfredjeanlab/menujobs/internal/blob"
	"github.com/alfredjeanlab/menujobs/internal/config"
	"github.com/alfredjeanlab/menujobs/internal/events"
	"github.com/alfredjeanlab/menujobs/internal/handlers/images"
	"github.com/alfredjeanlab/menujobs/internal/handlers/menuimport"
	"github.com/alfredjeanlab/menujobs/internal/handlers/payments"
	"github.com/alfredjeanlab/menujobs/internal/ingest"
	"github.com/alfredjeanlab/menujobs/internal/ingest/webhookauth"
	"github.com/alfredjeanlab/menujobs/internal/pipeline"
	"github.com/alfredjeanlab/menujobs/internal/processor"
	"github.com/alfredjeanlab/menujobs/internal/queue"
	"github.com/alfredjeanlab/menujobs/internal/registry"
	"github.com/alfredjeanlab/menujobs/internal/server"
	"github.com/alfredjeanlab/menujobs/internal/store"
	"github.com/alfredjeanlab/menujobs/internal/store/memory"
	"github.com/alfredjeanlab/menujobs/internal/store/postgres"
	"github.com/alfredjeanlab/menujobs/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the menujobs server and processors",
	GroupID: "system",
	// Override PersistentPreRunE so we don't create an API client.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		levelName, _ := cmd.Flags().GetString("log-level")
		var level slog.Level
		if err := level.UnmarshalText([]byte(levelName)); err != nil {
			return fmt.Errorf("invalid --log-level %q: %w", levelName, err)
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		ctx := context.Background()

		// Metrics.
		tp, err := telemetry.New(telemetry.Config{Interval: cfg.MetricsInterval})
		if err != nil {
			return err
		}
		tp.Install()
		if tp.Exported() {
			logger.Info("metrics: stdout", "interval", cfg.MetricsInterval)
		} else {
			logger.Info("metrics: not exported (MENUJOBS_METRICS_INTERVAL not set)")
		}

		// Event store.
		var st store.Store
		if cfg.DatabaseURL != "" {
			pg, err := postgres.New(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			st = pg
			logger.Info("event store: postgres")
		} else {
			st = memory.New()
			logger.Warn("event store: in-memory (MENUJOBS_DATABASE_URL not set)")
		}

		// Queue transport and notification publisher.
		var (
			q   queue.Transport
			pub events.Publisher
		)
		if cfg.NATSURL != "" {
			nq, err := queue.NewNATS(ctx, queue.NATSConfig{URL: cfg.NATSURL, Stream: cfg.NATSStream})
			if err != nil {
				st.Close()
				return err
			}
			np, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				nq.Close()
				st.Close()
				return err
			}
			q, pub = nq, np
			logger.Info("queues and notifications: nats", "nats_url", cfg.NATSURL, "stream", cfg.NATSStream)
		} else {
			q, pub = queue.NewMemory(), &events.NoopPublisher{}
			logger.Warn("queues: in-memory, notifications disabled (MENUJOBS_NATS_URL not set)")
		}

		// Blob storage.
		var blobs blob.Store
		if cfg.BlobBucket != "" {
			s3, err := blob.NewS3(ctx, blob.S3Config{
				Bucket:          cfg.BlobBucket,
				Prefix:          cfg.BlobPrefix,
				Region:          cfg.BlobRegion,
				Endpoint:        cfg.BlobEndpoint,
				AccessKeyID:     cfg.BlobAccessKeyID,
				SecretAccessKey: cfg.BlobSecretAccessKey,
			})
			if err != nil {
				pub.Close()
				q.Close()
				st.Close()
				return err
			}
			blobs = s3
			logger.Info("blob store: s3", "bucket", cfg.BlobBucket)
		} else {
			blobs = blob.NewMemory()
			logger.Warn("blob store: in-memory (MENUJOBS_BLOB_S3_BUCKET not set)")
		}

		if len(cfg.WebhookSecrets) == 0 {
			logger.Warn("webhooks disabled (MENUJOBS_WEBHOOK_SECRETS not set)")
		}

		ing := ingest.New(st, q, cfg.Queues(), logger)

		var rc *pipeline.RecovererConfig
		if cfg.RecoverInterval > 0 {
			rc = &pipeline.RecovererConfig{
				Interval:     cfg.RecoverInterval,
				PendingAfter: cfg.RecoverAfter,
				StaleAfter:   cfg.StaleAfter,
			}
		}

		reg := registry.New()
		svc := pipeline.New(cfg.Classes, rc, pipeline.Deps{
			Store:    st,
			Queue:    q,
			Registry: reg,
			Ingestor: ing,
			Metrics:  processor.NewMetrics(tp.Meter("menujobs/processor")),
			Logger:   logger,
		})

		srv := server.New(server.Deps{
			Ingestor:      ing,
			Store:         st,
			Queue:         q,
			Blobs:         blobs,
			Verifier:      webhookauth.NewVerifier(cfg.WebhookSecrets),
			IngestTimeout: cfg.IngestTimeout,
			Logger:        logger,
			Serving:       svc.Serving,
		})

		// Handlers publish through the server so SSE clients see every
		// notification too.
		notify := srv.Publisher(pub)
		payments.Register(reg, notify)
		images.Register(reg, blobs, notify, images.Config{})
		menuimport.Register(reg, blobs, notify, menuimport.Config{})

		// gRPC health surface.
		hs := health.NewServer()
		grpcServer := server.NewGRPCServer(cfg.AuthToken, hs, logger)
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			notify.Close()
			q.Close()
			st.Close()
			return err
		}
		go func() {
			logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "err", err)
			}
		}()

		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           srv.NewHTTPHandler(cfg.AuthToken),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		svc.Start(ctx)
		logger.Info("processors started", "classes", svc.Classes())

		reporter := server.NewHealthReporter(hs, svc.Serving, 0)
		reporter.Start()

		var scheduler *archive.Scheduler
		if cfg.ArchiveInterval > 0 {
			scheduler = archive.NewScheduler(st, blobs, archive.Config{
				Prefix:   cfg.ArchivePrefix,
				Interval: cfg.ArchiveInterval,
				Snappy:   cfg.ArchiveSnappy,
			}, logger)
			scheduler.Start()
			logger.Info("archive scheduler started", "interval", cfg.ArchiveInterval, "prefix", cfg.ArchivePrefix)
		}

		logger.Info("menujobs server started",
			"grpc_addr", cfg.GRPCAddr,
			"http_addr", cfg.HTTPAddr,
		)

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		// Stop accepting work first, then drain.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if scheduler != nil {
			scheduler.Stop()
			logger.Info("archive scheduler stopped")
		}

		svc.Stop()
		logger.Info("processors drained")

		reporter.Stop()
		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")

		if err := q.Close(); err != nil {
			logger.Error("error closing queue", "err", err)
		}
		if err := notify.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := tp.Shutdown(flushCtx); err != nil {
			logger.Error("error flushing metrics", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("log-level", envOr("MENUJOBS_LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
}
