package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/alfredjeanlab/menujobs/internal/model"
)

// HealthServiceName is the gRPC health service name for a job class.
func HealthServiceName(class model.JobClass) string {
	return "menujobs." + string(class)
}

// NewGRPCServer creates a gRPC server with standard interceptors, registers
// the health service and reflection, and returns the server ready to serve.
// A nil logger uses slog.Default().
func NewGRPCServer(authToken string, hs *health.Server, logger *slog.Logger) *grpc.Server {
	if logger == nil {
		logger = slog.Default()
	}
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor,
			LoggingInterceptor(logger),
			AuthInterceptor(authToken),
		),
		grpc.ChainStreamInterceptor(
			StreamRecoveryInterceptor,
			StreamAuthInterceptor(authToken),
		),
	)

	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	return srv
}

// HealthReporter mirrors processor liveness into a gRPC health server: one
// service per job class, plus the overall "" service which is SERVING only
// while every class is.
type HealthReporter struct {
	health   *health.Server
	serving  func(model.JobClass) bool
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHealthReporter returns a reporter polling serving every interval.
func NewHealthReporter(hs *health.Server, serving func(model.JobClass) bool, interval time.Duration) *HealthReporter {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &HealthReporter{health: hs, serving: serving, interval: interval}
}

// Start reports once immediately, then on every interval.
func (h *HealthReporter) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel

	h.Report()
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.Report()
			}
		}
	}()
}

// Stop ends polling and marks every service NOT_SERVING.
func (h *HealthReporter) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
	h.wg.Wait()
	h.health.Shutdown()
}

// Report sets the status of every class service from serving.
func (h *HealthReporter) Report() {
	all := healthpb.HealthCheckResponse_SERVING
	for _, class := range model.JobClasses {
		st := healthpb.HealthCheckResponse_NOT_SERVING
		if h.serving(class) {
			st = healthpb.HealthCheckResponse_SERVING
		} else {
			all = healthpb.HealthCheckResponse_NOT_SERVING
		}
		h.health.SetServingStatus(HealthServiceName(class), st)
	}
	h.health.SetServingStatus("", all)
}
