package client

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/alfredjeanlab/menujobs/internal/model"
	"github.com/alfredjeanlab/menujobs/internal/server"
)

func startHealthServer(t *testing.T, token string, serving func(model.JobClass) bool) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	hs := health.NewServer()
	reporter := server.NewHealthReporter(hs, serving, time.Hour)
	reporter.Start()
	srv := server.NewGRPCServer(token, hs, nil)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() {
		reporter.Stop()
		srv.Stop()
	})
	return lis.Addr().String()
}

func TestGRPCHealthClient_Check(t *testing.T) {
	addr := startHealthServer(t, "tok", func(c model.JobClass) bool { return c != model.ClassMenuImport })

	c, err := NewGRPCHealthClient(addr, "")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := c.Check(ctx, server.HealthServiceName(model.ClassPayments))
	if err != nil {
		t.Fatalf("health checks are exempt from auth: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("payments = %v", resp.GetStatus())
	}

	resp, err = c.Check(ctx, server.HealthServiceName(model.ClassMenuImport))
	if err != nil {
		t.Fatal(err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("menu_import = %v", resp.GetStatus())
	}

	resp, err = c.Check(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("overall = %v, want NOT_SERVING while a class is down", resp.GetStatus())
	}

	_, err = c.Check(ctx, "menujobs.bogus")
	if status.Code(err) != codes.NotFound {
		t.Errorf("unknown service: %v", err)
	}

	out, err := HealthJSON(resp)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "NOT_SERVING") {
		t.Errorf("json = %s", out)
	}
}
