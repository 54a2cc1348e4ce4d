package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/alfredjeanlab/menujobs/internal/client"
	"github.com/alfredjeanlab/menujobs/internal/model"
	"github.com/alfredjeanlab/menujobs/internal/server"
	"github.com/alfredjeanlab/menujobs/internal/ui"
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the health of the menujobs service",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if addr, _ := cmd.Flags().GetString("grpc"); addr != "" {
			return grpcHealth(ctx, addr)
		}

		hs, err := apiClient.Health(ctx)
		if err != nil {
			return fmt.Errorf("checking health: %w", err)
		}

		if jsonOutput {
			if err := printJSON(hs); err != nil {
				return err
			}
		} else {
			fmt.Printf("Health: %s\n", ui.RenderStatus(hs.Status))
			for _, class := range model.JobClasses {
				if st, ok := hs.Classes[class]; ok {
					fmt.Printf("  %-12s %s\n", class, ui.RenderStatus(st))
				}
			}
		}

		if hs.Status != "ok" {
			return fmt.Errorf("unhealthy: %s", hs.Status)
		}
		return nil
	},
}

// grpcHealth checks the overall and per-class gRPC health services.
func grpcHealth(ctx context.Context, addr string) error {
	c, err := client.NewGRPCHealthClient(addr, authToken)
	if err != nil {
		return err
	}
	defer c.Close()

	services := []string{""}
	for _, class := range model.JobClasses {
		services = append(services, server.HealthServiceName(class))
	}

	healthy := true
	for _, svc := range services {
		resp, err := c.Check(ctx, svc)
		if err != nil {
			return fmt.Errorf("checking %q: %w", svc, err)
		}
		if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			healthy = false
		}
		name := svc
		if name == "" {
			name = "(server)"
		}
		if jsonOutput {
			data, err := client.HealthJSON(resp)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "{\"service\":%q,\"response\":%s}\n", name, data)
			continue
		}
		fmt.Printf("%-22s %s\n", name, ui.RenderStatus(resp.GetStatus().String()))
	}
	if !healthy {
		return fmt.Errorf("unhealthy")
	}
	return nil
}

func init() {
	healthCmd.Flags().String("grpc", "", "check the gRPC health service at this address instead of HTTP")
}
