// Package telemetry builds the OpenTelemetry meter provider the processors
// record into.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

const serviceName = "menujobs"

// Config selects how metrics leave the process.
type Config struct {
	// Interval between exports. Zero builds a provider without a reader, so
	// instruments are created but nothing is exported.
	Interval time.Duration
	// Writer receives one JSON document per export (default os.Stdout).
	Writer io.Writer
}

// Provider owns the SDK meter provider and its exporter.
type Provider struct {
	mp       *sdkmetric.MeterProvider
	exported bool
}

// New builds a Provider for cfg.
func New(cfg Config) (*Provider, error) {
	opts := []sdkmetric.Option{
		sdkmetric.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
	}
	if cfg.Interval > 0 {
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("metrics exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(cfg.Interval)),
		))
	}
	return &Provider{mp: sdkmetric.NewMeterProvider(opts...), exported: cfg.Interval > 0}, nil
}

// Meter returns a named meter from this provider.
func (p *Provider) Meter(name string) metric.Meter { return p.mp.Meter(name) }

// Exported reports whether a reader is attached.
func (p *Provider) Exported() bool { return p.exported }

// Install makes p the global meter provider for libraries that use otel.Meter.
func (p *Provider) Install() { otel.SetMeterProvider(p.mp) }

// Shutdown exports anything still buffered and stops the reader.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.mp.Shutdown(ctx)
}
