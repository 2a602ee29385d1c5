// Package telemetry provides OpenTelemetry metrics for the synchronizer.
//
// Telemetry is disabled by default (no-op providers, zero overhead).
//
// # Configuration
//
//	A2A_OTEL_ENABLED=true            enable telemetry (default: off)
//	A2A_OTEL_STDOUT=true             write metrics to stderr (dev mode)
//	OTEL_EXPORTER_OTLP_ENDPOINT=...  OTLP/HTTP endpoint
//	OTEL_SERVICE_NAME=alexa2anylist  override service name
package telemetry

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const instrumentationScope = "github.com/alexa2anylist/alexa2anylist"

// Enabled reports whether telemetry is active (A2A_OTEL_ENABLED=true).
func Enabled() bool {
	return os.Getenv("A2A_OTEL_ENABLED") == "true"
}

// Init configures the OTel meter provider and returns its shutdown function.
// When telemetry is disabled this installs a no-op provider and the returned
// shutdown does nothing.
func Init(ctx context.Context, serviceName, version string) (func(context.Context) error, error) {
	if !Enabled() {
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: resource: %w", err)
	}

	var readers []sdkmetric.Option
	readers = append(readers, sdkmetric.WithResource(res))

	if os.Getenv("A2A_OTEL_STDOUT") == "true" {
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stderr))
		if err != nil {
			return nil, fmt.Errorf("telemetry: stdout exporter: %w", err)
		}
		readers = append(readers, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(30*time.Second))))
	}

	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		exp, err := otlpmetrichttp.New(ctx,
			otlpmetrichttp.WithEndpoint(endpoint),
			otlpmetrichttp.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("telemetry: otlp exporter: %w", err)
		}
		readers = append(readers, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(30*time.Second))))
	}

	mp := sdkmetric.NewMeterProvider(readers...)
	otel.SetMeterProvider(mp)
	return mp.Shutdown, nil
}

// Metrics holds the instruments recorded by the sync loop. A nil *Metrics is
// valid and records nothing, so tests can pass nil.
type Metrics struct {
	cycles       metric.Int64Counter
	cycleSeconds metric.Float64Histogram
	replays      metric.Int64Counter
	clobbers     metric.Int64Counter
}

// NewMetrics creates the sync instruments from the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationScope)

	cycles, err := meter.Int64Counter("sync.cycles",
		metric.WithDescription("Completed sync cycles, by result"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: sync.cycles: %w", err)
	}
	cycleSeconds, err := meter.Float64Histogram("sync.cycle.duration",
		metric.WithDescription("Sync cycle duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: sync.cycle.duration: %w", err)
	}
	replays, err := meter.Int64Counter("sync.journal.replays",
		metric.WithDescription("Dirty journals replayed at startup"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: sync.journal.replays: %w", err)
	}
	clobbers, err := meter.Int64Counter("sync.clobbers",
		metric.WithDescription("Startup clobber reconciliations"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: sync.clobbers: %w", err)
	}

	return &Metrics{
		cycles:       cycles,
		cycleSeconds: cycleSeconds,
		replays:      replays,
		clobbers:     clobbers,
	}, nil
}

// CountCycle records one finished cycle and its duration.
func (m *Metrics) CountCycle(ctx context.Context, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	attrs := metric.WithAttributes(resultAttr(result))
	m.cycles.Add(ctx, 1, attrs)
	m.cycleSeconds.Record(ctx, d.Seconds(), attrs)
}

func resultAttr(result string) attribute.KeyValue {
	return attribute.String("result", result)
}

// CountReplay records a startup journal replay.
func (m *Metrics) CountReplay(ctx context.Context) {
	if m == nil {
		return
	}
	m.replays.Add(ctx, 1)
}

// CountClobber records a startup clobber reconciliation.
func (m *Metrics) CountClobber(ctx context.Context) {
	if m == nil {
		return
	}
	m.clobbers.Add(ctx, 1)
}
