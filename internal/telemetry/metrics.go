package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/custodia-labs/fabric-cli/internal/logger"
)

// metricExportInterval is how often counters are pushed to the collector.
const metricExportInterval = 15 * time.Second

// Metrics holds the pipeline instruments.
type Metrics struct {
	ProviderCalls       metric.Int64Counter
	ProviderDuration    metric.Float64Histogram
	BreakerStateChanges metric.Int64Counter
	BuildStages         metric.Int64Counter
	DegradedChunks      metric.Int64Counter
	SourceDocuments     metric.Int64Counter
	Queries             metric.Int64Counter
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// InitMeter exports the pipeline metrics over OTLP/gRPC to endpoint. The
// global provider delegates instruments created before the call, so Default
// may already have been used. The returned function flushes and shuts the
// provider down.
func InitMeter(ctx context.Context, serviceName, version, endpoint string) (func(context.Context) error, error) {
	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP metric exporter: %w", err)
	}

	res, err := newResource(ctx, serviceName, version)
	if err != nil {
		return nil, err
	}

	mp := newMeterProvider(sdkmetric.NewPeriodicReader(exporter,
		sdkmetric.WithInterval(metricExportInterval)), sdkmetric.WithResource(res))
	otel.SetMeterProvider(mp)

	logger.Info("OpenTelemetry metrics enabled, exporting to %s", endpoint)

	return mp.Shutdown, nil
}

func newMeterProvider(reader sdkmetric.Reader, opts ...sdkmetric.Option) *sdkmetric.MeterProvider {
	return sdkmetric.NewMeterProvider(append(opts, sdkmetric.WithReader(reader))...)
}

// Default returns the shared instruments, created on first use from the
// global meter provider.
func Default() *Metrics {
	metricsOnce.Do(func() {
		metrics = newMetrics(otel.Meter(InstrumentationName))
	})
	return metrics
}

func newMetrics(meter metric.Meter) *Metrics {
	return &Metrics{
		ProviderCalls: counter(meter, "fabric.provider.calls",
			"Embedding and chat provider calls by provider and outcome"),
		ProviderDuration: histogram(meter, "fabric.provider.duration",
			"Provider call duration in seconds"),
		BreakerStateChanges: counter(meter, "fabric.circuit_breaker.state_changes",
			"Circuit breaker state changes"),
		BuildStages: counter(meter, "fabric.build.stages",
			"Build stage transitions by stage"),
		DegradedChunks: counter(meter, "fabric.build.degraded_chunks",
			"Chunks stored with a zero vector after embedding failed"),
		SourceDocuments: counter(meter, "fabric.source.documents",
			"Documents fetched from sources by kind"),
		Queries: counter(meter, "fabric.queries",
			"Retrieval queries by outcome"),
	}
}

// counter falls back to a no-op instrument if creation fails.
func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		return noop.Int64Counter{}
	}
	return c
}

func histogram(meter metric.Meter, name, desc string) metric.Float64Histogram {
	h, err := meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("s"))
	if err != nil {
		return noop.Float64Histogram{}
	}
	return h
}
