package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	prombridge "go.opentelemetry.io/contrib/bridges/prometheus"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"edge-gateway/internal/config"
	"edge-gateway/internal/metrics"
)

// MetricExporter pushes the gateway's Prometheus registry to the OTLP
// collector on a fixed interval. The /metrics scrape endpoint keeps serving
// the same registry.
type MetricExporter struct {
	provider *sdkmetric.MeterProvider
}

// NewMetricExporter creates a MetricExporter for the collector configured for
// tracing. When telemetry is disabled nothing is exported.
func NewMetricExporter(cfg *config.Config, version config.Version, m *metrics.Metrics, logger *slog.Logger) (*MetricExporter, error) {
	tc := cfg.Telemetry
	if tc.Disabled {
		logger.Info("metric export disabled")
		return &MetricExporter{}, nil
	}

	exporter, err := otlpmetricgrpc.New(context.Background(), metricExporterOptions(tc.OTLPEndpoint)...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create otlp metric exporter: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter,
		sdkmetric.WithInterval(tc.MetricInterval()),
		sdkmetric.WithProducer(registryProducer(m)),
	)

	logger.Info("metric export enabled",
		"endpoint", tc.OTLPEndpoint,
		"interval", tc.MetricInterval().String(),
	)
	return newMetricExporter(reader, newResource(tc, version)), nil
}

func newMetricExporter(reader sdkmetric.Reader, res *resource.Resource) *MetricExporter {
	return &MetricExporter{provider: sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)}
}

// registryProducer exposes every collector in the registry to OTel readers.
func registryProducer(m *metrics.Metrics) sdkmetric.Producer {
	return prombridge.NewMetricProducer(prombridge.WithGatherer(m.Registry))
}

// metricExporterOptions mirrors exporterOptions for the metric exporter.
func metricExporterOptions(endpoint string) []otlpmetricgrpc.Option {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithTimeout(defaultExportTimeout),
		otlpmetricgrpc.WithReconnectionPeriod(defaultReconnectionPeriod),
	}
	if strings.Contains(endpoint, "://") {
		opts = append(opts, otlpmetricgrpc.WithEndpointURL(endpoint))
		if strings.HasPrefix(endpoint, "http://") {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		return opts
	}
	return append(opts, otlpmetricgrpc.WithEndpoint(endpoint), otlpmetricgrpc.WithInsecure())
}

// Shutdown flushes the last collection and stops the exporter.
func (e *MetricExporter) Shutdown(ctx context.Context) error {
	if e == nil || e.provider == nil {
		return nil
	}
	return e.provider.Shutdown(ctx)
}
