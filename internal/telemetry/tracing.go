// Package telemetry wires OpenTelemetry tracing and metric export into the gateway.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/propagators/b3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"edge-gateway/internal/config"
)

const instrumentationName = "edge-gateway"

// OTLP exporter defaults.
const (
	defaultExportTimeout      = 10 * time.Second
	defaultReconnectionPeriod = 10 * time.Second
)

// Tracer owns the trace provider and the propagator used on upstream calls.
type Tracer struct {
	provider   *sdktrace.TracerProvider
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

// NewTracer creates a Tracer exporting to the configured OTLP gRPC collector.
// When telemetry is disabled the returned Tracer records nothing.
func NewTracer(cfg *config.Config, version config.Version, logger *slog.Logger) (*Tracer, error) {
	tc := cfg.Telemetry
	if tc.Disabled {
		logger.Info("tracing disabled")
		return Noop(), nil
	}

	exporter, err := otlptracegrpc.New(context.Background(), exporterOptions(tc.OTLPEndpoint)...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create otlp exporter: %w", err)
	}

	rate := 1.0
	if tc.SamplingRate != nil {
		rate = *tc.SamplingRate
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(newResource(tc, version)),
		sdktrace.WithSampler(sdktrace.ParentBased(createSampler(rate))),
		sdktrace.WithBatcher(exporter),
	)

	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		logger.Warn("telemetry export error", "err", err)
	}))

	logger.Info("tracing enabled",
		"endpoint", tc.OTLPEndpoint,
		"service", tc.ServiceName,
		"sampling_rate", rate,
	)
	return NewWithProvider(provider), nil
}

func newResource(tc config.TelemetryConfig, version config.Version) *resource.Resource {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(tc.ServiceName),
		semconv.ServiceVersion(string(version)),
		attribute.String("deployment.environment.name", tc.Environment),
	)
}

// NewWithProvider wraps an existing SDK provider.
// Upstream services join traces through B3 multi-header propagation; W3C
// trace context is carried alongside it.
func NewWithProvider(provider *sdktrace.TracerProvider) *Tracer {
	return &Tracer{
		provider: provider,
		tracer:   provider.Tracer(instrumentationName),
		propagator: propagation.NewCompositeTextMapPropagator(
			b3.New(b3.WithInjectEncoding(b3.B3MultipleHeader)),
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	}
}

// Noop returns a Tracer that records and propagates nothing.
func Noop() *Tracer {
	return &Tracer{
		tracer:     noop.NewTracerProvider().Tracer(instrumentationName),
		propagator: propagation.NewCompositeTextMapPropagator(),
	}
}

// exporterOptions accepts either host:port or a full URL such as
// http://otel-collector:4317.
func exporterOptions(endpoint string) []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithTimeout(defaultExportTimeout),
		otlptracegrpc.WithReconnectionPeriod(defaultReconnectionPeriod),
	}
	if strings.Contains(endpoint, "://") {
		opts = append(opts, otlptracegrpc.WithEndpointURL(endpoint))
		if strings.HasPrefix(endpoint, "http://") {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return opts
	}
	return append(opts, otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
}

// createSampler creates a sampler based on the sampling rate.
func createSampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// Shutdown flushes pending spans.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// StartSpan starts a new span.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// StartUpstreamSpan starts a client span for a call to the named upstream.
func (t *Tracer) StartUpstreamSpan(ctx context.Context, service, method, url string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, method+" "+service,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", url),
			attribute.String("peer.service", service),
		),
	)
}

// Inject writes the trace context of ctx into outgoing request headers.
func (t *Tracer) Inject(ctx context.Context, header http.Header) {
	t.propagator.Inject(ctx, propagation.HeaderCarrier(header))
}

// Extract reads an inbound trace context from request headers.
func (t *Tracer) Extract(ctx context.Context, header http.Header) context.Context {
	return t.propagator.Extract(ctx, propagation.HeaderCarrier(header))
}

// EndWithStatus records the HTTP status on span and ends it.
func EndWithStatus(span trace.Span, status int, err error) {
	if status > 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", status))
	}
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case status >= http.StatusInternalServerError:
		span.SetStatus(codes.Error, http.StatusText(status))
	}
	span.End()
}
