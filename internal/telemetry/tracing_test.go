package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"edge-gateway/internal/config"
	"edge-gateway/internal/metrics"
)

func newRecordingTracer(t *testing.T) (*Tracer, *tracetest.SpanRecorder) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return NewWithProvider(tp), rec
}

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestNewTracer_Disabled(t *testing.T) {
	cfg := &config.Config{Telemetry: config.TelemetryConfig{Disabled: true}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tr, err := NewTracer(cfg, "test", logger)
	require.NoError(t, err)

	_, span := tr.StartSpan(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid(), "disabled tracer should produce invalid span contexts")
	span.End()
	assert.NoError(t, tr.Shutdown(context.Background()))
}

func TestNewTracer_Enabled(t *testing.T) {
	rate := 0.5
	cfg := &config.Config{Telemetry: config.TelemetryConfig{
		ServiceName:  "gateway-service",
		OTLPEndpoint: "http://127.0.0.1:4317",
		Environment:  "test",
		SamplingRate: &rate,
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tr, err := NewTracer(cfg, "1.0.0", logger)
	require.NoError(t, err)
	require.NotNil(t, tr.provider)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = tr.Shutdown(ctx)
}

func TestCreateSampler(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), createSampler(1).Description())
	assert.Equal(t, sdktrace.NeverSample().Description(), createSampler(0).Description())
	assert.Equal(t, sdktrace.TraceIDRatioBased(0.3).Description(), createSampler(0.3).Description())
}

func TestExporterOptions(t *testing.T) {
	assert.Len(t, exporterOptions("localhost:4317"), 4)
	assert.Len(t, exporterOptions("http://otel-collector:4317"), 4)
	assert.Len(t, exporterOptions("https://otel.example.com:4317"), 3)
}

func TestInjectExtract_RoundTrip(t *testing.T) {
	tr, _ := newRecordingTracer(t)

	ctx, span := tr.StartSpan(context.Background(), "parent")
	defer span.End()

	header := http.Header{}
	tr.Inject(ctx, header)
	require.NotEmpty(t, header.Get("Traceparent"))

	got := trace.SpanContextFromContext(tr.Extract(context.Background(), header))
	assert.Equal(t, span.SpanContext().TraceID(), got.TraceID())
}

func TestInject_B3MultiHeader(t *testing.T) {
	tr, _ := newRecordingTracer(t)

	ctx, span := tr.StartSpan(context.Background(), "parent")
	defer span.End()

	header := http.Header{}
	tr.Inject(ctx, header)

	assert.Equal(t, span.SpanContext().TraceID().String(), header.Get("X-B3-TraceId"))
	assert.Equal(t, span.SpanContext().SpanID().String(), header.Get("X-B3-SpanId"))
	assert.Equal(t, "1", header.Get("X-B3-Sampled"))
	assert.Empty(t, header.Get("B3"), "single-header form should not be injected")
}

func TestExtract_B3OnlyHeaders(t *testing.T) {
	tr, _ := newRecordingTracer(t)

	header := http.Header{}
	header.Set("X-B3-TraceId", "4bf92f3577b34da6a3ce929d0e0e4736")
	header.Set("X-B3-SpanId", "00f067aa0ba902b7")
	header.Set("X-B3-Sampled", "1")

	got := trace.SpanContextFromContext(tr.Extract(context.Background(), header))
	require.True(t, got.IsValid())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", got.TraceID().String())
	assert.True(t, got.IsRemote())
}

func TestNoop_InjectsNothing(t *testing.T) {
	tr := Noop()
	header := http.Header{}
	tr.Inject(context.Background(), header)
	assert.Empty(t, header)
}

func TestMiddleware_RecordsServerSpan(t *testing.T) {
	tr, rec := newRecordingTracer(t)

	e := echo.New()
	e.Use(Middleware(tr, "/health"))
	e.GET("/api/items/:id", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/items/42", http.NoBody)
	e.ServeHTTP(httptest.NewRecorder(), req)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	s := spans[0]
	assert.Equal(t, "GET /api/items/:id", s.Name())
	assert.Equal(t, trace.SpanKindServer, s.SpanKind())

	v, ok := attrValue(s.Attributes(), "http.response.status_code")
	require.True(t, ok)
	assert.Equal(t, int64(200), v.AsInt64())
	v, ok = attrValue(s.Attributes(), "http.route")
	require.True(t, ok)
	assert.Equal(t, "/api/items/:id", v.AsString())
}

func TestMiddleware_UsesStoredRouteTemplate(t *testing.T) {
	tr, rec := newRecordingTracer(t)

	e := echo.New()
	e.Use(Middleware(tr))
	e.Any("/api/*", func(c echo.Context) error {
		c.Set(metrics.RouteKey, "/api/products/:id")
		return c.String(http.StatusOK, "ok")
	})

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/products/9", http.NoBody))

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /api/products/:id", spans[0].Name())
}

func TestMiddleware_SkipsPaths(t *testing.T) {
	tr, rec := newRecordingTracer(t)

	e := echo.New()
	e.Use(Middleware(tr, "/health", "/metrics"))
	e.GET("/health", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", http.NoBody))

	assert.Empty(t, rec.Ended())
}

func TestMiddleware_ErrorMarksSpan(t *testing.T) {
	tr, rec := newRecordingTracer(t)

	e := echo.New()
	e.Use(Middleware(tr))
	e.GET("/boom", func(c echo.Context) error {
		return errors.New("boom")
	})

	resp := httptest.NewRecorder()
	e.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/boom", http.NoBody))

	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestMiddleware_ContinuesInboundTrace(t *testing.T) {
	tr, rec := newRecordingTracer(t)

	parentCtx, parent := tr.StartSpan(context.Background(), "client")
	header := http.Header{}
	tr.Inject(parentCtx, header)
	parent.End()

	e := echo.New()
	e.Use(Middleware(tr))
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/x", http.NoBody)
	req.Header = header
	e.ServeHTTP(httptest.NewRecorder(), req)

	spans := rec.Ended()
	require.Len(t, spans, 2)
	server := spans[1]
	assert.Equal(t, parent.SpanContext().TraceID(), server.SpanContext().TraceID())
	assert.Equal(t, parent.SpanContext().SpanID(), server.Parent().SpanID())
}

func TestEndWithStatus(t *testing.T) {
	tr, rec := newRecordingTracer(t)

	_, span := tr.StartUpstreamSpan(context.Background(), "product", http.MethodGet, "http://product/products")
	EndWithStatus(span, http.StatusServiceUnavailable, nil)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET product", spans[0].Name())
	assert.Equal(t, trace.SpanKindClient, spans[0].SpanKind())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}
