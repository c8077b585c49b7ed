package telemetry

import (
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"edge-gateway/internal/metrics"
)

// Middleware returns an Echo middleware that opens a server span per request.
// Requests for the given paths (health probes, scrapes) are not traced.
func Middleware(t *Tracer, skipPaths ...string) echo.MiddlewareFunc {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if skip[req.URL.Path] {
				return next(c)
			}

			ctx := t.Extract(req.Context(), req.Header)
			ctx, span := t.StartSpan(ctx, req.Method,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.request.method", req.Method),
					attribute.String("url.path", req.URL.Path),
					attribute.String("user_agent.original", req.UserAgent()),
					attribute.String("server.address", req.Host),
					attribute.String("http.request.id", c.Response().Header().Get(echo.HeaderXRequestID)),
				),
			)
			c.SetRequest(req.WithContext(ctx))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			route := metrics.RouteLabel(c)
			span.SetName(req.Method + " " + route)
			span.SetAttributes(attribute.String("http.route", route))
			EndWithStatus(span, c.Response().Status, err)
			return nil
		}
	}
}
