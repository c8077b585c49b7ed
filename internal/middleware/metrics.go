package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"edge-gateway/internal/metrics"
)

// MetricsMiddleware returns an Echo middleware that records Prometheus metrics
// for each inbound request.
//
// Handler errors are rendered through Echo's error handler here so the
// recorded status is the one the client receives; the middleware then
// returns nil. The in-flight gauge is released on every exit path.
func MetricsMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			done := m.TrackInFlight()
			defer done()

			start := time.Now()

			if err := next(c); err != nil {
				c.Error(err)
			}

			m.ObserveRequest(c.Request().Method, metrics.RouteLabel(c), c.Response().Status, time.Since(start))
			return nil
		}
	}
}
