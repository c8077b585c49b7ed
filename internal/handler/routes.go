package handler

import (
	"github.com/labstack/echo/v4"

	"edge-gateway/internal/config"
	"edge-gateway/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance.
func RegisterRoutes(
	e *echo.Echo,
	cfg *config.Config,
	m *metrics.Metrics,
	proxy *ProxyHandler,
	items *ItemsHandler,
	health *HealthHandler,
) {
	e.GET("/health", health.Health)
	e.GET(cfg.Metrics.Path, echo.WrapHandler(m.Handler()))

	e.GET(itemsPath, items.List)
	e.POST(itemsPath, items.Create)
	e.GET(itemPath, items.Get)
	e.DELETE(itemPath, items.Delete)

	e.Any("/api/*", proxy.Handle)
}
