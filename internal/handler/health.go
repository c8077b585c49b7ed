package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HealthHandler serves the liveness endpoint.
type HealthHandler struct {
	service string
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{service: "gateway"}
}

// Health returns a fixed OK response; it never touches upstreams or storage.
func (h *HealthHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"service": h.service,
	})
}
