package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"edge-gateway/internal/metrics"
	"edge-gateway/internal/model"
	"edge-gateway/internal/router"
	"edge-gateway/internal/service"
)

// ProxyHandler forwards API requests to the upstream chosen by the route table.
type ProxyHandler struct {
	router  *router.Router
	gateway *service.Gateway
	catalog *Catalog
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(r *router.Router, g *service.Gateway, cat *Catalog, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		router:  r,
		gateway: g,
		catalog: cat,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle matches the request against the route table, forwards it to exactly
// one upstream and writes the relayed or classified response.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	m, ok := h.router.Match(req.Method, req.URL.Path)
	if !ok {
		return h.catalog.NotFound(c)
	}
	c.Set(metrics.RouteKey, m.Route.Pattern)

	body, err := io.ReadAll(req.Body)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "Invalid request body",
			Details: err.Error(),
		})
	}

	out := h.gateway.Forward(req.Context(), m, service.Inbound{
		Query:  req.URL.Query(),
		Header: req.Header,
		Body:   body,
	})

	switch o := out.(type) {
	case *model.Success:
		return h.relay(c, o)
	case *model.Failure:
		status, resp := service.Classify(*o)
		h.logger.Error("upstream call failed",
			"service", o.Service,
			"kind", o.Kind.String(),
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"err", o.Detail,
		)
		return c.JSON(status, resp)
	default:
		return c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Error:   "Gateway error",
			Details: fmt.Sprintf("unexpected outcome %T", out),
		})
	}
}

// relay writes the upstream status, filtered headers and body unchanged.
func (h *ProxyHandler) relay(c echo.Context, s *model.Success) error {
	header := c.Response().Header()
	for key, vals := range s.Header {
		for _, v := range vals {
			header.Add(key, v)
		}
	}

	c.Response().WriteHeader(s.Status)
	if len(s.Body) == 0 || c.Request().Method == http.MethodHead {
		return nil
	}
	if _, err := c.Response().Write(s.Body); err != nil {
		h.logger.Error("writing relayed body",
			"err", err,
			"path", c.Request().URL.Path,
		)
	}
	return nil
}
