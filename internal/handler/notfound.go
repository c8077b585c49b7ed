package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"edge-gateway/internal/config"
	"edge-gateway/internal/metrics"
	"edge-gateway/internal/model"
	"edge-gateway/internal/router"
)

// Catalog is the fixed list of routes reported by not-found responses.
type Catalog struct {
	routes []string
}

// NewCatalog lists the local endpoints, the forwarding table and the item routes.
func NewCatalog(r *router.Router, cfg *config.Config) *Catalog {
	routes := []string{
		"GET /health",
		"GET " + cfg.Metrics.Path,
	}
	routes = append(routes, r.Describe()...)
	routes = append(routes,
		"GET "+itemsPath,
		"GET "+itemPath,
		"POST "+itemsPath,
		"DELETE "+itemPath,
	)
	return &Catalog{routes: routes}
}

// Routes returns a copy of the listed routes.
func (cat *Catalog) Routes() []string {
	out := make([]string, len(cat.routes))
	copy(out, cat.routes)
	return out
}

// NotFound writes the 404 payload and labels the request as unmatched.
func (cat *Catalog) NotFound(c echo.Context) error {
	c.Set(metrics.RouteKey, metrics.UnmatchedRoute)
	req := c.Request()
	return c.JSON(http.StatusNotFound, model.NotFoundResponse{
		Error:           "Route not found",
		Details:         fmt.Sprintf("No route for %s %s", req.Method, req.URL.Path),
		AvailableRoutes: cat.Routes(),
	})
}

// NewErrorHandler returns the Echo error handler. Router misses (404 and 405)
// get the not-found payload; other errors are rendered in the error envelope.
func NewErrorHandler(cat *Catalog, logger *slog.Logger) echo.HTTPErrorHandler {
	logger = logger.With("component", "error_handler")

	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			switch he.Code {
			case http.StatusNotFound, http.StatusMethodNotAllowed:
				err = cat.NotFound(c)
			default:
				err = respond(c, he.Code, model.ErrorResponse{
					Error:   http.StatusText(he.Code),
					Details: fmt.Sprint(he.Message),
				})
			}
		} else {
			req := c.Request()
			logger.Error("unhandled error",
				"err", err,
				"method", req.Method,
				"path", req.URL.Path,
			)
			err = respond(c, http.StatusInternalServerError, model.ErrorResponse{
				Error:   "Gateway error",
				Details: err.Error(),
			})
		}

		if err != nil {
			logger.Error("writing error response", "err", err)
		}
	}
}

func respond(c echo.Context, status int, body model.ErrorResponse) error {
	if c.Request().Method == http.MethodHead {
		return c.NoContent(status)
	}
	return c.JSON(status, body)
}
