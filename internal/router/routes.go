package router

import "net/http"

// Upstream service names.
const (
	Backend = "backend"
	Product = "product"
)

// DefaultRoutes returns the gateway's forwarding table.
func DefaultRoutes() []Route {
	return []Route{
		{Method: http.MethodPost, Pattern: "/api/task", Upstream: Backend, Rewrite: "/task"},
		{Method: http.MethodGet, Pattern: "/api/products", Upstream: Product, Rewrite: "/products", ForwardQuery: true},
		{Method: http.MethodGet, Pattern: "/api/products/:id", Upstream: Product, Rewrite: "/products/:id", ForwardQuery: true},
		{Method: http.MethodPost, Pattern: "/api/products", Upstream: Product, Rewrite: "/products"},
		{Method: http.MethodPut, Pattern: "/api/products/:id", Upstream: Product, Rewrite: "/products/:id"},
		{Method: http.MethodDelete, Pattern: "/api/products/:id", Upstream: Product, Rewrite: "/products/:id"},
		{Method: http.MethodPatch, Pattern: "/api/products/:id/stock", Upstream: Product, Rewrite: "/products/:id/stock"},
	}
}

// NewDefault builds the Router for DefaultRoutes.
func NewDefault() (*Router, error) {
	return New(DefaultRoutes())
}
