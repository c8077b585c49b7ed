package router

import (
	"errors"
	"net/http"
	"testing"
)

func TestDefaultRoutes_Valid(t *testing.T) {
	if _, err := NewDefault(); err != nil {
		t.Fatalf("NewDefault() error = %v", err)
	}
}

func TestMatch(t *testing.T) {
	r := MustNew(DefaultRoutes())

	tests := []struct {
		name         string
		method       string
		path         string
		wantOK       bool
		wantPattern  string
		wantUpstream string
		wantPath     string
	}{
		{"create task", http.MethodPost, "/api/task", true, "/api/task", Backend, "/task"},
		{"list products", http.MethodGet, "/api/products", true, "/api/products", Product, "/products"},
		{"list products trailing slash", http.MethodGet, "/api/products/", true, "/api/products", Product, "/products"},
		{"get product", http.MethodGet, "/api/products/42", true, "/api/products/:id", Product, "/products/42"},
		{"create product", http.MethodPost, "/api/products", true, "/api/products", Product, "/products"},
		{"update product", http.MethodPut, "/api/products/abc-1", true, "/api/products/:id", Product, "/products/abc-1"},
		{"delete product", http.MethodDelete, "/api/products/7", true, "/api/products/:id", Product, "/products/7"},
		{"patch stock", http.MethodPatch, "/api/products/7/stock", true, "/api/products/:id/stock", Product, "/products/7/stock"},
		{"task wrong method", http.MethodGet, "/api/task", false, "", "", ""},
		{"stock wrong method", http.MethodGet, "/api/products/7/stock", false, "", "", ""},
		{"too deep", http.MethodGet, "/api/products/7/stock/x", false, "", "", ""},
		{"unknown", http.MethodGet, "/unknown/path", false, "", "", ""},
		{"root", http.MethodGet, "/", false, "", "", ""},
		{"lowercase method", "get", "/api/products", false, "", "", ""},
		{"dot-dot param", http.MethodDelete, "/api/products/..", false, "", "", ""},
		{"dot param", http.MethodGet, "/api/products/.", false, "", "", ""},
		{"dot-dot stock param", http.MethodPatch, "/api/products/../stock", false, "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := r.Match(tt.method, tt.path)
			if ok != tt.wantOK {
				t.Fatalf("Match(%s %s) ok = %v, want %v", tt.method, tt.path, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if m.Route.Pattern != tt.wantPattern {
				t.Errorf("Pattern = %q, want %q", m.Route.Pattern, tt.wantPattern)
			}
			if m.Route.Upstream != tt.wantUpstream {
				t.Errorf("Upstream = %q, want %q", m.Route.Upstream, tt.wantUpstream)
			}
			if got := m.UpstreamPath(); got != tt.wantPath {
				t.Errorf("UpstreamPath() = %q, want %q", got, tt.wantPath)
			}
		})
	}
}

func TestMatch_Params(t *testing.T) {
	r := MustNew(DefaultRoutes())

	m, ok := r.Match(http.MethodPatch, "/api/products/p-9/stock")
	if !ok {
		t.Fatal("expected match")
	}
	if m.Params["id"] != "p-9" {
		t.Errorf("Params[id] = %q, want %q", m.Params["id"], "p-9")
	}
}

func TestMatch_ForwardQueryOnlyOnGET(t *testing.T) {
	for _, rt := range DefaultRoutes() {
		if rt.ForwardQuery != (rt.Method == http.MethodGet) {
			t.Errorf("%s: ForwardQuery = %v", rt.String(), rt.ForwardQuery)
		}
	}
}

func TestMatch_FirstMatchWins(t *testing.T) {
	r := MustNew([]Route{
		{Method: http.MethodGet, Pattern: "/a/:id", Upstream: "one", Rewrite: "/one/:id"},
		{Method: http.MethodPost, Pattern: "/a/:id", Upstream: "two", Rewrite: "/two/:id"},
	})

	m, ok := r.Match(http.MethodPost, "/a/1")
	if !ok || m.Route.Upstream != "two" {
		t.Errorf("Match = %+v, %v; want upstream two", m.Route, ok)
	}
}

func TestNew_RejectsOverlap(t *testing.T) {
	tests := []struct {
		name   string
		routes []Route
	}{
		{
			name: "identical",
			routes: []Route{
				{Method: http.MethodGet, Pattern: "/a", Upstream: "x", Rewrite: "/a"},
				{Method: http.MethodGet, Pattern: "/a", Upstream: "y", Rewrite: "/a"},
			},
		},
		{
			name: "param shadows literal",
			routes: []Route{
				{Method: http.MethodGet, Pattern: "/a/:id", Upstream: "x", Rewrite: "/a/:id"},
				{Method: http.MethodGet, Pattern: "/a/special", Upstream: "y", Rewrite: "/special"},
			},
		},
		{
			name: "differently named params",
			routes: []Route{
				{Method: http.MethodDelete, Pattern: "/a/:id", Upstream: "x", Rewrite: "/a/:id"},
				{Method: http.MethodDelete, Pattern: "/a/:name", Upstream: "y", Rewrite: "/a/:name"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.routes)
			if !errors.Is(err, ErrOverlap) {
				t.Errorf("New() error = %v, want ErrOverlap", err)
			}
		})
	}
}

func TestNew_AllowsSamePatternDifferentMethod(t *testing.T) {
	_, err := New([]Route{
		{Method: http.MethodGet, Pattern: "/a/:id", Upstream: "x", Rewrite: "/a/:id"},
		{Method: http.MethodPut, Pattern: "/a/:id", Upstream: "x", Rewrite: "/a/:id"},
		{Method: http.MethodGet, Pattern: "/a/:id/b", Upstream: "x", Rewrite: "/a/:id/b"},
	})
	if err != nil {
		t.Errorf("New() error = %v, want nil", err)
	}
}

func TestNew_InvalidRoutes(t *testing.T) {
	tests := []struct {
		name  string
		route Route
	}{
		{"missing method", Route{Pattern: "/a", Upstream: "x", Rewrite: "/a"}},
		{"relative pattern", Route{Method: http.MethodGet, Pattern: "a", Upstream: "x", Rewrite: "/a"}},
		{"missing upstream", Route{Method: http.MethodGet, Pattern: "/a", Rewrite: "/a"}},
		{"relative rewrite", Route{Method: http.MethodGet, Pattern: "/a", Upstream: "x", Rewrite: "a"}},
		{"two params", Route{Method: http.MethodGet, Pattern: "/a/:x/:y", Upstream: "x", Rewrite: "/a"}},
		{"empty param", Route{Method: http.MethodGet, Pattern: "/a/:", Upstream: "x", Rewrite: "/a"}},
		{"unknown rewrite param", Route{Method: http.MethodGet, Pattern: "/a/:id", Upstream: "x", Rewrite: "/a/:other"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New([]Route{tt.route}); err == nil {
				t.Error("New() expected error, got nil")
			}
		})
	}
}

func TestDescribe(t *testing.T) {
	r := MustNew(DefaultRoutes())
	got := r.Describe()
	want := []string{
		"POST /api/task",
		"GET /api/products",
		"GET /api/products/:id",
		"POST /api/products",
		"PUT /api/products/:id",
		"DELETE /api/products/:id",
		"PATCH /api/products/:id/stock",
	}
	if len(got) != len(want) {
		t.Fatalf("Describe() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Describe()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestMustNew_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustNew() did not panic on invalid table")
		}
	}()
	MustNew([]Route{{Pattern: "/a"}})
}
