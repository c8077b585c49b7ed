// Package router binds inbound method and path pairs to upstream routes.
//
// Routes are matched segment by segment. A pattern segment starting with ':'
// captures exactly one non-empty path segment other than "." or "..", and
// every other segment must match literally. The table is fixed at startup and validated so that no two routes
// with the same method can match the same path.
package router

import (
	"errors"
	"fmt"
	"strings"
)

// ErrOverlap is returned by New when two routes could match the same request.
var ErrOverlap = errors.New("overlapping routes")

// Route maps an inbound method and path pattern onto an upstream path.
type Route struct {
	Method       string
	Pattern      string
	Upstream     string
	Rewrite      string
	ForwardQuery bool

	segments []string
	param    string
}

// String returns the "METHOD pattern" form used in listings and logs.
func (r Route) String() string {
	return r.Method + " " + r.Pattern
}

// Match is a successful lookup result.
type Match struct {
	Route  Route
	Params map[string]string
}

// UpstreamPath applies the route's rewrite template to the captured params.
func (m Match) UpstreamPath() string {
	if m.Route.param == "" {
		return m.Route.Rewrite
	}
	return strings.ReplaceAll(m.Route.Rewrite, ":"+m.Route.param, m.Params[m.Route.param])
}

// Router is an immutable, ordered route table.
type Router struct {
	routes []Route
}

// New validates routes and returns a Router that tries them in order.
func New(routes []Route) (*Router, error) {
	compiled := make([]Route, 0, len(routes))
	for _, r := range routes {
		c, err := compile(r)
		if err != nil {
			return nil, err
		}
		for _, prev := range compiled {
			if prev.Method == c.Method && overlaps(prev.segments, c.segments) {
				return nil, fmt.Errorf("%w: %q and %q", ErrOverlap, prev.String(), c.String())
			}
		}
		compiled = append(compiled, c)
	}
	return &Router{routes: compiled}, nil
}

// MustNew is like New but panics on an invalid table.
func MustNew(routes []Route) *Router {
	r, err := New(routes)
	if err != nil {
		panic(err)
	}
	return r
}

func compile(r Route) (Route, error) {
	if r.Method == "" {
		return Route{}, fmt.Errorf("route %q: method is required", r.Pattern)
	}
	if !strings.HasPrefix(r.Pattern, "/") {
		return Route{}, fmt.Errorf("route %q: pattern must start with '/'", r.String())
	}
	if r.Upstream == "" {
		return Route{}, fmt.Errorf("route %q: upstream is required", r.String())
	}
	if !strings.HasPrefix(r.Rewrite, "/") {
		return Route{}, fmt.Errorf("route %q: rewrite must start with '/'", r.String())
	}

	r.Method = strings.ToUpper(r.Method)
	r.segments = splitPath(r.Pattern)
	for _, seg := range r.segments {
		if !strings.HasPrefix(seg, ":") {
			continue
		}
		if len(seg) == 1 {
			return Route{}, fmt.Errorf("route %q: empty parameter name", r.String())
		}
		if r.param != "" {
			return Route{}, fmt.Errorf("route %q: at most one parameter segment is supported", r.String())
		}
		r.param = seg[1:]
	}

	for _, seg := range splitPath(r.Rewrite) {
		if strings.HasPrefix(seg, ":") && seg[1:] != r.param {
			return Route{}, fmt.Errorf("route %q: rewrite references unknown parameter %q", r.String(), seg)
		}
	}
	return r, nil
}

// overlaps reports whether some path would match both segment lists.
func overlaps(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if isParam(a[i]) || isParam(b[i]) {
			continue
		}
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func isParam(seg string) bool {
	return strings.HasPrefix(seg, ":")
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// Match returns the first route whose method and pattern match the request.
// A single trailing slash on the request path is ignored.
func (r *Router) Match(method, path string) (Match, bool) {
	segs := splitPath(path)
	for _, rt := range r.routes {
		if rt.Method != method || len(rt.segments) != len(segs) {
			continue
		}
		if params, ok := matchSegments(rt, segs); ok {
			return Match{Route: rt, Params: params}, true
		}
	}
	return Match{}, false
}

func matchSegments(rt Route, segs []string) (map[string]string, bool) {
	var params map[string]string
	for i, seg := range rt.segments {
		if isParam(seg) {
			if segs[i] == "" || segs[i] == "." || segs[i] == ".." {
				return nil, false
			}
			params = map[string]string{seg[1:]: segs[i]}
			continue
		}
		if seg != segs[i] {
			return nil, false
		}
	}
	return params, true
}

// Routes returns a copy of the route table in match order.
func (r *Router) Routes() []Route {
	out := make([]Route, len(r.routes))
	copy(out, r.routes)
	return out
}

// Describe lists every route as "METHOD pattern" in match order.
func (r *Router) Describe() []string {
	out := make([]string, 0, len(r.routes))
	for _, rt := range r.routes {
		out = append(out, rt.String())
	}
	return out
}
