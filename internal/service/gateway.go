// Package service implements upstream dispatch and failure classification.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"edge-gateway/internal/config"
	"edge-gateway/internal/model"
	"edge-gateway/internal/router"
)

// forwardableRequestHeaders are the only request headers forwarded upstream.
var forwardableRequestHeaders = []string{
	"Accept",
	"Accept-Language",
	"Content-Type",
	"X-Request-Id",
}

// forwardableResponseHeaders are the only response headers relayed to the client.
var forwardableResponseHeaders = map[string]bool{
	"Content-Type":  true,
	"Cache-Control": true,
	"Etag":          true,
	"Last-Modified": true,
	"Location":      true,
	"X-Request-Id":  true,
}

const userAgent = "edge-gateway/1.0"

// Forwarder performs one upstream call.
type Forwarder interface {
	Forward(ctx context.Context, target model.UpstreamTarget, fr *model.ForwardedRequest) model.Outcome
}

// Inbound is the part of a client request that may be forwarded.
type Inbound struct {
	Query  url.Values
	Header http.Header
	Body   []byte
}

// Gateway resolves matched routes to upstream targets and forwards requests.
type Gateway struct {
	client  Forwarder
	targets map[string]model.UpstreamTarget
	logger  *slog.Logger
}

// NewGateway resolves the configured upstream base URLs.
func NewGateway(c Forwarder, cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	targets := make(map[string]model.UpstreamTarget, 2)
	for name, raw := range map[string]string{
		router.Backend: cfg.Upstreams.BackendURL,
		router.Product: cfg.Upstreams.ProductURL,
	} {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse %s upstream url: %w", name, err)
		}
		targets[name] = model.UpstreamTarget{Name: name, BaseURL: u}
	}

	return &Gateway{
		client:  c,
		targets: targets,
		logger:  logger.With("component", "gateway"),
	}, nil
}

// Target returns the upstream target registered under name.
func (g *Gateway) Target(name string) (model.UpstreamTarget, bool) {
	t, ok := g.targets[name]
	return t, ok
}

// Forward sends the inbound request to the upstream chosen by m.
// Query parameters are forwarded only for routes that accept them.
func (g *Gateway) Forward(ctx context.Context, m router.Match, in Inbound) model.Outcome {
	target, ok := g.targets[m.Route.Upstream]
	if !ok {
		return &model.Failure{
			Kind:    model.InternalError,
			Service: m.Route.Upstream,
			Detail:  fmt.Sprintf("no upstream configured for %q", m.Route.Upstream),
		}
	}

	fr := &model.ForwardedRequest{
		Method: m.Route.Method,
		Path:   m.UpstreamPath(),
		Header: filterRequestHeaders(in.Header),
		Body:   in.Body,
	}
	if m.Route.ForwardQuery {
		fr.Query = in.Query
	}

	g.logger.Debug("forwarding request",
		"route", m.Route.String(),
		"service", target.Name,
		"path", fr.Path,
	)

	out := g.client.Forward(ctx, target, fr)
	if s, ok := out.(*model.Success); ok {
		s.Header = filterResponseHeaders(s.Header)
	}
	return out
}

func filterRequestHeaders(src http.Header) http.Header {
	dst := make(http.Header)
	for _, key := range forwardableRequestHeaders {
		if vals := src.Values(key); len(vals) > 0 {
			dst[http.CanonicalHeaderKey(key)] = vals
		}
	}
	dst.Set("User-Agent", userAgent)
	return dst
}

func filterResponseHeaders(src http.Header) http.Header {
	dst := make(http.Header)
	for key, vals := range src {
		if forwardableResponseHeaders[http.CanonicalHeaderKey(key)] {
			dst[http.CanonicalHeaderKey(key)] = vals
		}
	}
	return dst
}
