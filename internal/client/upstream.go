// Package client provides the HTTP client used to call upstream services.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/trace"

	"edge-gateway/internal/config"
	"edge-gateway/internal/metrics"
	"edge-gateway/internal/model"
	"edge-gateway/internal/telemetry"
)

// UpstreamClient sends forwarded requests to upstream services.
type UpstreamClient struct {
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     *telemetry.Tracer
}

// NewUpstreamClient creates an UpstreamClient with connection pooling and a
// bounded per-call timeout. The metrics and tracer parameters are optional.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics, t *telemetry.Tracer) *UpstreamClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.Upstreams.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstreams.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	timeout := cfg.Upstreams.Timeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if t == nil {
		t = telemetry.Noop()
	}

	return &UpstreamClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
			// Redirects are relayed to the caller, never followed.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		timeout: timeout,
		logger:  logger.With("component", "upstream_client"),
		metrics: m,
		tracer:  t,
	}
}

// Forward performs one call to target and returns its outcome. Any HTTP
// response, whatever its status, is a *model.Success carrying the full body.
// Transport failures yield UpstreamUnreachable; anything else InternalError.
func (c *UpstreamClient) Forward(ctx context.Context, target model.UpstreamTarget, fr *model.ForwardedRequest) (out model.Outcome) {
	start := time.Now()
	var span trace.Span
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			if span != nil {
				telemetry.EndWithStatus(span, 0, err)
			}
			out = c.fail(target, fr.Method, model.InternalError, err, start)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	upstreamURL := fr.URL(target)
	ctx, span = c.tracer.StartUpstreamSpan(ctx, target.Name, fr.Method, upstreamURL)

	req, err := http.NewRequestWithContext(ctx, fr.Method, upstreamURL, bytes.NewReader(fr.Body))
	if err != nil {
		telemetry.EndWithStatus(span, 0, err)
		return c.fail(target, fr.Method, model.InternalError, fmt.Errorf("build upstream request: %w", err), start)
	}
	if fr.Header != nil {
		req.Header = fr.Header.Clone()
	}
	c.tracer.Inject(ctx, req.Header)

	c.logger.Debug("upstream request",
		"service", target.Name,
		"method", fr.Method,
		"path", fr.Path,
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		telemetry.EndWithStatus(span, 0, err)
		return c.fail(target, fr.Method, transportKind(err), fmt.Errorf("upstream request: %w", err), start)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		telemetry.EndWithStatus(span, resp.StatusCode, err)
		return c.fail(target, fr.Method, transportKind(err), fmt.Errorf("read upstream body: %w", err), start)
	}

	c.metrics.ObserveUpstream(target.Name, fr.Method, resp.StatusCode, time.Since(start))
	if resp.StatusCode >= http.StatusInternalServerError {
		c.metrics.UpstreamError(target.Name, model.UpstreamError.String())
	}
	telemetry.EndWithStatus(span, resp.StatusCode, nil)

	return &model.Success{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   body,
	}
}

func (c *UpstreamClient) fail(target model.UpstreamTarget, method string, kind model.FailureKind, err error, start time.Time) *model.Failure {
	c.metrics.ObserveUpstream(target.Name, method, 0, time.Since(start))
	c.metrics.UpstreamError(target.Name, kind.String())
	return &model.Failure{
		Kind:    kind,
		Service: target.Name,
		Detail:  err.Error(),
		Err:     err,
	}
}

// transportKind reports whether err means the upstream could not be reached.
func transportKind(err error) model.FailureKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return model.UpstreamUnreachable
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}

	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET):
		return model.UpstreamUnreachable
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return model.UpstreamUnreachable
	}
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return model.UpstreamUnreachable
	}
	var recErr tls.RecordHeaderError
	if errors.As(err, &recErr) {
		return model.UpstreamUnreachable
	}

	return model.InternalError
}
