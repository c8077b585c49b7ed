package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"

	"edge-gateway/internal/client"
	"edge-gateway/internal/config"
	"edge-gateway/internal/handler"
	"edge-gateway/internal/metrics"
	"edge-gateway/internal/middleware"
	"edge-gateway/internal/router"
	"edge-gateway/internal/service"
	"edge-gateway/internal/store"
	"edge-gateway/internal/telemetry"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var cli config.CLI
	kong.Parse(&cli,
		kong.Name("edge-gateway"),
		kong.Description("HTTP edge gateway for the backend and product services."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	fx.New(
		fx.Provide(
			func() *config.CLI { return &cli },
			func() config.Version { return config.Version(version) },
			config.Load,
			newLogger,
			metrics.New,
			newTracer,
			newMetricExporter,
			router.NewDefault,
			fx.Annotate(newItemStore, fx.As(new(handler.ItemStore))),
			fx.Annotate(client.NewUpstreamClient, fx.As(new(service.Forwarder))),
			service.NewGateway,
			handler.NewCatalog,
			handler.NewProxyHandler,
			handler.NewItemsHandler,
			handler.NewHealthHandler,
			newEcho,
		),
		fx.Invoke(logStartup, handler.RegisterRoutes, startServer),
		// Metric export runs on its own; nothing else depends on it.
		fx.Invoke(func(*telemetry.MetricExporter) {}),
	).Run()
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "text":
		h = slog.NewTextHandler(os.Stdout, opts)
	default:
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(h)
}

func newTracer(lc fx.Lifecycle, cfg *config.Config, v config.Version, logger *slog.Logger) (*telemetry.Tracer, error) {
	t, err := telemetry.NewTracer(cfg, v, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return t.Shutdown(ctx)
		},
	})
	return t, nil
}

func newMetricExporter(lc fx.Lifecycle, cfg *config.Config, v config.Version, m *metrics.Metrics, logger *slog.Logger) (*telemetry.MetricExporter, error) {
	e, err := telemetry.NewMetricExporter(cfg, v, m, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return e.Shutdown(ctx)
		},
	})
	return e, nil
}

// newItemStore connects to storage before the listener starts; a failure
// aborts startup.
func newItemStore(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) (*store.ItemStore, error) {
	s, err := store.Connect(context.Background(), cfg, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return s.Close()
		},
	})
	return s, nil
}

func newEcho(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics, t *telemetry.Tracer, cat *handler.Catalog) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.NewErrorHandler(cat, logger)

	e.Server.ReadTimeout = 30 * time.Second
	// Upstream calls are bounded by the client timeout; leave headroom for the reply.
	e.Server.WriteTimeout = cfg.Upstreams.Timeout() + 10*time.Second
	e.Server.IdleTimeout = 120 * time.Second
	e.Server.ReadHeaderTimeout = 10 * time.Second

	e.Use(echomw.RequestID())
	e.Use(telemetry.Middleware(t, "/health", cfg.Metrics.Path))
	e.Use(middleware.RequestLogger(logger))
	e.Use(middleware.MetricsMiddleware(m))
	e.Use(echomw.Recover())
	e.Use(echomw.BodyLimit(fmt.Sprintf("%dB", cfg.Server.BodyMaxBytes)))
	e.Use(middleware.SecurityHeaders())

	return e
}

func logStartup(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) {
	cfg.LogSummary(logger)
	m.InitCircuitBreakers(router.Backend, router.Product)
}

func startServer(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := cfg.Server.Addr()
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind %s: %w", addr, err)
			}
			logger.Info("starting server", "addr", addr, "version", version)
			go func() {
				if err := e.Server.Serve(ln); err != nil && err != http.ErrServerClosed {
					logger.Error("server error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down server")
			return e.Shutdown(ctx)
		},
	})
}
