// Package config handles configuration loading and validation.
//
// Values come from built-in defaults, an optional TOML file and CLI flags or
// environment variables, in increasing order of precedence.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/edge-gateway/config.toml",
	"configs/config.toml",
}

// Version is the build version, injected through fx.
type Version string

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config          string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host            string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port            int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	BackendURL      string `kong:"name='backend-url',help='Backend service base URL.',env='BACKEND_SERVICE_URL'"`
	ProductURL      string `kong:"name='product-url',help='Product service base URL.',env='PRODUCT_SERVICE_URL'"`
	UpstreamTimeout int    `kong:"name='upstream-timeout',help='Upstream call timeout in seconds.',env='UPSTREAM_TIMEOUT_SECONDS'"`
	StorageURL      string `kong:"name='storage-url',help='Item store connection string (redis://...).',env='STORAGE_URL'"`
	StorageName     string `kong:"name='storage-name',help='Item store namespace.',env='STORAGE_NAME'"`
	ServiceName     string `kong:"name='service-name',help='Service name reported in traces.',env='SERVICE_NAME'"`
	OTLPEndpoint    string `kong:"name='otlp-endpoint',help='OTLP gRPC collector endpoint.',env='OTEL_EXPORTER_OTLP_ENDPOINT'"`
	Environment     string `kong:"help='Deployment environment reported in traces.',env='ENVIRONMENT'"`
	LogLevel        string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Upstreams UpstreamsConfig `toml:"upstreams"`
	Storage   StorageConfig   `toml:"storage"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Log       LogConfig       `toml:"log"`
	Metrics   MetricsConfig   `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"` // 0 means "use default" (3000); TOML cannot distinguish 0 from unset
	BodyMaxBytes int64  `toml:"body_max_bytes"`
}

// UpstreamsConfig holds the upstream service addresses and connection settings.
type UpstreamsConfig struct {
	BackendURL      string `toml:"backend_url"`
	ProductURL      string `toml:"product_url"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	IdleConnections int    `toml:"idle_connections"`
}

// StorageConfig holds the item store connection settings.
type StorageConfig struct {
	URL  string `toml:"url"`
	Name string `toml:"name"`
}

// TelemetryConfig holds trace and metric export settings.
type TelemetryConfig struct {
	ServiceName           string   `toml:"service_name"`
	OTLPEndpoint          string   `toml:"otlp_endpoint"`
	Environment           string   `toml:"environment"`
	SamplingRate          *float64 `toml:"sampling_rate"`
	MetricIntervalSeconds int      `toml:"metric_interval_seconds"`
	Disabled              bool     `toml:"disabled"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Path string `toml:"path"`
}

// Load reads the optional TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/edge-gateway/config.toml then configs/config.toml. Without any file
// the defaults are used, which suit local development.
func Load(cli *CLI) (*Config, error) {
	var cfg Config

	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.BackendURL != "" {
		c.Upstreams.BackendURL = cli.BackendURL
	}
	if cli.ProductURL != "" {
		c.Upstreams.ProductURL = cli.ProductURL
	}
	if cli.UpstreamTimeout != 0 {
		c.Upstreams.TimeoutSeconds = cli.UpstreamTimeout
	}
	if cli.StorageURL != "" {
		c.Storage.URL = cli.StorageURL
	}
	if cli.StorageName != "" {
		c.Storage.Name = cli.StorageName
	}
	if cli.ServiceName != "" {
		c.Telemetry.ServiceName = cli.ServiceName
	}
	if cli.OTLPEndpoint != "" {
		c.Telemetry.OTLPEndpoint = cli.OTLPEndpoint
	}
	if cli.Environment != "" {
		c.Telemetry.Environment = cli.Environment
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	for name, raw := range map[string]string{
		"upstreams.backend_url": c.Upstreams.BackendURL,
		"upstreams.product_url": c.Upstreams.ProductURL,
	} {
		if err := validateHTTPURL(name, raw); err != nil {
			return err
		}
	}

	u, err := url.Parse(c.Storage.URL)
	if err != nil {
		return fmt.Errorf("storage.url is not a valid URL: %w", err)
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return fmt.Errorf("storage.url must use redis:// or rediss://; got %q", u.Scheme)
	}
	if strings.ContainsAny(c.Storage.Name, " :") {
		return fmt.Errorf("storage.name must not contain spaces or colons; got %q", c.Storage.Name)
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0-65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Upstreams.TimeoutSeconds < 0 {
		return fmt.Errorf("upstreams.timeout_seconds must be non-negative; got %d", c.Upstreams.TimeoutSeconds)
	}
	if c.Upstreams.IdleConnections < 0 {
		return fmt.Errorf("upstreams.idle_connections must be non-negative; got %d", c.Upstreams.IdleConnections)
	}
	if r := c.Telemetry.SamplingRate; r != nil && (*r < 0 || *r > 1) {
		return fmt.Errorf("telemetry.sampling_rate must be within [0, 1]; got %v", *r)
	}
	if c.Telemetry.MetricIntervalSeconds < 0 {
		return fmt.Errorf("telemetry.metric_interval_seconds must be non-negative; got %d", c.Telemetry.MetricIntervalSeconds)
	}

	// Log fields.
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	p := c.Metrics.Path
	if p[0] != '/' {
		return fmt.Errorf("metrics.path must start with '/'; got %q", p)
	}
	for _, reserved := range []string{"/api", "/health"} {
		if p == reserved || strings.HasPrefix(p, reserved+"/") {
			return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
		}
	}

	return nil
}

func validateHTTPURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https; got %q", name, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host; got %q", name, raw)
	}
	return nil
}

// setDefaults fills zero-valued fields with defaults suitable for local development.
// For integer fields zero means "unset" because TOML cannot distinguish between
// an explicit 0 and an omitted key.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 1024 * 1024 // 1 MB
	}
	if c.Upstreams.BackendURL == "" {
		c.Upstreams.BackendURL = "http://localhost:8000"
	}
	if c.Upstreams.ProductURL == "" {
		c.Upstreams.ProductURL = "http://localhost:8001"
	}
	if c.Upstreams.TimeoutSeconds == 0 {
		c.Upstreams.TimeoutSeconds = 10
	}
	if c.Upstreams.IdleConnections == 0 {
		c.Upstreams.IdleConnections = 100
	}
	if c.Storage.URL == "" {
		c.Storage.URL = "redis://localhost:6379/0"
	}
	if c.Storage.Name == "" {
		c.Storage.Name = "async_micro"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "gateway-service"
	}
	if c.Telemetry.OTLPEndpoint == "" {
		c.Telemetry.OTLPEndpoint = "localhost:4317"
	}
	if c.Telemetry.Environment == "" {
		c.Telemetry.Environment = "production"
	}
	if c.Telemetry.SamplingRate == nil {
		rate := 1.0
		c.Telemetry.SamplingRate = &rate
	}
	if c.Telemetry.MetricIntervalSeconds == 0 {
		c.Telemetry.MetricIntervalSeconds = 15
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Timeout returns the per-call upstream timeout.
func (c *UpstreamsConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// MetricInterval returns how often metrics are pushed to the collector.
func (c *TelemetryConfig) MetricInterval() time.Duration {
	return time.Duration(c.MetricIntervalSeconds) * time.Second
}

// FilePath returns the config file the values were read from, if any.
func (c *Config) FilePath() string {
	return c.filePath
}

// LogSummary writes the effective upstream and storage settings at startup.
func (c *Config) LogSummary(logger *slog.Logger) {
	logger.Info("configuration loaded",
		"file", c.filePath,
		"addr", c.Server.Addr(),
		"backend_url", c.Upstreams.BackendURL,
		"product_url", c.Upstreams.ProductURL,
		"upstream_timeout", c.Upstreams.Timeout().String(),
		"storage_name", c.Storage.Name,
		"otlp_endpoint", c.Telemetry.OTLPEndpoint,
	)
}
