package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/good-yellow-bee/eventalerts/internal/logging"
	"github.com/good-yellow-bee/eventalerts/internal/models"
	"github.com/good-yellow-bee/eventalerts/internal/notifier"
)

// Environment variables holding the remote API secrets.
const (
	envAPIKey = "EVENTALERTS_API_KEY"
	envAppKey = "EVENTALERTS_APP_KEY"
)

// Config represents the eventalerts configuration file.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Logging       logging.Config      `yaml:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	API           RemoteAPIConfig     `yaml:"api"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Alerts        AlertsConfig        `yaml:"alerts"`
	Verbose       bool                `yaml:"-"` // set via CLI flag
}

// ServerConfig contains the HTTP control surface settings.
type ServerConfig struct {
	Address           string   `yaml:"address"`             // default 127.0.0.1:8787
	AllowedOrigins    []string `yaml:"allowed_origins"`     // overlay CORS patterns (default: any)
	TrustedOrigins    []string `yaml:"trusted_origins"`     // pages allowed to call state-changing endpoints
	RequestTimeout    string   `yaml:"request_timeout"`     // default 30s
	StreamMaxDuration string   `yaml:"stream_max_duration"` // default 30m
}

// DatabaseConfig contains persistence settings.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite (default) or memory
	Path   string `yaml:"path"`   // SQLite file
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"` // default 127.0.0.1:9464
}

// RemoteAPIConfig contains the remote events API client settings.
type RemoteAPIConfig struct {
	Site               string  `yaml:"site"`     // e.g. datadoghq.eu
	BaseURL            string  `yaml:"base_url"` // overrides https://api.<site>
	Timeout            string  `yaml:"timeout"`  // default 30s
	UserAgent          string  `yaml:"user_agent"`
	MonitorLookupRate  float64 `yaml:"monitor_lookup_rate"`  // lookups per second (default 2)
	MonitorLookupBurst int     `yaml:"monitor_lookup_burst"` // default 5
}

// NotificationsConfig contains delivery settings.
type NotificationsConfig struct {
	WebhookURL     string `yaml:"webhook_url"`     // desktop bridge; empty logs notifications instead
	WebhookTimeout string `yaml:"webhook_timeout"` // default 10s
	OpenCommand    string `yaml:"open_command"`    // e.g. xdg-open; empty logs URLs instead
	OverlayBuffer  int    `yaml:"overlay_buffer"`  // per-context queue (default 16)
	Concurrency    int    `yaml:"concurrency"`     // parallel in-page deliveries (default 8)
}

// AlertsConfig holds the engine settings. Polling starts at boot when
// monitor_ids is set; otherwise settings are supplied through the API.
type AlertsConfig struct {
	models.Settings `yaml:",inline"`
	PollOnStart     *bool `yaml:"poll_on_start"` // default true
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// setDefaults sets default values for missing config fields.
func (c *Config) setDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = "127.0.0.1:8787"
	}
	if c.Server.RequestTimeout == "" {
		c.Server.RequestTimeout = "30s"
	}
	if c.Server.StreamMaxDuration == "" {
		c.Server.StreamMaxDuration = "30m"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Path == "" && c.Database.Driver == "sqlite" {
		c.Database.Path = "./data/eventalerts.db"
	}
	if c.Metrics.Address == "" {
		c.Metrics.Address = "127.0.0.1:9464"
	}
	if c.API.Timeout == "" {
		c.API.Timeout = "30s"
	}
	if c.API.MonitorLookupRate == 0 {
		c.API.MonitorLookupRate = 2
	}
	if c.API.MonitorLookupBurst == 0 {
		c.API.MonitorLookupBurst = 5
	}
	if c.Notifications.WebhookTimeout == "" {
		c.Notifications.WebhookTimeout = "10s"
	}
	if c.Notifications.OverlayBuffer == 0 {
		c.Notifications.OverlayBuffer = 16
	}
	if c.Notifications.Concurrency == 0 {
		c.Notifications.Concurrency = 8
	}
	if c.Alerts.PollOnStart == nil {
		enabled := true
		c.Alerts.PollOnStart = &enabled
	}
	c.Alerts.Settings = c.Alerts.Settings.WithDefaults()
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	for _, p := range c.Server.TrustedOrigins {
		if strings.TrimSpace(p) == "*" {
			return fmt.Errorf("server.trusted_origins: \"*\" would let any site control the engine")
		}
	}
	for field, value := range map[string]string{
		"server.request_timeout":        c.Server.RequestTimeout,
		"server.stream_max_duration":    c.Server.StreamMaxDuration,
		"api.timeout":                   c.API.Timeout,
		"notifications.webhook_timeout": c.Notifications.WebhookTimeout,
	} {
		if _, err := parsePositiveDuration(value); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case "memory":
	default:
		return fmt.Errorf("database.driver must be sqlite or memory, got %q", c.Database.Driver)
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return fmt.Errorf("metrics.address is required when metrics are enabled")
	}
	if c.API.MonitorLookupRate < 0 || c.API.MonitorLookupBurst < 0 {
		return fmt.Errorf("api.monitor_lookup_rate and api.monitor_lookup_burst must not be negative")
	}

	if c.Notifications.WebhookURL != "" {
		wh := notifier.WebhookConfig{URL: c.Notifications.WebhookURL}
		if err := wh.Validate(); err != nil {
			return fmt.Errorf("notifications.webhook_url: %w", err)
		}
	}
	if c.Notifications.OverlayBuffer < 0 || c.Notifications.Concurrency < 0 {
		return fmt.Errorf("notifications.overlay_buffer and notifications.concurrency must not be negative")
	}

	if c.Alerts.HasMonitors() {
		if err := c.Alerts.Settings.Validate(); err != nil {
			return fmt.Errorf("alerts: %w", err)
		}
	}
	return nil
}

// HasMonitors reports whether monitor ids were configured.
func (a AlertsConfig) HasMonitors() bool {
	return strings.TrimSpace(a.MonitorIDs) != ""
}

// Credentials returns the remote API credentials, reading secrets from the
// environment.
func (c *Config) Credentials() models.Credentials {
	return models.Credentials{
		APIKey:  strings.TrimSpace(os.Getenv(envAPIKey)),
		AppKey:  strings.TrimSpace(os.Getenv(envAppKey)),
		Site:    c.API.Site,
		BaseURL: c.API.BaseURL,
	}
}

// duration returns a validated duration field; Validate has already run.
func duration(value string) time.Duration {
	d, _ := parsePositiveDuration(value)
	return d
}

func parsePositiveDuration(value string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", value)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %q", value)
	}
	return d, nil
}
