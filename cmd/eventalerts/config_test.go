package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/eventalerts/internal/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Address != "127.0.0.1:8787" {
		t.Errorf("Server.Address = %q", cfg.Server.Address)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.Path != "./data/eventalerts.db" {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.Metrics.Address != "127.0.0.1:9464" {
		t.Errorf("Metrics.Address = %q", cfg.Metrics.Address)
	}
	if cfg.Notifications.OverlayBuffer != 16 || cfg.Notifications.Concurrency != 8 {
		t.Errorf("Notifications = %+v", cfg.Notifications)
	}
	if cfg.Alerts.PollOnStart == nil || !*cfg.Alerts.PollOnStart {
		t.Error("PollOnStart should default to true")
	}
	if cfg.Alerts.PollingInterval != models.DefaultPollingInterval {
		t.Errorf("PollingInterval = %d", cfg.Alerts.PollingInterval)
	}
	if cfg.Alerts.HasMonitors() {
		t.Error("default config should have no monitors")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
	if got := duration(cfg.Server.RequestTimeout); got != 30*time.Second {
		t.Errorf("request timeout = %v", got)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			modify: func(c *Config) {},
		},
		{
			name:    "invalid duration",
			modify:  func(c *Config) { c.Server.RequestTimeout = "soon" },
			wantErr: "server.request_timeout",
		},
		{
			name:    "negative duration",
			modify:  func(c *Config) { c.API.Timeout = "-5s" },
			wantErr: "api.timeout",
		},
		{
			name:    "wildcard trusted origin",
			modify:  func(c *Config) { c.Server.TrustedOrigins = []string{"app.example.com", "*"} },
			wantErr: "server.trusted_origins",
		},
		{
			name:   "explicit trusted origin",
			modify: func(c *Config) { c.Server.TrustedOrigins = []string{"*.example.com"} },
		},
		{
			name:    "unknown driver",
			modify:  func(c *Config) { c.Database.Driver = "postgres" },
			wantErr: "database.driver",
		},
		{
			name: "memory driver needs no path",
			modify: func(c *Config) {
				c.Database.Driver = "memory"
				c.Database.Path = ""
			},
		},
		{
			name:    "bad webhook url",
			modify:  func(c *Config) { c.Notifications.WebhookURL = "ftp://bridge.local" },
			wantErr: "notifications.webhook_url",
		},
		{
			name:    "negative buffer",
			modify:  func(c *Config) { c.Notifications.OverlayBuffer = -1 },
			wantErr: "overlay_buffer",
		},
		{
			name: "alerts validated when monitors set",
			modify: func(c *Config) {
				c.Alerts.MonitorIDs = "123"
				c.Alerts.PollingInterval = 5
			},
			wantErr: "polling_interval",
		},
		{
			name:   "alerts skipped without monitors",
			modify: func(c *Config) { c.Alerts.PollingInterval = 5 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  address: 127.0.0.1:9000
  allowed_origins: ["*.example.com"]
database:
  driver: memory
logging:
  level: debug
api:
  site: datadoghq.eu
alerts:
  monitor_ids: "123, 456"
  polling_interval: 30
  notification_type: both
  target_domains: "*.example.com"
  poll_on_start: false
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() = %v", err)
	}
	if cfg.Server.Address != "127.0.0.1:9000" {
		t.Errorf("Server.Address = %q", cfg.Server.Address)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "*.example.com" {
		t.Errorf("AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Database.Driver != "memory" || cfg.Database.Path != "" {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
	if got := cfg.Alerts.ParsedMonitorIDs(); len(got) != 2 || got[0] != 123 || got[1] != 456 {
		t.Errorf("ParsedMonitorIDs() = %v", got)
	}
	if cfg.Alerts.PollingInterval != 30 || cfg.Alerts.NotificationType != models.NotificationBoth {
		t.Errorf("Alerts = %+v", cfg.Alerts.Settings)
	}
	if cfg.Alerts.MaxEventsHistory != models.DefaultEventsHistory {
		t.Errorf("MaxEventsHistory = %d", cfg.Alerts.MaxEventsHistory)
	}
	if cfg.Alerts.PollOnStart == nil || *cfg.Alerts.PollOnStart {
		t.Error("poll_on_start: false was not honored")
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := LoadConfig(writeConfig(t, "server: [")); err == nil {
		t.Error("expected error for malformed YAML")
	}
	if _, err := LoadConfig(writeConfig(t, "alerts:\n  monitor_ids: \"1\"\n  notification_type: pager\n")); err == nil {
		t.Error("expected error for invalid alerts")
	}
}

func TestCredentialsFromEnv(t *testing.T) {
	t.Setenv(envAPIKey, " api-secret ")
	t.Setenv(envAppKey, "app-secret")

	cfg := DefaultConfig()
	cfg.API.Site = "datadoghq.eu"
	creds := cfg.Credentials()

	if creds.APIKey != "api-secret" || creds.AppKey != "app-secret" {
		t.Errorf("keys = %q, %q", creds.APIKey, creds.AppKey)
	}
	if creds.APIBaseURL() != "https://api.datadoghq.eu" {
		t.Errorf("APIBaseURL() = %q", creds.APIBaseURL())
	}
}

func TestBuildApp(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "data", "eventalerts.db")

	a, err := buildApp(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("buildApp() = %v", err)
	}
	defer a.Close()

	if _, err := os.Stat(cfg.Database.Path); err != nil {
		t.Errorf("database file not created: %v", err)
	}

	rec := httptest.NewRecorder()
	a.api.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Data struct {
			Configured bool `json:"configured"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Configured {
		t.Error("engine should not be configured without monitors")
	}

	rec = httptest.NewRecorder()
	a.api.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("live status = %d", rec.Code)
	}
}

func TestTestConnection(t *testing.T) {
	keys := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys <- r.Header.Get("DD-API-KEY")
		happened := time.Now().Add(-10 * time.Minute).Unix()
		fmt.Fprintf(w, `{"events":[{"id":1,"title":"a","date_happened":%d,"alert_type":"error"},{"id":2,"title":"b","date_happened":%d,"alert_type":"info"}]}`, happened, happened)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.Alerts.MonitorIDs = "42"
	creds := models.Credentials{APIKey: "k", AppKey: "a", BaseURL: srv.URL}

	n, err := testConnection(context.Background(), cfg, creds)
	if err != nil {
		t.Fatalf("testConnection() = %v", err)
	}
	if n != 2 {
		t.Errorf("events = %d, want 2", n)
	}
	if got := <-keys; got != "k" {
		t.Errorf("api key header = %q", got)
	}
}

func TestTestConnectionUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":["Forbidden"]}`, http.StatusForbidden)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.Alerts.MonitorIDs = "42"

	if _, err := testConnection(context.Background(), cfg, models.Credentials{BaseURL: srv.URL}); err == nil {
		t.Fatal("expected error for 403")
	}
}
