package main

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const watchedConfig = `
database:
  driver: memory
alerts:
  monitor_ids: "7"
  polling_interval: 45
`

func TestConfigWatcherReload(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		applyErr  error
		wantOK    bool
		wantApply bool
	}{
		{name: "valid", content: watchedConfig, wantOK: true, wantApply: true},
		{name: "malformed", content: "alerts: [", wantOK: false},
		{name: "invalid settings", content: "alerts:\n  monitor_ids: \"7\"\n  polling_interval: 1\n", wantOK: false},
		{name: "no monitors", content: "server:\n  address: 127.0.0.1:9999\n", wantOK: false},
		{name: "apply rejected", content: watchedConfig, applyErr: errors.New("boom"), wantOK: false, wantApply: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			var applied *Config
			w := newConfigWatcher(path, func(c *Config) error {
				applied = c
				return tt.applyErr
			}, zerolog.Nop())

			if got := w.reload(); got != tt.wantOK {
				t.Errorf("reload() = %v, want %v", got, tt.wantOK)
			}
			if (applied != nil) != tt.wantApply {
				t.Fatalf("apply called = %v, want %v", applied != nil, tt.wantApply)
			}
			if applied != nil && applied.Alerts.PollingInterval != 45 {
				t.Errorf("PollingInterval = %d", applied.Alerts.PollingInterval)
			}
		})
	}
}

func TestConfigWatcherRun(t *testing.T) {
	path := writeConfig(t, "alerts:\n  monitor_ids: \"7\"\n")

	applied := make(chan *Config, 4)
	w := newConfigWatcher(path, func(c *Config) error {
		applied <- c
		return nil
	}, zerolog.Nop())
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte(watchedConfig), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	select {
	case c := <-applied:
		if c.Alerts.PollingInterval != 45 {
			t.Errorf("PollingInterval = %d, want 45", c.Alerts.PollingInterval)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not applied")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}
