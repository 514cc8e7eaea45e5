package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const reloadDebounce = 250 * time.Millisecond

// configWatcher reloads the config file when it changes and hands the
// result to apply. Invalid files are logged and the running settings kept.
type configWatcher struct {
	path     string
	apply    func(*Config) error
	log      zerolog.Logger
	debounce time.Duration
}

func newConfigWatcher(path string, apply func(*Config) error, log zerolog.Logger) *configWatcher {
	return &configWatcher{
		path:     path,
		apply:    apply,
		log:      log,
		debounce: reloadDebounce,
	}
}

// Run watches the config file until ctx is canceled.
func (w *configWatcher) Run(ctx context.Context) error {
	absPath, err := filepath.Abs(w.path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Editors replace files on save; watch the directory.
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(absPath), err)
	}

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			pending = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("config watcher error")
		case <-pending:
			pending = nil
			w.reload()
		}
	}
}

// reload reads the file and applies it. It reports whether apply ran
// without error.
func (w *configWatcher) reload() bool {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		w.log.Warn().Err(err).Str("path", w.path).Msg("config reload rejected")
		return false
	}
	if !cfg.Alerts.HasMonitors() {
		w.log.Warn().Str("path", w.path).Msg("config reload ignored: no monitor ids")
		return false
	}
	if err := w.apply(cfg); err != nil {
		w.log.Warn().Err(err).Str("path", w.path).Msg("config reload rejected")
		return false
	}
	w.log.Info().Str("bucket", cfg.Alerts.BucketKey()).Msg("settings reloaded")
	return true
}
