package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/eventalerts/internal/alerting"
	"github.com/good-yellow-bee/eventalerts/internal/api"
	"github.com/good-yellow-bee/eventalerts/internal/api/health"
	"github.com/good-yellow-bee/eventalerts/internal/fetcher"
	"github.com/good-yellow-bee/eventalerts/internal/logging"
	"github.com/good-yellow-bee/eventalerts/internal/metrics"
	"github.com/good-yellow-bee/eventalerts/internal/notifier"
	"github.com/good-yellow-bee/eventalerts/internal/storage"
	"github.com/good-yellow-bee/eventalerts/pkg/config"
)

// app holds the wired components of a running instance.
type app struct {
	kv         storage.KV
	engine     *alerting.Engine
	dispatcher *notifier.Dispatcher
	api        *api.Server
}

// buildApp wires storage, fetcher, notifier, engine and API from cfg.
func buildApp(cfg *Config, log zerolog.Logger) (*app, error) {
	if cfg.Database.Driver == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0750); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	kv, err := storage.Open(cfg.Database.Driver, cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	client := fetcher.NewClient(fetcher.Config{
		Timeout:   duration(cfg.API.Timeout),
		UserAgent: cfg.API.UserAgent,
	})
	resolver := fetcher.NewMonitorResolver(client, fetcher.ResolverConfig{
		RatePerSec: cfg.API.MonitorLookupRate,
		Burst:      cfg.API.MonitorLookupBurst,
	}, logging.Component(log, "resolver"))

	notifyLog := logging.Component(log, "notifier")
	var native notifier.NativeProvider = notifier.NewLogProvider(notifyLog)
	if cfg.Notifications.WebhookURL != "" {
		wh, err := notifier.NewWebhookProvider(notifier.WebhookConfig{
			URL:     cfg.Notifications.WebhookURL,
			Timeout: duration(cfg.Notifications.WebhookTimeout),
		})
		if err != nil {
			kv.Close()
			return nil, fmt.Errorf("create webhook provider: %w", err)
		}
		native = wh
	}

	var opener notifier.URLOpener = notifier.NewLogOpener(notifyLog)
	if cfg.Notifications.OpenCommand != "" {
		cmdOpener, err := notifier.NewCommandOpener(cfg.Notifications.OpenCommand)
		if err != nil {
			kv.Close()
			return nil, fmt.Errorf("create opener: %w", err)
		}
		opener = cmdOpener
	}

	templates, err := notifier.LoadTemplates()
	if err != nil {
		kv.Close()
		return nil, fmt.Errorf("load templates: %w", err)
	}

	hub := notifier.NewHub(cfg.Notifications.OverlayBuffer)
	dispatcher := notifier.NewDispatcher(notifier.Options{
		Native:      native,
		Overlay:     hub,
		Clicks:      notifier.NewClickStore(kv),
		Opener:      opener,
		Templates:   templates,
		Logger:      notifyLog,
		Concurrency: cfg.Notifications.Concurrency,
	})

	engine := alerting.New(alerting.Options{
		Fetcher:     client,
		Resolver:    resolver,
		Store:       storage.NewEventStore(kv),
		Dispatcher:  dispatcher,
		Logger:      logging.Component(log, "engine"),
		PollOnStart: *cfg.Alerts.PollOnStart,
	})
	dispatcher.SetDismissHandler(engine.DismissEvent)
	engine.UpdateCredentials(cfg.Credentials())

	apiSrv, err := api.New(&api.Config{
		Address:           cfg.Server.Address,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		TrustedOrigins:    cfg.Server.TrustedOrigins,
		RequestTimeout:    duration(cfg.Server.RequestTimeout),
		StreamMaxDuration: duration(cfg.Server.StreamMaxDuration),
		Verbose:           cfg.Verbose,
	}, api.Deps{
		Engine:        engine,
		Notifications: dispatcher,
		Overlay:       hub,
		Logger:        log,
	})
	if err != nil {
		dispatcher.Close()
		kv.Close()
		return nil, fmt.Errorf("create api server: %w", err)
	}
	if s, ok := kv.(*storage.SQLiteStorage); ok {
		apiSrv.RegisterHealthChecker(health.NewSQLiteChecker(s.DB()))
	}

	return &app{
		kv:         kv,
		engine:     engine,
		dispatcher: dispatcher,
		api:        apiSrv,
	}, nil
}

// Close stops polling and releases resources.
func (a *app) Close() error {
	a.engine.Stop()
	return errors.Join(a.dispatcher.Close(), a.kv.Close())
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, closeLog, err := logging.New(cfg.Logging, os.Stdout)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer closeLog()

	metrics.SetBuildInfo(config.Version, config.Commit, config.BuildTime)

	a, err := buildApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	log.Info().
		Str("driver", cfg.Database.Driver).
		Str("path", cfg.Database.Path).
		Msg("storage initialized")

	// Setup signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
	}()

	if cfg.Alerts.HasMonitors() {
		if err := a.engine.Start(ctx, cfg.Alerts.Settings, cfg.Credentials()); err != nil {
			return fmt.Errorf("start engine: %w", err)
		}
	} else {
		log.Info().Msg("no monitors configured; waiting for settings through the API")
	}

	if cfg.Metrics.Enabled {
		metricsSrv := metrics.NewServer(cfg.Metrics.Address, logging.Component(log, "metrics"))
		go func() {
			if err := metricsSrv.Run(ctx); err != nil {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	if configFile != "" {
		w := newConfigWatcher(configFile, func(next *Config) error {
			return a.engine.UpdateSettings(ctx, next.Alerts.Settings)
		}, logging.Component(log, "config"))
		go func() {
			if err := w.Run(ctx); err != nil {
				log.Warn().Err(err).Msg("config watcher stopped")
			}
		}()
	}

	log.Info().Str("version", config.Version).Msg("starting eventalerts")

	if err := a.api.Run(ctx); err != nil {
		return fmt.Errorf("run api server: %w", err)
	}
	log.Info().Msg("eventalerts stopped")
	return nil
}
