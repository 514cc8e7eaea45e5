// Package api provides the HTTP control surface of the alerting engine.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/eventalerts/internal/alerting"
	"github.com/good-yellow-bee/eventalerts/internal/api/health"
	"github.com/good-yellow-bee/eventalerts/internal/models"
	"github.com/good-yellow-bee/eventalerts/internal/notifier"
)

// Config contains HTTP API server configuration.
type Config struct {
	Address           string
	AllowedOrigins    []string      // domain patterns allowed to open overlay streams cross-origin
	TrustedOrigins    []string      // domain patterns allowed to change state from a browser page
	RequestTimeout    time.Duration // bound for handlers that call the remote API
	StreamHeartbeat   time.Duration
	StreamMaxDuration time.Duration
	Verbose           bool
}

// SetDefaults applies default values for missing configuration.
func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = "127.0.0.1:8787"
	}
	if c.AllowedOrigins == nil {
		c.AllowedOrigins = []string{"*"}
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.StreamHeartbeat == 0 {
		c.StreamHeartbeat = 15 * time.Second
	}
	if c.StreamMaxDuration == 0 {
		c.StreamMaxDuration = 30 * time.Minute
	}
}

// Engine is the engine surface used by the handlers.
type Engine interface {
	Status() models.PollingStatus
	Stats() alerting.EngineStatsSnapshot
	Settings() (models.Settings, bool)
	UpdateSettings(ctx context.Context, settings models.Settings) error
	Resume(ctx context.Context) error
	Stop()
	ForcePoll(ctx context.Context) (alerting.PollResult, error)
	Events(ctx context.Context) ([]models.ProcessedEvent, error)
	EventStats(ctx context.Context) (models.EventStats, error)
	DismissEvent(ctx context.Context, id string) error
	ClearEvents(ctx context.Context) error
	TestConnection(ctx context.Context) (int, error)
}

// Notifications resolves clicks on native notifications.
type Notifications interface {
	OnNotificationClick(ctx context.Context, notificationID string) (notifier.ClickRecord, error)
	OnButtonClick(ctx context.Context, notificationID string, index int) (notifier.ButtonAction, error)
	ClearAll(ctx context.Context) error
}

// Deps are the components served by the API.
type Deps struct {
	Engine        Engine
	Notifications Notifications
	Overlay       *notifier.Hub
	Logger        zerolog.Logger
}

// Server is the HTTP API server.
type Server struct {
	config        *Config
	engine        Engine
	notifications Notifications
	overlay       *notifier.Hub
	log           zerolog.Logger
	server        *http.Server
	healthHandler *health.Handler
}

// New creates a new API server.
func New(cfg *Config, deps Deps) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if deps.Overlay == nil {
		deps.Overlay = notifier.NewHub(0)
	}

	cfg.SetDefaults()

	s := &Server{
		config:        cfg,
		engine:        deps.Engine,
		notifications: deps.Notifications,
		overlay:       deps.Overlay,
		log:           deps.Logger.With().Str("component", "api").Logger(),
		healthHandler: health.NewHandler(5 * time.Second),
	}
	s.healthHandler.RegisterChecker(health.NewEngineChecker(deps.Engine.Status))

	s.server = &http.Server{
		Addr:        cfg.Address,
		Handler:     s.setupRouter(),
		ReadTimeout: 15 * time.Second,
		// Overlay streams stay open for up to StreamMaxDuration, so there is
		// no global write timeout.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Run starts the HTTP server and blocks until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		s.log.Info().Str("addr", s.config.Address).Msg("HTTP API listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info().Msg("shutting down HTTP API server")
		// Open overlay streams only end when their contexts close.
		s.overlay.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.config.Address
}

// RegisterHealthChecker adds a health checker to the server.
func (s *Server) RegisterHealthChecker(c health.Checker) {
	s.healthHandler.RegisterChecker(c)
}
