package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/eventalerts/internal/api/middleware"
	"github.com/good-yellow-bee/eventalerts/internal/api/overlay"
)

// setupRouter creates and configures the chi router with all routes.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestLogger(s.log, s.config.Verbose))
	r.Use(middleware.PrometheusMiddleware)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recoverer(s.log))

	overlayHandler := overlay.NewHandler(s.overlay, overlay.Config{
		Heartbeat:   s.config.StreamHeartbeat,
		MaxDuration: s.config.StreamMaxDuration,
	}, s.log)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.CrossSiteGuard(s.config.TrustedOrigins))

		r.Get("/status", s.handleStatus)
		r.Get("/stats", s.handleStats)

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", s.handleGetSettings)
			r.Put("/", s.handleUpdateSettings)
		})

		r.Route("/engine", func(r chi.Router) {
			r.Post("/start", s.handleStart)
			r.Post("/stop", s.handleStop)
		})

		r.Post("/poll", s.handlePoll)
		r.Post("/connection/test", s.handleTestConnection)

		r.Route("/events", func(r chi.Router) {
			r.Get("/", s.handleListEvents)
			r.Delete("/", s.handleClearEvents)
			r.Post("/{id}/dismiss", s.handleDismissEvent)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Delete("/", s.handleClearNotifications)
			r.Post("/{id}/click", s.handleNotificationClick)
			r.Post("/{id}/buttons/{index}", s.handleButtonClick)
		})

		r.Route("/overlay", func(r chi.Router) {
			r.Use(middleware.CORS(s.config.AllowedOrigins))
			r.Get("/stream", overlayHandler.Stream)
			r.Get("/contexts", overlayHandler.Contexts)
		})
	})

	r.Get("/health", s.healthHandler.Health)
	r.Get("/health/live", s.healthHandler.Live)
	r.Get("/health/ready", s.healthHandler.Ready)

	return r
}
