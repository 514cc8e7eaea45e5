// Package overlay streams in-page notifications to open browser contexts.
package overlay

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/eventalerts/internal/notifier"
)

// Config controls stream lifetimes.
type Config struct {
	Heartbeat   time.Duration // keepalive interval (default 15s)
	MaxDuration time.Duration // stream lifetime before the client must reconnect (default 30m)
	RetryMillis int           // reconnect delay sent to clients (default 3000)
}

func (c *Config) setDefaults() {
	if c.Heartbeat <= 0 {
		c.Heartbeat = 15 * time.Second
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = 30 * time.Minute
	}
	if c.RetryMillis <= 0 {
		c.RetryMillis = 3000
	}
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type dataResponse struct {
	Data any `json:"data"`
}

func jsonError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: errorBody{Code: code, Message: message}})
}

// Handler serves the overlay endpoints.
type Handler struct {
	hub    *notifier.Hub
	config Config
	log    zerolog.Logger
}

// NewHandler creates an overlay handler on hub.
func NewHandler(hub *notifier.Hub, cfg Config, log zerolog.Logger) *Handler {
	cfg.setDefaults()
	return &Handler{hub: hub, config: cfg, log: log}
}

// readyEvent is the first event of every stream.
type readyEvent struct {
	ContextID string `json:"context_id"`
	Origin    string `json:"origin"`
}

// Stream handles GET /api/v1/overlay/stream. Each open stream is one in-page
// context registered under the origin query parameter, falling back to the
// Origin header.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		jsonError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "streaming not supported")
		return
	}

	origin := strings.TrimSpace(r.URL.Query().Get("origin"))
	if origin == "" {
		origin = r.Header.Get("Origin")
	}
	c, err := h.hub.Subscribe(origin)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	defer h.hub.Unsubscribe(c.ID)

	log := h.log.With().Str("context_id", c.ID).Str("origin", c.Origin).Logger()
	log.Debug().Msg("overlay context opened")
	defer log.Debug().Msg("overlay context closed")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sse := NewSSEWriter(w, flusher)
	if err := sse.SendRetry(h.config.RetryMillis); err != nil {
		return
	}
	if err := sse.SendJSON("ready", readyEvent{ContextID: c.ID, Origin: c.Origin}); err != nil {
		return
	}

	heartbeat := time.NewTicker(h.config.Heartbeat)
	defer heartbeat.Stop()
	deadline := time.NewTimer(h.config.MaxDuration)
	defer deadline.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			sse.SendEvent("close", `{"reason":"timeout"}`)
			return
		case n, ok := <-c.C():
			if !ok {
				sse.SendEvent("close", `{"reason":"shutdown"}`)
				return
			}
			if err := sse.SendJSON("notification", n); err != nil {
				log.Debug().Err(err).Msg("overlay write failed")
				return
			}
		case <-heartbeat.C:
			if err := sse.SendComment("heartbeat"); err != nil {
				return
			}
		}
	}
}

// Contexts handles GET /api/v1/overlay/contexts.
func (h *Handler) Contexts(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(dataResponse{Data: h.hub.Contexts()})
}
