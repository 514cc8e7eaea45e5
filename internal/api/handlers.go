package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/eventalerts/internal/models"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// fail writes err as an API error. Internal errors are logged with the
// original cause.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := FromError(err)
	if apiErr.Status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	JSONError(w, apiErr)
}

func (s *Server) status() StatusResponse {
	_, configured := s.engine.Settings()
	return StatusResponse{
		Configured: configured,
		Polling:    s.engine.Status(),
		Engine:     s.engine.Stats(),
	}
}

// handleStatus handles GET /api/v1/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	OK(w, s.status())
}

// handleStats handles GET /api/v1/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.EventStats(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	OK(w, stats)
}

// handleGetSettings handles GET /api/v1/settings.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, configured := s.engine.Settings()
	if !configured {
		settings = models.Settings{}.WithDefaults()
	}
	OK(w, SettingsResponse{Configured: configured, Settings: settings})
}

// handleUpdateSettings handles PUT /api/v1/settings. The body replaces the
// settings; omitted fields take their defaults.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req models.Settings
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		JSONError(w, NewBadRequest("invalid request body: "+err.Error()))
		return
	}

	if err := s.engine.UpdateSettings(r.Context(), req); err != nil {
		s.fail(w, r, err)
		return
	}
	settings, _ := s.engine.Settings()
	s.log.Info().Str("bucket", settings.BucketKey()).Msg("settings updated")
	OK(w, SettingsResponse{Configured: true, Settings: settings})
}

// handleStart handles POST /api/v1/engine/start.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Resume(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	OK(w, s.status())
}

// handleStop handles POST /api/v1/engine/stop.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.engine.Stop()
	OK(w, s.status())
}

// handlePoll handles POST /api/v1/poll.
func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	result, err := s.engine.ForcePoll(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	OK(w, result)
}

// handleTestConnection handles POST /api/v1/connection/test.
func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	n, err := s.engine.TestConnection(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	OK(w, ConnectionTestResponse{OK: true, Events: n})
}

// handleListEvents handles GET /api/v1/events.
//
// Query parameters:
//
//	severity  critical, warning or info
//	unread    true to hide dismissed events
//	limit     maximum number of events returned
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var severity models.Severity
	if v := strings.ToLower(strings.TrimSpace(q.Get("severity"))); v != "" {
		switch models.Severity(v) {
		case models.SeverityCritical, models.SeverityWarning, models.SeverityInfo:
			severity = models.Severity(v)
		default:
			JSONError(w, NewBadRequest("severity must be critical, warning, or info"))
			return
		}
	}
	unreadOnly := q.Get("unread") == "true"
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			JSONError(w, NewBadRequest("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	events, err := s.engine.Events(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	items := make([]models.ProcessedEvent, 0, len(events))
	for _, ev := range events {
		if severity != "" && ev.Severity != severity {
			continue
		}
		if unreadOnly && ev.Dismissed {
			continue
		}
		items = append(items, ev)
	}
	total := len(items)
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	OK(w, EventListResponse{Items: items, Total: total})
}

// handleClearEvents handles DELETE /api/v1/events.
func (s *Server) handleClearEvents(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.ClearEvents(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	NoContent(w)
}

// handleDismissEvent handles POST /api/v1/events/{id}/dismiss.
func (s *Server) handleDismissEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.engine.DismissEvent(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	NoContent(w)
}

var errNotificationsDisabled = &Error{
	Code:    ErrCodeNotConfigured,
	Message: "Native notifications are not configured",
	Status:  http.StatusServiceUnavailable,
}

// handleNotificationClick handles POST /api/v1/notifications/{id}/click.
func (s *Server) handleNotificationClick(w http.ResponseWriter, r *http.Request) {
	if s.notifications == nil {
		JSONError(w, errNotificationsDisabled)
		return
	}
	rec, err := s.notifications.OnNotificationClick(r.Context(), chi.URLParam(r, "id"))
	if err != nil && rec.EventID == "" {
		s.fail(w, r, err)
		return
	}
	if err != nil {
		// The record was consumed; only opening the dashboard failed.
		s.log.Warn().Err(err).Str("event_id", rec.EventID).Msg("notification click")
	}
	OK(w, rec)
}

// handleButtonClick handles POST /api/v1/notifications/{id}/buttons/{index}.
func (s *Server) handleButtonClick(w http.ResponseWriter, r *http.Request) {
	if s.notifications == nil {
		JSONError(w, errNotificationsDisabled)
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		JSONError(w, NewBadRequest("button index must be an integer"))
		return
	}
	action, err := s.notifications.OnButtonClick(r.Context(), chi.URLParam(r, "id"), index)
	if err != nil && action == "" {
		s.fail(w, r, err)
		return
	}
	if err != nil {
		s.log.Warn().Err(err).Str("action", string(action)).Msg("notification button")
	}
	OK(w, ButtonResponse{Action: string(action)})
}

// handleClearNotifications handles DELETE /api/v1/notifications.
func (s *Server) handleClearNotifications(w http.ResponseWriter, r *http.Request) {
	if s.notifications == nil {
		NoContent(w)
		return
	}
	if err := s.notifications.ClearAll(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	NoContent(w)
}
