package api

import (
	"encoding/json"
	"net/http"

	"github.com/good-yellow-bee/eventalerts/internal/alerting"
	"github.com/good-yellow-bee/eventalerts/internal/models"
)

// Response is a standard API response wrapper.
type Response struct {
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := Response{Data: data}
	json.NewEncoder(w).Encode(resp)
}

// JSONError writes a JSON error response.
func JSONError(w http.ResponseWriter, err *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status)

	resp := Response{Error: err}
	json.NewEncoder(w).Encode(resp)
}

// OK writes a 200 OK response.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// NoContent writes a 204 No Content response.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// StatusResponse is returned by the status and engine control endpoints.
type StatusResponse struct {
	Configured bool                         `json:"configured"`
	Polling    models.PollingStatus         `json:"polling"`
	Engine     alerting.EngineStatsSnapshot `json:"engine"`
}

// SettingsResponse wraps the active settings.
type SettingsResponse struct {
	Configured bool            `json:"configured"`
	Settings   models.Settings `json:"settings"`
}

// EventListResponse is a filtered page of the event history.
type EventListResponse struct {
	Items []models.ProcessedEvent `json:"items"`
	Total int                     `json:"total"`
}

// ConnectionTestResponse reports a successful connection test.
type ConnectionTestResponse struct {
	OK     bool `json:"ok"`
	Events int  `json:"events"`
}

// ButtonResponse reports the action taken for a button click.
type ButtonResponse struct {
	Action string `json:"action"`
}
