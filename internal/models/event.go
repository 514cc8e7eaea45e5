// Package models defines domain models for the event alerting engine.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Priority is the remote priority of an event.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// ParsePriority converts a string to Priority.
// Unknown or empty values are treated as normal.
func ParsePriority(s string) Priority {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow
	case "high":
		return PriorityHigh
	default:
		return PriorityNormal
	}
}

// Rank orders priorities low < normal < high.
func (p Priority) Rank() int {
	switch ParsePriority(string(p)) {
	case PriorityLow:
		return 0
	case PriorityHigh:
		return 2
	default:
		return 1
	}
}

// AtLeast reports whether p meets the minimum priority.
func (p Priority) AtLeast(min Priority) bool {
	return p.Rank() >= min.Rank()
}

// AlertType is the remote classification of an event.
type AlertType string

const (
	AlertTypeError          AlertType = "error"
	AlertTypeWarning        AlertType = "warning"
	AlertTypeInfo           AlertType = "info"
	AlertTypeSuccess        AlertType = "success"
	AlertTypeUserUpdate     AlertType = "user_update"
	AlertTypeRecommendation AlertType = "recommendation"
	AlertTypeSnapshot       AlertType = "snapshot"
)

// Severity is the coarse severity derived from AlertType.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// EventID is the provider-assigned event identity.
// The remote API may encode it as a JSON number or string.
type EventID string

// UnmarshalJSON accepts both numeric and string ids.
func (id *EventID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = EventID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("event id: %w", err)
	}
	*id = EventID(n.String())
	return nil
}

// RawEvent is an event as returned by the remote events API.
type RawEvent struct {
	ID           EventID   `json:"id"`
	Title        string    `json:"title"`
	Text         string    `json:"text"`
	DateHappened int64     `json:"date_happened"` // epoch seconds
	Priority     Priority  `json:"priority"`
	MonitorID    *int64    `json:"monitor_id,omitempty"`
	AlertType    AlertType `json:"alert_type"`
	Tags         []string  `json:"tags,omitempty"`
	Source       string    `json:"source_type_name,omitempty"`
	URL          string    `json:"url,omitempty"`
	MonitorURL   string    `json:"monitor_url,omitempty"`
}

// MonitorIDValue returns the monitor id or 0 when absent.
func (r *RawEvent) MonitorIDValue() int64 {
	if r.MonitorID == nil {
		return 0
	}
	return *r.MonitorID
}

// ProcessedEvent is a classified event kept in the local history.
// ID is the dedup key; only Notified and Dismissed change after creation.
type ProcessedEvent struct {
	ID           string    `json:"id"`
	MonitorID    int64     `json:"monitor_id,omitempty"`
	MonitorName  string    `json:"monitor_name"`
	Title        string    `json:"title"`
	Message      string    `json:"message"`
	Severity     Severity  `json:"severity"`
	Priority     Priority  `json:"priority"`
	AlertType    AlertType `json:"alert_type"`
	Timestamp    int64     `json:"timestamp"` // epoch milliseconds
	Tags         []string  `json:"tags,omitempty"`
	Source       string    `json:"source,omitempty"`
	DashboardURL string    `json:"dashboard_url,omitempty"`
	Processed    bool      `json:"processed"`
	Notified     bool      `json:"notified"`
	Dismissed    bool      `json:"dismissed"`
}

// EventStorage is the persisted aggregate for one bucket.
type EventStorage struct {
	Events       []ProcessedEvent `json:"events"`
	LastPollTime int64            `json:"last_poll_time"` // epoch milliseconds
	PollCount    int64            `json:"poll_count"`
}

// PollingStatus is the ephemeral scheduler state.
type PollingStatus struct {
	IsActive  bool   `json:"is_active"`
	LastPoll  int64  `json:"last_poll,omitempty"`
	NextPoll  int64  `json:"next_poll,omitempty"`
	PollCount int64  `json:"poll_count"`
	Errors    int64  `json:"errors"`
	LastError string `json:"last_error,omitempty"`
}

// EventStats summarizes a bucket for display.
type EventStats struct {
	Total        int              `json:"total"`
	BySeverity   map[Severity]int `json:"by_severity"`
	Dismissed    int              `json:"dismissed"`
	Notified     int              `json:"notified"`
	Unread       int              `json:"unread"`
	LastPollTime int64            `json:"last_poll_time,omitempty"`
	PollCount    int64            `json:"poll_count"`
}

// UnknownMonitorName labels events that carry no monitor id, such as
// manually posted events. They are still stored and notified.
const UnknownMonitorName = "Unknown monitor"

// FormatMonitorName returns the fallback display name for a monitor.
func FormatMonitorName(id int64) string {
	return "Monitor " + strconv.FormatInt(id, 10)
}
