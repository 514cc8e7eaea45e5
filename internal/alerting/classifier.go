package alerting

import (
	"fmt"
	"strings"

	"github.com/good-yellow-bee/eventalerts/internal/models"
)

const placeholderMessage = "No details provided"

// SeverityOf maps a remote alert type to a severity.
func SeverityOf(t models.AlertType) models.Severity {
	switch models.AlertType(strings.ToLower(string(t))) {
	case models.AlertTypeError:
		return models.SeverityCritical
	case models.AlertTypeWarning:
		return models.SeverityWarning
	default:
		return models.SeverityInfo
	}
}

// Classify turns a raw event into a processed one. It performs no I/O;
// the monitor name is resolved by the caller. appBaseURL is used for
// dashboard links when the event carries none.
func Classify(raw models.RawEvent, monitorName, appBaseURL string) models.ProcessedEvent {
	return models.ProcessedEvent{
		ID:           string(raw.ID),
		MonitorID:    raw.MonitorIDValue(),
		MonitorName:  monitorName,
		Title:        strings.TrimSpace(raw.Title),
		Message:      messageOf(raw),
		Severity:     SeverityOf(raw.AlertType),
		Priority:     models.ParsePriority(string(raw.Priority)),
		AlertType:    raw.AlertType,
		Timestamp:    raw.DateHappened * 1000,
		Tags:         raw.Tags,
		Source:       raw.Source,
		DashboardURL: DashboardURL(raw, appBaseURL),
		Processed:    true,
	}
}

func messageOf(raw models.RawEvent) string {
	if s := strings.TrimSpace(raw.Title); s != "" {
		return s
	}
	if s := strings.TrimSpace(raw.Text); s != "" {
		return s
	}
	return placeholderMessage
}

// DashboardURL picks the link opened when a notification is clicked.
func DashboardURL(raw models.RawEvent, appBaseURL string) string {
	if u := strings.TrimSpace(raw.URL); u != "" {
		return absoluteURL(u, appBaseURL)
	}
	if u := strings.TrimSpace(raw.MonitorURL); u != "" {
		return absoluteURL(u, appBaseURL)
	}
	appBaseURL = strings.TrimRight(appBaseURL, "/")
	if appBaseURL == "" {
		return ""
	}
	if id := raw.MonitorIDValue(); id > 0 {
		return fmt.Sprintf("%s/monitors/%d", appBaseURL, id)
	}
	return appBaseURL + "/event/explorer"
}

// absoluteURL resolves the relative paths the events API returns.
func absoluteURL(u, base string) string {
	if strings.HasPrefix(u, "/") && base != "" {
		return strings.TrimRight(base, "/") + u
	}
	return u
}
