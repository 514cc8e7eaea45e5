package alerting

import (
	"testing"
	"time"

	"github.com/good-yellow-bee/eventalerts/internal/models"
)

func TestSeverityOf(t *testing.T) {
	tests := []struct {
		alertType models.AlertType
		want      models.Severity
	}{
		{models.AlertTypeError, models.SeverityCritical},
		{"ERROR", models.SeverityCritical},
		{models.AlertTypeWarning, models.SeverityWarning},
		{models.AlertTypeInfo, models.SeverityInfo},
		{models.AlertTypeSuccess, models.SeverityInfo},
		{models.AlertTypeUserUpdate, models.SeverityInfo},
		{models.AlertTypeRecommendation, models.SeverityInfo},
		{models.AlertTypeSnapshot, models.SeverityInfo},
		{"", models.SeverityInfo},
	}
	for _, tt := range tests {
		if got := SeverityOf(tt.alertType); got != tt.want {
			t.Errorf("SeverityOf(%q) = %q, want %q", tt.alertType, got, tt.want)
		}
	}
}

func TestClassify(t *testing.T) {
	monitor := int64(42)
	raw := models.RawEvent{
		ID:           "9001",
		Title:        "  [Triggered] Error rate  ",
		Text:         "error rate above 5%",
		DateHappened: 1705312000,
		MonitorID:    &monitor,
		AlertType:    models.AlertTypeWarning,
		Tags:         []string{"env:prod"},
		Source:       "Monitor Alert",
	}

	ev := Classify(raw, "Checkout errors", "https://app.datadoghq.com")
	if ev.ID != "9001" || ev.MonitorID != 42 || ev.MonitorName != "Checkout errors" {
		t.Errorf("identity = %+v", ev)
	}
	if ev.Message != "[Triggered] Error rate" {
		t.Errorf("Message = %q", ev.Message)
	}
	if ev.Severity != models.SeverityWarning || ev.Priority != models.PriorityNormal {
		t.Errorf("severity/priority = %q/%q", ev.Severity, ev.Priority)
	}
	if ev.Timestamp != 1705312000*1000 {
		t.Errorf("Timestamp = %d", ev.Timestamp)
	}
	if !ev.Processed || ev.Notified || ev.Dismissed {
		t.Errorf("flags = %v/%v/%v", ev.Processed, ev.Notified, ev.Dismissed)
	}
	if ev.DashboardURL != "https://app.datadoghq.com/monitors/42" {
		t.Errorf("DashboardURL = %q", ev.DashboardURL)
	}
	if time.UnixMilli(ev.Timestamp).Unix() != raw.DateHappened {
		t.Error("timestamp does not round-trip to seconds")
	}
}

func TestClassifyMessageFallback(t *testing.T) {
	if got := Classify(models.RawEvent{Text: "body only"}, "m", "").Message; got != "body only" {
		t.Errorf("text fallback = %q", got)
	}
	if got := Classify(models.RawEvent{}, "m", "").Message; got != placeholderMessage {
		t.Errorf("placeholder = %q", got)
	}
}

func TestDashboardURL(t *testing.T) {
	monitor := int64(7)
	base := "https://app.datadoghq.eu"
	tests := []struct {
		name string
		raw  models.RawEvent
		want string
	}{
		{"event url", models.RawEvent{URL: "https://x/y", MonitorURL: "https://m", MonitorID: &monitor}, "https://x/y"},
		{"relative event url", models.RawEvent{URL: "/event/event?id=1"}, base + "/event/event?id=1"},
		{"monitor url", models.RawEvent{MonitorURL: "https://m"}, "https://m"},
		{"monitor id", models.RawEvent{MonitorID: &monitor}, base + "/monitors/7"},
		{"explorer", models.RawEvent{}, base + "/event/explorer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DashboardURL(tt.raw, base); got != tt.want {
				t.Errorf("DashboardURL = %q, want %q", got, tt.want)
			}
		})
	}
}
