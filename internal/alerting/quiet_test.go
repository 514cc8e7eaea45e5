package alerting

import (
	"errors"
	"testing"
	"time"

	"github.com/good-yellow-bee/eventalerts/internal/models"
)

func at(hour, min int) time.Time {
	return time.Date(2024, 1, 15, hour, min, 0, 0, time.Local)
}

func TestQuietHoursContains(t *testing.T) {
	wrap := QuietHours{Enabled: true, Start: 22 * 60, End: 8 * 60}
	day := QuietHours{Enabled: true, Start: 12 * 60, End: 13 * 60}

	tests := []struct {
		name string
		q    QuietHours
		t    time.Time
		want bool
	}{
		{"wrap late evening", wrap, at(23, 30), true},
		{"wrap start inclusive", wrap, at(22, 0), true},
		{"wrap early morning", wrap, at(3, 0), true},
		{"wrap end exclusive", wrap, at(8, 0), false},
		{"wrap daytime", wrap, at(12, 0), false},
		{"day inside", day, at(12, 30), true},
		{"day before", day, at(11, 59), false},
		{"day end exclusive", day, at(13, 0), false},
		{"disabled", QuietHours{Start: 22 * 60, End: 8 * 60}, at(23, 30), false},
		{"empty window", QuietHours{Enabled: true, Start: 60, End: 60}, at(1, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.q.Contains(tt.t); got != tt.want {
				t.Errorf("Contains(%s) = %v, want %v", tt.t.Format("15:04"), got, tt.want)
			}
		})
	}
}

func TestQuietHoursFrom(t *testing.T) {
	q, err := QuietHoursFrom(models.Settings{EnableQuietHours: true, QuietHoursStart: "22:00", QuietHoursEnd: "08:00"})
	if err != nil {
		t.Fatalf("QuietHoursFrom: %v", err)
	}
	if !q.Enabled || q.Start != 22*60 || q.End != 8*60 {
		t.Errorf("q = %+v", q)
	}

	_, err = QuietHoursFrom(models.Settings{QuietHoursStart: "22:00", QuietHoursEnd: "later"})
	var cfgErr *models.ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "quiet_hours_end" {
		t.Errorf("error = %v", err)
	}
}
