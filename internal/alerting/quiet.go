package alerting

import (
	"time"

	"github.com/good-yellow-bee/eventalerts/internal/models"
)

// QuietHours is a local time-of-day window during which timer cycles are skipped.
// Start is inclusive and End exclusive; a window with Start > End wraps midnight.
// Start == End is an empty window.
type QuietHours struct {
	Enabled bool
	Start   models.Clock
	End     models.Clock
}

// QuietHoursFrom builds the window from validated settings.
func QuietHoursFrom(s models.Settings) (QuietHours, error) {
	start, err := models.ParseClock(s.QuietHoursStart)
	if err != nil {
		return QuietHours{}, &models.ConfigError{Field: "quiet_hours_start", Reason: err.Error()}
	}
	end, err := models.ParseClock(s.QuietHoursEnd)
	if err != nil {
		return QuietHours{}, &models.ConfigError{Field: "quiet_hours_end", Reason: err.Error()}
	}
	return QuietHours{Enabled: s.EnableQuietHours, Start: start, End: end}, nil
}

// Contains reports whether t falls inside the window.
func (q QuietHours) Contains(t time.Time) bool {
	if !q.Enabled || q.Start == q.End {
		return false
	}
	c := models.ClockOf(t)
	if q.Start < q.End {
		return c >= q.Start && c < q.End
	}
	return c >= q.Start || c < q.End
}
