package notifier

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/eventalerts/internal/models"
)

// Native notification buttons, by index.
const (
	ButtonView    = 0
	ButtonDismiss = 1
)

var nativeButtons = []string{"View dashboard", "Dismiss"}

// NativeNotification is an OS-level notification.
type NativeNotification struct {
	EventID            string          `json:"event_id"`
	Title              string          `json:"title"`
	Message            string          `json:"message"`
	Severity           models.Severity `json:"severity"`
	Priority           int             `json:"priority"` // 0 info, 1 warning, 2 critical
	Buttons            []string        `json:"buttons,omitempty"`
	Silent             bool            `json:"silent"`
	RequireInteraction bool            `json:"require_interaction"`
}

// NativeProvider creates and clears native notifications.
type NativeProvider interface {
	// Name returns the provider name (e.g., "webhook", "log").
	Name() string
	// Create shows a notification and returns its provider-assigned id.
	Create(ctx context.Context, n NativeNotification) (string, error)
	// Clear removes a notification. Clearing an unknown id is not an error.
	Clear(ctx context.Context, id string) error
	// Close releases any resources.
	Close() error
}

func nativePriority(s models.Severity) int {
	switch s {
	case models.SeverityCritical:
		return 2
	case models.SeverityWarning:
		return 1
	default:
		return 0
	}
}

// LogProvider writes notifications to the log instead of showing them.
type LogProvider struct {
	log zerolog.Logger
}

// NewLogProvider creates a log-only native provider.
func NewLogProvider(log zerolog.Logger) *LogProvider {
	return &LogProvider{log: log}
}

// Name returns "log".
func (p *LogProvider) Name() string {
	return "log"
}

// Create logs the notification.
func (p *LogProvider) Create(ctx context.Context, n NativeNotification) (string, error) {
	id := uuid.NewString()
	p.log.Info().
		Str("notification_id", id).
		Str("event_id", n.EventID).
		Str("severity", string(n.Severity)).
		Str("title", n.Title).
		Msg(n.Message)
	return id, nil
}

// Clear logs the removal.
func (p *LogProvider) Clear(ctx context.Context, id string) error {
	p.log.Debug().Str("notification_id", id).Msg("notification cleared")
	return nil
}

// Close is a no-op.
func (p *LogProvider) Close() error {
	return nil
}
