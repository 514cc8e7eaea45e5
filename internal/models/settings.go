package models

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// NotificationType selects the delivery channels.
type NotificationType string

const (
	NotificationNative NotificationType = "chrome"
	NotificationInPage NotificationType = "in-page"
	NotificationBoth   NotificationType = "both"
)

// Native reports whether native delivery is enabled.
func (t NotificationType) Native() bool {
	return t == NotificationNative || t == NotificationBoth
}

// InPage reports whether in-page delivery is enabled.
func (t NotificationType) InPage() bool {
	return t == NotificationInPage || t == NotificationBoth
}

// Settings bounds and defaults.
const (
	MinPollingInterval     = 10
	MaxPollingInterval     = 300
	DefaultPollingInterval = 60

	MinEventsHistory     = 10
	MaxEventsHistory     = 500
	DefaultEventsHistory = 100

	DefaultQuietHoursStart = "22:00"
	DefaultQuietHoursEnd   = "08:00"

	bucketKeyPrefix = "event_alerts"
)

// ConfigError reports an invalid setting.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "invalid settings: " + e.Reason
	}
	return fmt.Sprintf("invalid settings: %s: %s", e.Field, e.Reason)
}

// Settings is the validated configuration of the alerting engine.
type Settings struct {
	MonitorIDs        string           `json:"monitor_ids" yaml:"monitor_ids"`             // comma-separated
	PollingInterval   int              `json:"polling_interval" yaml:"polling_interval"`   // seconds
	NotificationType  NotificationType `json:"notification_type" yaml:"notification_type"` // chrome, in-page, both
	TargetDomains     string           `json:"target_domains" yaml:"target_domains"`       // comma-separated, wildcards allowed
	AlertPriority     Priority         `json:"alert_priority" yaml:"alert_priority"`       // minimum priority
	MaxEventsHistory  int              `json:"max_events_history" yaml:"max_events_history"`
	EnableSound       bool             `json:"enable_sound" yaml:"enable_sound"`
	ShowEventDetails  bool             `json:"show_event_details" yaml:"show_event_details"`
	AutoOpenDashboard bool             `json:"auto_open_dashboard" yaml:"auto_open_dashboard"`
	EnableQuietHours  bool             `json:"enable_quiet_hours" yaml:"enable_quiet_hours"`
	QuietHoursStart   string           `json:"quiet_hours_start" yaml:"quiet_hours_start"` // HH:MM
	QuietHoursEnd     string           `json:"quiet_hours_end" yaml:"quiet_hours_end"`     // HH:MM
	EventFilter       string           `json:"event_filter,omitempty" yaml:"event_filter"` // optional expr-lang expression
}

// WithDefaults returns a copy with zero values replaced by defaults.
func (s Settings) WithDefaults() Settings {
	if s.PollingInterval == 0 {
		s.PollingInterval = DefaultPollingInterval
	}
	if s.NotificationType == "" {
		s.NotificationType = NotificationNative
	}
	if s.AlertPriority == "" {
		s.AlertPriority = PriorityNormal
	}
	if s.MaxEventsHistory == 0 {
		s.MaxEventsHistory = DefaultEventsHistory
	}
	if strings.TrimSpace(s.QuietHoursStart) == "" {
		s.QuietHoursStart = DefaultQuietHoursStart
	}
	if strings.TrimSpace(s.QuietHoursEnd) == "" {
		s.QuietHoursEnd = DefaultQuietHoursEnd
	}
	return s
}

// Validate checks the settings. Call WithDefaults first.
func (s Settings) Validate() error {
	if len(s.ParsedMonitorIDs()) == 0 {
		return &ConfigError{Field: "monitor_ids", Reason: "no valid monitor ids"}
	}
	if s.PollingInterval < MinPollingInterval || s.PollingInterval > MaxPollingInterval {
		return &ConfigError{
			Field:  "polling_interval",
			Reason: fmt.Sprintf("must be between %d and %d seconds", MinPollingInterval, MaxPollingInterval),
		}
	}
	switch s.NotificationType {
	case NotificationNative, NotificationInPage, NotificationBoth:
	default:
		return &ConfigError{Field: "notification_type", Reason: fmt.Sprintf("unknown type %q", s.NotificationType)}
	}
	switch s.AlertPriority {
	case PriorityLow, PriorityNormal, PriorityHigh:
	default:
		return &ConfigError{Field: "alert_priority", Reason: fmt.Sprintf("unknown priority %q", s.AlertPriority)}
	}
	if s.MaxEventsHistory < MinEventsHistory || s.MaxEventsHistory > MaxEventsHistory {
		return &ConfigError{
			Field:  "max_events_history",
			Reason: fmt.Sprintf("must be between %d and %d", MinEventsHistory, MaxEventsHistory),
		}
	}
	if _, err := ParseClock(s.QuietHoursStart); err != nil {
		return &ConfigError{Field: "quiet_hours_start", Reason: err.Error()}
	}
	if _, err := ParseClock(s.QuietHoursEnd); err != nil {
		return &ConfigError{Field: "quiet_hours_end", Reason: err.Error()}
	}
	return nil
}

// ParsedMonitorIDs returns the positive integer ids from MonitorIDs,
// deduplicated, in their original order. Invalid entries are skipped.
func (s Settings) ParsedMonitorIDs() []int64 {
	var ids []int64
	seen := make(map[int64]struct{})
	for _, part := range strings.Split(s.MonitorIDs, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// Domains returns the trimmed, lower-cased target domain patterns.
func (s Settings) Domains() []string {
	var domains []string
	for _, part := range strings.Split(s.TargetDomains, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			domains = append(domains, part)
		}
	}
	return domains
}

// Interval returns the polling interval as a duration.
func (s Settings) Interval() time.Duration {
	return time.Duration(s.PollingInterval) * time.Second
}

// BucketKey derives the persistence bucket from the monitor set and history size.
// Changing either addresses a different bucket; the old one is not migrated.
func (s Settings) BucketKey() string {
	ids := s.ParsedMonitorIDs()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return fmt.Sprintf("%s_%s_%d", bucketKeyPrefix, strings.Join(parts, "-"), s.MaxEventsHistory)
}

// Clock is a wall-clock time of day in minutes since midnight.
type Clock int

// ParseClock parses "HH:MM" (24h).
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid time %q (want HH:MM)", s)
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

// ClockOf returns the local time of day of t.
func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}

// Credentials authenticate against the remote API.
type Credentials struct {
	APIKey  string `json:"-" yaml:"-"`
	AppKey  string `json:"-" yaml:"-"`
	Site    string `json:"site" yaml:"site"`         // e.g. datadoghq.com
	BaseURL string `json:"base_url" yaml:"base_url"` // overrides https://api.<site>
}

// DefaultSite is used when Credentials.Site is empty.
const DefaultSite = "datadoghq.com"

// SiteOrDefault returns the configured site or DefaultSite.
func (c Credentials) SiteOrDefault() string {
	if s := strings.TrimSpace(c.Site); s != "" {
		return s
	}
	return DefaultSite
}

// APIBaseURL returns the remote API base URL without a trailing slash.
func (c Credentials) APIBaseURL() string {
	if u := strings.TrimSpace(c.BaseURL); u != "" {
		return strings.TrimRight(u, "/")
	}
	return "https://api." + c.SiteOrDefault()
}

// AppBaseURL returns the web application base URL used for dashboard links.
func (c Credentials) AppBaseURL() string {
	return "https://app." + c.SiteOrDefault()
}
