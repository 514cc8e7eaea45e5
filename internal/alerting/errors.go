package alerting

import "errors"

var (
	// ErrPollInFlight is returned when a cycle is already running on the same bucket.
	ErrPollInFlight = errors.New("poll already in flight")
	// ErrNotConfigured is returned by operations that need settings before Start or Configure.
	ErrNotConfigured = errors.New("engine not configured")
)
