package fetcher

import (
	"errors"
	"fmt"
)

// FetchError is returned for any non-2xx response or transport failure.
// StatusCode is 0 when the request never produced a response.
type FetchError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode == 0 || e.Err != nil {
		return fmt.Sprintf("remote api: status %d: %v", e.StatusCode, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("remote api: status %d, body: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("remote api: status %d", e.StatusCode)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ErrNoMonitors is returned when a fetch is requested without monitor ids.
var ErrNoMonitors = errors.New("at least one monitor id is required")
