// Package fetcher queries the remote monitoring API for events and monitor metadata.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/good-yellow-bee/eventalerts/internal/models"
)

const (
	eventsPath  = "/api/v1/events"
	monitorPath = "/api/v1/monitor/"

	headerAPIKey = "DD-API-KEY"
	headerAppKey = "DD-APPLICATION-KEY"

	maxErrorBody = 1024
)

// Config holds client settings.
type Config struct {
	Timeout   time.Duration
	UserAgent string
}

// DefaultConfig returns default client settings.
func DefaultConfig() Config {
	return Config{
		Timeout:   30 * time.Second,
		UserAgent: "eventalerts",
	}
}

// Client talks to the remote events and monitor APIs.
// It holds no state between calls and performs no retries.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a new API client.
func NewClient(config Config) *Client {
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultConfig().UserAgent
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// eventsResponse is the events API payload.
type eventsResponse struct {
	Events []models.RawEvent `json:"events"`
	Status string            `json:"status,omitempty"`
}

// FetchEvents returns the events for the given monitors in the window [start, end).
func (c *Client) FetchEvents(ctx context.Context, creds models.Credentials, monitorIDs []int64, start, end time.Time) ([]models.RawEvent, error) {
	if len(monitorIDs) == 0 {
		return nil, ErrNoMonitors
	}

	ids := make([]string, len(monitorIDs))
	for i, id := range monitorIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}

	q := url.Values{}
	q.Set("monitor_ids", strings.Join(ids, ","))
	q.Set("start", strconv.FormatInt(start.Unix(), 10))
	q.Set("end", strconv.FormatInt(end.Unix(), 10))

	var resp eventsResponse
	if err := c.get(ctx, creds, eventsPath+"?"+q.Encode(), &resp); err != nil {
		return nil, err
	}

	// The API treats end as inclusive; keep the window half-open.
	endSec := end.Unix()
	events := make([]models.RawEvent, 0, len(resp.Events))
	for _, ev := range resp.Events {
		if ev.DateHappened >= endSec {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// monitorResponse is the subset of the monitor API payload we use.
type monitorResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// MonitorName looks up the display name of a monitor.
func (c *Client) MonitorName(ctx context.Context, creds models.Credentials, monitorID int64) (string, error) {
	var resp monitorResponse
	if err := c.get(ctx, creds, monitorPath+strconv.FormatInt(monitorID, 10), &resp); err != nil {
		return "", err
	}
	return resp.Name, nil
}

func (c *Client) get(ctx context.Context, creds models.Credentials, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, creds.APIBaseURL()+path, nil)
	if err != nil {
		return &FetchError{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set(headerAPIKey, creds.APIKey)
	if creds.AppKey != "" {
		req.Header.Set(headerAppKey, creds.AppKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &FetchError{Err: fmt.Errorf("send request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &FetchError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &FetchError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
