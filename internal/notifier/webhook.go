package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// WebhookConfig holds the desktop notification bridge configuration.
type WebhookConfig struct {
	URL     string        // bridge endpoint receiving create/clear commands
	Timeout time.Duration // request timeout (default 10s)
}

// Validate validates the webhook configuration.
func (c *WebhookConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid webhook URL %q", c.URL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("webhook URL must use http or https")
	}
	return nil
}

// WebhookProvider posts notification commands to a local bridge that
// shows them on the desktop and reports clicks back to the HTTP API.
type WebhookProvider struct {
	config     WebhookConfig
	httpClient *http.Client
}

// NewWebhookProvider creates a new webhook provider.
func NewWebhookProvider(config WebhookConfig) (*WebhookProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid webhook config: %w", err)
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &WebhookProvider{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

// Name returns "webhook".
func (w *WebhookProvider) Name() string {
	return "webhook"
}

// webhookCommand is the bridge payload.
type webhookCommand struct {
	Action       string              `json:"action"` // create or clear
	ID           string              `json:"id"`
	Notification *NativeNotification `json:"notification,omitempty"`
}

// Create sends a create command with a fresh notification id.
func (w *WebhookProvider) Create(ctx context.Context, n NativeNotification) (string, error) {
	id := uuid.NewString()
	if err := w.post(ctx, webhookCommand{Action: "create", ID: id, Notification: &n}); err != nil {
		return "", err
	}
	return id, nil
}

// Clear sends a clear command.
func (w *WebhookProvider) Clear(ctx context.Context, id string) error {
	return w.post(ctx, webhookCommand{Action: "clear", ID: id})
}

// Close is a no-op for the webhook provider.
func (w *WebhookProvider) Close() error {
	return nil
}

func (w *WebhookProvider) post(ctx context.Context, cmd webhookCommand) error {
	jsonData, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.URL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook error: status %d, body: %s", resp.StatusCode, string(body))
	}
	return nil
}
