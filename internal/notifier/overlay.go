package notifier

import (
	"errors"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/eventalerts/internal/metrics"
	"github.com/good-yellow-bee/eventalerts/internal/models"
)

var (
	// ErrContextClosed is returned when delivering to an unsubscribed context.
	ErrContextClosed = errors.New("overlay context closed")
	// ErrContextFull is returned when a context's buffer is full.
	ErrContextFull = errors.New("overlay context buffer full")
)

// OverlayAction is the optional action button of an in-page notification.
type OverlayAction struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// OverlayNotification is the in-page payload pushed to open contexts.
type OverlayNotification struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Message     string          `json:"message"`
	Severity    models.Severity `json:"severity"`
	Action      *OverlayAction  `json:"action,omitempty"`
	Dismissible bool            `json:"dismissible"`
	Duration    int64           `json:"duration"` // milliseconds, 0 keeps it until dismissed
	Sound       bool            `json:"sound"`
}

// overlayDuration is how long an in-page notification stays visible.
func overlayDuration(s models.Severity) time.Duration {
	switch s {
	case models.SeverityCritical:
		return 0
	case models.SeverityWarning:
		return 10 * time.Second
	default:
		return 6 * time.Second
	}
}

// OverlayContext is one open in-page context, such as a browser tab.
type OverlayContext struct {
	ID        string
	Origin    string
	Host      string
	CreatedAt time.Time

	mu     sync.Mutex
	ch     chan OverlayNotification
	closed bool
}

// C returns the channel of notifications for this context.
// It is closed when the context is unsubscribed.
func (c *OverlayContext) C() <-chan OverlayNotification {
	return c.ch
}

func (c *OverlayContext) send(n OverlayNotification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrContextClosed
	}
	select {
	case c.ch <- n:
		return nil
	default:
		return ErrContextFull
	}
}

func (c *OverlayContext) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}

// OverlayContextInfo describes an open context.
type OverlayContextInfo struct {
	ID        string    `json:"id"`
	Origin    string    `json:"origin"`
	CreatedAt time.Time `json:"created_at"`
}

// Hub tracks the open in-page contexts.
type Hub struct {
	mu       sync.RWMutex
	contexts map[string]*OverlayContext
	buffer   int
}

// NewHub creates a hub with the given per-context buffer size.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		contexts: make(map[string]*OverlayContext),
		buffer:   buffer,
	}
}

// Subscribe registers a context for origin, e.g. "https://app.example.com".
func (h *Hub) Subscribe(origin string) (*OverlayContext, error) {
	host, err := hostOf(origin)
	if err != nil {
		return nil, err
	}
	c := &OverlayContext{
		ID:        uuid.NewString(),
		Origin:    origin,
		Host:      host,
		CreatedAt: time.Now(),
		ch:        make(chan OverlayNotification, h.buffer),
	}

	h.mu.Lock()
	h.contexts[c.ID] = c
	n := len(h.contexts)
	h.mu.Unlock()

	metrics.OverlayContexts.Set(float64(n))
	return c, nil
}

// Unsubscribe removes a context and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	c, ok := h.contexts[id]
	delete(h.contexts, id)
	n := len(h.contexts)
	h.mu.Unlock()

	if ok {
		c.close()
	}
	metrics.OverlayContexts.Set(float64(n))
}

// Match returns the contexts whose host matches one of the domain patterns.
// An empty pattern list matches nothing.
func (h *Hub) Match(patterns []string) []*OverlayContext {
	if len(patterns) == 0 {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []*OverlayContext
	for _, c := range h.contexts {
		if MatchDomain(c.Host, patterns) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Contexts lists the open contexts.
func (h *Hub) Contexts() []OverlayContextInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]OverlayContextInfo, 0, len(h.contexts))
	for _, c := range h.contexts {
		out = append(out, OverlayContextInfo{ID: c.ID, Origin: c.Origin, CreatedAt: c.CreatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Deliver pushes n to c without blocking.
func (h *Hub) Deliver(c *OverlayContext, n OverlayNotification) error {
	return c.send(n)
}

// Close unsubscribes every context.
func (h *Hub) Close() {
	h.mu.Lock()
	contexts := h.contexts
	h.contexts = make(map[string]*OverlayContext)
	h.mu.Unlock()

	for _, c := range contexts {
		c.close()
	}
	metrics.OverlayContexts.Set(0)
}

// hostOf extracts the lower-cased host name of an origin or bare host.
func hostOf(origin string) (string, error) {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return "", errors.New("origin is required")
	}
	if !strings.Contains(origin, "://") {
		origin = "http://" + origin
	}
	u, err := url.Parse(origin)
	if err != nil || u.Hostname() == "" {
		return "", errors.New("invalid origin: " + origin)
	}
	return strings.ToLower(u.Hostname()), nil
}
