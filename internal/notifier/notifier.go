// Package notifier delivers event notifications through the native and
// in-page channels and resolves notification clicks.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/eventalerts/internal/metrics"
	"github.com/good-yellow-bee/eventalerts/internal/models"
)

// Delivery channels.
const (
	ChannelNative = "native"
	ChannelInPage = "in_page"
	ChannelOpener = "opener"
)

var (
	// ErrUnknownNotification is returned for clicks on notifications without a side record.
	ErrUnknownNotification = errors.New("unknown notification")
	// ErrUnknownButton is returned for button indexes other than view and dismiss.
	ErrUnknownButton = errors.New("unknown notification button")
)

// DispatchError reports a failed delivery on one channel.
// Target is the in-page origin or the native notification id, if known.
type DispatchError struct {
	Channel string
	Target  string
	Err     error
}

func (e *DispatchError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("dispatch %s to %s: %v", e.Channel, e.Target, e.Err)
	}
	return fmt.Sprintf("dispatch %s: %v", e.Channel, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// ButtonAction is the outcome of a button click.
type ButtonAction string

const (
	ActionView    ButtonAction = "view"
	ActionDismiss ButtonAction = "dismiss"
)

// DismissFunc dismisses an event in the history.
type DismissFunc func(ctx context.Context, eventID string) error

// Options configures a Dispatcher.
type Options struct {
	Native    NativeProvider // required for the native channel
	Overlay   *Hub           // required for the in-page channel
	Clicks    *ClickStore
	Opener    URLOpener
	Templates *Templates
	Logger    zerolog.Logger
	// Concurrency bounds parallel in-page deliveries (default 8).
	Concurrency int
}

// Dispatcher turns processed events into notifications.
type Dispatcher struct {
	native      NativeProvider
	overlay     *Hub
	clicks      *ClickStore
	opener      URLOpener
	templates   *Templates
	log         zerolog.Logger
	concurrency int

	mu        sync.RWMutex
	onDismiss DismissFunc
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.Opener == nil {
		opts.Opener = NewLogOpener(opts.Logger)
	}
	return &Dispatcher{
		native:      opts.Native,
		overlay:     opts.Overlay,
		clicks:      opts.Clicks,
		opener:      opts.Opener,
		templates:   opts.Templates,
		log:         opts.Logger,
		concurrency: opts.Concurrency,
	}
}

// SetDismissHandler sets the function run by the dismiss button.
func (d *Dispatcher) SetDismissHandler(fn DismissFunc) {
	d.mu.Lock()
	d.onDismiss = fn
	d.mu.Unlock()
}

// Dispatch delivers ev on the channels selected by settings. Channels are
// independent: a failure on one does not prevent the other. All failures
// are returned joined as *DispatchError values.
func (d *Dispatcher) Dispatch(ctx context.Context, ev models.ProcessedEvent, s models.Settings) error {
	var errs []error

	if s.NotificationType.Native() {
		if err := d.sendNative(ctx, ev, s); err != nil {
			metrics.NotificationsTotal.WithLabelValues(ChannelNative, "failure").Inc()
			errs = append(errs, &DispatchError{Channel: ChannelNative, Err: err})
		} else {
			metrics.NotificationsTotal.WithLabelValues(ChannelNative, "success").Inc()
		}
	}

	if s.NotificationType.InPage() {
		errs = append(errs, d.sendInPage(ctx, ev, s)...)
	}

	if s.AutoOpenDashboard && ev.Severity == models.SeverityCritical && ev.DashboardURL != "" {
		if err := d.opener.Open(ctx, ev.DashboardURL); err != nil {
			errs = append(errs, &DispatchError{Channel: ChannelOpener, Err: err})
		}
	}

	return errors.Join(errs...)
}

// Title is the notification title for an event.
func Title(ev models.ProcessedEvent) string {
	return fmt.Sprintf("[%s] %s", strings.ToUpper(string(ev.Severity)), ev.MonitorName)
}

func (d *Dispatcher) body(ev models.ProcessedEvent, s models.Settings) string {
	if d.templates == nil {
		return ev.Message
	}
	data := EventToTemplateData(ev, s.ShowEventDetails)
	out, err := d.templates.RenderNative(&data)
	if err != nil {
		d.log.Debug().Err(err).Msg("render notification body")
		return ev.Message
	}
	return out
}

func (d *Dispatcher) sendNative(ctx context.Context, ev models.ProcessedEvent, s models.Settings) error {
	if d.native == nil {
		return errors.New("native channel not configured")
	}

	n := NativeNotification{
		EventID:            ev.ID,
		Title:              Title(ev),
		Message:            d.body(ev, s),
		Severity:           ev.Severity,
		Priority:           nativePriority(ev.Severity),
		Buttons:            nativeButtons,
		Silent:             !s.EnableSound,
		RequireInteraction: ev.Severity == models.SeverityCritical,
	}
	id, err := d.native.Create(ctx, n)
	if err != nil {
		return err
	}

	if d.clicks != nil {
		rec := ClickRecord{EventID: ev.ID, DashboardURL: ev.DashboardURL, CreatedAt: time.Now().UTC()}
		if err := d.clicks.Put(ctx, id, rec); err != nil {
			return fmt.Errorf("store click record: %w", err)
		}
	}
	d.log.Debug().Str("notification_id", id).Str("event_id", ev.ID).Msg("native notification sent")
	return nil
}

func (d *Dispatcher) sendInPage(ctx context.Context, ev models.ProcessedEvent, s models.Settings) []error {
	if d.overlay == nil {
		return []error{&DispatchError{Channel: ChannelInPage, Err: errors.New("in-page channel not configured")}}
	}

	targets := d.overlay.Match(s.Domains())
	if len(targets) == 0 {
		d.log.Debug().Str("event_id", ev.ID).Msg("no in-page targets")
		return nil
	}

	payload := OverlayNotification{
		ID:          ev.ID,
		Title:       Title(ev),
		Message:     ev.Message,
		Severity:    ev.Severity,
		Dismissible: true,
		Duration:    overlayDuration(ev.Severity).Milliseconds(),
		Sound:       s.EnableSound,
	}
	if ev.DashboardURL != "" {
		payload.Action = &OverlayAction{Label: nativeButtons[ButtonView], URL: ev.DashboardURL}
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for _, c := range targets {
		c := c
		g.Go(func() error {
			if err := d.overlay.Deliver(c, payload); err != nil {
				metrics.NotificationsTotal.WithLabelValues(ChannelInPage, "failure").Inc()
				d.log.Warn().Err(err).Str("origin", c.Origin).Str("event_id", ev.ID).Msg("in-page delivery failed")
				mu.Lock()
				errs = append(errs, &DispatchError{Channel: ChannelInPage, Target: c.Origin, Err: err})
				mu.Unlock()
				return nil
			}
			metrics.NotificationsTotal.WithLabelValues(ChannelInPage, "success").Inc()
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// OnNotificationClick resolves a click on a native notification body:
// the side record is removed, the notification cleared and the dashboard
// opened. A second click on the same id returns ErrUnknownNotification.
func (d *Dispatcher) OnNotificationClick(ctx context.Context, notificationID string) (ClickRecord, error) {
	rec, err := d.take(ctx, notificationID)
	if err != nil {
		return ClickRecord{}, err
	}
	metrics.NotificationClicksTotal.WithLabelValues("body").Inc()
	d.clearNative(ctx, notificationID)

	if rec.DashboardURL != "" {
		if err := d.opener.Open(ctx, rec.DashboardURL); err != nil {
			return rec, fmt.Errorf("open dashboard: %w", err)
		}
	}
	return rec, nil
}

// OnButtonClick handles the native notification buttons. The view button
// behaves like a body click; the dismiss button dismisses the event.
func (d *Dispatcher) OnButtonClick(ctx context.Context, notificationID string, index int) (ButtonAction, error) {
	switch index {
	case ButtonView:
		rec, err := d.OnNotificationClick(ctx, notificationID)
		if err != nil && rec.EventID == "" {
			return "", err
		}
		return ActionView, err
	case ButtonDismiss:
	default:
		return "", fmt.Errorf("%w: %d", ErrUnknownButton, index)
	}

	rec, err := d.take(ctx, notificationID)
	if err != nil {
		return "", err
	}
	metrics.NotificationClicksTotal.WithLabelValues("dismiss").Inc()
	d.clearNative(ctx, notificationID)

	d.mu.RLock()
	dismiss := d.onDismiss
	d.mu.RUnlock()
	if dismiss != nil {
		if err := dismiss(ctx, rec.EventID); err != nil {
			return ActionDismiss, fmt.Errorf("dismiss event %s: %w", rec.EventID, err)
		}
	}
	return ActionDismiss, nil
}

func (d *Dispatcher) take(ctx context.Context, notificationID string) (ClickRecord, error) {
	if d.clicks == nil {
		return ClickRecord{}, ErrUnknownNotification
	}
	rec, ok, err := d.clicks.Take(ctx, notificationID)
	if err != nil {
		return ClickRecord{}, err
	}
	if !ok {
		metrics.NotificationClicksTotal.WithLabelValues("stale").Inc()
		return ClickRecord{}, ErrUnknownNotification
	}
	return rec, nil
}

func (d *Dispatcher) clearNative(ctx context.Context, id string) {
	if d.native == nil {
		return
	}
	if err := d.native.Clear(ctx, id); err != nil {
		d.log.Warn().Err(err).Str("notification_id", id).Msg("clear notification failed")
	}
}

// ClearAll removes every outstanding native notification and its side record.
func (d *Dispatcher) ClearAll(ctx context.Context) error {
	if d.clicks == nil {
		return nil
	}
	records, err := d.clicks.TakeAll(ctx)
	if err != nil {
		return err
	}
	if d.native == nil {
		return nil
	}

	var errs []error
	for id := range records {
		if err := d.native.Clear(ctx, id); err != nil {
			errs = append(errs, &DispatchError{Channel: ChannelNative, Target: id, Err: err})
		}
	}
	return errors.Join(errs...)
}

// Close closes the native provider and every in-page context.
func (d *Dispatcher) Close() error {
	if d.overlay != nil {
		d.overlay.Close()
	}
	if d.native != nil {
		return d.native.Close()
	}
	return nil
}
