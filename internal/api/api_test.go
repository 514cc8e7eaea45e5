package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/eventalerts/internal/alerting"
	"github.com/good-yellow-bee/eventalerts/internal/fetcher"
	"github.com/good-yellow-bee/eventalerts/internal/models"
	"github.com/good-yellow-bee/eventalerts/internal/notifier"
	"github.com/good-yellow-bee/eventalerts/internal/storage"
)

type stubFetcher struct {
	mu      sync.Mutex
	events  []models.RawEvent
	err     error
	entered chan struct{}
	release chan struct{}
}

func (f *stubFetcher) FetchEvents(ctx context.Context, creds models.Credentials, ids []int64, start, end time.Time) ([]models.RawEvent, error) {
	f.mu.Lock()
	events, err := f.events, f.err
	entered, release := f.entered, f.release
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if release != nil {
		<-release
	}
	return events, err
}

type recordingProvider struct {
	mu      sync.Mutex
	ids     []string
	cleared []string
}

func (p *recordingProvider) Name() string { return "recording" }

func (p *recordingProvider) Create(ctx context.Context, n notifier.NativeNotification) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := fmt.Sprintf("native-%d", len(p.ids)+1)
	p.ids = append(p.ids, id)
	return id, nil
}

func (p *recordingProvider) Clear(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleared = append(p.cleared, id)
	return nil
}

func (p *recordingProvider) Close() error { return nil }

type testAPI struct {
	handler http.Handler
	engine  *alerting.Engine
	fetcher *stubFetcher
	native  *recordingProvider
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	kv := storage.NewMemoryStorage()
	ta := &testAPI{fetcher: &stubFetcher{}, native: &recordingProvider{}}
	hub := notifier.NewHub(4)

	dispatcher := notifier.NewDispatcher(notifier.Options{
		Native:  ta.native,
		Overlay: hub,
		Clicks:  notifier.NewClickStore(kv),
		Logger:  zerolog.Nop(),
	})
	ta.engine = alerting.New(alerting.Options{
		Fetcher:    ta.fetcher,
		Store:      storage.NewEventStore(kv),
		Dispatcher: dispatcher,
		Logger:     zerolog.Nop(),
	})
	dispatcher.SetDismissHandler(ta.engine.DismissEvent)
	t.Cleanup(ta.engine.Stop)

	srv, err := New(&Config{Address: ":0", TrustedOrigins: []string{"*.trusted.example"}}, Deps{
		Engine:        ta.engine,
		Notifications: dispatcher,
		Overlay:       hub,
		Logger:        zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ta.handler = srv.Handler()
	return ta
}

func (ta *testAPI) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	ta.handler.ServeHTTP(rec, req)
	return rec
}

// decode unwraps the data field of a response into v.
func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	var resp struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if err := json.Unmarshal(resp.Data, v); err != nil {
		t.Fatalf("decode data %s: %v", resp.Data, err)
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if resp.Error == nil {
		t.Fatal("response has no error")
	}
	return resp.Error.Code
}

func (ta *testAPI) configure(t *testing.T) {
	t.Helper()
	rec := ta.do(t, "PUT", "/api/v1/settings", `{"monitor_ids":"42","notification_type":"chrome"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT settings status = %d: %s", rec.Code, rec.Body.String())
	}
}

func sampleEvents() []models.RawEvent {
	monitor := int64(42)
	now := time.Now().Unix()
	return []models.RawEvent{
		{ID: "1001", Title: "Checkout errors", DateHappened: now - 120, Priority: models.PriorityNormal, MonitorID: &monitor, AlertType: models.AlertTypeError},
		{ID: "1002", Title: "Disk filling", DateHappened: now - 60, Priority: models.PriorityNormal, MonitorID: &monitor, AlertType: models.AlertTypeWarning},
	}
}

func TestHealthEndpoints(t *testing.T) {
	ta := newTestAPI(t)

	if rec := ta.do(t, "GET", "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("/health status = %d", rec.Code)
	}
	if rec := ta.do(t, "GET", "/health/live", ""); rec.Code != http.StatusOK {
		t.Errorf("/health/live status = %d", rec.Code)
	}
	if rec := ta.do(t, "GET", "/health/ready", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/health/ready while stopped = %d, want 503", rec.Code)
	}

	ta.configure(t)
	ta.do(t, "POST", "/api/v1/engine/start", "")
	if rec := ta.do(t, "GET", "/health/ready", ""); rec.Code != http.StatusOK {
		t.Errorf("/health/ready while polling = %d, want 200", rec.Code)
	}
}

func TestNotConfigured(t *testing.T) {
	ta := newTestAPI(t)

	for _, path := range []string{"/api/v1/events", "/api/v1/stats"} {
		rec := ta.do(t, "GET", path, "")
		if rec.Code != http.StatusConflict || errorCode(t, rec) != ErrCodeNotConfigured {
			t.Errorf("GET %s = %d", path, rec.Code)
		}
	}
	if rec := ta.do(t, "POST", "/api/v1/poll", ""); rec.Code != http.StatusConflict {
		t.Errorf("POST /poll = %d, want 409", rec.Code)
	}
	if rec := ta.do(t, "POST", "/api/v1/engine/start", ""); rec.Code != http.StatusConflict {
		t.Errorf("POST /engine/start = %d, want 409", rec.Code)
	}

	var settings SettingsResponse
	decode(t, ta.do(t, "GET", "/api/v1/settings", ""), &settings)
	if settings.Configured || settings.Settings.PollingInterval != models.DefaultPollingInterval {
		t.Errorf("settings = %+v", settings)
	}

	var status StatusResponse
	decode(t, ta.do(t, "GET", "/api/v1/status", ""), &status)
	if status.Configured || status.Polling.IsActive {
		t.Errorf("status = %+v", status)
	}
}

func TestUpdateSettingsValidation(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{name: "malformed json", body: `{"monitor_ids":`, wantCode: ErrCodeBadRequest},
		{name: "unknown field", body: `{"monitor_ids":"1","colour":"red"}`, wantCode: ErrCodeBadRequest},
		{name: "no monitors", body: `{"monitor_ids":"abc"}`, wantCode: ErrCodeValidationFailed},
		{name: "interval too small", body: `{"monitor_ids":"1","polling_interval":5}`, wantCode: ErrCodeValidationFailed},
		{name: "bad filter", body: `{"monitor_ids":"1","event_filter":"nope("}`, wantCode: ErrCodeValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta := newTestAPI(t)
			rec := ta.do(t, "PUT", "/api/v1/settings", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if code := errorCode(t, rec); code != tt.wantCode {
				t.Errorf("code = %q, want %q", code, tt.wantCode)
			}
		})
	}
}

func TestPollAndEvents(t *testing.T) {
	ta := newTestAPI(t)
	ta.configure(t)
	ta.fetcher.events = sampleEvents()

	rec := ta.do(t, "POST", "/api/v1/poll", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /poll = %d: %s", rec.Code, rec.Body.String())
	}
	var result alerting.PollResult
	decode(t, rec, &result)
	if result.Fetched != 2 || result.Merged != 2 {
		t.Errorf("poll result = %+v", result)
	}
	if len(ta.native.ids) != 2 {
		t.Errorf("native notifications = %d, want 2", len(ta.native.ids))
	}

	var list EventListResponse
	decode(t, ta.do(t, "GET", "/api/v1/events", ""), &list)
	if list.Total != 2 || len(list.Items) != 2 || list.Items[0].ID != "1002" {
		t.Errorf("events = %+v", list)
	}
	if !list.Items[0].Notified {
		t.Error("dispatched event not marked notified")
	}

	decode(t, ta.do(t, "GET", "/api/v1/events?severity=critical", ""), &list)
	if list.Total != 1 || list.Items[0].ID != "1001" {
		t.Errorf("critical events = %+v", list)
	}
	decode(t, ta.do(t, "GET", "/api/v1/events?limit=1", ""), &list)
	if list.Total != 2 || len(list.Items) != 1 {
		t.Errorf("limited events = %+v", list)
	}
	if rec := ta.do(t, "GET", "/api/v1/events?severity=fatal", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad severity = %d", rec.Code)
	}

	if rec := ta.do(t, "POST", "/api/v1/events/1002/dismiss", ""); rec.Code != http.StatusNoContent {
		t.Errorf("dismiss = %d", rec.Code)
	}
	if rec := ta.do(t, "POST", "/api/v1/events/9999/dismiss", ""); rec.Code != http.StatusNotFound {
		t.Errorf("dismiss unknown = %d, want 404", rec.Code)
	}
	decode(t, ta.do(t, "GET", "/api/v1/events?unread=true", ""), &list)
	if list.Total != 1 || list.Items[0].ID != "1001" {
		t.Errorf("unread events = %+v", list)
	}

	var stats models.EventStats
	decode(t, ta.do(t, "GET", "/api/v1/stats", ""), &stats)
	if stats.Total != 2 || stats.Dismissed != 1 || stats.PollCount != 1 {
		t.Errorf("stats = %+v", stats)
	}

	// A second poll with the same events adds nothing.
	decode(t, ta.do(t, "POST", "/api/v1/poll", ""), &result)
	if result.Merged != 0 || len(ta.native.ids) != 2 {
		t.Errorf("second poll = %+v, native = %d", result, len(ta.native.ids))
	}
}

func TestNotificationClicks(t *testing.T) {
	ta := newTestAPI(t)
	ta.configure(t)
	ta.fetcher.events = sampleEvents()
	ta.do(t, "POST", "/api/v1/poll", "")

	// Events are dispatched oldest first.
	first, second := ta.native.ids[0], ta.native.ids[1]

	rec := ta.do(t, "POST", "/api/v1/notifications/"+first+"/click", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("click = %d: %s", rec.Code, rec.Body.String())
	}
	var click notifier.ClickRecord
	decode(t, rec, &click)
	if click.EventID != "1001" || !strings.HasSuffix(click.DashboardURL, "/monitors/42") {
		t.Errorf("click record = %+v", click)
	}
	if rec := ta.do(t, "POST", "/api/v1/notifications/"+first+"/click", ""); rec.Code != http.StatusNotFound {
		t.Errorf("second click = %d, want 404", rec.Code)
	}

	rec = ta.do(t, "POST", "/api/v1/notifications/"+second+"/buttons/1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("dismiss button = %d: %s", rec.Code, rec.Body.String())
	}
	var button ButtonResponse
	decode(t, rec, &button)
	if button.Action != string(notifier.ActionDismiss) {
		t.Errorf("action = %q", button.Action)
	}

	var list EventListResponse
	decode(t, ta.do(t, "GET", "/api/v1/events?unread=true", ""), &list)
	if list.Total != 1 || list.Items[0].ID != "1001" {
		t.Errorf("unread after dismiss button = %+v", list)
	}

	if rec := ta.do(t, "POST", "/api/v1/notifications/x/buttons/abc", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("non-numeric index = %d", rec.Code)
	}
	if rec := ta.do(t, "POST", "/api/v1/notifications/x/buttons/7", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown index = %d", rec.Code)
	}
}

func TestClearEvents(t *testing.T) {
	ta := newTestAPI(t)
	ta.configure(t)
	ta.fetcher.events = sampleEvents()
	ta.do(t, "POST", "/api/v1/poll", "")

	if rec := ta.do(t, "DELETE", "/api/v1/events", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE events = %d", rec.Code)
	}
	var list EventListResponse
	decode(t, ta.do(t, "GET", "/api/v1/events", ""), &list)
	if list.Total != 0 {
		t.Errorf("events after clear = %+v", list)
	}
	if len(ta.native.cleared) != 2 {
		t.Errorf("native cleared = %v", ta.native.cleared)
	}
	if rec := ta.do(t, "DELETE", "/api/v1/notifications", ""); rec.Code != http.StatusNoContent {
		t.Errorf("DELETE notifications = %d", rec.Code)
	}
}

func TestPollInFlight(t *testing.T) {
	ta := newTestAPI(t)
	ta.configure(t)
	ta.fetcher.entered = make(chan struct{}, 1)
	ta.fetcher.release = make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		ta.engine.ForcePoll(context.Background())
	}()
	<-ta.fetcher.entered

	rec := ta.do(t, "POST", "/api/v1/poll", "")
	if rec.Code != http.StatusConflict || errorCode(t, rec) != ErrCodeConflict {
		t.Errorf("concurrent poll = %d, want 409", rec.Code)
	}
	close(ta.fetcher.release)
	<-done
}

func TestConnectionTest(t *testing.T) {
	ta := newTestAPI(t)
	ta.configure(t)
	ta.fetcher.events = sampleEvents()

	var resp ConnectionTestResponse
	decode(t, ta.do(t, "POST", "/api/v1/connection/test", ""), &resp)
	if !resp.OK || resp.Events != 2 {
		t.Errorf("connection test = %+v", resp)
	}

	ta.fetcher.err = &fetcher.FetchError{StatusCode: http.StatusForbidden, Body: "Forbidden"}
	rec := ta.do(t, "POST", "/api/v1/connection/test", "")
	if rec.Code != http.StatusBadGateway || errorCode(t, rec) != ErrCodeUpstreamError {
		t.Errorf("failed connection test = %d", rec.Code)
	}
}

func TestEngineStartStop(t *testing.T) {
	ta := newTestAPI(t)
	ta.configure(t)

	var status StatusResponse
	decode(t, ta.do(t, "POST", "/api/v1/engine/start", ""), &status)
	if !status.Configured || !status.Polling.IsActive || status.Polling.NextPoll == 0 {
		t.Errorf("after start = %+v", status)
	}

	var stopped StatusResponse
	decode(t, ta.do(t, "POST", "/api/v1/engine/stop", ""), &stopped)
	if stopped.Polling.IsActive || stopped.Polling.NextPoll != 0 {
		t.Errorf("after stop = %+v", stopped)
	}
}

func TestCrossSiteRequestsRejected(t *testing.T) {
	ta := newTestAPI(t)
	ta.configure(t)
	if rec := ta.do(t, "POST", "/api/v1/engine/start", ""); rec.Code != http.StatusOK {
		t.Fatalf("start status = %d", rec.Code)
	}

	tests := []struct {
		name       string
		method     string
		path       string
		headers    map[string]string
		wantStatus int
	}{
		{
			name:       "foreign origin stop",
			method:     "POST",
			path:       "/api/v1/engine/stop",
			headers:    map[string]string{"Origin": "https://evil.example", "Sec-Fetch-Site": "cross-site", "Content-Type": "text/plain"},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "foreign origin dismiss",
			method:     "POST",
			path:       "/api/v1/events/1001/dismiss",
			headers:    map[string]string{"Origin": "http://evil.example"},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "cross-site without origin",
			method:     "POST",
			path:       "/api/v1/poll",
			headers:    map[string]string{"Sec-Fetch-Site": "cross-site"},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "foreign origin clear",
			method:     "DELETE",
			path:       "/api/v1/notifications",
			headers:    map[string]string{"Origin": "https://evil.example"},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "foreign origin may read",
			method:     "GET",
			path:       "/api/v1/status",
			headers:    map[string]string{"Origin": "https://evil.example", "Sec-Fetch-Site": "cross-site"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "trusted origin",
			method:     "DELETE",
			path:       "/api/v1/notifications",
			headers:    map[string]string{"Origin": "https://app.trusted.example", "Sec-Fetch-Site": "cross-site"},
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "same origin",
			method:     "DELETE",
			path:       "/api/v1/notifications",
			headers:    map[string]string{"Origin": "http://example.com", "Sec-Fetch-Site": "same-origin"},
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "non-browser client",
			method:     "DELETE",
			path:       "/api/v1/notifications",
			wantStatus: http.StatusNoContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			ta.handler.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus == http.StatusForbidden && errorCode(t, rec) != ErrCodeForbidden {
				t.Error("expected FORBIDDEN error code")
			}
		})
	}

	if !ta.engine.Status().IsActive {
		t.Error("engine was stopped by a cross-site request")
	}
}

func TestFromError(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
	}{
		{&models.ConfigError{Field: "monitor_ids", Reason: "no valid monitor ids"}, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", alerting.ErrPollInFlight), http.StatusConflict},
		{storage.ErrNotFound, http.StatusNotFound},
		{notifier.ErrUnknownNotification, http.StatusNotFound},
		{&fetcher.FetchError{Err: context.DeadlineExceeded}, http.StatusBadGateway},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := FromError(tt.err); got.Status != tt.wantStatus {
			t.Errorf("FromError(%v).Status = %d, want %d", tt.err, got.Status, tt.wantStatus)
		}
	}
}
