// Package alerting implements the event alerting engine: a fixed-interval
// polling scheduler that fetches remote events, classifies and filters them,
// merges them into the bounded history and dispatches notifications.
package alerting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/eventalerts/internal/metrics"
	"github.com/good-yellow-bee/eventalerts/internal/models"
	"github.com/good-yellow-bee/eventalerts/internal/storage"
)

const (
	initialLookback    = 24 * time.Hour
	connectionLookback = time.Hour
)

// EventFetcher queries the remote events API.
type EventFetcher interface {
	FetchEvents(ctx context.Context, creds models.Credentials, monitorIDs []int64, start, end time.Time) ([]models.RawEvent, error)
}

// NameResolver resolves monitor display names. It never fails.
type NameResolver interface {
	Resolve(ctx context.Context, creds models.Credentials, monitorID int64) string
}

// Dispatcher delivers notifications for processed events.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev models.ProcessedEvent, settings models.Settings) error
	ClearAll(ctx context.Context) error
}

// Options configures the engine.
type Options struct {
	Fetcher    EventFetcher
	Resolver   NameResolver // optional
	Store      *storage.EventStore
	Dispatcher Dispatcher // optional
	Logger     zerolog.Logger
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
	// PollOnStart runs a cycle immediately on Start.
	PollOnStart bool
}

// EngineStats tracks engine statistics using atomic operations for lock-free access.
type EngineStats struct {
	Cycles         atomic.Int64
	EventsFetched  atomic.Int64
	EventsMerged   atomic.Int64
	EventsFiltered atomic.Int64
	Dispatched     atomic.Int64
	DispatchErrors atomic.Int64
}

// EngineStatsSnapshot is a snapshot of engine statistics for reporting.
type EngineStatsSnapshot struct {
	Cycles         int64 `json:"cycles"`
	EventsFetched  int64 `json:"events_fetched"`
	EventsMerged   int64 `json:"events_merged"`
	EventsFiltered int64 `json:"events_filtered"`
	Dispatched     int64 `json:"dispatched"`
	DispatchErrors int64 `json:"dispatch_errors"`
}

// PollResult summarizes one fetch-to-persist cycle.
type PollResult struct {
	Fetched  int `json:"fetched"`
	New      int `json:"new"`
	Filtered int `json:"filtered"`
	Merged   int `json:"merged"`
}

// Engine is the polling scheduler. It is Idle until Start and returns to
// Idle on Stop. At most one cycle runs per storage bucket at a time.
type Engine struct {
	fetcher     EventFetcher
	resolver    NameResolver
	store       *storage.EventStore
	dispatcher  Dispatcher
	log         zerolog.Logger
	now         func() time.Time
	pollOnStart bool

	mu         sync.Mutex
	configured bool
	settings   models.Settings
	creds      models.Credentials
	filter     *ExprMatcher
	quiet      QuietHours
	cron       *cron.Cron
	generation uint64
	baseCtx    context.Context
	status     models.PollingStatus

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	stats EngineStats
}

// snapshot is the configuration a single cycle runs with.
type snapshot struct {
	settings models.Settings
	creds    models.Credentials
	filter   *ExprMatcher
	quiet    QuietHours
}

// New creates an idle engine.
func New(opts Options) *Engine {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		fetcher:     opts.Fetcher,
		resolver:    opts.Resolver,
		store:       opts.Store,
		dispatcher:  opts.Dispatcher,
		log:         opts.Logger,
		now:         now,
		pollOnStart: opts.PollOnStart,
		baseCtx:     context.Background(),
		locks:       make(map[string]*sync.Mutex),
	}
}

// prepare validates settings and builds the cycle snapshot.
func prepare(settings models.Settings, creds models.Credentials) (snapshot, error) {
	s := settings.WithDefaults()
	if err := s.Validate(); err != nil {
		return snapshot{}, err
	}
	filter, err := compileFilter(s.EventFilter)
	if err != nil {
		return snapshot{}, err
	}
	quiet, err := QuietHoursFrom(s)
	if err != nil {
		return snapshot{}, err
	}
	return snapshot{settings: s, creds: creds, filter: filter, quiet: quiet}, nil
}

// Configure validates and stores settings without starting the timer.
func (e *Engine) Configure(settings models.Settings, creds models.Credentials) error {
	snap, err := prepare(settings, creds)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.applyLocked(snap)
	e.mu.Unlock()
	return nil
}

func (e *Engine) applyLocked(snap snapshot) {
	e.configured = true
	e.settings = snap.settings
	e.creds = snap.creds
	e.filter = snap.filter
	e.quiet = snap.quiet
}

func (e *Engine) snapshotLocked() snapshot {
	return snapshot{settings: e.settings, creds: e.creds, filter: e.filter, quiet: e.quiet}
}

// Start validates settings and begins polling every PollingInterval seconds.
// A running instance is stopped first. Invalid settings return a
// *models.ConfigError and leave the engine state unchanged.
func (e *Engine) Start(ctx context.Context, settings models.Settings, creds models.Credentials) error {
	snap, err := prepare(settings, creds)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopLocked()
	e.applyLocked(snap)
	e.generation++
	gen := e.generation
	e.baseCtx = context.WithoutCancel(ctx)

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{log: e.log})))
	c.Schedule(cron.Every(snap.settings.Interval()), cron.FuncJob(func() { e.tick(gen) }))
	c.Start()
	e.cron = c

	now := e.now()
	e.status.IsActive = true
	e.status.NextPoll = now.Add(snap.settings.Interval()).UnixMilli()
	if e.pollOnStart {
		e.status.NextPoll = now.UnixMilli()
		go e.tick(gen)
	}

	e.log.Info().
		Str("bucket", snap.settings.BucketKey()).
		Int("interval_s", snap.settings.PollingInterval).
		Str("notification_type", string(snap.settings.NotificationType)).
		Msg("polling started")
	return nil
}

// Resume starts polling with the last configured settings and credentials.
func (e *Engine) Resume(ctx context.Context) error {
	e.mu.Lock()
	if !e.configured {
		e.mu.Unlock()
		return ErrNotConfigured
	}
	settings, creds := e.settings, e.creds
	e.mu.Unlock()
	return e.Start(ctx, settings, creds)
}

// Stop cancels future cycles. It does not interrupt a cycle that is already running.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopLocked() {
		e.log.Info().Msg("polling stopped")
	}
}

func (e *Engine) stopLocked() bool {
	wasActive := e.status.IsActive
	if e.cron != nil {
		e.cron.Stop()
		e.cron = nil
	}
	e.generation++
	e.status.IsActive = false
	e.status.NextPoll = 0
	return wasActive
}

// UpdateSettings applies new settings. A running engine is restarted so the
// change takes effect from the next scheduled cycle.
func (e *Engine) UpdateSettings(ctx context.Context, settings models.Settings) error {
	e.mu.Lock()
	active := e.status.IsActive
	creds := e.creds
	e.mu.Unlock()

	if active {
		return e.Start(ctx, settings, creds)
	}
	return e.Configure(settings, creds)
}

// UpdateCredentials replaces the credentials used by the next cycle.
func (e *Engine) UpdateCredentials(creds models.Credentials) {
	e.mu.Lock()
	e.creds = creds
	e.mu.Unlock()
}

// Settings returns the current settings and whether any were supplied.
func (e *Engine) Settings() (models.Settings, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings, e.configured
}

// Status returns a copy of the scheduler status.
func (e *Engine) Status() models.PollingStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Stats returns a snapshot of engine statistics.
func (e *Engine) Stats() EngineStatsSnapshot {
	return EngineStatsSnapshot{
		Cycles:         e.stats.Cycles.Load(),
		EventsFetched:  e.stats.EventsFetched.Load(),
		EventsMerged:   e.stats.EventsMerged.Load(),
		EventsFiltered: e.stats.EventsFiltered.Load(),
		Dispatched:     e.stats.Dispatched.Load(),
		DispatchErrors: e.stats.DispatchErrors.Load(),
	}
}

// tick runs one timer-driven cycle for generation gen.
func (e *Engine) tick(gen uint64) {
	e.mu.Lock()
	if !e.status.IsActive || gen != e.generation {
		e.mu.Unlock()
		return
	}
	snap := e.snapshotLocked()
	ctx := e.baseCtx
	e.mu.Unlock()

	now := e.now()
	defer e.scheduleNext(gen, now, snap.settings.Interval())

	if snap.quiet.Contains(now) {
		metrics.PollCyclesTotal.WithLabelValues(metrics.ResultQuiet).Inc()
		e.log.Debug().Msg("quiet hours, skipping cycle")
		return
	}

	if _, err := e.poll(ctx, snap); errors.Is(err, ErrPollInFlight) {
		metrics.PollCyclesTotal.WithLabelValues(metrics.ResultBusy).Inc()
		e.log.Debug().Msg("previous cycle still running, skipping")
	}
}

func (e *Engine) scheduleNext(gen uint64, now time.Time, interval time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen == e.generation && e.status.IsActive {
		e.status.NextPoll = now.Add(interval).UnixMilli()
	}
}

// ForcePoll runs one cycle immediately, outside the timer and regardless of
// quiet hours. It returns ErrPollInFlight if a cycle is already running.
func (e *Engine) ForcePoll(ctx context.Context) (PollResult, error) {
	e.mu.Lock()
	if !e.configured {
		e.mu.Unlock()
		return PollResult{}, ErrNotConfigured
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()
	return e.poll(ctx, snap)
}

func (e *Engine) bucketLock(bucket string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	l, ok := e.locks[bucket]
	if !ok {
		l = &sync.Mutex{}
		e.locks[bucket] = l
	}
	return l
}

// poll fetches, classifies, merges and dispatches. Fetch and persistence
// failures are recorded in the status and returned.
func (e *Engine) poll(ctx context.Context, snap snapshot) (PollResult, error) {
	s := snap.settings
	bucket := s.BucketKey()
	lock := e.bucketLock(bucket)
	if !lock.TryLock() {
		return PollResult{}, ErrPollInFlight
	}
	defer lock.Unlock()

	started := time.Now()
	defer func() { metrics.PollDuration.Observe(time.Since(started).Seconds()) }()
	e.stats.Cycles.Add(1)

	now := e.now()
	log := e.log.With().Str("bucket", bucket).Logger()

	st, err := e.store.Load(ctx, bucket)
	if err != nil {
		return PollResult{}, e.recordError(log, err)
	}

	start := now.Add(-initialLookback)
	if st.LastPollTime > 0 {
		start = time.UnixMilli(st.LastPollTime)
	}

	raw, err := e.fetcher.FetchEvents(ctx, snap.creds, s.ParsedMonitorIDs(), start, now)
	if err != nil {
		return PollResult{}, e.recordError(log, err)
	}

	var result PollResult
	result.Fetched = len(raw)
	e.stats.EventsFetched.Add(int64(len(raw)))
	metrics.EventsFetchedTotal.Add(float64(len(raw)))

	known := make(map[string]struct{}, len(st.Events)+len(raw))
	for _, ev := range st.Events {
		known[ev.ID] = struct{}{}
	}

	appBase := snap.creds.AppBaseURL()
	var fresh []models.ProcessedEvent
	for i := range raw {
		ev := &raw[i]
		id := string(ev.ID)
		if id == "" {
			continue
		}
		if _, ok := known[id]; ok {
			continue
		}
		known[id] = struct{}{}
		result.New++

		if !PassesPriority(ev, s.AlertPriority) {
			result.Filtered++
			metrics.EventsFilteredTotal.WithLabelValues("priority").Inc()
			continue
		}
		if snap.filter != nil {
			ok, err := snap.filter.Match(ev)
			if err != nil {
				log.Debug().Err(err).Str("event_id", id).Msg("event filter failed, keeping event")
			} else if !ok {
				result.Filtered++
				metrics.EventsFilteredTotal.WithLabelValues("expression").Inc()
				continue
			}
		}

		fresh = append(fresh, Classify(*ev, e.monitorName(ctx, snap.creds, ev), appBase))
	}
	e.stats.EventsFiltered.Add(int64(result.Filtered))

	merged, added := storage.Merge(st, fresh, s.MaxEventsHistory)
	merged.LastPollTime = now.UnixMilli()
	merged.PollCount++
	if err := e.store.Save(ctx, bucket, merged); err != nil {
		return result, e.recordError(log, err)
	}
	// Status mirrors the stored poll counters from here on, even if the
	// notified-flag save below fails.
	e.mu.Lock()
	e.status.LastPoll = merged.LastPollTime
	e.status.PollCount++
	e.mu.Unlock()

	result.Merged = len(added)
	e.stats.EventsMerged.Add(int64(len(added)))
	metrics.EventsMergedTotal.Add(float64(len(added)))
	metrics.EventsStored.Set(float64(len(merged.Events)))

	if len(added) > 0 {
		e.dispatchAll(ctx, log, merged, added, s)
		storage.MarkNotified(&merged, added)
		if err := e.store.Save(ctx, bucket, merged); err != nil {
			return result, e.recordError(log, err)
		}
	}

	metrics.PollCyclesTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	log.Debug().
		Int("fetched", result.Fetched).
		Int("new", result.New).
		Int("filtered", result.Filtered).
		Int("merged", result.Merged).
		Msg("poll complete")
	return result, nil
}

// dispatchAll notifies for the added events, oldest first. Failures are
// logged and never stop the cycle.
func (e *Engine) dispatchAll(ctx context.Context, log zerolog.Logger, st models.EventStorage, added []string, s models.Settings) {
	if e.dispatcher == nil {
		return
	}
	for i := len(added) - 1; i >= 0; i-- {
		ev, ok := storage.Find(st, added[i])
		if !ok {
			continue
		}
		e.stats.Dispatched.Add(1)
		if err := e.safeDispatch(ctx, ev, s); err != nil {
			e.stats.DispatchErrors.Add(1)
			log.Warn().Err(err).Str("event_id", ev.ID).Msg("notification dispatch failed")
		}
	}
}

func (e *Engine) safeDispatch(ctx context.Context, ev models.ProcessedEvent, s models.Settings) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatch panic: %v", r)
		}
	}()
	return e.dispatcher.Dispatch(ctx, ev, s)
}

func (e *Engine) monitorName(ctx context.Context, creds models.Credentials, ev *models.RawEvent) string {
	id := ev.MonitorIDValue()
	if e.resolver != nil {
		return e.resolver.Resolve(ctx, creds, id)
	}
	if id <= 0 {
		return models.UnknownMonitorName
	}
	return models.FormatMonitorName(id)
}

func (e *Engine) recordError(log zerolog.Logger, err error) error {
	e.mu.Lock()
	e.status.Errors++
	e.status.LastError = err.Error()
	e.mu.Unlock()

	metrics.PollCyclesTotal.WithLabelValues(metrics.ResultError).Inc()
	log.Warn().Err(err).Msg("poll failed")
	return err
}

// activeBucket returns the bucket of the current settings.
func (e *Engine) activeBucket() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.configured {
		return "", ErrNotConfigured
	}
	return e.settings.BucketKey(), nil
}

// Events returns the active bucket's events, newest first.
func (e *Engine) Events(ctx context.Context) ([]models.ProcessedEvent, error) {
	bucket, err := e.activeBucket()
	if err != nil {
		return nil, err
	}
	st, err := e.store.Load(ctx, bucket)
	if err != nil {
		return nil, err
	}
	return storage.List(st), nil
}

// EventStats summarizes the active bucket.
func (e *Engine) EventStats(ctx context.Context) (models.EventStats, error) {
	bucket, err := e.activeBucket()
	if err != nil {
		return models.EventStats{}, err
	}
	st, err := e.store.Load(ctx, bucket)
	if err != nil {
		return models.EventStats{}, err
	}
	return storage.Stats(st), nil
}

// DismissEvent marks an event dismissed. It returns storage.ErrNotFound
// when the id is not in the active bucket.
func (e *Engine) DismissEvent(ctx context.Context, id string) error {
	bucket, err := e.activeBucket()
	if err != nil {
		return err
	}
	lock := e.bucketLock(bucket)
	lock.Lock()
	defer lock.Unlock()

	st, err := e.store.Load(ctx, bucket)
	if err != nil {
		return err
	}
	if !storage.Dismiss(&st, id) {
		return storage.ErrNotFound
	}
	return e.store.Save(ctx, bucket, st)
}

// ClearEvents drops the active bucket and every outstanding native notification.
func (e *Engine) ClearEvents(ctx context.Context) error {
	bucket, err := e.activeBucket()
	if err != nil {
		return err
	}
	lock := e.bucketLock(bucket)
	lock.Lock()
	err = e.store.Clear(ctx, bucket)
	lock.Unlock()
	if err != nil {
		return err
	}
	metrics.EventsStored.Set(0)

	if e.dispatcher != nil {
		if err := e.dispatcher.ClearAll(ctx); err != nil {
			return fmt.Errorf("clear notifications: %w", err)
		}
	}
	e.log.Info().Str("bucket", bucket).Msg("events cleared")
	return nil
}

// TestConnection runs one fetch over the last hour without merging or
// notifying and returns the number of events. Errors are returned to the
// caller and not recorded in the status.
func (e *Engine) TestConnection(ctx context.Context) (int, error) {
	e.mu.Lock()
	if !e.configured {
		e.mu.Unlock()
		return 0, ErrNotConfigured
	}
	s, creds := e.settings, e.creds
	e.mu.Unlock()

	now := e.now()
	events, err := e.fetcher.FetchEvents(ctx, creds, s.ParsedMonitorIDs(), now.Add(-connectionLookback), now)
	if err != nil {
		return 0, err
	}
	return len(events), nil
}

// cronLogger adapts zerolog to the cron.Logger interface.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
