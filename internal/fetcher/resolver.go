package fetcher

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/good-yellow-bee/eventalerts/internal/models"
)

// NameLookup fetches a monitor display name from the remote API.
type NameLookup interface {
	MonitorName(ctx context.Context, creds models.Credentials, monitorID int64) (string, error)
}

// ResolverConfig configures a MonitorResolver.
type ResolverConfig struct {
	RatePerSec float64 // lookups per second; 0 disables the limit
	Burst      int
}

// DefaultResolverConfig returns default resolver settings.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{RatePerSec: 2, Burst: 5}
}

// MonitorResolver caches monitor names by id.
// Lookups that fail or exceed the rate limit fall back to "Monitor {id}"
// and are retried on a later call.
type MonitorResolver struct {
	lookup  NameLookup
	limiter *rate.Limiter
	log     zerolog.Logger

	mu    sync.RWMutex
	names map[int64]string
}

// NewMonitorResolver creates a resolver. A nil lookup always yields the fallback name.
func NewMonitorResolver(lookup NameLookup, cfg ResolverConfig, log zerolog.Logger) *MonitorResolver {
	r := &MonitorResolver{
		lookup: lookup,
		log:    log,
		names:  make(map[int64]string),
	}
	if cfg.RatePerSec > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}
	return r
}

// Resolve returns the display name of a monitor. It never fails: events
// without a monitor id resolve to models.UnknownMonitorName and lookup
// failures to models.FormatMonitorName.
func (r *MonitorResolver) Resolve(ctx context.Context, creds models.Credentials, monitorID int64) string {
	if monitorID <= 0 {
		return models.UnknownMonitorName
	}

	r.mu.RLock()
	name, ok := r.names[monitorID]
	r.mu.RUnlock()
	if ok {
		return name
	}

	fallback := models.FormatMonitorName(monitorID)
	if r.lookup == nil {
		return fallback
	}
	if r.limiter != nil && !r.limiter.Allow() {
		r.log.Debug().Int64("monitor_id", monitorID).Msg("monitor lookup rate limited")
		return fallback
	}

	name, err := r.lookup.MonitorName(ctx, creds, monitorID)
	if err != nil {
		r.log.Warn().Err(err).Int64("monitor_id", monitorID).Msg("monitor lookup failed")
		return fallback
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = fallback
	}

	r.mu.Lock()
	r.names[monitorID] = name
	r.mu.Unlock()
	return name
}

// Forget drops all cached names.
func (r *MonitorResolver) Forget() {
	r.mu.Lock()
	r.names = make(map[int64]string)
	r.mu.Unlock()
}
