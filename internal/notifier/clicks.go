package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/good-yellow-bee/eventalerts/internal/models"
	"github.com/good-yellow-bee/eventalerts/internal/storage"
)

// clicksKey is the KV key of the click side table.
const clicksKey = "notifications"

const (
	// ClickRecordTTL is how long an unclicked record is kept.
	ClickRecordTTL = 24 * time.Hour
	// MaxClickRecords caps the side table; the oldest records go first.
	MaxClickRecords = models.MaxEventsHistory
)

// ClickRecord maps a native notification to the event it announced.
type ClickRecord struct {
	EventID      string    `json:"event_id"`
	DashboardURL string    `json:"dashboard_url"`
	CreatedAt    time.Time `json:"created_at"`
}

// ClickStore persists click records keyed by notification id.
// Take removes the record it returns, so every click resolves at most once.
type ClickStore struct {
	mu sync.Mutex
	kv storage.KV
}

// NewClickStore creates a click store on kv.
func NewClickStore(kv storage.KV) *ClickStore {
	return &ClickStore{kv: kv}
}

func (s *ClickStore) load(ctx context.Context) (map[string]ClickRecord, error) {
	records := make(map[string]ClickRecord)
	data, err := s.kv.Get(ctx, clicksKey)
	if errors.Is(err, storage.ErrNotFound) {
		return records, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load click records: %w", err)
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode click records: %w", err)
	}
	return records, nil
}

func (s *ClickStore) save(ctx context.Context, records map[string]ClickRecord) error {
	if len(records) == 0 {
		return s.kv.Delete(ctx, clicksKey)
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode click records: %w", err)
	}
	return s.kv.Put(ctx, clicksKey, data)
}

// Put stores the record for a notification id. Records older than
// ClickRecordTTL relative to rec are dropped, then the oldest records
// beyond MaxClickRecords.
func (s *ClickStore) Put(ctx context.Context, notificationID string, rec ClickRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		return err
	}
	records[notificationID] = rec
	pruneClicks(records, rec.CreatedAt)
	return s.save(ctx, records)
}

func pruneClicks(records map[string]ClickRecord, now time.Time) {
	if !now.IsZero() {
		cutoff := now.Add(-ClickRecordTTL)
		for id, r := range records {
			if r.CreatedAt.Before(cutoff) {
				delete(records, id)
			}
		}
	}
	if len(records) <= MaxClickRecords {
		return
	}

	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := records[ids[i]].CreatedAt, records[ids[j]].CreatedAt
		if a.Equal(b) {
			return ids[i] < ids[j]
		}
		return a.Before(b)
	})
	for _, id := range ids[:len(ids)-MaxClickRecords] {
		delete(records, id)
	}
}

// Take returns and removes the record for a notification id.
func (s *ClickStore) Take(ctx context.Context, notificationID string) (ClickRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		return ClickRecord{}, false, err
	}
	rec, ok := records[notificationID]
	if !ok {
		return ClickRecord{}, false, nil
	}
	delete(records, notificationID)
	if err := s.save(ctx, records); err != nil {
		return ClickRecord{}, false, err
	}
	return rec, true, nil
}

// TakeAll returns and removes every record.
func (s *ClickStore) TakeAll(ctx context.Context) (map[string]ClickRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.kv.Delete(ctx, clicksKey); err != nil {
		return nil, err
	}
	return records, nil
}

// Len returns the number of outstanding records.
func (s *ClickStore) Len(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.load(ctx)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}
