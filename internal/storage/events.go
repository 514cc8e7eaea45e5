package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/good-yellow-bee/eventalerts/internal/models"
)

// EventStore persists one EventStorage aggregate per bucket key.
// It performs no locking; callers serialize writes to a bucket.
type EventStore struct {
	kv KV
}

// NewEventStore creates an event store on top of kv.
func NewEventStore(kv KV) *EventStore {
	return &EventStore{kv: kv}
}

// KV returns the underlying key-value store.
func (s *EventStore) KV() KV {
	return s.kv
}

// Load returns the stored aggregate for bucket, or an empty one if absent.
func (s *EventStore) Load(ctx context.Context, bucket string) (models.EventStorage, error) {
	data, err := s.kv.Get(ctx, bucket)
	if errors.Is(err, ErrNotFound) {
		return models.EventStorage{Events: []models.ProcessedEvent{}}, nil
	}
	if err != nil {
		return models.EventStorage{}, fmt.Errorf("load bucket %s: %w", bucket, err)
	}

	var st models.EventStorage
	if err := json.Unmarshal(data, &st); err != nil {
		return models.EventStorage{}, fmt.Errorf("decode bucket %s: %w", bucket, err)
	}
	if st.Events == nil {
		st.Events = []models.ProcessedEvent{}
	}
	return st, nil
}

// Save writes the aggregate for bucket.
func (s *EventStore) Save(ctx context.Context, bucket string, st models.EventStorage) error {
	if st.Events == nil {
		st.Events = []models.ProcessedEvent{}
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode bucket %s: %w", bucket, err)
	}
	if err := s.kv.Put(ctx, bucket, data); err != nil {
		return fmt.Errorf("save bucket %s: %w", bucket, err)
	}
	return nil
}

// Clear drops the entire bucket.
func (s *EventStore) Clear(ctx context.Context, bucket string) error {
	if err := s.kv.Delete(ctx, bucket); err != nil {
		return fmt.Errorf("clear bucket %s: %w", bucket, err)
	}
	return nil
}

// Merge appends the events whose id is not yet present, then keeps the
// maxHistory most recent by timestamp. Existing entries are never modified.
// It returns the new aggregate and the ids of the added events that survived
// truncation, most recent first.
func Merge(existing models.EventStorage, incoming []models.ProcessedEvent, maxHistory int) (models.EventStorage, []string) {
	seen := make(map[string]struct{}, len(existing.Events)+len(incoming))
	events := make([]models.ProcessedEvent, 0, len(existing.Events)+len(incoming))
	for _, ev := range existing.Events {
		seen[ev.ID] = struct{}{}
		events = append(events, ev)
	}

	added := make(map[string]struct{})
	for _, ev := range incoming {
		if _, ok := seen[ev.ID]; ok {
			continue
		}
		seen[ev.ID] = struct{}{}
		added[ev.ID] = struct{}{}
		events = append(events, ev)
	}

	sortEvents(events)
	if maxHistory > 0 && len(events) > maxHistory {
		events = events[:maxHistory]
	}

	var kept []string
	for _, ev := range events {
		if _, ok := added[ev.ID]; ok {
			kept = append(kept, ev.ID)
		}
	}

	out := existing
	out.Events = events
	return out, kept
}

// Dismiss marks the event dismissed. It reports whether the id was present.
func Dismiss(st *models.EventStorage, id string) bool {
	for i := range st.Events {
		if st.Events[i].ID == id {
			st.Events[i].Dismissed = true
			return true
		}
	}
	return false
}

// MarkNotified sets notified on every listed id.
func MarkNotified(st *models.EventStorage, ids []string) {
	if len(ids) == 0 {
		return
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	for i := range st.Events {
		if _, ok := want[st.Events[i].ID]; ok {
			st.Events[i].Notified = true
		}
	}
}

// Find returns the event with the given id.
func Find(st models.EventStorage, id string) (models.ProcessedEvent, bool) {
	for _, ev := range st.Events {
		if ev.ID == id {
			return ev, true
		}
	}
	return models.ProcessedEvent{}, false
}

// List returns a copy of the events sorted by timestamp, newest first.
func List(st models.EventStorage) []models.ProcessedEvent {
	events := make([]models.ProcessedEvent, len(st.Events))
	copy(events, st.Events)
	sortEvents(events)
	return events
}

// Stats summarizes the aggregate.
func Stats(st models.EventStorage) models.EventStats {
	stats := models.EventStats{
		Total: len(st.Events),
		BySeverity: map[models.Severity]int{
			models.SeverityCritical: 0,
			models.SeverityWarning:  0,
			models.SeverityInfo:     0,
		},
		LastPollTime: st.LastPollTime,
		PollCount:    st.PollCount,
	}
	for _, ev := range st.Events {
		stats.BySeverity[ev.Severity]++
		if ev.Dismissed {
			stats.Dismissed++
		} else {
			stats.Unread++
		}
		if ev.Notified {
			stats.Notified++
		}
	}
	return stats
}

// sortEvents orders by timestamp descending; ties break on id for a stable order.
func sortEvents(events []models.ProcessedEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Timestamp != events[j].Timestamp {
			return events[i].Timestamp > events[j].Timestamp
		}
		return events[i].ID < events[j].ID
	})
}
