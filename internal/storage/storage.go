// Package storage provides key-value persistence and the bounded event history.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("not found")

// KV is the key-value persistence used by the engine.
// Values are opaque bytes; callers own the encoding.
type KV interface {
	// Get returns the value stored under key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys lists the keys starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
	// Close releases resources.
	Close() error
}

// Open returns a KV for the given driver ("sqlite" or "memory").
func Open(driver, path string) (KV, error) {
	switch driver {
	case "", "sqlite":
		s := NewSQLiteStorage(path)
		if err := s.Open(); err != nil {
			return nil, err
		}
		if err := s.Migrate(); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	case "memory":
		return NewMemoryStorage(), nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
