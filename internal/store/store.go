package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// KV is the key-value surface used for offsets, statuses and the language cache.
type KV interface {
	Exists(ctx context.Context, key string) (bool, error)
	// Get returns ErrNotFound when the key is missing or expired.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	SetEx(ctx context.Context, key string, ttl time.Duration, value string) error
	Close() error
}

// OffsetStore persists the getUpdates cursor.
type OffsetStore interface {
	// LoadOffset returns 0 when nothing was saved yet.
	LoadOffset(ctx context.Context) (int64, error)
	SaveOffset(ctx context.Context, offset int64) error
}

var ErrNotFound = errors.New("not found")

// StoreError reports a failed backend operation.
type StoreError struct {
	Backend string
	Op      string
	Key     string
	Err     error
}

func (e *StoreError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s: %s %q: %v", e.Backend, e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// ConfigurationError is returned when a component needs a backend that was not attached.
type ConfigurationError struct {
	Component string
	Backend   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s backend is not configured", e.Component, e.Backend)
}

func chatKey(chatID int64, field string) string {
	return strconv.FormatInt(chatID, 10) + ":" + field
}
