package store

import (
	"context"
	"errors"
)

// ErrEmptyKey is returned by every backend when asked to store under "".
var ErrEmptyKey = errors.New("store: empty key")

// KeyValueStore is durable key/value storage used to stash last-known-good data.
// It is never authoritative; callers treat any error as "no data".
type KeyValueStore interface {
	// Get returns the raw value and whether the key exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	// Remove deletes the given keys. Missing keys are ignored.
	Remove(ctx context.Context, keys ...string) error
	// RemovePrefix deletes every key starting with prefix.
	RemovePrefix(ctx context.Context, prefix string) error
}

// HealthChecker is implemented by backends that talk to an external service.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
