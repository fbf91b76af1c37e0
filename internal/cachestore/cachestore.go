// Package cachestore is the key/value and bounded-list store behind the
// config cache, the ring series and the overview snapshots.
package cachestore

import (
	"context"
	"time"

	"github.com/xtxerr/nodepulse/internal/errors"
)

// ErrMiss is returned by Get when the key does not exist.
var ErrMiss = errors.New(errors.KindNotFound, "cache miss", errors.ErrNotFound)

// Store is the Cache Store contract. Every method may fail with a
// StoreUnavailable error; a missing key is ErrMiss, never a store error.
type Store interface {
	// Get returns the value at key or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value at key. A zero ttl stores without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	// PushBounded atomically pushes value at the head of the list at key,
	// trims the list to maxLen newest entries and sets its expiry to ttl.
	PushBounded(ctx context.Context, key string, value []byte, maxLen int64, ttl time.Duration) error

	// Range returns up to limit entries of the list at key, newest first.
	// A limit <= 0 returns the whole list. A missing key is an empty list.
	Range(ctx context.Context, key string, limit int64) ([][]byte, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases the connection pool.
	Close() error
}

// IsMiss reports whether err is a cache miss.
func IsMiss(err error) bool {
	return errors.Is(err, ErrMiss)
}
