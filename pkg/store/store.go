// Package store provides storage backends for limiter state.
//
// A Store holds opaque state blobs keyed by string, each with a TTL. The
// limiter performs a read-modify-write per check, so a Store must offer an
// atomic primitive for it: CompareAndSwap, or the optional Updater interface
// for stores that can serialize updates per key.
package store

//go:generate mockgen -destination=../../internal/mocks/mock_store.go -package=mocks github.com/manenim/halt/pkg/store Store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrStoreFull is returned when the storage capacity is reached.
	ErrStoreFull = errors.New("halt: store capacity exceeded")

	// ErrNoShards is returned when a Sharded store is built without shards.
	ErrNoShards = errors.New("halt: sharded store needs at least one shard")

	// ErrNilClient is returned when a Redis store is built without a client.
	ErrNilClient = errors.New("halt: redis client is nil")
)

// Store defines the storage interface for limiter state.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value stored under key and true, or false if the key
	// is absent or expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key. A ttl <= 0 means no expiry.
	//
	// Set is a blind write. Get followed by Set is NOT safe for
	// read-modify-write under concurrency: two writers can both read the
	// same state and one update is lost. Use CompareAndSwap for that.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// CompareAndSwap stores value under key only if the current value equals
	// old. A nil old means the key must be absent (or expired). It reports
	// whether the swap happened.
	CompareAndSwap(ctx context.Context, key string, old, value []byte, ttl time.Duration) (bool, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// UpdateFunc computes the next value from the current one. current is nil
// when the key is absent. Returning an error aborts the update.
type UpdateFunc func(current []byte) ([]byte, error)

// Updater is implemented by stores that can run a read-modify-write while
// holding a per-key lock, so at most one update per key is in flight.
type Updater interface {
	Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) error
}
