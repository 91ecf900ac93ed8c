package store

import (
	"context"
	"errors"
	"time"
)

// DefaultMaxAttempts is the compare-and-swap retry budget used by Update
// when the caller passes a non-positive attempt count.
const DefaultMaxAttempts = 32

// ErrConflict is returned when a read-modify-write keeps losing races and
// runs out of attempts.
var ErrConflict = errors.New("halt: state update conflict")

// Router is implemented by stores that delegate each key to another store.
type Router interface {
	Route(key string) Store
}

// Update applies fn to the value under key atomically.
//
// Routers are followed to the store that owns key. Stores that implement
// Updater run fn under their own per-key lock. Any other store gets an
// optimistic loop: read, compute, CompareAndSwap, and retry from a fresh
// read when the swap loses. With N concurrent writers on one key, at least
// one swap succeeds per round, so attempts >= N always completes.
func Update(ctx context.Context, s Store, key string, ttl time.Duration, attempts int, fn UpdateFunc) error {
	for {
		r, ok := s.(Router)
		if !ok {
			break
		}
		s = r.Route(key)
	}
	if u, ok := s.(Updater); ok {
		return u.Update(ctx, key, ttl, fn)
	}

	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	for range attempts {
		current, found, err := s.Get(ctx, key)
		if err != nil {
			return err
		}
		if !found {
			current = nil
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		swapped, err := s.CompareAndSwap(ctx, key, current, next, ttl)
		if err != nil {
			return err
		}
		if swapped {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return ErrConflict
}
