package store

import (
	"context"
	"errors"
	"io"
	"slices"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"
)

// Sharded spreads keys over several stores using rendezvous hashing, so
// adding or removing a shard only moves the keys that hashed to it.
// Every operation on a key goes to the same shard, which keeps the
// atomicity guarantees of the underlying store.
type Sharded struct {
	ring   *rendezvous.Rendezvous
	shards map[string]Store
}

// NewSharded builds a Sharded store from named shards.
func NewSharded(shards map[string]Store) (*Sharded, error) {
	if len(shards) == 0 {
		return nil, ErrNoShards
	}

	names := make([]string, 0, len(shards))
	for name, s := range shards {
		if s == nil {
			return nil, errors.New("halt: shard " + name + " is nil")
		}
		names = append(names, name)
	}
	slices.Sort(names)

	return &Sharded{
		ring:   rendezvous.New(names, xxhash.Sum64String),
		shards: shards,
	}, nil
}

// Shard returns the name of the shard that owns key.
func (s *Sharded) Shard(key string) string {
	return s.ring.Lookup(key)
}

func (s *Sharded) pick(key string) Store {
	return s.shards[s.ring.Lookup(key)]
}

func (s *Sharded) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.pick(key).Get(ctx, key)
}

func (s *Sharded) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.pick(key).Set(ctx, key, value, ttl)
}

func (s *Sharded) CompareAndSwap(ctx context.Context, key string, old, value []byte, ttl time.Duration) (bool, error) {
	return s.pick(key).CompareAndSwap(ctx, key, old, value, ttl)
}

func (s *Sharded) Delete(ctx context.Context, key string) error {
	return s.pick(key).Delete(ctx, key)
}

// Route returns the shard that owns key.
func (s *Sharded) Route(key string) Store {
	return s.pick(key)
}

// Close closes every shard that implements io.Closer.
func (s *Sharded) Close() error {
	var errs []error
	for _, st := range s.shards {
		if c, ok := st.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
