package store

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

const shardCount = 256

// MemoryStore is an in-process Store. Keys are spread over sharded maps,
// each guarded by its own mutex, which also serializes updates per key.
// Expired entries are invisible immediately and removed by a background
// sweep.
//
// State is local to the process; use RedisStore to share quota across
// replicas.
type MemoryStore struct {
	shards     [shardCount]memoryShard
	now        func() time.Time
	maxEntries int64
	size       atomic.Int64
	stopChan   chan struct{}
	stopOnce   sync.Once
}

type memoryShard struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expiredAt(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStoreConfig holds configuration for MemoryStore.
type MemoryStoreConfig struct {
	// CleanupInterval is how often expired entries are swept.
	// Default is 1 minute.
	CleanupInterval time.Duration

	// MaxEntries caps the number of stored keys. Writes that would add a
	// key beyond the cap fail with ErrStoreFull. Zero means no cap.
	MaxEntries int64

	// Now overrides the clock used for expiry. Default is time.Now.
	Now func() time.Time
}

// DefaultMemoryStoreConfig returns sensible defaults for MemoryStore.
func DefaultMemoryStoreConfig() MemoryStoreConfig {
	return MemoryStoreConfig{
		CleanupInterval: time.Minute,
	}
}

// NewMemoryStore creates a new in-memory store with default configuration.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithConfig(DefaultMemoryStoreConfig())
}

// NewMemoryStoreWithConfig creates a new in-memory store with custom configuration.
// Call Close to stop the cleanup goroutine.
func NewMemoryStoreWithConfig(config MemoryStoreConfig) *MemoryStore {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Minute
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	s := &MemoryStore{
		now:        config.Now,
		maxEntries: config.MaxEntries,
		stopChan:   make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i].entries = make(map[string]memoryEntry)
	}

	go s.cleanupLoop(config.CleanupInterval)

	return s
}

// Get retrieves a value from the store.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	value, ok := sh.load(key, s.now())
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(value), true, nil
}

// Set stores a value with an optional TTL.
func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	return s.storeLocked(sh, key, value, ttl)
}

// CompareAndSwap stores value if the current value equals old.
func (s *MemoryStore) CompareAndSwap(ctx context.Context, key string, old, value []byte, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	current, found := sh.load(key, s.now())
	if old == nil {
		if found {
			return false, nil
		}
	} else if !found || !bytes.Equal(current, old) {
		return false, nil
	}

	if err := s.storeLocked(sh, key, value, ttl); err != nil {
		return false, err
	}
	return true, nil
}

// Update runs fn while holding the lock for key's shard and stores its
// result. fn must not call back into the store.
func (s *MemoryStore) Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	current, found := sh.load(key, s.now())
	if found {
		current = bytes.Clone(current)
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	return s.storeLocked(sh, key, next, ttl)
}

// Delete removes a value from the store.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.entries[key]; ok {
		delete(sh.entries, key)
		s.size.Add(-1)
	}
	return nil
}

// Len returns the number of entries in the store (including expired ones
// not yet swept).
func (s *MemoryStore) Len() int {
	return int(s.size.Load())
}

// Close stops the cleanup routine.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	return nil
}

func (s *MemoryStore) shard(key string) *memoryShard {
	return &s.shards[xxhash.Sum64String(key)%shardCount]
}

func (sh *memoryShard) load(key string, now time.Time) ([]byte, bool) {
	entry, ok := sh.entries[key]
	if !ok || entry.expiredAt(now) {
		return nil, false
	}
	return entry.value, true
}

// storeLocked writes key into sh, which must be locked by the caller.
func (s *MemoryStore) storeLocked(sh *memoryShard, key string, value []byte, ttl time.Duration) error {
	_, exists := sh.entries[key]
	if !exists {
		if s.maxEntries > 0 && s.size.Load() >= s.maxEntries {
			return ErrStoreFull
		}
		s.size.Add(1)
	}

	entry := memoryEntry{value: bytes.Clone(value)}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	sh.entries[key] = entry
	return nil
}

// cleanupLoop periodically removes expired entries.
func (s *MemoryStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopChan:
			return
		}
	}
}

// cleanup removes all expired entries.
func (s *MemoryStore) cleanup() {
	now := s.now()
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for key, entry := range sh.entries {
			if entry.expiredAt(now) {
				delete(sh.entries, key)
				s.size.Add(-1)
			}
		}
		sh.mu.Unlock()
	}
}
