package store

import (
	"context"
	_ "embed"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

//go:embed cas.lua
var compareAndSwapScript string

// DefaultRedisTimeout bounds each Redis round trip when no timeout is set.
const DefaultRedisTimeout = 5 * time.Second

// RedisStore is a Store backed by Redis. CompareAndSwap runs as a Lua
// script, so the comparison and the write are atomic on the server. Any
// redis.UniversalClient works: a single node, a cluster or a failover
// client.
type RedisStore struct {
	client  redis.UniversalClient
	cas     *redis.Script
	prefix  string
	timeout time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithPrefix prepends prefix to every key the store touches.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// WithTimeout bounds every Redis call. Zero disables the store's own
// deadline and relies on the caller's context.
func WithTimeout(d time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.timeout = d
	}
}

// NewRedisStore pings the server and loads the compare-and-swap script.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) (*RedisStore, error) {
	if isNilClient(client) {
		return nil, ErrNilClient
	}

	s := &RedisStore{
		client:  client,
		cas:     redis.NewScript(compareAndSwapScript),
		timeout: DefaultRedisTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	if err := s.cas.Load(ctx, client).Err(); err != nil {
		return nil, err
	}

	return s, nil
}

// Get retrieves a value from Redis.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	value, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Set writes value with PX expiry. A ttl <= 0 stores without expiry.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if ttl < 0 {
		ttl = 0
	}
	return s.client.Set(ctx, s.key(key), value, ttl).Err()
}

// CompareAndSwap evaluates the swap script. EVALSHA is tried first and the
// script body is sent only if the server lost it.
func (s *RedisStore) CompareAndSwap(ctx context.Context, key string, old, value []byte, ttl time.Duration) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	expect := "1"
	if old == nil {
		expect = "0"
	}
	var ttlMillis int64
	if ttl > 0 {
		ttlMillis = max(ttl.Milliseconds(), 1)
	}

	swapped, err := s.cas.Run(ctx, s.client, []string{s.key(key)},
		expect,    // ARGV[1]
		old,       // ARGV[2]
		value,     // ARGV[3]
		ttlMillis, // ARGV[4]
	).Int64()
	if err != nil {
		return false, err
	}
	return swapped == 1, nil
}

// Delete removes a key from Redis.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.client.Del(ctx, s.key(key)).Err()
}

func (s *RedisStore) key(key string) string {
	return s.prefix + key
}

func (s *RedisStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// isNilClient also catches typed nil clients stored in the interface.
func isNilClient(client redis.UniversalClient) bool {
	switch c := client.(type) {
	case nil:
		return true
	case *redis.Client:
		return c == nil
	case *redis.ClusterClient:
		return c == nil
	case *redis.Ring:
		return c == nil
	}
	return false
}
