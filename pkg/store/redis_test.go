package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func newMiniredisStore(t *testing.T, opts ...RedisOption) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	s, err := NewRedisStore(client, opts...)
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	return s, mr
}

func TestNewRedisStore_NilClient(t *testing.T) {
	if _, err := NewRedisStore(nil); !errors.Is(err, ErrNilClient) {
		t.Fatalf("got %v, want ErrNilClient", err)
	}
}

func TestNewRedisStore_TypedNilClient(t *testing.T) {
	var single *redis.Client
	var cluster *redis.ClusterClient
	for _, client := range []redis.UniversalClient{single, cluster} {
		if _, err := NewRedisStore(client); !errors.Is(err, ErrNilClient) {
			t.Fatalf("NewRedisStore(%T nil) = %v, want ErrNilClient", client, err)
		}
	}
}

func TestNewRedisStore_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	client := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1})
	defer client.Close()

	if _, err := NewRedisStore(client); err == nil {
		t.Fatal("expected an error for an unreachable server")
	}
}

func TestRedisStore_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	s, mr := newMiniredisStore(t, WithPrefix("test:"))

	if _, ok, err := s.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("Get(absent) = ok %v, err %v", ok, err)
	}

	if err := s.Set(ctx, "k", []byte("v1"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !mr.Exists("test:k") {
		t.Fatal("prefix not applied to stored key")
	}
	if ttl := mr.TTL("test:k"); ttl != time.Minute {
		t.Errorf("ttl = %v, want 1m", ttl)
	}

	got, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || string(got) != "v1" {
		t.Fatalf("Get = %q, %v, %v", got, ok, err)
	}

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if mr.Exists("test:k") {
		t.Error("key still present after Delete")
	}
}

func TestRedisStore_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s, mr := newMiniredisStore(t)

	swapped, err := s.CompareAndSwap(ctx, "k", nil, []byte(`{"n":1}`), 2*time.Second)
	if err != nil || !swapped {
		t.Fatalf("create: swapped %v, err %v", swapped, err)
	}
	if ttl := mr.TTL("k"); ttl != 2*time.Second {
		t.Errorf("ttl = %v, want 2s", ttl)
	}

	tests := []struct {
		name string
		old  []byte
		want bool
	}{
		{"absent expected but present", nil, false},
		{"stale value", []byte(`{"n":0}`), false},
		{"current value", []byte(`{"n":1}`), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			swapped, err := s.CompareAndSwap(ctx, "k", tt.old, []byte(`{"n":2}`), 2*time.Second)
			if err != nil {
				t.Fatalf("CompareAndSwap: %v", err)
			}
			if swapped != tt.want {
				t.Errorf("swapped = %v, want %v", swapped, tt.want)
			}
		})
	}

	mr.FastForward(3 * time.Second)
	if swapped, _ := s.CompareAndSwap(ctx, "k", nil, []byte("fresh"), 0); !swapped {
		t.Error("CAS with nil old failed after expiry")
	}
	if ttl := mr.TTL("k"); ttl != 0 {
		t.Errorf("ttl = %v, want none", ttl)
	}
}

func TestRedisStore_ScriptFlushed(t *testing.T) {
	ctx := context.Background()
	s, mr := newMiniredisStore(t)

	mr.FlushAll()
	if err := s.client.ScriptFlush(ctx).Err(); err != nil {
		t.Fatalf("SCRIPT FLUSH: %v", err)
	}

	if swapped, err := s.CompareAndSwap(ctx, "k", nil, []byte("v"), time.Second); err != nil || !swapped {
		t.Fatalf("CAS after script flush: swapped %v, err %v", swapped, err)
	}
}

func TestRedisStore_ConcurrentUpdate(t *testing.T) {
	ctx := context.Background()
	s, _ := newMiniredisStore(t)

	const workers = 20
	var g errgroup.Group
	for range workers {
		g.Go(func() error {
			return Update(ctx, s, "counter", time.Minute, workers, incr)
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, _, _ := s.Get(ctx, "counter")
	if string(got) != strconv.Itoa(workers) {
		t.Errorf("counter = %s, want %d", got, workers)
	}
}

func TestRedisStore_ContextCancellation(t *testing.T) {
	s, _ := newMiniredisStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.CompareAndSwap(ctx, "user_cancel", nil, []byte("v"), time.Second)
	if err == nil {
		t.Fatal("Expected an error due to cancelled context, but got nil")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected error to be context.Canceled, but got: %v", err)
	}
}

func TestRedisStore_Deadline(t *testing.T) {
	s, _ := newMiniredisStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, _, err := s.Get(ctx, "user_deadline")
	if err == nil {
		t.Fatal("Expected timeout error, but got nil")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected error to be context.DeadlineExceeded, but got: %v", err)
	}
}

func TestRedisStore_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("Skipping integration test: REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping integration test: Redis not available (%v)", err)
	}

	s, err := NewRedisStore(client, WithPrefix("halt_it:"))
	if err != nil {
		t.Fatalf("Failed to create RedisStore: %v", err)
	}

	key := fmt.Sprintf("it_test_%d", time.Now().UnixNano())
	defer s.Delete(ctx, key)

	if swapped, err := s.CompareAndSwap(ctx, key, nil, []byte("a"), time.Minute); err != nil || !swapped {
		t.Fatalf("create: swapped %v, err %v", swapped, err)
	}
	if swapped, err := s.CompareAndSwap(ctx, key, []byte("a"), []byte("b"), time.Minute); err != nil || !swapped {
		t.Fatalf("swap: swapped %v, err %v", swapped, err)
	}
	got, _, _ := s.Get(ctx, key)
	if string(got) != "b" {
		t.Errorf("value = %q, want b", got)
	}
}
