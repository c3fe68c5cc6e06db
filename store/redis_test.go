package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"

	serrors "agentstate/errors"
)

func newTestRedisStore(t *testing.T) (*RedisStore, context.Context, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return NewRedisStore(client), ctx, mr, client
}

func TestRedisStoreSetGetDelete(t *testing.T) {
	s, ctx, _, _ := newTestRedisStore(t)

	if err := s.Set(ctx, "k", map[string]string{"a": "b"}, 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got map[string]string
	ok, err := s.Get(ctx, "k", &got)
	if err != nil || !ok || got["a"] != "b" {
		t.Fatalf("get: got %v ok %v err %v", got, ok, err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, err := s.Get(ctx, "k", &got); err != nil || ok {
		t.Fatalf("get after delete: ok %v err %v", ok, err)
	}
}

func TestRedisStoreTTLExpiry(t *testing.T) {
	s, ctx, mr, _ := newTestRedisStore(t)

	if err := s.Set(ctx, "k", "v", time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got string
	if ok, _ := s.Get(ctx, "k", &got); !ok || got != "v" {
		t.Fatalf("expected live entry, got %q ok %v", got, ok)
	}
	mr.FastForward(1200 * time.Millisecond)
	got = "missing"
	ok, err := s.Get(ctx, "k", &got)
	if err != nil {
		t.Fatalf("get expired: %v", err)
	}
	if ok || got != "missing" {
		t.Fatalf("expired entry returned: %q ok %v", got, ok)
	}
}

func TestRedisStoreSetNX(t *testing.T) {
	s, ctx, mr, _ := newTestRedisStore(t)

	ok, err := s.SetNX(ctx, "k", "a", time.Second)
	if err != nil || !ok {
		t.Fatalf("first setnx: ok %v err %v", ok, err)
	}
	if ok, err := s.SetNX(ctx, "k", "b", time.Second); err != nil || ok {
		t.Fatalf("second setnx should fail: ok %v err %v", ok, err)
	}
	mr.FastForward(1200 * time.Millisecond)
	if ok, err := s.SetNX(ctx, "k", "b", time.Second); err != nil || !ok {
		t.Fatalf("setnx after expiry: ok %v err %v", ok, err)
	}
}

func TestRedisStoreCounterConcurrent(t *testing.T) {
	s, ctx, _, _ := newTestRedisStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.IncrBy(ctx, "c", 1); err != nil {
				t.Errorf("incr: %v", err)
			}
		}()
	}
	wg.Wait()

	v, err := s.IncrBy(ctx, "c", 0)
	if err != nil {
		t.Fatalf("read counter: %v", err)
	}
	if v != 100 {
		t.Fatalf("expected 100, got %d", v)
	}
}

func TestRedisStoreSets(t *testing.T) {
	s, ctx, _, _ := newTestRedisStore(t)

	_ = s.SAdd(ctx, "s", "x")
	_ = s.SAdd(ctx, "s", "x")
	members, err := s.SMembers(ctx, "s")
	if err != nil {
		t.Fatalf("smembers: %v", err)
	}
	if len(members) != 1 || members[0] != "x" {
		t.Fatalf("expected [x], got %v", members)
	}
	if err := s.SRem(ctx, "s", "y"); err != nil {
		t.Fatalf("srem non-member: %v", err)
	}
	if err := s.SRem(ctx, "s", "x"); err != nil {
		t.Fatalf("srem: %v", err)
	}
	if members, _ := s.SMembers(ctx, "s"); len(members) != 0 {
		t.Fatalf("expected empty set, got %v", members)
	}
}

func TestRedisStoreDecodeError(t *testing.T) {
	s, ctx, _, client := newTestRedisStore(t)

	if err := client.Set(ctx, "k", "not json", 0).Err(); err != nil {
		t.Fatalf("raw set: %v", err)
	}
	var got map[string]string
	if _, err := s.Get(ctx, "k", &got); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestRedisStoreConnectionClosed(t *testing.T) {
	s, ctx, _, client := newTestRedisStore(t)

	_ = client.Close()
	var got string
	if _, err := s.Get(ctx, "k", &got); !errors.Is(err, serrors.ErrConnectionClosed) {
		t.Fatalf("expected connection closed, got %v", err)
	}
}

func TestRedisStoreSizeAndBackend(t *testing.T) {
	s, ctx, _, _ := newTestRedisStore(t)

	_ = s.Set(ctx, "a", 1, 0)
	_ = s.Set(ctx, "b", 2, 0)
	n, err := s.Size(ctx)
	if err != nil || n != 2 {
		t.Fatalf("size: %d err %v", n, err)
	}
	if s.Backend() != "redis" {
		t.Fatalf("backend: %s", s.Backend())
	}
}
