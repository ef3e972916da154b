package redis

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestNewLock_Defaults(t *testing.T) {
	client, _ := setupTestRedis(t)

	lock := NewLock(client, LockConfig{})
	if lock.prefix != "storeperf:lock:" {
		t.Errorf("expected default prefix, got %q", lock.prefix)
	}
	if lock.OwnerID() == "" {
		t.Error("expected non-empty owner ID")
	}

	other := NewLock(client, LockConfig{})
	if lock.OwnerID() == other.OwnerID() {
		t.Errorf("expected unique owner IDs, got %s twice", lock.OwnerID())
	}
}

func TestLock_AcquireSetsTTL(t *testing.T) {
	client, mr := setupTestRedis(t)
	lock := NewLock(client, LockConfig{})
	ctx := context.Background()

	acquired, err := lock.Acquire(ctx, "sync-all-stores", time.Minute)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !acquired {
		t.Fatal("expected lock to be acquired")
	}

	key := "storeperf:lock:sync-all-stores"
	if got, _ := mr.Get(key); got != lock.OwnerID() {
		t.Errorf("expected owner %q, got %q", lock.OwnerID(), got)
	}
	if ttl := mr.TTL(key); ttl != time.Minute {
		t.Errorf("expected ttl 1m, got %v", ttl)
	}
}

func TestLock_AcquireHeldByOther(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	first := NewLock(client, LockConfig{OwnerID: "worker-a"})
	second := NewLock(client, LockConfig{OwnerID: "worker-b"})

	if ok, _ := first.Acquire(ctx, "sync-all-stores", time.Minute); !ok {
		t.Fatal("first acquire should succeed")
	}
	ok, err := second.Acquire(ctx, "sync-all-stores", time.Minute)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if ok {
		t.Error("second instance must not acquire a held lock")
	}

	holder, err := second.Holder(ctx, "sync-all-stores")
	if err != nil {
		t.Fatalf("Holder: %v", err)
	}
	if holder != "worker-a" {
		t.Errorf("expected holder worker-a, got %q", holder)
	}
}

func TestLock_ExpiryFreesLock(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	first := NewLock(client, LockConfig{OwnerID: "worker-a"})
	second := NewLock(client, LockConfig{OwnerID: "worker-b"})

	_, _ = first.Acquire(ctx, "sync-all-stores", time.Minute)
	mr.FastForward(2 * time.Minute)

	ok, err := second.Acquire(ctx, "sync-all-stores", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected expired lock to be acquirable, got %v %v", ok, err)
	}

	// The stale holder must not release the new holder's lock
	if err := first.Release(ctx, "sync-all-stores"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if holder, _ := second.Holder(ctx, "sync-all-stores"); holder != "worker-b" {
		t.Errorf("expected worker-b to keep the lock, got %q", holder)
	}
}

func TestLock_Release(t *testing.T) {
	client, mr := setupTestRedis(t)
	lock := NewLock(client, LockConfig{})
	ctx := context.Background()

	_, _ = lock.Acquire(ctx, "sync-all-stores", time.Minute)
	if err := lock.Release(ctx, "sync-all-stores"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if mr.Exists("storeperf:lock:sync-all-stores") {
		t.Error("expected key to be deleted")
	}

	// Releasing a free lock is not an error
	if err := lock.Release(ctx, "sync-all-stores"); err != nil {
		t.Errorf("second Release: %v", err)
	}
	if holder, _ := lock.Holder(ctx, "sync-all-stores"); holder != "" {
		t.Errorf("expected no holder, got %q", holder)
	}
}

func TestLock_RejectsNonPositiveTTL(t *testing.T) {
	client, _ := setupTestRedis(t)
	lock := NewLock(client, LockConfig{})

	_, err := lock.Acquire(context.Background(), "x", 0)
	if err == nil || !strings.Contains(err.Error(), "ttl") {
		t.Errorf("expected ttl error, got %v", err)
	}
}

func TestLock_CustomPrefix(t *testing.T) {
	client, mr := setupTestRedis(t)
	lock := NewLock(client, LockConfig{Prefix: "test:"})

	_, _ = lock.Acquire(context.Background(), "x", time.Minute)
	if !mr.Exists("test:x") {
		t.Error("expected key under custom prefix")
	}
}

func TestLock_PingAndConnect(t *testing.T) {
	client, mr := setupTestRedis(t)
	lock := NewLock(client, LockConfig{})

	if err := lock.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}

	connected, err := Connect(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	connected.Close()

	if _, err := Connect(context.Background(), "not a url"); err == nil {
		t.Error("expected parse error")
	}
}
