package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/storeperf/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DistributedLock = (*Lock)(nil)

const defaultLockPrefix = "storeperf:lock:"

// Lock implements DistributedLock with SET NX PX.
// The value is this instance's owner ID, so only the holder can release it.
type Lock struct {
	client  redis.UniversalClient
	prefix  string
	ownerID string
}

// LockConfig holds optional settings for a Lock.
type LockConfig struct {
	Prefix  string // Key prefix (default: storeperf:lock:)
	OwnerID string // Holder identity (default: hostname:pid:uuid)
}

// NewLock creates a new Redis-backed distributed lock.
func NewLock(client redis.UniversalClient, cfg LockConfig) *Lock {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultLockPrefix
	}

	ownerID := cfg.OwnerID
	if ownerID == "" {
		ownerID = newOwnerID()
	}

	return &Lock{client: client, prefix: prefix, ownerID: ownerID}
}

func newOwnerID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s:%d:%s", hostname, os.Getpid(), uuid.NewString())
}

// Acquire takes the named lock for ttl if nobody holds it.
// Acquiring a lock this instance already holds returns false.
func (l *Lock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, fmt.Errorf("acquire lock %s: ttl must be positive", name)
	}
	ok, err := l.client.SetNX(ctx, l.prefix+name, l.ownerID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	return ok, nil
}

// releaseScript deletes the key only while it still holds our owner ID
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Release gives up the named lock if this instance holds it.
// Expired or foreign locks are left alone.
func (l *Lock) Release(ctx context.Context, name string) error {
	_, err := releaseScript.Run(ctx, l.client, []string{l.prefix + name}, l.ownerID).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}

// Holder returns the owner ID currently holding the named lock, or "" if free.
func (l *Lock) Holder(ctx context.Context, name string) (string, error) {
	owner, err := l.client.Get(ctx, l.prefix+name).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read lock %s: %w", name, err)
	}
	return owner, nil
}

// Ping checks if the Redis backend is healthy.
func (l *Lock) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// OwnerID returns this instance's holder identity.
func (l *Lock) OwnerID() string {
	return l.ownerID
}
