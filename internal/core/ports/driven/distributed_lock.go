package driven

import (
	"context"
	"time"
)

// DistributedLock coordinates instances so that a scheduled all-store sync
// runs on only one of them.
type DistributedLock interface {
	// Acquire attempts to take a named lock for ttl.
	// Returns false without error when another holder has it.
	Acquire(ctx context.Context, name string, ttl time.Duration) (acquired bool, err error)

	// Release gives up a named lock. Releasing a lock that is not held is not an error.
	Release(ctx context.Context, name string) error

	// Ping checks if the lock backend is healthy.
	Ping(ctx context.Context) error
}
