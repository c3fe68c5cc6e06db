package store

import (
	"context"
	"time"
)

// Store is the uniform contract over the shared keyspace. Keys are flat
// strings in a single global namespace; callers prefix them (lock:,
// agent:active:, task:active:, ...) to avoid collisions.
//
// A read of a key whose TTL has elapsed behaves identically to a read of an
// absent key. A ttl of zero means the entry does not expire.
type Store interface {
	// Get decodes the value at key into out. The boolean reports whether a
	// live entry was found; absent and expired keys return (false, nil).
	Get(ctx context.Context, key string, out any) (bool, error)
	// Set stores value at key, expiring it after ttl if ttl > 0.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// SetNX stores value at key only if no live entry exists. It is the
	// atomic set-if-absent-with-expiry primitive locks are built on.
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// IncrBy atomically adds amount to the integer counter at name and
	// returns the new value. A missing counter starts at zero.
	IncrBy(ctx context.Context, name string, amount int64) (int64, error)

	// SAdd adds member to the named set. Adding an existing member is a
	// no-op.
	SAdd(ctx context.Context, name, member string) error
	// SRem removes member from the named set. Removing a non-member is a
	// no-op.
	SRem(ctx context.Context, name, member string) error
	// SMembers returns the members of the named set.
	SMembers(ctx context.Context, name string) ([]string, error)

	// Size returns the number of keys currently held by the backend.
	Size(ctx context.Context) (int64, error)
	// Backend identifies the active backend ("redis" or "memory").
	Backend() string
}
