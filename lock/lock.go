// Package lock provides named mutual exclusion on top of the backend store's
// atomic set-if-absent primitive. A lock is a single entry at lock:<name>
// whose value identifies the holder and whose TTL bounds how long the lock
// can be held before it silently expires. There is no queueing: waiters poll
// at a fixed interval and acquisition order under contention is not FIFO.
package lock

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"agentstate/metrics"
	"agentstate/store"
)

const (
	// Prefix namespaces lock entries in the shared keyspace.
	Prefix = "lock:"

	defaultPollInterval = 100 * time.Millisecond
)

// Manager acquires and releases named locks against one backend store.
type Manager struct {
	store    store.Store
	interval time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithPollInterval sets the retry interval used while waiting for a held
// lock. Defaults to 100ms.
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) { m.interval = d }
}

// New returns a Manager backed by s.
func New(s store.Store, opts ...Option) *Manager {
	m := &Manager{store: s, interval: defaultPollInterval}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// token identifies the would-be holder. It is stored with the lock but, see
// Release, never checked on deletion.
func token() string {
	return fmt.Sprintf("%d:%s", os.Getpid(), uuid.NewString())
}

// TryAcquire makes a single attempt at the named lock. It returns true when
// the lock was obtained, in which case it stays held until Release or until
// ttl elapses, whichever comes first.
func (m *Manager) TryAcquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	ok, err := m.store.SetNX(ctx, Prefix+name, token(), ttl)
	if err != nil {
		return false, err
	}
	if ok {
		metrics.LockAcquired.Inc()
	}
	return ok, nil
}

// Acquire obtains the named lock, retrying a held lock every poll interval
// until wait elapses. wait <= 0 degenerates to a single attempt. A false
// return means the lock stayed held for the whole wait budget; callers treat
// that as "try again later", it is not an error. Cancelling ctx aborts the
// wait early.
func (m *Manager) Acquire(ctx context.Context, name string, ttl, wait time.Duration) (bool, error) {
	deadline := time.Now().Add(wait)
	for {
		ok, err := m.TryAcquire(ctx, name, ttl)
		if err != nil || ok {
			return ok, err
		}
		if time.Now().After(deadline) {
			metrics.LockContention.Inc()
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(m.interval):
		}
	}
}

// Release frees the named lock by deleting its entry. The deletion is
// unconditional: the stored holder token is not compared, so a caller whose
// lock already expired can delete a lock since re-acquired by someone else.
// This matches the behavior callers of the original system may rely on; the
// token is stored so a compare-and-delete can be introduced later without a
// data migration.
func (m *Manager) Release(ctx context.Context, name string) error {
	return m.store.Delete(ctx, Prefix+name)
}
