// Package task implements the claim/complete protocol giving each task
// identifier at most one owning agent at a time. A task moves
// unclaimed → active(agent) → completed; completing deletes the active
// record, so a task id becomes claimable again afterward (ids are reusable).
package task

import (
	"context"
	"time"

	"agentstate/lock"
	"agentstate/metrics"
	"agentstate/store"
)

const (
	// ActivePrefix namespaces live claims.
	ActivePrefix = "task:active:"
	// CompletedPrefix namespaces finished claims.
	CompletedPrefix = "task:completed:"
	// claimLockPrefix namespaces the short-lived mutual-exclusion gate taken
	// while inspecting and writing a claim.
	claimLockPrefix = "task_claim:"

	defaultActiveTTL    = time.Hour
	defaultCompletedTTL = 24 * time.Hour

	claimGateTTL  = 5 * time.Second
	claimGateWait = time.Second
)

// Claim is the ownership record for one task identifier.
type Claim struct {
	TaskID      string         `json:"task_id"`
	Agent       string         `json:"agent"`
	ClaimedAt   time.Time      `json:"claimed_at"`
	Data        map[string]any `json:"data,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
}

// Coordinator runs the claim/complete protocol against one store and one
// lock manager.
type Coordinator struct {
	store        store.Store
	locks        *lock.Manager
	activeTTL    time.Duration
	completedTTL time.Duration
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithActiveTTL bounds how long an unfinished claim stays active. Defaults
// to one hour.
func WithActiveTTL(ttl time.Duration) Option {
	return func(c *Coordinator) { c.activeTTL = ttl }
}

// WithCompletedTTL sets how long completed records are retained. Defaults to
// one day.
func WithCompletedTTL(ttl time.Duration) Option {
	return func(c *Coordinator) { c.completedTTL = ttl }
}

// New returns a Coordinator using s and locks.
func New(s store.Store, locks *lock.Manager, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:        s,
		locks:        locks,
		activeTTL:    defaultActiveTTL,
		completedTTL: defaultCompletedTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Claim tries to take ownership of taskID for agent. It returns false when
// the claim gate is contended (try again later) or when another agent holds
// a live claim; the same agent re-claiming its own task succeeds. A true
// return means the active record now names agent, bounded by the active TTL.
func (c *Coordinator) Claim(ctx context.Context, taskID, agent string, data map[string]any) (bool, error) {
	gate := claimLockPrefix + taskID
	ok, err := c.locks.Acquire(ctx, gate, claimGateTTL, claimGateWait)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	defer func() { _ = c.locks.Release(ctx, gate) }()

	var existing Claim
	found, err := c.store.Get(ctx, ActivePrefix+taskID, &existing)
	if err != nil {
		return false, err
	}
	if found && existing.Agent != agent {
		return false, nil
	}

	claim := Claim{
		TaskID:    taskID,
		Agent:     agent,
		ClaimedAt: time.Now().UTC(),
		Data:      data,
	}
	if err := c.store.Set(ctx, ActivePrefix+taskID, claim, c.activeTTL); err != nil {
		return false, err
	}
	metrics.TasksClaimed.Inc()
	return true, nil
}

// Active returns the live claim for taskID, if any.
func (c *Coordinator) Active(ctx context.Context, taskID string) (Claim, bool, error) {
	var claim Claim
	found, err := c.store.Get(ctx, ActivePrefix+taskID, &claim)
	return claim, found, err
}

// Complete finishes taskID: the claim is stamped with the completion time
// and result, written under the completed prefix with the longer retention
// TTL, and the active record is deleted, which makes the id claimable again.
// It returns false when no active claim exists.
func (c *Coordinator) Complete(ctx context.Context, taskID string, result map[string]any) (bool, error) {
	var claim Claim
	found, err := c.store.Get(ctx, ActivePrefix+taskID, &claim)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}

	now := time.Now().UTC()
	claim.CompletedAt = &now
	claim.Result = result
	if err := c.store.Set(ctx, CompletedPrefix+taskID, claim, c.completedTTL); err != nil {
		return false, err
	}
	if err := c.store.Delete(ctx, ActivePrefix+taskID); err != nil {
		return false, err
	}
	metrics.TasksCompleted.Inc()
	return true, nil
}

// Completed returns the retained completed record for taskID, if any.
func (c *Coordinator) Completed(ctx context.Context, taskID string) (Claim, bool, error) {
	var claim Claim
	found, err := c.store.Get(ctx, CompletedPrefix+taskID, &claim)
	return claim, found, err
}
