package task

import (
	"context"
	"testing"
	"time"

	"agentstate/lock"
	"agentstate/store"
)

func newCoordinator(t *testing.T) (*Coordinator, context.Context) {
	t.Helper()
	s := store.NewMemoryStore()
	return New(s, lock.New(s)), context.Background()
}

func TestClaimExclusivity(t *testing.T) {
	c, ctx := newCoordinator(t)

	ok, err := c.Claim(ctx, "T", "A1", map[string]any{"n": 1})
	if err != nil || !ok {
		t.Fatalf("first claim: ok %v err %v", ok, err)
	}
	if ok, err := c.Claim(ctx, "T", "A2", nil); err != nil || ok {
		t.Fatalf("foreign claim should fail: ok %v err %v", ok, err)
	}
	// same agent re-claim is idempotent-successful
	if ok, err := c.Claim(ctx, "T", "A1", nil); err != nil || !ok {
		t.Fatalf("re-claim: ok %v err %v", ok, err)
	}

	done, err := c.Complete(ctx, "T", map[string]any{"status": "ok"})
	if err != nil || !done {
		t.Fatalf("complete: done %v err %v", done, err)
	}
	// the active record is gone, so the id is claimable again
	if ok, err := c.Claim(ctx, "T", "A2", nil); err != nil || !ok {
		t.Fatalf("post-completion claim: ok %v err %v", ok, err)
	}
}

func TestCompleteWithoutClaim(t *testing.T) {
	c, ctx := newCoordinator(t)

	done, err := c.Complete(ctx, "nope", nil)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done {
		t.Fatal("completing an unclaimed task should report false")
	}
}

func TestCompletedRecordRetained(t *testing.T) {
	c, ctx := newCoordinator(t)

	_, _ = c.Claim(ctx, "T", "A1", map[string]any{"n": 1})
	if _, err := c.Complete(ctx, "T", map[string]any{"status": "ok"}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	claim, found, err := c.Completed(ctx, "T")
	if err != nil || !found {
		t.Fatalf("completed record: found %v err %v", found, err)
	}
	if claim.Agent != "A1" || claim.CompletedAt == nil {
		t.Fatalf("incomplete record: %+v", claim)
	}
	if claim.Result["status"] != "ok" {
		t.Fatalf("result: %v", claim.Result)
	}
	if _, found, _ := c.Active(ctx, "T"); found {
		t.Fatal("active record should be deleted on completion")
	}
}

func TestClaimGateContention(t *testing.T) {
	s := store.NewMemoryStore()
	locks := lock.New(s)
	c := New(s, locks)
	ctx := context.Background()

	// Hold the gate so the claim cannot even inspect the task.
	if ok, _ := locks.TryAcquire(ctx, "task_claim:T", 5*time.Second); !ok {
		t.Fatal("gate acquire failed")
	}
	start := time.Now()
	ok, err := c.Claim(ctx, "T", "A1", nil)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if ok {
		t.Fatal("claim should fail while the gate is held")
	}
	if time.Since(start) > 3*time.Second {
		t.Fatal("claim blocked past its gate wait budget")
	}
	// No claim record was written.
	if _, found, _ := c.Active(ctx, "T"); found {
		t.Fatal("no active record should exist")
	}
}

func TestActiveClaimTTL(t *testing.T) {
	s := store.NewMemoryStore()
	c := New(s, lock.New(s), WithActiveTTL(50*time.Millisecond))
	ctx := context.Background()

	if ok, _ := c.Claim(ctx, "T", "A1", nil); !ok {
		t.Fatal("claim failed")
	}
	time.Sleep(80 * time.Millisecond)
	// the bounding TTL released the claim without an explicit complete
	if ok, err := c.Claim(ctx, "T", "A2", nil); err != nil || !ok {
		t.Fatalf("claim after ttl: ok %v err %v", ok, err)
	}
}
