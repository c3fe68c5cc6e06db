// Package registry tracks which worker agents are alive. Presence is a
// TTL-expiring record per agent plus membership in a shared set; an agent
// that stops refreshing its registration silently disappears once the TTL
// elapses.
package registry

import (
	"context"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"agentstate/metrics"
	"agentstate/store"
)

const (
	// RecordPrefix namespaces per-agent presence records.
	RecordPrefix = "agent:active:"
	// ActiveSet is the membership set mirroring registered agent names.
	ActiveSet = "agents:active"

	defaultTTL     = 5 * time.Minute
	resolveWorkers = 8
)

// Agent is one worker's presence record.
type Agent struct {
	Name         string            `json:"name"`
	RegisteredAt time.Time         `json:"registered_at"`
	PID          int               `json:"pid"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Registry registers, refreshes and lists agents against one backend store.
type Registry struct {
	store store.Store
	ttl   time.Duration
}

// Option configures a Registry.
type Option func(*Registry)

// WithTTL overrides the presence record TTL. Defaults to 5 minutes.
func WithTTL(ttl time.Duration) Option {
	return func(r *Registry) { r.ttl = ttl }
}

// New returns a Registry backed by s.
func New(s store.Store, opts ...Option) *Registry {
	r := &Registry{store: s, ttl: defaultTTL}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register writes the agent's presence record and adds it to the membership
// set. Calling it again for the same name refreshes the TTL; agents are
// expected to do so periodically, well before the TTL elapses.
func (r *Registry) Register(ctx context.Context, name string, metadata map[string]string) error {
	agent := Agent{
		Name:         name,
		RegisteredAt: time.Now().UTC(),
		PID:          os.Getpid(),
		Metadata:     metadata,
	}
	if err := r.store.Set(ctx, RecordPrefix+name, agent, r.ttl); err != nil {
		return err
	}
	if err := r.store.SAdd(ctx, ActiveSet, name); err != nil {
		return err
	}
	metrics.AgentsRegistered.Inc()
	return nil
}

// Unregister removes the agent's record and its set membership.
func (r *Registry) Unregister(ctx context.Context, name string) error {
	if err := r.store.Delete(ctx, RecordPrefix+name); err != nil {
		return err
	}
	return r.store.SRem(ctx, ActiveSet, name)
}

// Active returns the live agents. It reads the membership set and resolves
// each member's record, skipping names whose record has expired: the set is
// deliberately not pruned on expiry, so Active, not the raw set, is the
// source of truth for liveness.
func (r *Registry) Active(ctx context.Context) ([]Agent, error) {
	names, err := r.store.SMembers(ctx, ActiveSet)
	if err != nil {
		return nil, err
	}

	var (
		mu     sync.Mutex
		agents []Agent
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveWorkers)
	for _, name := range names {
		name := name
		g.Go(func() error {
			var agent Agent
			ok, err := r.store.Get(gctx, RecordPrefix+name, &agent)
			if err != nil {
				return err
			}
			if !ok {
				return nil // expired, membership is stale
			}
			mu.Lock()
			agents = append(agents, agent)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].Name < agents[j].Name })
	return agents, nil
}
