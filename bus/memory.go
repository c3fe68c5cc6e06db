package bus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	serrors "agentstate/errors"
	"agentstate/metrics"
	"agentstate/store"
)

const (
	// HistoryPrefix namespaces per-channel history lists in the store.
	HistoryPrefix = "events:"
	// historyLimit caps how many events a channel's history retains.
	historyLimit = 100
)

// MemoryBus is the fallback-mode event channel. It is NOT pub/sub: there is
// no subscriber mechanism at all, and Subscribe always fails with
// ErrSubscribeUnsupported. Publish instead appends the event to a bounded
// list at events:<channel> in the backend store, retaining the most recent
// 100 entries, which polling consumers read back with History. This is a
// degraded simulation for single-process sessions without a real transport.
type MemoryBus struct {
	mu    sync.Mutex
	store store.Store
}

// NewMemoryBus returns a MemoryBus appending histories to s.
func NewMemoryBus(s store.Store) *MemoryBus {
	return &MemoryBus{store: s}
}

// Publish implements Bus.Publish by appending to the channel's history list.
// The read-append-write runs under a bus mutex; like everything else in
// fallback mode this is safe within one process only.
func (b *MemoryBus) Publish(ctx context.Context, channel string, message any) error {
	raw, err := json.Marshal(message)
	if err != nil {
		return err
	}
	evt := Event{Message: raw, Timestamp: time.Now().UTC()}

	b.mu.Lock()
	defer b.mu.Unlock()
	var events []Event
	if _, err := b.store.Get(ctx, HistoryPrefix+channel, &events); err != nil {
		return err
	}
	events = append(events, evt)
	if len(events) > historyLimit {
		events = events[len(events)-historyLimit:]
	}
	if err := b.store.Set(ctx, HistoryPrefix+channel, events, 0); err != nil {
		return err
	}
	metrics.EventsPublished.Inc()
	return nil
}

// History returns the retained events for channel, oldest first.
func (b *MemoryBus) History(ctx context.Context, channel string) ([]Event, error) {
	var events []Event
	if _, err := b.store.Get(ctx, HistoryPrefix+channel, &events); err != nil {
		return nil, err
	}
	for i := range events {
		events[i].Channel = channel
	}
	return events, nil
}

// Subscribe implements Bus.Subscribe. It always fails: fallback mode has no
// delivery mechanism, use History to poll instead.
func (b *MemoryBus) Subscribe(ctx context.Context, channel string) (<-chan Event, error) {
	return nil, serrors.ErrSubscribeUnsupported
}

// Unsubscribe implements Bus.Unsubscribe as a no-op.
func (b *MemoryBus) Unsubscribe(ctx context.Context, channel string, ch <-chan Event) error {
	return nil
}

// Close implements Bus.Close as a no-op.
func (b *MemoryBus) Close() error { return nil }
