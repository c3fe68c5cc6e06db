package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	serrors "agentstate/errors"
	"agentstate/store"
)

func TestMemoryBusHistory(t *testing.T) {
	s := store.NewMemoryStore()
	b := NewMemoryBus(s)
	ctx := context.Background()

	if err := b.Publish(ctx, "c", map[string]string{"n": "1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	events, err := b.History(ctx, "c")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(events) != 1 || events[0].Channel != "c" {
		t.Fatalf("expected one event, got %v", events)
	}
	var msg map[string]string
	if err := json.Unmarshal(events[0].Message, &msg); err != nil || msg["n"] != "1" {
		t.Fatalf("message: %v err %v", msg, err)
	}
}

func TestMemoryBusHistoryCap(t *testing.T) {
	s := store.NewMemoryStore()
	b := NewMemoryBus(s)
	ctx := context.Background()

	for i := 0; i < 105; i++ {
		if err := b.Publish(ctx, "c", i); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	events, err := b.History(ctx, "c")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(events) != 100 {
		t.Fatalf("expected 100 retained events, got %d", len(events))
	}
	// oldest retained must be publish number 5
	var first int
	if err := json.Unmarshal(events[0].Message, &first); err != nil || first != 5 {
		t.Fatalf("oldest retained: %d err %v", first, err)
	}
}

func TestMemoryBusSubscribeUnsupported(t *testing.T) {
	b := NewMemoryBus(store.NewMemoryStore())
	if _, err := b.Subscribe(context.Background(), "c"); !errors.Is(err, serrors.ErrSubscribeUnsupported) {
		t.Fatalf("expected ErrSubscribeUnsupported, got %v", err)
	}
}

func TestMemoryBusChannelsAreIndependent(t *testing.T) {
	b := NewMemoryBus(store.NewMemoryStore())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.Publish(ctx, fmt.Sprintf("c%d", i), i)
	}
	for i := 0; i < 3; i++ {
		events, err := b.History(ctx, fmt.Sprintf("c%d", i))
		if err != nil || len(events) != 1 {
			t.Fatalf("channel c%d: %d events err %v", i, len(events), err)
		}
	}
}
