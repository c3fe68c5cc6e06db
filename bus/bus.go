// Package bus provides the event channel: fire-and-forget publication of
// lightweight payloads to named channels. Delivery is best-effort; there is
// no persistence and no guarantee for subscribers that are not listening at
// publish time. RedisBus and NATSBus are real pub/sub transports; MemoryBus
// is the fallback-mode stand-in and is not pub/sub at all, see its doc.
package bus

import (
	"context"
	"encoding/json"
	"time"
)

// Event is a single published message as seen by a subscriber or a history
// poller.
type Event struct {
	Channel   string          `json:"-"`
	Message   json.RawMessage `json:"message"`
	Timestamp time.Time       `json:"timestamp"`
}

// Bus publishes and subscribes to named channels.
type Bus interface {
	// Publish broadcasts message on channel. It does not wait for, or report
	// on, delivery.
	Publish(ctx context.Context, channel string, message any) error
	// Subscribe returns a channel receiving events published on channel from
	// now on. Slow consumers drop events rather than block the bus.
	Subscribe(ctx context.Context, channel string) (<-chan Event, error)
	// Unsubscribe removes ch from channel's subscribers and closes it.
	Unsubscribe(ctx context.Context, channel string, ch <-chan Event) error
	// Close releases transport resources held by the bus.
	Close() error
}

// encode wraps message into the wire envelope.
func encode(message any) ([]byte, error) {
	raw, err := json.Marshal(message)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{Message: raw, Timestamp: time.Now().UTC()})
}
