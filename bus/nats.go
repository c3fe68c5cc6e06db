package bus

import (
	"context"
	"encoding/json"
	"sync"

	nats "github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"agentstate/metrics"
)

type natsSubscription struct {
	sub   *nats.Subscription
	chans []chan Event
}

// NATSBus implements Bus over core NATS subjects. It is an alternative to
// RedisBus for deployments that already run NATS; the delivery semantics are
// the same fire-and-forget broadcast. Reconnection is handled by the NATS
// client itself.
type NATSBus struct {
	conn *nats.Conn
	log  *zap.Logger

	mu   sync.Mutex
	subs map[string]*natsSubscription
}

// NewNATSBus returns a NATSBus using the provided connection. The caller
// keeps ownership of the connection; Close only tears down subscriptions.
func NewNATSBus(conn *nats.Conn, log *zap.Logger) *NATSBus {
	if log == nil {
		log = zap.NewNop()
	}
	return &NATSBus{conn: conn, log: log, subs: make(map[string]*natsSubscription)}
}

// Publish implements Bus.Publish.
func (b *NATSBus) Publish(ctx context.Context, channel string, message any) error {
	data, err := encode(message)
	if err != nil {
		b.log.Error("encode failed", zap.String("channel", channel), zap.Error(err))
		return err
	}
	if err := b.conn.Publish(channel, data); err != nil {
		return err
	}
	metrics.EventsPublished.Inc()
	return nil
}

// Subscribe implements Bus.Subscribe.
func (b *NATSBus) Subscribe(ctx context.Context, channel string) (<-chan Event, error) {
	ch := make(chan Event, 1)
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := b.subs[channel]
	if sub == nil {
		ns, err := b.conn.Subscribe(channel, b.handler(channel))
		if err != nil {
			return nil, err
		}
		sub = &natsSubscription{sub: ns, chans: []chan Event{ch}}
		b.subs[channel] = sub
	} else {
		sub.chans = append(sub.chans, ch)
	}
	return ch, nil
}

func (b *NATSBus) handler(channel string) nats.MsgHandler {
	return func(msg *nats.Msg) {
		var evt Event
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			b.log.Error("decode failed", zap.String("channel", channel), zap.Error(err))
			return
		}
		evt.Channel = channel

		b.mu.Lock()
		sub := b.subs[channel]
		if sub == nil {
			b.mu.Unlock()
			return
		}
		chans := append([]chan Event(nil), sub.chans...)
		b.mu.Unlock()

		for _, c := range chans {
			select {
			case c <- evt:
			default:
			}
		}
	}
}

// Unsubscribe implements Bus.Unsubscribe.
func (b *NATSBus) Unsubscribe(ctx context.Context, channel string, ch <-chan Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := b.subs[channel]
	if sub == nil {
		return nil
	}
	for i, c := range sub.chans {
		if c == ch {
			sub.chans[i] = sub.chans[len(sub.chans)-1]
			sub.chans = sub.chans[:len(sub.chans)-1]
			close(c)
			break
		}
	}
	if len(sub.chans) == 0 {
		delete(b.subs, channel)
		return sub.sub.Unsubscribe()
	}
	return nil
}

// Close implements Bus.Close.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var firstErr error
	for channel, sub := range b.subs {
		if err := sub.sub.Unsubscribe(); err != nil && firstErr == nil {
			firstErr = err
		}
		for _, c := range sub.chans {
			close(c)
		}
		delete(b.subs, channel)
	}
	return firstErr
}
