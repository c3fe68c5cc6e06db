package bus

import (
	"context"
	"encoding/json"
	"sync"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"agentstate/metrics"
)

type redisSubscription struct {
	pubsub *redis.PubSub
	chans  []chan Event
}

// RedisBus implements Bus over Redis PUBLISH/SUBSCRIBE.
type RedisBus struct {
	client *redis.Client
	log    *zap.Logger

	mu   sync.Mutex
	subs map[string]*redisSubscription
}

// NewRedisBus returns a RedisBus using the provided client. The caller keeps
// ownership of the client; Close only tears down subscriptions.
func NewRedisBus(client *redis.Client, log *zap.Logger) *RedisBus {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisBus{client: client, log: log, subs: make(map[string]*redisSubscription)}
}

// Publish implements Bus.Publish.
func (b *RedisBus) Publish(ctx context.Context, channel string, message any) error {
	data, err := encode(message)
	if err != nil {
		b.log.Error("encode failed", zap.String("channel", channel), zap.Error(err))
		return err
	}
	if err := b.client.Publish(ctx, channel, data).Err(); err != nil {
		return err
	}
	metrics.EventsPublished.Inc()
	return nil
}

// Subscribe implements Bus.Subscribe.
func (b *RedisBus) Subscribe(ctx context.Context, channel string) (<-chan Event, error) {
	ch := make(chan Event, 1)
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := b.subs[channel]
	if sub == nil {
		ps := b.client.Subscribe(ctx, channel)
		if _, err := ps.Receive(ctx); err != nil {
			return nil, err
		}
		sub = &redisSubscription{pubsub: ps, chans: []chan Event{ch}}
		b.subs[channel] = sub
		go b.dispatch(channel, sub)
	} else {
		sub.chans = append(sub.chans, ch)
	}
	return ch, nil
}

// dispatch fans messages for one channel out to its subscribers. It exits
// when the pubsub connection is closed.
func (b *RedisBus) dispatch(channel string, sub *redisSubscription) {
	for msg := range sub.pubsub.Channel() {
		var evt Event
		if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
			b.log.Error("decode failed", zap.String("channel", channel), zap.Error(err))
			continue
		}
		evt.Channel = channel

		b.mu.Lock()
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
func (b *RedisBus) Unsubscribe(ctx context.Context, channel string, ch <-chan Event) error {
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
		return sub.pubsub.Close()
	}
	return nil
}

// Close implements Bus.Close.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var firstErr error
	for channel, sub := range b.subs {
		if err := sub.pubsub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		for _, c := range sub.chans {
			close(c)
		}
		delete(b.subs, channel)
	}
	return firstErr
}
