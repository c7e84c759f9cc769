// Package bus provides the optional redis signal bus. When configured,
// every gateway event is also published to a redis channel so dashboards
// and sibling gateway instances can observe the stream without holding a
// WebSocket session.
package bus

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// EventsChannel is the pub/sub channel carrying gateway event frames.
const EventsChannel = "ch:gateway:events"

// SignalBus publishes and subscribes raw payloads over redis pub/sub.
type SignalBus struct {
	rdb *redis.Client
}

// Dial connects to redis and verifies the connection.
func Dial(ctx context.Context, addr, password string, db int) (*SignalBus, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("bus: ping redis %s: %w", addr, err)
	}
	return &SignalBus{rdb: rdb}, nil
}

// Publish sends a raw payload to a channel.
func (b *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("bus: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns a read-only channel of payloads. The subscription
// closes with the context; the returned channel is closed at that point.
func (b *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	var pubsub *redis.PubSub
	if hasPattern(channel) {
		pubsub = b.rdb.PSubscribe(ctx, channel)
	} else {
		pubsub = b.rdb.Subscribe(ctx, channel)
	}

	// Receive the confirmation so a broken subscription fails fast.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("bus: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close releases the redis client.
func (b *SignalBus) Close() error {
	return b.rdb.Close()
}

// hasPattern reports whether the channel uses glob-style wildcards, which
// require PSubscribe.
func hasPattern(channel string) bool {
	return strings.ContainsAny(channel, "*?[")
}
