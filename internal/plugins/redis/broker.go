package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Broker relays registry frames over redis Pub/Sub. Delivery is at most once;
// a process that is not subscribed when a frame is published never sees it.
type Broker struct {
	rdb    *redis.Client
	prefix string
}

func NewBroker(rdb *redis.Client, prefix string) *Broker {
	return &Broker{rdb: rdb, prefix: prefix}
}

func (b *Broker) channel(subject string) string {
	return b.prefix + subject
}

func (b *Broker) Publish(ctx context.Context, subject string, payload []byte) error {
	return b.rdb.Publish(ctx, b.channel(subject), payload).Err()
}

func (b *Broker) Subscribe(ctx context.Context, subject string, handler func(payload []byte)) error {
	ps := b.rdb.Subscribe(ctx, b.channel(subject))
	defer ps.Close()

	// Wait for the subscription confirmation so no frame published after
	// this point is missed.
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("redis broker - subscribe %s: %w", subject, err)
	}

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			handler([]byte(msg.Payload))
		}
	}
}

// Close is a no-op; the client is owned by main.
func (b *Broker) Close() error { return nil }
