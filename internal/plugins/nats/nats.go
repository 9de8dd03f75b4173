package nats

import (
	"context"
	"fmt"

	"meshup/internal/config"

	"github.com/nats-io/nats.go"
)

func Connect(cfg *config.NATSConfig) (*nats.Conn, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("meshup-realtime"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// Broker relays registry frames over core NATS subjects. Like redis Pub/Sub
// it is fire and forget; JetStream replay is not wanted for live fan-out.
type Broker struct {
	nc     *nats.Conn
	prefix string
}

func NewBroker(nc *nats.Conn, prefix string) *Broker {
	return &Broker{nc: nc, prefix: prefix}
}

func (b *Broker) Publish(_ context.Context, subject string, payload []byte) error {
	return b.nc.Publish(b.prefix+subject, payload)
}

func (b *Broker) Subscribe(ctx context.Context, subject string, handler func(payload []byte)) error {
	ch := make(chan *nats.Msg, 256)
	sub, err := b.nc.ChanSubscribe(b.prefix+subject, ch)
	if err != nil {
		return fmt.Errorf("nats broker - subscribe %s: %w", subject, err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	// Flush round-trips to the server so the interest is registered before we return to the loop.
	if err := b.nc.FlushWithContext(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("nats broker - flush %s: %w", subject, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-ch:
			handler(msg.Data)
		}
	}
}

// Close drains the connection so in-flight publishes are flushed.
func (b *Broker) Close() error {
	return b.nc.Drain()
}
