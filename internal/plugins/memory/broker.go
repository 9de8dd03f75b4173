package memory

import (
	"context"
	"sync"
)

// Broker is an in-process stand in for redis or nats Pub/Sub. Publish calls
// every handler subscribed to the subject on the caller's goroutine.
type Broker struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]func([]byte)
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[int]func([]byte))}
}

func (b *Broker) Publish(_ context.Context, subject string, payload []byte) error {
	b.mu.RLock()
	handlers := make([]func([]byte), 0, len(b.subs[subject]))
	for _, h := range b.subs[subject] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(payload)
	}
	return nil
}

func (b *Broker) Subscribe(ctx context.Context, subject string, handler func([]byte)) error {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.subs[subject] == nil {
		b.subs[subject] = make(map[int]func([]byte))
	}
	b.subs[subject][id] = handler
	b.mu.Unlock()

	<-ctx.Done()

	b.mu.Lock()
	delete(b.subs[subject], id)
	if len(b.subs[subject]) == 0 {
		delete(b.subs, subject)
	}
	b.mu.Unlock()
	return nil
}

// Subscribers reports how many live subscriptions subject has.
func (b *Broker) Subscribers(subject string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[subject])
}

func (b *Broker) Close() error { return nil }
