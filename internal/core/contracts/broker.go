package contracts

import "context"

// Broker carries registry frames between processes.
type Broker interface {
	Publish(ctx context.Context, subject string, payload []byte) error
	// Subscribe blocks, invoking handler for each payload on subject until ctx is done.
	Subscribe(ctx context.Context, subject string, handler func(payload []byte)) error
	Close() error
}
