package services

import (
	"context"
	"fmt"
	"log/slog"

	"meshup/internal/core/contracts"
	"meshup/internal/core/domain"
	"meshup/pkg/logging"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("meshup-services")

// Bridge turns committed state changes into room broadcasts. It is shared by
// the websocket routers and the REST handlers, so both paths emit identical frames.
// Callers publish only after their transaction has committed.
type Bridge struct {
	log      *slog.Logger
	registry contracts.Registry
}

func NewBridge(log *slog.Logger, registry contracts.Registry) *Bridge {
	return &Bridge{log: log, registry: registry}
}

// Publish fans tag/payload out to room, skipping the handle with id exclude.
func (b *Bridge) Publish(ctx context.Context, room domain.Room, tag string, payload any, exclude uuid.UUID) error {
	frame, err := domain.Encode(tag, payload)
	if err != nil {
		b.log.ErrorContext(ctx, "bridge - publish - encode failed", logging.Room(room.String()), logging.Tag(tag), logging.Err(err))
		return fmt.Errorf("bridge - encode %s: %w", tag, err)
	}
	b.registry.Broadcast(ctx, room, frame, exclude)
	return nil
}

// Reply sends tag/payload to one handle only.
func (b *Bridge) Reply(c contracts.Client, tag string, payload any) error {
	frame, err := domain.Encode(tag, payload)
	if err != nil {
		return fmt.Errorf("bridge - encode %s: %w", tag, err)
	}
	return c.Send(frame)
}

// Connected reports whether userID still has a live handle in room.
func (b *Bridge) Connected(room domain.Room, userID uuid.UUID) bool {
	return b.registry.Connected(room, userID)
}

// ReplyError sends an error event to one handle.
func (b *Bridge) ReplyError(c contracts.Client, err error) {
	if sendErr := c.Send(domain.ErrorFrame(err)); sendErr != nil {
		b.log.Debug("bridge - reply error - send failed", logging.Handle(c.ID()), logging.Err(sendErr))
	}
}
