package contracts

import (
	"context"

	"meshup/internal/core/domain"

	"github.com/google/uuid"
)

// Registry maps rooms to the session handles currently connected to them and
// fans frames out to those handles, across processes when a Broker backs it.
type Registry interface {
	// Join adds c to room. Returns false if c was already a member.
	Join(room domain.Room, c Client) bool
	// Leave removes c from room. Returns false if c was not a member.
	Leave(room domain.Room, c Client) bool
	// LeaveAll removes c from every room it joined and returns those rooms.
	LeaveAll(c Client) []domain.Room
	// Broadcast delivers frame to every member of room except the handle with id exclude.
	// uuid.Nil excludes nobody.
	Broadcast(ctx context.Context, room domain.Room, frame []byte, exclude uuid.UUID)
	// Members lists the local handle ids in room.
	Members(room domain.Room) []uuid.UUID
	// Connected reports whether user still holds a local handle in room.
	Connected(room domain.Room, userID uuid.UUID) bool
}

// Client is one live connection as the registry sees it.
type Client interface {
	ID() uuid.UUID
	Principal() *domain.Principal
	// Send queues frame without blocking. A full queue or a closed handle
	// returns domain.ErrDeliveryFailure.
	Send(frame []byte) error
	// Seq is the number of frames queued so far.
	Seq() uint64
	Close()
}
