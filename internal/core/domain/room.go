package domain

import (
	"fmt"

	"github.com/google/uuid"
)

type RoomKind string

const (
	RoomChannel  RoomKind = "channel"
	RoomDM       RoomKind = "dm"
	RoomPresence RoomKind = "presence"
	RoomCall     RoomKind = "call"
	RoomEvent    RoomKind = "event"
)

func (k RoomKind) Valid() bool {
	switch k {
	case RoomChannel, RoomDM, RoomPresence, RoomCall, RoomEvent:
		return true
	}
	return false
}

// Room is a fan-out scope keyed by the id of the entity behind it.
// It has no row of its own.
type Room struct {
	Kind RoomKind
	Key  uuid.UUID
}

func ChannelRoom(id uuid.UUID) Room  { return Room{Kind: RoomChannel, Key: id} }
func DMRoom(id uuid.UUID) Room       { return Room{Kind: RoomDM, Key: id} }
func PresenceRoom(id uuid.UUID) Room { return Room{Kind: RoomPresence, Key: id} }
func CallRoom(id uuid.UUID) Room     { return Room{Kind: RoomCall, Key: id} }
func EventRoom(id uuid.UUID) Room    { return Room{Kind: RoomEvent, Key: id} }

// String renders "kind:key" for logs.
func (r Room) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.Key)
}

// Subject is the broker subject carrying the room's frames between processes.
func (r Room) Subject() string {
	return fmt.Sprintf("room.%s.%s", r.Kind, r.Key)
}
