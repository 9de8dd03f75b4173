package domain

import (
	"time"

	"github.com/google/uuid"
)

// Principal is the authenticated identity attached to a connection.
// Resolved once at connect time and never mutated afterwards.
type Principal struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Display  string    `json:"display_name,omitempty"`
	Avatar   string    `json:"avatar,omitempty"`
	IsAdmin  bool      `json:"-"`
}

// Basic is the public projection of a principal used in outbound payloads.
func (p *Principal) Basic() UserBasic {
	return UserBasic{ID: p.ID.String(), Username: p.Username, Display: p.Display, Avatar: p.Avatar}
}

type UserBasic struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Display  string `json:"display_name,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

type UserStatus string

const (
	StatusOnline  UserStatus = "online"
	StatusAway    UserStatus = "away"
	StatusDND     UserStatus = "dnd"
	StatusOffline UserStatus = "offline"
)

func (s UserStatus) Valid() bool {
	switch s {
	case StatusOnline, StatusAway, StatusDND, StatusOffline:
		return true
	}
	return false
}

// Server is a collaboration space. Channels, events and calls hang off it.
type Server struct {
	ID      uuid.UUID
	OwnerID uuid.UUID
}

// Membership is the answer of the authorization collaborator for one (space, user) pair.
type Membership struct {
	IsMember bool
	IsBanned bool
}

type Channel struct {
	ID            uuid.UUID
	ServerID      uuid.UUID
	Name          string
	IsPrivate     bool
	SlowmodeDelay time.Duration
}

type Message struct {
	ID        uuid.UUID  `json:"id"`
	ChannelID uuid.UUID  `json:"channel_id"`
	AuthorID  uuid.UUID  `json:"author_id"`
	Author    UserBasic  `json:"author"`
	Content   string     `json:"content"`
	ReplyTo   *uuid.UUID `json:"reply_to,omitempty"`
	ThreadID  *uuid.UUID `json:"thread_id,omitempty"`
	Edited    bool       `json:"edited"`
	CreatedAt time.Time  `json:"created_at"`
}

type ReactionAction string

const (
	ReactionAdd    ReactionAction = "add"
	ReactionRemove ReactionAction = "remove"
)

type Reaction struct {
	MessageID uuid.UUID
	UserID    uuid.UUID
	Emoji     string
}

// DirectMessage is a two or multi party thread.
type DirectMessage struct {
	ID           uuid.UUID
	Participants []uuid.UUID
}

func (d *DirectMessage) HasParticipant(userID uuid.UUID) bool {
	for _, id := range d.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

type DirectMessageMessage struct {
	ID        uuid.UUID `json:"id"`
	DMID      uuid.UUID `json:"dm_id"`
	AuthorID  uuid.UUID `json:"author_id"`
	Author    UserBasic `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Event struct {
	ID          uuid.UUID
	ServerID    uuid.UUID
	OrganizerID uuid.UUID
	Title       string
}

type RSVPStatus string

const (
	RSVPPending      RSVPStatus = "pending"
	RSVPAttending    RSVPStatus = "attending"
	RSVPNotAttending RSVPStatus = "not_attending"
	RSVPMaybe        RSVPStatus = "maybe"
	RSVPTentative    RSVPStatus = "tentative"
)

func (s RSVPStatus) Valid() bool {
	switch s {
	case RSVPPending, RSVPAttending, RSVPNotAttending, RSVPMaybe, RSVPTentative:
		return true
	}
	return false
}

type EventAttendee struct {
	EventID     uuid.UUID
	UserID      uuid.UUID
	Status      RSVPStatus
	Notes       string
	RespondedAt time.Time
}

// Access is what the authorizer resolved for a connection. Exactly one of the
// entity pointers is set, matching the room kind.
type Access struct {
	Room          Room
	ServerID      uuid.UUID
	Channel       *Channel
	DirectMessage *DirectMessage
	Call          *CallSession
	Event         *Event
}
