package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UserRepository is the identity lookup used by the authenticator and presence.
type UserRepository interface {
	GetPrincipal(ctx context.Context, id uuid.UUID) (*Principal, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status UserStatus) error
}

type ServerRepository interface {
	GetServer(ctx context.Context, id uuid.UUID) (*Server, error)
}

type ChannelRepository interface {
	GetChannel(ctx context.Context, id uuid.UUID) (*Channel, error)
}

type MessageRepository interface {
	CreateMessage(ctx context.Context, m *Message) error
	GetMessage(ctx context.Context, id uuid.UUID) (*Message, error)
	// AddReaction is idempotent on (message, user, emoji).
	AddReaction(ctx context.Context, r Reaction) error
	RemoveReaction(ctx context.Context, r Reaction) error
}

type DirectMessageRepository interface {
	GetDirectMessage(ctx context.Context, id uuid.UUID) (*DirectMessage, error)
	CreateDirectMessageMessage(ctx context.Context, m *DirectMessageMessage) error
}

type EventRepository interface {
	GetEvent(ctx context.Context, id uuid.UUID) (*Event, error)
	UpdateEvent(ctx context.Context, e *Event) error
	UpsertAttendee(ctx context.Context, a *EventAttendee) error
}

// CallRepository persists call sessions and everything hanging off them.
// LockCall must be called inside a transaction; it holds the row until commit.
type CallRepository interface {
	CreateCall(ctx context.Context, c *CallSession) error
	GetCall(ctx context.Context, id uuid.UUID) (*CallSession, error)
	LockCall(ctx context.Context, id uuid.UUID) (*CallSession, error)
	UpdateCall(ctx context.Context, c *CallSession) error
	ListRingingBefore(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)

	GetParticipant(ctx context.Context, callID, userID uuid.UUID) (*CallParticipant, error)
	CreateParticipant(ctx context.Context, p *CallParticipant) error
	UpdateParticipant(ctx context.Context, p *CallParticipant) error
	CountOpenParticipants(ctx context.Context, callID uuid.UUID) (int, error)
	CountParticipants(ctx context.Context, callID uuid.UUID) (int, error)
	CloseOpenParticipants(ctx context.Context, callID uuid.UUID, at time.Time) (int, error)
	ListParticipants(ctx context.Context, callID uuid.UUID, openOnly bool) ([]CallParticipant, error)

	CreateInvitation(ctx context.Context, inv *CallInvitation) error
	GetInvitation(ctx context.Context, callID, inviteeID uuid.UUID) (*CallInvitation, error)
	UpdateInvitation(ctx context.Context, inv *CallInvitation) error
	ListInvitations(ctx context.Context, callID uuid.UUID) ([]CallInvitation, error)

	// GetActiveScreenShare returns ErrNoActiveShare when the participant has no active or paused share.
	GetActiveScreenShare(ctx context.Context, participantID uuid.UUID) (*ScreenShare, error)
	CreateScreenShare(ctx context.Context, s *ScreenShare) error
	UpdateScreenShare(ctx context.Context, s *ScreenShare) error
}
