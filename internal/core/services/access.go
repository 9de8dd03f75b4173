package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"meshup/internal/core/contracts"
	"meshup/internal/core/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type IAccessAuthorizer interface {
	// Authorize decides whether p may join room and returns the entity behind it.
	// Errors are ErrUnauthorized, ErrForbidden, ErrNotFound or a datastore error.
	Authorize(ctx context.Context, p *domain.Principal, room domain.Room) (*domain.Access, error)
}

type AccessAuthorizer struct {
	log        *slog.Logger
	servers    domain.ServerRepository
	channels   domain.ChannelRepository
	dms        domain.DirectMessageRepository
	calls      domain.CallRepository
	events     domain.EventRepository
	membership contracts.MembershipService
}

func NewAccessAuthorizer(
	log *slog.Logger,
	servers domain.ServerRepository,
	channels domain.ChannelRepository,
	dms domain.DirectMessageRepository,
	calls domain.CallRepository,
	events domain.EventRepository,
	membership contracts.MembershipService,
) *AccessAuthorizer {
	return &AccessAuthorizer{
		log:        log,
		servers:    servers,
		channels:   channels,
		dms:        dms,
		calls:      calls,
		events:     events,
		membership: membership,
	}
}

func (a *AccessAuthorizer) Authorize(ctx context.Context, p *domain.Principal, room domain.Room) (*domain.Access, error) {
	ctx, span := tracer.Start(ctx, "AccessAuthorizer.Authorize", trace.WithAttributes(
		attribute.String("room", room.String()),
	))
	defer span.End()

	if p == nil {
		return nil, domain.ErrUnauthorized
	}
	span.SetAttributes(attribute.String("user_id", p.ID.String()))

	var (
		access *domain.Access
		err    error
	)
	switch room.Kind {
	case domain.RoomChannel:
		access, err = a.channel(ctx, p, room)
	case domain.RoomDM:
		access, err = a.directMessage(ctx, p, room)
	case domain.RoomPresence:
		access, err = a.presence(ctx, p, room)
	case domain.RoomCall:
		access, err = a.call(ctx, p, room)
	case domain.RoomEvent:
		access, err = a.event(ctx, p, room)
	default:
		err = fmt.Errorf("%w: room kind %q", domain.ErrNotFound, room.Kind)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, domain.ErrorCode(err))
		return nil, err
	}
	return access, nil
}

// member reports non-banned membership. Admins always pass.
func (a *AccessAuthorizer) member(ctx context.Context, p *domain.Principal, serverID uuid.UUID) (domain.Membership, error) {
	if p.IsAdmin {
		return domain.Membership{IsMember: true}, nil
	}
	m, err := a.membership.Membership(ctx, serverID, p.ID)
	if err != nil {
		return domain.Membership{}, err
	}
	if m.IsBanned {
		m.IsMember = false
	}
	return m, nil
}

func (a *AccessAuthorizer) channel(ctx context.Context, p *domain.Principal, room domain.Room) (*domain.Access, error) {
	ch, err := a.channels.GetChannel(ctx, room.Key)
	if err != nil {
		return nil, err
	}
	access := &domain.Access{Room: room, ServerID: ch.ServerID, Channel: ch}
	if p.IsAdmin {
		return access, nil
	}
	m, err := a.member(ctx, p, ch.ServerID)
	if err != nil {
		return nil, err
	}
	if m.IsBanned {
		return nil, fmt.Errorf("%w: banned from space", domain.ErrForbidden)
	}
	if ch.IsPrivate && !m.IsMember {
		return nil, fmt.Errorf("%w: private channel", domain.ErrForbidden)
	}
	return access, nil
}

func (a *AccessAuthorizer) directMessage(ctx context.Context, p *domain.Principal, room domain.Room) (*domain.Access, error) {
	dm, err := a.dms.GetDirectMessage(ctx, room.Key)
	if err != nil {
		return nil, err
	}
	if !dm.HasParticipant(p.ID) {
		return nil, fmt.Errorf("%w: not a participant", domain.ErrForbidden)
	}
	return &domain.Access{Room: room, DirectMessage: dm}, nil
}

func (a *AccessAuthorizer) presence(ctx context.Context, p *domain.Principal, room domain.Room) (*domain.Access, error) {
	if _, err := a.servers.GetServer(ctx, room.Key); err != nil {
		return nil, err
	}
	m, err := a.member(ctx, p, room.Key)
	if err != nil {
		return nil, err
	}
	if !m.IsMember {
		return nil, fmt.Errorf("%w: not a member", domain.ErrForbidden)
	}
	return &domain.Access{Room: room, ServerID: room.Key}, nil
}

func (a *AccessAuthorizer) call(ctx context.Context, p *domain.Principal, room domain.Room) (*domain.Access, error) {
	call, err := a.calls.GetCall(ctx, room.Key)
	if err != nil {
		return nil, err
	}
	access := &domain.Access{Room: room, Call: call}
	if call.ServerID != nil {
		access.ServerID = *call.ServerID
	}

	_, err = a.calls.GetParticipant(ctx, call.ID, p.ID)
	switch {
	case err == nil:
		return access, nil
	case !errors.Is(err, domain.ErrParticipantNotFound):
		return nil, err
	}
	if _, err := a.calls.GetInvitation(ctx, call.ID, p.ID); err == nil {
		return access, nil
	} else if !errors.Is(err, domain.ErrInvitationNotFound) {
		return nil, err
	}
	if call.ServerID != nil {
		m, err := a.member(ctx, p, *call.ServerID)
		if err != nil {
			return nil, err
		}
		if m.IsMember {
			return access, nil
		}
	}
	return nil, fmt.Errorf("%w: not part of call", domain.ErrForbidden)
}

func (a *AccessAuthorizer) event(ctx context.Context, p *domain.Principal, room domain.Room) (*domain.Access, error) {
	ev, err := a.events.GetEvent(ctx, room.Key)
	if err != nil {
		return nil, err
	}
	m, err := a.member(ctx, p, ev.ServerID)
	if err != nil {
		return nil, err
	}
	if !m.IsMember && ev.OrganizerID != p.ID {
		return nil, fmt.Errorf("%w: not a member", domain.ErrForbidden)
	}
	return &domain.Access{Room: room, ServerID: ev.ServerID, Event: ev}, nil
}
