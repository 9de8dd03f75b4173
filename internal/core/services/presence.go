package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"meshup/internal/core/contracts"
	"meshup/internal/core/domain"
	"meshup/pkg/logging"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type IPresenceService interface {
	// Connect marks p online in room and announces it to everyone but exclude.
	Connect(ctx context.Context, p *domain.Principal, room domain.Room, exclude uuid.UUID) error
	Disconnect(ctx context.Context, p *domain.Principal, room domain.Room) error
	// UpdateStatus persists status on the profile and announces it to the space.
	UpdateStatus(ctx context.Context, p *domain.Principal, serverID uuid.UUID, status domain.UserStatus) error
	// ChannelStatus writes a short-lived status marker and announces it to the channel.
	ChannelStatus(ctx context.Context, p *domain.Principal, channelID uuid.UUID, status domain.UserStatus) error
	// Ping refreshes p in room and returns who is still online there.
	Ping(ctx context.Context, p *domain.Principal, room domain.Room) ([]string, error)
}

type PresencePayload struct {
	UserID string            `json:"user_id"`
	User   domain.UserBasic  `json:"user"`
	Status domain.UserStatus `json:"status,omitempty"`
}

type AlivePayload struct {
	Online    []string `json:"online"`
	Timestamp int64    `json:"timestamp"`
}

type PresenceService struct {
	log    *slog.Logger
	users  domain.UserRepository
	store  contracts.PresenceStore
	bridge *Bridge
	ttl    time.Duration
}

func NewPresenceService(log *slog.Logger, users domain.UserRepository, store contracts.PresenceStore, bridge *Bridge, ttl time.Duration) *PresenceService {
	return &PresenceService{log: log, users: users, store: store, bridge: bridge, ttl: ttl}
}

func (s *PresenceService) Connect(ctx context.Context, p *domain.Principal, room domain.Room, exclude uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "PresenceService.Connect", trace.WithAttributes(
		attribute.String("room", room.String()),
		attribute.String("user_id", p.ID.String()),
	))
	defer span.End()

	if err := s.store.MarkOnline(ctx, room.String(), p.ID, s.ttl); err != nil {
		// Markers are best effort; the announcement still goes out.
		span.RecordError(err)
		s.log.WarnContext(ctx, "presence - connect - mark online failed", logging.Room(room.String()), logging.Err(err))
	}

	switch room.Kind {
	case domain.RoomPresence:
		if err := s.users.UpdateStatus(ctx, p.ID, domain.StatusOnline); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "update status failed")
			s.log.ErrorContext(ctx, "presence - connect - update status failed", logging.User(p.ID), logging.Err(err))
			return err
		}
		_ = s.store.SetStatus(ctx, p.ID, domain.StatusOnline, s.ttl)
		return s.bridge.Publish(ctx, room, domain.TagUserOnline, s.payload(p, domain.StatusOnline), exclude)
	case domain.RoomChannel:
		return s.bridge.Publish(ctx, room, domain.TagUserJoined, s.payload(p, ""), exclude)
	}
	return nil
}

func (s *PresenceService) Disconnect(ctx context.Context, p *domain.Principal, room domain.Room) error {
	ctx, span := tracer.Start(ctx, "PresenceService.Disconnect", trace.WithAttributes(
		attribute.String("room", room.String()),
		attribute.String("user_id", p.ID.String()),
	))
	defer span.End()

	// Callers leave the registry first, so a hit here is another tab.
	if s.bridge.Connected(room, p.ID) {
		s.log.DebugContext(ctx, "presence - disconnect - still connected elsewhere", logging.Room(room.String()), logging.User(p.ID))
		return nil
	}
	if err := s.store.MarkOffline(ctx, room.String(), p.ID); err != nil {
		span.RecordError(err)
		s.log.WarnContext(ctx, "presence - disconnect - mark offline failed", logging.Room(room.String()), logging.Err(err))
	}

	switch room.Kind {
	case domain.RoomPresence:
		return s.bridge.Publish(ctx, room, domain.TagUserOffline, s.payload(p, domain.StatusOffline), uuid.Nil)
	case domain.RoomChannel:
		return s.bridge.Publish(ctx, room, domain.TagUserLeft, s.payload(p, ""), uuid.Nil)
	}
	return nil
}

func (s *PresenceService) UpdateStatus(ctx context.Context, p *domain.Principal, serverID uuid.UUID, status domain.UserStatus) error {
	ctx, span := tracer.Start(ctx, "PresenceService.UpdateStatus", trace.WithAttributes(
		attribute.String("user_id", p.ID.String()),
		attribute.String("status", string(status)),
	))
	defer span.End()

	if !status.Valid() {
		span.SetStatus(codes.Error, "invalid status")
		return fmt.Errorf("%w: status %q", domain.ErrInvalidPayload, status)
	}
	if err := s.users.UpdateStatus(ctx, p.ID, status); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update status failed")
		s.log.ErrorContext(ctx, "presence - update status - persist failed", logging.User(p.ID), logging.Err(err))
		return err
	}
	_ = s.store.SetStatus(ctx, p.ID, status, s.ttl)

	s.log.DebugContext(ctx, "presence - update status - success", logging.User(p.ID), slog.String("status", string(status)))
	return s.bridge.Publish(ctx, domain.PresenceRoom(serverID), domain.TagStatusUpdated, s.payload(p, status), uuid.Nil)
}

func (s *PresenceService) ChannelStatus(ctx context.Context, p *domain.Principal, channelID uuid.UUID, status domain.UserStatus) error {
	ctx, span := tracer.Start(ctx, "PresenceService.ChannelStatus", trace.WithAttributes(
		attribute.String("channel_id", channelID.String()),
		attribute.String("status", string(status)),
	))
	defer span.End()

	if !status.Valid() {
		span.SetStatus(codes.Error, "invalid status")
		return fmt.Errorf("%w: status %q", domain.ErrInvalidPayload, status)
	}
	if err := s.store.SetStatus(ctx, p.ID, status, s.ttl); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "set status failed")
		s.log.ErrorContext(ctx, "presence - channel status - marker failed", logging.User(p.ID), logging.Err(err))
		return err
	}
	return s.bridge.Publish(ctx, domain.ChannelRoom(channelID), domain.TagPresenceUpdate, s.payload(p, status), uuid.Nil)
}

func (s *PresenceService) Ping(ctx context.Context, p *domain.Principal, room domain.Room) ([]string, error) {
	if err := s.store.MarkOnline(ctx, room.String(), p.ID, s.ttl); err != nil {
		return nil, err
	}
	return s.store.Online(ctx, room.String(), s.ttl)
}

func (s *PresenceService) payload(p *domain.Principal, status domain.UserStatus) PresencePayload {
	return PresencePayload{UserID: p.ID.String(), User: p.Basic(), Status: status}
}
