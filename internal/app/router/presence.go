package router

import (
	"context"
	"fmt"
	"log/slog"

	"meshup/internal/core/domain"
	"meshup/internal/core/services"
	"meshup/pkg/logging"

	"github.com/tidwall/gjson"
)

type PresenceEvent int

const (
	PresenceUnknown PresenceEvent = iota
	PresenceStatusUpdate
)

func ParsePresenceEvent(f Frame) PresenceEvent {
	if f.Tag == "status_update" {
		return PresenceStatusUpdate
	}
	return PresenceUnknown
}

type PresenceRouter struct {
	log      *slog.Logger
	bridge   *services.Bridge
	presence services.IPresenceService
}

func NewPresenceRouter(log *slog.Logger, bridge *services.Bridge, presence services.IPresenceService) *PresenceRouter {
	return &PresenceRouter{log: log, bridge: bridge, presence: presence}
}

func (r *PresenceRouter) Kind() domain.RoomKind { return domain.RoomPresence }

func (r *PresenceRouter) OnConnect(ctx context.Context, s *Session) {
	if err := r.presence.Connect(ctx, s.Principal(), s.Room(), s.Client.ID()); err != nil {
		r.log.WarnContext(ctx, "presence router - connect - announce failed", logging.User(s.Principal().ID), logging.Err(err))
	}
}

func (r *PresenceRouter) OnDisconnect(ctx context.Context, s *Session) {
	if err := r.presence.Disconnect(ctx, s.Principal(), s.Room()); err != nil {
		r.log.WarnContext(ctx, "presence router - disconnect - announce failed", logging.User(s.Principal().ID), logging.Err(err))
	}
}

func (r *PresenceRouter) Handle(ctx context.Context, s *Session, raw []byte) {
	f, err := Decode(raw)
	if err != nil {
		r.bridge.ReplyError(s.Client, err)
		return
	}

	ev := ParsePresenceEvent(f)
	countInbound(domain.RoomPresence, f.Tag, ev != PresenceUnknown)
	switch ev {
	case PresenceStatusUpdate:
		status := f.Lookup("status")
		if status.Type != gjson.String {
			err = fmt.Errorf("%w: status is required", domain.ErrInvalidPayload)
			break
		}
		err = r.presence.UpdateStatus(ctx, s.Principal(), s.Access.ServerID, domain.UserStatus(status.Str))
	default:
		r.log.DebugContext(ctx, "presence router - handle - unknown tag ignored", logging.Tag(f.Tag), logging.Handle(s.Client.ID()))
	}
	if err != nil {
		r.bridge.ReplyError(s.Client, err)
	}
}
