package router

import (
	"context"
	"log/slog"

	"meshup/internal/core/domain"
	"meshup/internal/core/services"
	"meshup/pkg/logging"
)

type DirectMessageEvent int

const (
	DirectMessageUnknown DirectMessageEvent = iota
	DirectMessageSend
)

func ParseDirectMessageEvent(f Frame) DirectMessageEvent {
	switch f.Tag {
	case "message.send", "message":
		return DirectMessageSend
	}
	return DirectMessageUnknown
}

type DirectMessageRouter struct {
	log      *slog.Logger
	bridge   *services.Bridge
	messages services.IMessageService
}

func NewDirectMessageRouter(log *slog.Logger, bridge *services.Bridge, messages services.IMessageService) *DirectMessageRouter {
	return &DirectMessageRouter{log: log, bridge: bridge, messages: messages}
}

func (r *DirectMessageRouter) Kind() domain.RoomKind { return domain.RoomDM }

func (r *DirectMessageRouter) OnConnect(context.Context, *Session)    {}
func (r *DirectMessageRouter) OnDisconnect(context.Context, *Session) {}

func (r *DirectMessageRouter) Handle(ctx context.Context, s *Session, raw []byte) {
	f, err := Decode(raw)
	if err != nil {
		r.bridge.ReplyError(s.Client, err)
		return
	}

	ev := ParseDirectMessageEvent(f)
	countInbound(domain.RoomDM, f.Tag, ev != DirectMessageUnknown)
	switch ev {
	case DirectMessageSend:
		var body messageSendBody
		if err = f.Bind(&body); err != nil {
			break
		}
		var msg *domain.DirectMessageMessage
		msg, err = r.messages.PostDirectMessage(ctx, s.Principal(), s.Access.DirectMessage, body.Content)
		if err == nil {
			err = r.bridge.Reply(s.Client, domain.TagMessageAck, msg)
		}
	default:
		r.log.DebugContext(ctx, "dm router - handle - unknown tag ignored", logging.Tag(f.Tag), logging.Handle(s.Client.ID()))
	}
	if err != nil {
		r.bridge.ReplyError(s.Client, err)
	}
}
