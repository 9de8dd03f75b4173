package router

import (
	"context"
	"log/slog"

	"meshup/internal/core/domain"
	"meshup/internal/core/services"
	"meshup/pkg/logging"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// ChannelEvent is the closed set of inbound chat channel events.
type ChannelEvent int

const (
	ChannelUnknown ChannelEvent = iota
	ChannelMessageSend
	ChannelTypingStart
	ChannelTypingStop
	ChannelReaction
	ChannelPresence
	ChannelPing
)

// ParseChannelEvent maps a tag, including the legacy aliases, onto ChannelEvent.
func ParseChannelEvent(f Frame) ChannelEvent {
	switch f.Tag {
	case "message.send", "message":
		return ChannelMessageSend
	case "typing.start":
		return ChannelTypingStart
	case "typing.stop":
		return ChannelTypingStop
	case "typing":
		if gjson.GetBytes(f.Body, "is_typing").Bool() {
			return ChannelTypingStart
		}
		return ChannelTypingStop
	case "reaction":
		return ChannelReaction
	case "presence":
		return ChannelPresence
	case "presence.ping":
		return ChannelPing
	}
	return ChannelUnknown
}

type messageSendBody struct {
	Content  string     `json:"content"`
	ReplyTo  *uuid.UUID `json:"reply_to"`
	ThreadID *uuid.UUID `json:"thread_id"`
}

type reactionBody struct {
	MessageID uuid.UUID             `json:"message_id"`
	Emoji     string                `json:"emoji"`
	Action    domain.ReactionAction `json:"action"`
}

type statusBody struct {
	Status domain.UserStatus `json:"status"`
}

type TypingPayload struct {
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
}

type ChannelRouter struct {
	log      *slog.Logger
	bridge   *services.Bridge
	messages services.IMessageService
	presence services.IPresenceService
}

func NewChannelRouter(log *slog.Logger, bridge *services.Bridge, messages services.IMessageService, presence services.IPresenceService) *ChannelRouter {
	return &ChannelRouter{log: log, bridge: bridge, messages: messages, presence: presence}
}

func (r *ChannelRouter) Kind() domain.RoomKind { return domain.RoomChannel }

func (r *ChannelRouter) OnConnect(ctx context.Context, s *Session) {
	if err := r.presence.Connect(ctx, s.Principal(), s.Room(), s.Client.ID()); err != nil {
		r.log.WarnContext(ctx, "channel router - connect - announce failed", logging.Room(s.Room().String()), logging.Err(err))
	}
}

func (r *ChannelRouter) OnDisconnect(ctx context.Context, s *Session) {
	if err := r.presence.Disconnect(ctx, s.Principal(), s.Room()); err != nil {
		r.log.WarnContext(ctx, "channel router - disconnect - announce failed", logging.Room(s.Room().String()), logging.Err(err))
	}
}

func (r *ChannelRouter) Handle(ctx context.Context, s *Session, raw []byte) {
	f, err := Decode(raw)
	if err != nil {
		r.bridge.ReplyError(s.Client, err)
		return
	}

	p := s.Principal()
	ch := s.Access.Channel
	ev := ParseChannelEvent(f)
	countInbound(domain.RoomChannel, f.Tag, ev != ChannelUnknown)
	switch ev {
	case ChannelMessageSend:
		var body messageSendBody
		if err = f.Bind(&body); err != nil {
			break
		}
		var msg *domain.Message
		msg, err = r.messages.PostChannelMessage(ctx, p, ch, services.PostMessage{
			Content:  body.Content,
			ReplyTo:  body.ReplyTo,
			ThreadID: body.ThreadID,
		})
		if err == nil {
			err = r.bridge.Reply(s.Client, domain.TagMessageAck, msg)
		}
	case ChannelTypingStart:
		err = r.bridge.Publish(ctx, s.Room(), domain.TagTypingStart, r.typing(s), s.Client.ID())
	case ChannelTypingStop:
		err = r.bridge.Publish(ctx, s.Room(), domain.TagTypingStop, r.typing(s), s.Client.ID())
	case ChannelReaction:
		var body reactionBody
		if err = f.Bind(&body); err != nil {
			break
		}
		err = r.messages.React(ctx, p, ch, services.ReactionInput{
			MessageID: body.MessageID,
			Emoji:     body.Emoji,
			Action:    body.Action,
		})
	case ChannelPresence:
		var body statusBody
		if err = f.Bind(&body); err != nil {
			break
		}
		err = r.presence.ChannelStatus(ctx, p, ch.ID, body.Status)
	case ChannelPing:
		var online []string
		if online, err = r.presence.Ping(ctx, p, s.Room()); err == nil {
			err = r.bridge.Reply(s.Client, domain.TagPresenceAlive, services.AlivePayload{
				Online:    online,
				Timestamp: nowMillis(),
			})
		}
	default:
		r.log.DebugContext(ctx, "channel router - handle - unknown tag ignored", logging.Tag(f.Tag), logging.Handle(s.Client.ID()))
	}
	if err != nil {
		r.bridge.ReplyError(s.Client, err)
	}
}

func (r *ChannelRouter) typing(s *Session) TypingPayload {
	p := s.Principal()
	return TypingPayload{ChannelID: s.Room().Key.String(), UserID: p.ID.String(), Username: p.Username}
}
