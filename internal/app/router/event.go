package router

import (
	"context"
	"fmt"
	"log/slog"

	"meshup/internal/core/domain"
	"meshup/internal/core/services"
	"meshup/pkg/logging"

	"github.com/goccy/go-json"
)

type EventEvent int

const (
	EventUnknown EventEvent = iota
	EventRSVPUpdate
	EventUpdate
)

func ParseEventEvent(f Frame) EventEvent {
	switch f.Tag {
	case "rsvp_update":
		return EventRSVPUpdate
	case "event_update":
		return EventUpdate
	}
	return EventUnknown
}

// rsvpBody accepts rsvp_status, with status as an alias.
type rsvpBody struct {
	RSVPStatus domain.RSVPStatus `json:"rsvp_status"`
	Status     domain.RSVPStatus `json:"status"`
	Notes      string            `json:"notes"`
}

func (b rsvpBody) status() domain.RSVPStatus {
	if b.RSVPStatus != "" {
		return b.RSVPStatus
	}
	return b.Status
}

// eventUpdate binds an organizer's change set. Only title is typed.
func eventUpdate(f Frame) (services.EventUpdate, error) {
	var changes map[string]json.RawMessage
	if err := f.Bind(&changes); err != nil {
		return services.EventUpdate{}, err
	}
	in := services.EventUpdate{Changes: changes}
	if raw, ok := changes["title"]; ok {
		var title string
		if err := json.Unmarshal(raw, &title); err != nil {
			return services.EventUpdate{}, fmt.Errorf("%w: title must be a string", domain.ErrInvalidPayload)
		}
		in.Title = &title
	}
	return in, nil
}

type EventRouter struct {
	log    *slog.Logger
	bridge *services.Bridge
	events services.IEventService
}

func NewEventRouter(log *slog.Logger, bridge *services.Bridge, events services.IEventService) *EventRouter {
	return &EventRouter{log: log, bridge: bridge, events: events}
}

func (r *EventRouter) Kind() domain.RoomKind { return domain.RoomEvent }

func (r *EventRouter) OnConnect(context.Context, *Session)    {}
func (r *EventRouter) OnDisconnect(context.Context, *Session) {}

func (r *EventRouter) Handle(ctx context.Context, s *Session, raw []byte) {
	f, err := Decode(raw)
	if err != nil {
		r.bridge.ReplyError(s.Client, err)
		return
	}

	ev := ParseEventEvent(f)
	countInbound(domain.RoomEvent, f.Tag, ev != EventUnknown)
	switch ev {
	case EventRSVPUpdate:
		var body rsvpBody
		if err = f.Bind(&body); err != nil {
			break
		}
		_, err = r.events.RSVP(ctx, s.Principal(), s.Access.Event, body.status(), body.Notes)
	case EventUpdate:
		var body services.EventUpdate
		if body, err = eventUpdate(f); err != nil {
			break
		}
		var updated *domain.Event
		if updated, err = r.events.Update(ctx, s.Principal(), s.Access.Event, body); err == nil {
			s.Access.Event = updated
		}
	default:
		r.log.DebugContext(ctx, "event router - handle - unknown tag ignored", logging.Tag(f.Tag), logging.Handle(s.Client.ID()))
	}
	if err != nil {
		r.bridge.ReplyError(s.Client, err)
	}
}
