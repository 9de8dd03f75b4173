package router

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"meshup/internal/core/domain"
	"meshup/internal/core/services"
	"meshup/pkg/logging"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

var now = time.Now

func nowMillis() int64 { return now().UnixMilli() }

type CallEvent int

const (
	CallUnknown CallEvent = iota
	CallSignal
	CallICECandidate
	CallHeartbeat
)

func ParseCallEvent(f Frame) CallEvent {
	switch f.Tag {
	case "signal":
		return CallSignal
	case "ice_candidate":
		return CallICECandidate
	case "heartbeat":
		return CallHeartbeat
	}
	return CallUnknown
}

// SignalPayload relays an opaque signalling body. Every peer in the room gets
// it; when TargetPeerID is set, peers with a different id ignore it.
type SignalPayload struct {
	CallID       string           `json:"call_id"`
	FromUserID   string           `json:"from_user_id"`
	FromUser     domain.UserBasic `json:"from_user"`
	PeerID       string           `json:"peer_id,omitempty"`
	TargetPeerID string           `json:"target_peer_id,omitempty"`
	Data         json.RawMessage  `json:"data"`
}

type HeartbeatPayload struct {
	Timestamp       int64           `json:"timestamp"`
	ClientTimestamp json.RawMessage `json:"client_timestamp,omitempty"`
}

// CallRouter only relays. Call membership changes go through the call
// endpoints; a disconnect leaves the participant row untouched.
type CallRouter struct {
	log    *slog.Logger
	bridge *services.Bridge
}

func NewCallRouter(log *slog.Logger, bridge *services.Bridge) *CallRouter {
	return &CallRouter{log: log, bridge: bridge}
}

func (r *CallRouter) Kind() domain.RoomKind { return domain.RoomCall }

func (r *CallRouter) OnConnect(ctx context.Context, s *Session) {
	r.log.DebugContext(ctx, "call router - connect", logging.Call(s.Room().Key), logging.User(s.Principal().ID))
}

func (r *CallRouter) OnDisconnect(ctx context.Context, s *Session) {
	r.log.DebugContext(ctx, "call router - disconnect", logging.Call(s.Room().Key), logging.User(s.Principal().ID))
}

func (r *CallRouter) Handle(ctx context.Context, s *Session, raw []byte) {
	f, err := Decode(raw)
	if err != nil {
		r.bridge.ReplyError(s.Client, err)
		return
	}

	ev := ParseCallEvent(f)
	countInbound(domain.RoomCall, f.Tag, ev != CallUnknown)
	switch ev {
	case CallSignal, CallICECandidate:
		tag := domain.TagSignal
		if ev == CallICECandidate {
			tag = domain.TagICECandidate
		}
		err = r.relay(ctx, s, f, tag)
	case CallHeartbeat:
		hb := HeartbeatPayload{Timestamp: nowMillis()}
		if ts := gjson.GetBytes(f.Body, "timestamp"); ts.Exists() {
			hb.ClientTimestamp = json.RawMessage(ts.Raw)
		}
		err = r.bridge.Reply(s.Client, domain.TagHeartbeat, hb)
	default:
		r.log.DebugContext(ctx, "call router - handle - unknown tag ignored", logging.Tag(f.Tag), logging.Handle(s.Client.ID()))
	}
	if err != nil {
		r.bridge.ReplyError(s.Client, err)
	}
}

func (r *CallRouter) relay(ctx context.Context, s *Session, f Frame, tag string) error {
	body := gjson.ParseBytes(f.Body)
	if len(body.Map()) == 0 {
		return fmt.Errorf("%w: empty %s", domain.ErrInvalidPayload, tag)
	}
	p := s.Principal()
	return r.bridge.Publish(ctx, s.Room(), tag, SignalPayload{
		CallID:       s.Room().Key.String(),
		FromUserID:   p.ID.String(),
		FromUser:     p.Basic(),
		PeerID:       body.Get("peer_id").String(),
		TargetPeerID: body.Get("target_peer_id").String(),
		Data:         json.RawMessage(f.Body),
	}, s.Client.ID())
}
