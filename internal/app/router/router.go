package router

import (
	"context"
	"fmt"

	"meshup/internal/core/contracts"
	"meshup/internal/core/domain"
	"meshup/internal/platform/metrics"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// Session is one authorized connection bound to a room.
// It is only touched from the connection's own read goroutine.
type Session struct {
	Client contracts.Client
	Access *domain.Access
}

func (s *Session) Principal() *domain.Principal { return s.Client.Principal() }
func (s *Session) Room() domain.Room            { return s.Access.Room }

// Router handles the inbound events of one room kind.
type Router interface {
	Kind() domain.RoomKind
	// OnConnect runs after the session joined its room.
	OnConnect(ctx context.Context, s *Session)
	// Handle processes one inbound frame. Failures are reported to the sender only.
	Handle(ctx context.Context, s *Session, raw []byte)
	// OnDisconnect runs after the session left every room.
	OnDisconnect(ctx context.Context, s *Session)
}

// Frame is an inbound envelope: {"event"|"type": tag, "data"|"payload": {...}}.
type Frame struct {
	Tag  string
	Body []byte
	// Raw is the whole envelope, for clients that put fields next to the tag.
	Raw []byte
}

var emptyBody = []byte("{}")

// Decode validates raw and pulls out the tag and body without a full decode.
func Decode(raw []byte) (Frame, error) {
	if !gjson.ValidBytes(raw) {
		return Frame{}, fmt.Errorf("%w: frame is not valid json", domain.ErrInvalidPayload)
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return Frame{}, fmt.Errorf("%w: frame is not an object", domain.ErrInvalidPayload)
	}

	tag := root.Get("event")
	if !tag.Exists() {
		tag = root.Get("type")
	}
	if tag.Type != gjson.String || tag.Str == "" {
		return Frame{}, fmt.Errorf("%w: missing event tag", domain.ErrInvalidPayload)
	}

	body := root.Get("data")
	if !body.Exists() {
		body = root.Get("payload")
	}
	switch {
	case !body.Exists() || body.Type == gjson.Null:
		return Frame{Tag: tag.Str, Body: emptyBody, Raw: raw}, nil
	case !body.IsObject():
		return Frame{}, fmt.Errorf("%w: payload is not an object", domain.ErrInvalidPayload)
	}
	return Frame{Tag: tag.Str, Body: []byte(body.Raw), Raw: raw}, nil
}

// Bind decodes the frame body into v.
func (f Frame) Bind(v any) error {
	if err := json.Unmarshal(f.Body, v); err != nil {
		return fmt.Errorf("%w: %s payload", domain.ErrInvalidPayload, f.Tag)
	}
	return nil
}

// Lookup reads path from the body, falling back to the envelope itself.
func (f Frame) Lookup(path string) gjson.Result {
	if v := gjson.GetBytes(f.Body, path); v.Exists() {
		return v
	}
	return gjson.GetBytes(f.Raw, path)
}

// countInbound records one inbound frame. Unrecognized tags share one label
// so clients cannot grow the series set.
func countInbound(kind domain.RoomKind, tag string, known bool) {
	if !known {
		tag = "unknown"
	}
	metrics.InboundEvents.WithLabelValues(string(kind), tag).Inc()
}
