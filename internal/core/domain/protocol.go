package domain

import (
	"github.com/goccy/go-json"
)

// Outbound tags.
const (
	TagError = "error"

	TagMessageAck     = "message.ack"
	TagMessageCreated = "message.created"
	TagTypingStart    = "typing.start"
	TagTypingStop     = "typing.stop"
	TagReaction       = "reaction"
	TagPresenceUpdate = "presence_update"
	TagPresenceAlive  = "presence.alive"
	TagUserJoined     = "user_joined"
	TagUserLeft       = "user_left"

	TagUserOnline     = "user_online"
	TagUserOffline    = "user_offline"
	TagStatusUpdated  = "status_updated"
	TagCallInvitation = "call_invitation"

	TagSignal             = "signal"
	TagICECandidate       = "ice_candidate"
	TagHeartbeat          = "heartbeat"
	TagParticipantJoined  = "participant_joined"
	TagParticipantLeft    = "participant_left"
	TagMediaState         = "media_state"
	TagScreenShareStarted = "screen_share_started"
	TagScreenShareEnded   = "screen_share_ended"
	TagCallStatus         = "call_status"
	TagCallEnded          = "call_ended"

	TagRSVPChanged   = "rsvp_changed"
	TagEventModified = "event_modified"
)

// Envelope is the outbound frame. Both type and event carry the tag so
// clients written against either vocabulary can read it.
type Envelope struct {
	Type    string `json:"type"`
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

func Encode(tag string, payload any) ([]byte, error) {
	if payload == nil {
		payload = struct{}{}
	}
	return json.Marshal(Envelope{Type: tag, Event: tag, Payload: payload})
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorFrame renders err as an error event. It never fails.
func ErrorFrame(err error) []byte {
	b, mErr := Encode(TagError, ErrorPayload{Code: ErrorCode(err), Message: PublicMessage(err)})
	if mErr != nil {
		return []byte(`{"type":"error","event":"error","payload":{"code":"internal","message":"internal error"}}`)
	}
	return b
}
