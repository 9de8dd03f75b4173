package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type CallStatus string

const (
	CallInitiating CallStatus = "initiating"
	CallRinging    CallStatus = "ringing"
	CallActive     CallStatus = "active"
	CallOnHold     CallStatus = "on_hold"
	CallEnded      CallStatus = "ended"
	CallDeclined   CallStatus = "declined"
	CallMissed     CallStatus = "missed"
)

// Terminal reports whether no further transition is possible.
func (s CallStatus) Terminal() bool {
	return s == CallEnded || s == CallDeclined || s == CallMissed
}

type CallType string

const (
	CallVoice CallType = "voice"
	CallVideo CallType = "video"
	CallGroup CallType = "group"
)

func (t CallType) Valid() bool {
	return t == CallVoice || t == CallVideo || t == CallGroup
}

type MediaState string

const (
	MediaActive   MediaState = "active"
	MediaInactive MediaState = "inactive"
	MediaMuted    MediaState = "muted"
	MediaPaused   MediaState = "paused"
)

func (m MediaState) Valid() bool {
	switch m {
	case MediaActive, MediaInactive, MediaMuted, MediaPaused:
		return true
	}
	return false
}

type CallSession struct {
	ID                uuid.UUID
	Type              CallType
	Status            CallStatus
	InitiatorID       uuid.UUID
	ServerID          *uuid.UUID
	ChannelID         *uuid.UUID
	DMID              *uuid.UUID
	StartedAt         *time.Time
	EndedAt           *time.Time
	TotalParticipants int
	PeakParticipants  int
	CreatedAt         time.Time
}

// Duration is measured from started_at, or created_at for calls never answered.
// Open calls are measured against now.
func (c *CallSession) Duration(now time.Time) time.Duration {
	start := c.CreatedAt
	if c.StartedAt != nil {
		start = *c.StartedAt
	}
	end := now
	if c.EndedAt != nil {
		end = *c.EndedAt
	}
	if end.Before(start) {
		return 0
	}
	return end.Sub(start)
}

type CallParticipant struct {
	ID               uuid.UUID
	CallID           uuid.UUID
	UserID           uuid.UUID
	PeerID           string
	AudioState       MediaState
	VideoState       MediaState
	ScreenShareState MediaState
	JoinedAt         time.Time
	LeftAt           *time.Time
}

func (p *CallParticipant) Open() bool { return p.LeftAt == nil }

// NewPeerID returns a fresh signalling key. Reconnecting participants always get a new one.
func NewPeerID() string {
	return fmt.Sprintf("peer_%s", uuid.NewString())
}

type InvitationStatus string

const (
	InvitePending  InvitationStatus = "pending"
	InviteAccepted InvitationStatus = "accepted"
	InviteDeclined InvitationStatus = "declined"
	InviteMissed   InvitationStatus = "missed"
)

type CallInvitation struct {
	ID                  uuid.UUID
	CallID              uuid.UUID
	InviterID           uuid.UUID
	InviteeID           uuid.UUID
	Status              InvitationStatus
	CreatedAt           time.Time
	RespondedAt         *time.Time
	ResponseTimeSeconds *int
}

type ScreenShareStatus string

const (
	ShareActive ScreenShareStatus = "active"
	SharePaused ScreenShareStatus = "paused"
	ShareEnded  ScreenShareStatus = "ended"
)

type ScreenShare struct {
	ID            uuid.UUID
	CallID        uuid.UUID
	ParticipantID uuid.UUID
	StreamID      string
	Status        ScreenShareStatus
	Width         int
	Height        int
	FrameRate     int
	Bitrate       int
	IncludeAudio  bool
	StartedAt     time.Time
	EndedAt       *time.Time
}

// ScreenShareOptions carries the optional start parameters; zero values fall back to defaults.
type ScreenShareOptions struct {
	Width        int  `json:"width" validate:"omitempty,min=1,max=7680"`
	Height       int  `json:"height" validate:"omitempty,min=1,max=4320"`
	FrameRate    int  `json:"frame_rate" validate:"omitempty,min=1,max=120"`
	Bitrate      int  `json:"bitrate" validate:"omitempty,min=1"`
	IncludeAudio bool `json:"include_audio"`
}

func (o ScreenShareOptions) WithDefaults() ScreenShareOptions {
	if o.Width == 0 {
		o.Width = 1920
	}
	if o.Height == 0 {
		o.Height = 1080
	}
	if o.FrameRate == 0 {
		o.FrameRate = 30
	}
	if o.Bitrate == 0 {
		o.Bitrate = 2500
	}
	return o
}

// MediaUpdate only touches non-nil fields.
type MediaUpdate struct {
	AudioState       *MediaState `json:"audio_state,omitempty"`
	VideoState       *MediaState `json:"video_state,omitempty"`
	ScreenShareState *MediaState `json:"screen_share_state,omitempty"`
}

func (m MediaUpdate) Empty() bool {
	return m.AudioState == nil && m.VideoState == nil && m.ScreenShareState == nil
}

func (m MediaUpdate) Valid() bool {
	for _, s := range []*MediaState{m.AudioState, m.VideoState, m.ScreenShareState} {
		if s != nil && !s.Valid() {
			return false
		}
	}
	return true
}

// Apply mutates p with the provided fields.
func (m MediaUpdate) Apply(p *CallParticipant) {
	if m.AudioState != nil {
		p.AudioState = *m.AudioState
	}
	if m.VideoState != nil {
		p.VideoState = *m.VideoState
	}
	if m.ScreenShareState != nil {
		p.ScreenShareState = *m.ScreenShareState
	}
}

// InitiateCall is the input of the initiate transition.
type InitiateCall struct {
	Type       CallType
	Recipients []uuid.UUID
	ServerID   *uuid.UUID
	ChannelID  *uuid.UUID
	DMID       *uuid.UUID
}
