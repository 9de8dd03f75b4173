package services

import (
	"time"

	"meshup/internal/core/domain"
)

// Outbound payload shapes shared by websocket and REST responses.

type ParticipantView struct {
	ID               string            `json:"id"`
	CallID           string            `json:"call_id"`
	UserID           string            `json:"user_id"`
	User             *domain.UserBasic `json:"user,omitempty"`
	PeerID           string            `json:"peer_id"`
	AudioState       domain.MediaState `json:"audio_state"`
	VideoState       domain.MediaState `json:"video_state"`
	ScreenShareState domain.MediaState `json:"screen_share_state"`
	JoinedAt         time.Time         `json:"joined_at"`
	LeftAt           *time.Time        `json:"left_at,omitempty"`
}

func NewParticipantView(p *domain.CallParticipant, who *domain.Principal) ParticipantView {
	v := ParticipantView{
		ID:               p.ID.String(),
		CallID:           p.CallID.String(),
		UserID:           p.UserID.String(),
		PeerID:           p.PeerID,
		AudioState:       p.AudioState,
		VideoState:       p.VideoState,
		ScreenShareState: p.ScreenShareState,
		JoinedAt:         p.JoinedAt,
		LeftAt:           p.LeftAt,
	}
	if who != nil {
		b := who.Basic()
		v.User = &b
	}
	return v
}

type CallView struct {
	ID                string            `json:"id"`
	Type              domain.CallType   `json:"call_type"`
	Status            domain.CallStatus `json:"status"`
	InitiatorID       string            `json:"initiator_id"`
	ServerID          *string           `json:"server_id,omitempty"`
	ChannelID         *string           `json:"channel_id,omitempty"`
	DMID              *string           `json:"dm_id,omitempty"`
	StartedAt         *time.Time        `json:"started_at,omitempty"`
	EndedAt           *time.Time        `json:"ended_at,omitempty"`
	TotalParticipants int               `json:"total_participants"`
	PeakParticipants  int               `json:"peak_participants"`
	CreatedAt         time.Time         `json:"created_at"`
}

func NewCallView(c *domain.CallSession) CallView {
	v := CallView{
		ID:                c.ID.String(),
		Type:              c.Type,
		Status:            c.Status,
		InitiatorID:       c.InitiatorID.String(),
		StartedAt:         c.StartedAt,
		EndedAt:           c.EndedAt,
		TotalParticipants: c.TotalParticipants,
		PeakParticipants:  c.PeakParticipants,
		CreatedAt:         c.CreatedAt,
	}
	if c.ServerID != nil {
		s := c.ServerID.String()
		v.ServerID = &s
	}
	if c.ChannelID != nil {
		s := c.ChannelID.String()
		v.ChannelID = &s
	}
	if c.DMID != nil {
		s := c.DMID.String()
		v.DMID = &s
	}
	return v
}

type CallInvitationPayload struct {
	CallID      string           `json:"call_id"`
	CallType    domain.CallType  `json:"call_type"`
	Initiator   domain.UserBasic `json:"initiator"`
	RecipientID string           `json:"recipient_id"`
}

type ParticipantEventPayload struct {
	CallID      string          `json:"call_id"`
	Participant ParticipantView `json:"participant"`
}

type CallEndedPayload struct {
	CallID          string            `json:"call_id"`
	Status          domain.CallStatus `json:"status"`
	DurationSeconds int               `json:"duration_seconds"`
	EndedBy         string            `json:"ended_by,omitempty"`
}

type CallStatusPayload struct {
	CallID  string            `json:"call_id"`
	Status  domain.CallStatus `json:"status"`
	ActorID string            `json:"actor_id"`
}

type ScreenSharePayload struct {
	CallID       string `json:"call_id"`
	UserID       string `json:"user_id"`
	PeerID       string `json:"peer_id"`
	StreamID     string `json:"stream_id"`
	Resolution   string `json:"resolution,omitempty"`
	FrameRate    int    `json:"framerate,omitempty"`
	Bitrate      int    `json:"bitrate_kbps,omitempty"`
	IncludeAudio bool   `json:"include_audio"`
}

func seconds(d time.Duration) int {
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}
