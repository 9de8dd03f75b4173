package handlers

import (
	"fmt"
	"net/http"

	"meshup/internal/core/domain"
	"meshup/internal/core/services"
	"meshup/pkg/middleware"

	"github.com/google/uuid"
)

type CallHandler struct {
	calls      services.ICallService
	authorizer services.IAccessAuthorizer
}

func NewCallHandler(calls services.ICallService, authorizer services.IAccessAuthorizer) *CallHandler {
	return &CallHandler{calls: calls, authorizer: authorizer}
}

type InitiateCallRequest struct {
	CallType   domain.CallType `json:"call_type" validate:"required,oneof=voice video group"`
	Recipients []uuid.UUID     `json:"recipients" validate:"max=50"`
	ServerID   *uuid.UUID      `json:"server_id"`
	ChannelID  *uuid.UUID      `json:"channel_id"`
	DMID       *uuid.UUID      `json:"dm_id"`
}

type CallStatusRequest struct {
	Status domain.CallStatus `json:"status" validate:"required,oneof=active on_hold"`
}

func (h *CallHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req InitiateCallRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.calls.Initiate(r.Context(), middleware.PrincipalFrom(r.Context()), domain.InitiateCall{
		Type:       req.CallType,
		Recipients: req.Recipients,
		ServerID:   req.ServerID,
		ChannelID:  req.ChannelID,
		DMID:       req.DMID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"call":        services.NewCallView(res.Call),
		"participant": services.NewParticipantView(res.Participant, nil),
		"invited":     len(res.Invitations),
	})
}

func (h *CallHandler) Join(w http.ResponseWriter, r *http.Request) {
	callID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	p := middleware.PrincipalFrom(r.Context())
	res, err := h.calls.Join(r.Context(), p, callID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"call":           services.NewCallView(res.Call),
		"participant":    services.NewParticipantView(res.Participant, p),
		"already_joined": res.AlreadyJoined,
	})
}

func (h *CallHandler) Leave(w http.ResponseWriter, r *http.Request) {
	callID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.calls.Leave(r.Context(), middleware.PrincipalFrom(r.Context()), callID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"call_id":          callID.String(),
		"duration_seconds": int(res.Duration.Seconds()),
		"call_ended":       res.CallEnded,
	})
}

func (h *CallHandler) End(w http.ResponseWriter, r *http.Request) {
	callID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.calls.End(r.Context(), middleware.PrincipalFrom(r.Context()), callID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"call_id":           callID.String(),
		"status":            res.Call.Status,
		"duration_seconds":  int(res.Duration.Seconds()),
		"participant_count": res.ParticipantCount,
	})
}

func (h *CallHandler) Decline(w http.ResponseWriter, r *http.Request) {
	callID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	call, err := h.calls.Decline(r.Context(), middleware.PrincipalFrom(r.Context()), callID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"call": services.NewCallView(call)})
}

func (h *CallHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	callID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req CallStatusRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	call, err := h.calls.SetStatus(r.Context(), middleware.PrincipalFrom(r.Context()), callID, req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"call": services.NewCallView(call)})
}

func (h *CallHandler) UpdateMedia(w http.ResponseWriter, r *http.Request) {
	callID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req domain.MediaUpdate
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p := middleware.PrincipalFrom(r.Context())
	part, err := h.calls.UpdateMedia(r.Context(), p, callID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"participant": services.NewParticipantView(part, p)})
}

func (h *CallHandler) StartScreenShare(w http.ResponseWriter, r *http.Request) {
	callID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req domain.ScreenShareOptions
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	share, err := h.calls.StartScreenShare(r.Context(), middleware.PrincipalFrom(r.Context()), callID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"stream_id":     share.StreamID,
		"resolution":    fmt.Sprintf("%dx%d", share.Width, share.Height),
		"framerate":     share.FrameRate,
		"bitrate_kbps":  share.Bitrate,
		"include_audio": share.IncludeAudio,
	})
}

func (h *CallHandler) StopScreenShare(w http.ResponseWriter, r *http.Request) {
	callID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	share, err := h.calls.StopScreenShare(r.Context(), middleware.PrincipalFrom(r.Context()), callID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stream_id": share.StreamID, "status": share.Status})
}

func (h *CallHandler) Participants(w http.ResponseWriter, r *http.Request) {
	callID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.authorizer.Authorize(r.Context(), middleware.PrincipalFrom(r.Context()), domain.CallRoom(callID)); err != nil {
		writeError(w, r, err)
		return
	}
	parts, err := h.calls.Participants(r.Context(), callID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	views := make([]services.ParticipantView, 0, len(parts))
	for i := range parts {
		views = append(views, services.NewParticipantView(&parts[i], nil))
	}
	writeJSON(w, http.StatusOK, map[string]any{"participants": views})
}
