package handlers

import (
	"net/http"

	"meshup/internal/core/domain"
	"meshup/internal/core/services"
	"meshup/pkg/middleware"

	"github.com/google/uuid"
)

// MessageHandler is the REST path for posting. Broadcasts go through the same
// services the websocket routers use.
type MessageHandler struct {
	messages   services.IMessageService
	authorizer services.IAccessAuthorizer
}

func NewMessageHandler(messages services.IMessageService, authorizer services.IAccessAuthorizer) *MessageHandler {
	return &MessageHandler{messages: messages, authorizer: authorizer}
}

type PostMessageRequest struct {
	Content  string     `json:"content" validate:"required"`
	ReplyTo  *uuid.UUID `json:"reply_to"`
	ThreadID *uuid.UUID `json:"thread_id"`
}

func (h *MessageHandler) PostChannelMessage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req PostMessageRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p := middleware.PrincipalFrom(r.Context())
	access, err := h.authorizer.Authorize(r.Context(), p, domain.ChannelRoom(id))
	if err != nil {
		writeError(w, r, err)
		return
	}
	msg, err := h.messages.PostChannelMessage(r.Context(), p, access.Channel, services.PostMessage{
		Content:  req.Content,
		ReplyTo:  req.ReplyTo,
		ThreadID: req.ThreadID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *MessageHandler) PostDirectMessage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req PostMessageRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p := middleware.PrincipalFrom(r.Context())
	access, err := h.authorizer.Authorize(r.Context(), p, domain.DMRoom(id))
	if err != nil {
		writeError(w, r, err)
		return
	}
	msg, err := h.messages.PostDirectMessage(r.Context(), p, access.DirectMessage, req.Content)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}
