package handlers

import (
	"net/http"
	"time"

	"meshup/internal/core/domain"
	"meshup/internal/core/services"
	"meshup/pkg/middleware"

	"github.com/goccy/go-json"
)

type EventHandler struct {
	events     services.IEventService
	authorizer services.IAccessAuthorizer
}

func NewEventHandler(events services.IEventService, authorizer services.IAccessAuthorizer) *EventHandler {
	return &EventHandler{events: events, authorizer: authorizer}
}

type RSVPRequest struct {
	Status domain.RSVPStatus `json:"status" validate:"required,oneof=pending attending not_attending maybe tentative"`
	Notes  string            `json:"notes" validate:"max=500"`
}

type UpdateEventRequest struct {
	Title   *string                    `json:"title" validate:"omitempty,min=1,max=200"`
	Changes map[string]json.RawMessage `json:"changes"`
}

func (h *EventHandler) access(r *http.Request) (*domain.Access, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	return h.authorizer.Authorize(r.Context(), middleware.PrincipalFrom(r.Context()), domain.EventRoom(id))
}

func (h *EventHandler) RSVP(w http.ResponseWriter, r *http.Request) {
	var req RSVPRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	access, err := h.access(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	a, err := h.events.RSVP(r.Context(), middleware.PrincipalFrom(r.Context()), access.Event, req.Status, req.Notes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"event_id":     a.EventID.String(),
		"user_id":      a.UserID.String(),
		"status":       a.Status,
		"notes":        a.Notes,
		"responded_at": a.RespondedAt.Format(time.RFC3339),
	})
}

func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateEventRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	access, err := h.access(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ev, err := h.events.Update(r.Context(), middleware.PrincipalFrom(r.Context()), access.Event, services.EventUpdate{Title: req.Title, Changes: req.Changes})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"event_id": ev.ID.String(), "title": ev.Title})
}
