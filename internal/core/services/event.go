package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"meshup/internal/core/contracts"
	"meshup/internal/core/domain"
	"meshup/pkg/logging"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	maxNotesLength = 500
	maxTitleLength = 200
)

type IEventService interface {
	RSVP(ctx context.Context, p *domain.Principal, ev *domain.Event, status domain.RSVPStatus, notes string) (*domain.EventAttendee, error)
	// Update is restricted to the organizer.
	Update(ctx context.Context, p *domain.Principal, ev *domain.Event, in EventUpdate) (*domain.Event, error)
}

// EventUpdate is an organizer's change set. Title is persisted; every field
// the organizer sent, title included, is echoed to the room in Changes.
type EventUpdate struct {
	Title   *string
	Changes map[string]json.RawMessage
}

type RSVPPayload struct {
	EventID     string            `json:"event_id"`
	UserID      string            `json:"user_id"`
	User        domain.UserBasic  `json:"user"`
	Status      domain.RSVPStatus `json:"status"`
	Notes       string            `json:"notes,omitempty"`
	RespondedAt time.Time         `json:"responded_at"`
}

type EventModifiedPayload struct {
	EventID   string                     `json:"event_id"`
	Title     string                     `json:"title"`
	UpdatedBy string                     `json:"updated_by"`
	User      domain.UserBasic           `json:"user"`
	Changes   map[string]json.RawMessage `json:"changes"`
	Timestamp time.Time                  `json:"timestamp"`
}

type EventService struct {
	log    *slog.Logger
	tx     contracts.Transactor
	events domain.EventRepository
	bridge *Bridge
	now    func() time.Time
}

func NewEventService(log *slog.Logger, tx contracts.Transactor, events domain.EventRepository, bridge *Bridge) *EventService {
	return &EventService{log: log, tx: tx, events: events, bridge: bridge, now: time.Now}
}

func (s *EventService) RSVP(ctx context.Context, p *domain.Principal, ev *domain.Event, status domain.RSVPStatus, notes string) (*domain.EventAttendee, error) {
	ctx, span := tracer.Start(ctx, "EventService.RSVP", trace.WithAttributes(
		attribute.String("event_id", ev.ID.String()),
		attribute.String("status", string(status)),
	))
	defer span.End()

	notes = strings.TrimSpace(notes)
	switch {
	case !status.Valid():
		span.SetStatus(codes.Error, "invalid status")
		return nil, fmt.Errorf("%w: rsvp status %q", domain.ErrInvalidPayload, status)
	case utf8.RuneCountInString(notes) > maxNotesLength:
		span.SetStatus(codes.Error, "notes too long")
		return nil, fmt.Errorf("%w: notes exceed %d characters", domain.ErrInvalidPayload, maxNotesLength)
	}

	a := &domain.EventAttendee{
		EventID:     ev.ID,
		UserID:      p.ID,
		Status:      status,
		Notes:       notes,
		RespondedAt: s.now(),
	}
	err := s.tx.WithTx(ctx, func(txCtx context.Context) error {
		return s.events.UpsertAttendee(txCtx, a)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upsert attendee failed")
		s.log.ErrorContext(ctx, "events - rsvp - persist failed", logging.User(p.ID), logging.Err(err))
		return nil, err
	}

	_ = s.bridge.Publish(ctx, domain.EventRoom(ev.ID), domain.TagRSVPChanged, RSVPPayload{
		EventID:     ev.ID.String(),
		UserID:      p.ID.String(),
		User:        p.Basic(),
		Status:      a.Status,
		Notes:       a.Notes,
		RespondedAt: a.RespondedAt,
	}, uuid.Nil)
	return a, nil
}

func (s *EventService) Update(ctx context.Context, p *domain.Principal, ev *domain.Event, in EventUpdate) (*domain.Event, error) {
	ctx, span := tracer.Start(ctx, "EventService.Update", trace.WithAttributes(
		attribute.String("event_id", ev.ID.String()),
	))
	defer span.End()

	if ev.OrganizerID != p.ID {
		span.SetStatus(codes.Error, "not organizer")
		return nil, fmt.Errorf("%w: only the organizer can update the event", domain.ErrForbidden)
	}

	updated := *ev
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" || utf8.RuneCountInString(title) > maxTitleLength {
			span.SetStatus(codes.Error, "invalid title")
			return nil, fmt.Errorf("%w: title", domain.ErrInvalidPayload)
		}
		updated.Title = title
		err := s.tx.WithTx(ctx, func(txCtx context.Context) error {
			return s.events.UpdateEvent(txCtx, &updated)
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "update event failed")
			s.log.ErrorContext(ctx, "events - update - persist failed", logging.User(p.ID), logging.Err(err))
			return nil, err
		}
	}

	changes := in.Changes
	if changes == nil {
		changes = map[string]json.RawMessage{}
	}
	if in.Title != nil {
		if _, ok := changes["title"]; !ok {
			raw, _ := json.Marshal(updated.Title)
			changes["title"] = raw
		}
	}
	span.SetAttributes(attribute.Int("changes", len(changes)))

	_ = s.bridge.Publish(ctx, domain.EventRoom(ev.ID), domain.TagEventModified, EventModifiedPayload{
		EventID:   ev.ID.String(),
		Title:     updated.Title,
		UpdatedBy: p.ID.String(),
		User:      p.Basic(),
		Changes:   changes,
		Timestamp: s.now(),
	}, uuid.Nil)
	return &updated, nil
}
