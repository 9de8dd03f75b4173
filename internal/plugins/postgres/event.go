package postgres

import (
	"context"
	"database/sql"

	"meshup/internal/core/domain"

	"github.com/google/uuid"
)

type EventRepo struct {
	db *sql.DB
}

func NewEventRepo(db *sql.DB) *EventRepo {
	return &EventRepo{db: db}
}

func (r *EventRepo) GetEvent(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	var e domain.Event
	exec := GetExecutor(ctx, r.db)
	err := exec.QueryRowContext(ctx, `
		SELECT id, server_id, organizer_id, title FROM events WHERE id = $1
	`, id).Scan(&e.ID, &e.ServerID, &e.OrganizerID, &e.Title)
	if err != nil {
		return nil, notFound(err, domain.ErrEventNotFound)
	}
	return &e, nil
}

func (r *EventRepo) UpdateEvent(ctx context.Context, e *domain.Event) error {
	exec := GetExecutor(ctx, r.db)
	res, err := exec.ExecContext(ctx, `
		UPDATE events SET title = $2, updated_at = now() WHERE id = $1
	`, e.ID, e.Title)
	if err != nil {
		return err
	}
	return affected(res, domain.ErrEventNotFound)
}

func (r *EventRepo) UpsertAttendee(ctx context.Context, a *domain.EventAttendee) error {
	exec := GetExecutor(ctx, r.db)
	return exec.QueryRowContext(ctx, `
		INSERT INTO event_attendees (event_id, user_id, status, notes, responded_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (event_id, user_id)
		DO UPDATE SET status = EXCLUDED.status, notes = EXCLUDED.notes, responded_at = now()
		RETURNING responded_at
	`, a.EventID, a.UserID, string(a.Status), a.Notes).Scan(&a.RespondedAt)
}
