package postgres

import (
	"context"
	"database/sql"
	"time"

	"meshup/internal/core/domain"

	"github.com/google/uuid"
)

type CallRepo struct {
	db *sql.DB
}

func NewCallRepo(db *sql.DB) *CallRepo {
	return &CallRepo{db: db}
}

const callColumns = `
	id, call_type, status, initiator_id, server_id, channel_id, dm_id,
	started_at, ended_at, total_participants, peak_participants, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanCall(row scanner) (*domain.CallSession, error) {
	var c domain.CallSession
	err := row.Scan(
		&c.ID, &c.Type, &c.Status, &c.InitiatorID, &c.ServerID, &c.ChannelID, &c.DMID,
		&c.StartedAt, &c.EndedAt, &c.TotalParticipants, &c.PeakParticipants, &c.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err, domain.ErrCallNotFound)
	}
	return &c, nil
}

func (r *CallRepo) CreateCall(ctx context.Context, c *domain.CallSession) error {
	exec := GetExecutor(ctx, r.db)
	return exec.QueryRowContext(ctx, `
		INSERT INTO call_sessions (
			id, call_type, status, initiator_id, server_id, channel_id, dm_id,
			total_participants, peak_participants
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`,
		c.ID, string(c.Type), string(c.Status), c.InitiatorID, c.ServerID, c.ChannelID, c.DMID,
		c.TotalParticipants, c.PeakParticipants,
	).Scan(&c.CreatedAt)
}

func (r *CallRepo) GetCall(ctx context.Context, id uuid.UUID) (*domain.CallSession, error) {
	exec := GetExecutor(ctx, r.db)
	return scanCall(exec.QueryRowContext(ctx, `SELECT `+callColumns+` FROM call_sessions WHERE id = $1`, id))
}

// LockCall holds the call row until the surrounding transaction ends.
func (r *CallRepo) LockCall(ctx context.Context, id uuid.UUID) (*domain.CallSession, error) {
	exec := GetExecutor(ctx, r.db)
	return scanCall(exec.QueryRowContext(ctx, `SELECT `+callColumns+` FROM call_sessions WHERE id = $1 FOR UPDATE`, id))
}

func (r *CallRepo) UpdateCall(ctx context.Context, c *domain.CallSession) error {
	exec := GetExecutor(ctx, r.db)
	res, err := exec.ExecContext(ctx, `
		UPDATE call_sessions
		SET status = $2, started_at = $3, ended_at = $4,
		    total_participants = $5, peak_participants = $6
		WHERE id = $1
	`, c.ID, string(c.Status), c.StartedAt, c.EndedAt, c.TotalParticipants, c.PeakParticipants)
	if err != nil {
		return err
	}
	return affected(res, domain.ErrCallNotFound)
}

func (r *CallRepo) ListRingingBefore(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	exec := GetExecutor(ctx, r.db)
	rows, err := exec.QueryContext(ctx, `
		SELECT id FROM call_sessions
		WHERE status = 'ringing' AND created_at < $1
		ORDER BY created_at
		LIMIT 500
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
