package postgres

import (
	"context"
	"database/sql"

	"meshup/internal/core/domain"

	"github.com/google/uuid"
)

type DirectMessageRepo struct {
	db *sql.DB
}

func NewDirectMessageRepo(db *sql.DB) *DirectMessageRepo {
	return &DirectMessageRepo{db: db}
}

func (r *DirectMessageRepo) GetDirectMessage(ctx context.Context, id uuid.UUID) (*domain.DirectMessage, error) {
	exec := GetExecutor(ctx, r.db)
	var exists bool
	if err := exec.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM direct_messages WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrDMNotFound
	}

	rows, err := exec.QueryContext(ctx, `
		SELECT user_id FROM direct_message_participants WHERE dm_id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	dm := &domain.DirectMessage{ID: id}
	for rows.Next() {
		var uid uuid.UUID
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		dm.Participants = append(dm.Participants, uid)
	}
	return dm, rows.Err()
}

func (r *DirectMessageRepo) CreateDirectMessageMessage(ctx context.Context, m *domain.DirectMessageMessage) error {
	exec := GetExecutor(ctx, r.db)
	return exec.QueryRowContext(ctx, `
		INSERT INTO direct_message_messages (id, dm_id, author_id, content)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, m.ID, m.DMID, m.AuthorID, m.Content).Scan(&m.CreatedAt)
}
