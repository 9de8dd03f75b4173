package postgres

import (
	"context"
	"database/sql"
	"errors"

	"meshup/internal/core/domain"

	"github.com/google/uuid"
)

// ServerRepo reads collaboration spaces and answers membership lookups.
type ServerRepo struct {
	db *sql.DB
}

func NewServerRepo(db *sql.DB) *ServerRepo {
	return &ServerRepo{db: db}
}

func (r *ServerRepo) GetServer(ctx context.Context, id uuid.UUID) (*domain.Server, error) {
	var s domain.Server
	exec := GetExecutor(ctx, r.db)
	err := exec.QueryRowContext(ctx, `SELECT id, owner_id FROM servers WHERE id = $1`, id).
		Scan(&s.ID, &s.OwnerID)
	if err != nil {
		return nil, notFound(err, domain.ErrServerNotFound)
	}
	return &s, nil
}

// Membership treats the owner as a member. A missing row is a non-member.
func (r *ServerRepo) Membership(ctx context.Context, serverID, userID uuid.UUID) (domain.Membership, error) {
	var m domain.Membership
	exec := GetExecutor(ctx, r.db)
	err := exec.QueryRowContext(ctx, `
		SELECT
			(s.owner_id = $2 OR (sm.user_id IS NOT NULL AND NOT sm.is_banned)) AS is_member,
			COALESCE(sm.is_banned, false) AS is_banned
		FROM servers s
		LEFT JOIN server_members sm ON sm.server_id = s.id AND sm.user_id = $2
		WHERE s.id = $1
	`, serverID, userID).Scan(&m.IsMember, &m.IsBanned)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Membership{}, domain.ErrServerNotFound
	}
	return m, err
}
