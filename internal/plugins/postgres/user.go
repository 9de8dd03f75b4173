package postgres

import (
	"context"
	"database/sql"

	"meshup/internal/core/domain"

	"github.com/google/uuid"
)

type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

/*
	type UserRepository interface {
		GetPrincipal(ctx context.Context, id uuid.UUID) (*Principal, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status UserStatus) error
	}
*/

func (r *UserRepo) GetPrincipal(ctx context.Context, id uuid.UUID) (*domain.Principal, error) {
	var p domain.Principal
	var display, avatar sql.NullString
	exec := GetExecutor(ctx, r.db)
	err := exec.QueryRowContext(ctx, `
		SELECT id, username, display_name, avatar, is_admin
		FROM users
		WHERE id = $1 AND is_active
	`, id).Scan(&p.ID, &p.Username, &display, &avatar, &p.IsAdmin)
	if err != nil {
		return nil, notFound(err, domain.ErrUserNotFound)
	}
	p.Display = display.String
	p.Avatar = avatar.String
	return &p, nil
}

func (r *UserRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.UserStatus) error {
	exec := GetExecutor(ctx, r.db)
	res, err := exec.ExecContext(ctx, `
		UPDATE users
		SET status = $2, last_seen_at = now()
		WHERE id = $1
	`, id, string(status))
	if err != nil {
		return err
	}
	return affected(res, domain.ErrUserNotFound)
}
