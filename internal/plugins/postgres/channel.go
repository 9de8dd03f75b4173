package postgres

import (
	"context"
	"database/sql"
	"time"

	"meshup/internal/core/domain"

	"github.com/google/uuid"
)

type ChannelRepo struct {
	db *sql.DB
}

func NewChannelRepo(db *sql.DB) *ChannelRepo {
	return &ChannelRepo{db: db}
}

func (r *ChannelRepo) GetChannel(ctx context.Context, id uuid.UUID) (*domain.Channel, error) {
	var c domain.Channel
	var slowmode int
	exec := GetExecutor(ctx, r.db)
	err := exec.QueryRowContext(ctx, `
		SELECT id, server_id, name, is_private, slowmode_delay
		FROM channels
		WHERE id = $1
	`, id).Scan(&c.ID, &c.ServerID, &c.Name, &c.IsPrivate, &slowmode)
	if err != nil {
		return nil, notFound(err, domain.ErrChannelNotFound)
	}
	c.SlowmodeDelay = time.Duration(slowmode) * time.Second
	return &c, nil
}
