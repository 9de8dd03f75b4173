package postgres

import (
	"context"
	"database/sql"

	"meshup/internal/core/domain"

	"github.com/google/uuid"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

/*
	type MessageRepository interface {
		CreateMessage(ctx context.Context, m *Message) error
		GetMessage(ctx context.Context, id uuid.UUID) (*Message, error)
		AddReaction(ctx context.Context, r Reaction) error
		RemoveReaction(ctx context.Context, r Reaction) error
	}
*/

func (r *MessageRepo) CreateMessage(ctx context.Context, m *domain.Message) error {
	exec := GetExecutor(ctx, r.db)
	return exec.QueryRowContext(ctx, `
		INSERT INTO messages (id, channel_id, author_id, content, reply_to, thread_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, m.ID, m.ChannelID, m.AuthorID, m.Content, m.ReplyTo, m.ThreadID).Scan(&m.CreatedAt)
}

func (r *MessageRepo) GetMessage(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	var m domain.Message
	exec := GetExecutor(ctx, r.db)
	err := exec.QueryRowContext(ctx, `
		SELECT id, channel_id, author_id, content, reply_to, thread_id, edited, created_at
		FROM messages
		WHERE id = $1 AND NOT deleted
	`, id).Scan(&m.ID, &m.ChannelID, &m.AuthorID, &m.Content, &m.ReplyTo, &m.ThreadID, &m.Edited, &m.CreatedAt)
	if err != nil {
		return nil, notFound(err, domain.ErrMessageNotFound)
	}
	return &m, nil
}

func (r *MessageRepo) AddReaction(ctx context.Context, re domain.Reaction) error {
	exec := GetExecutor(ctx, r.db)
	_, err := exec.ExecContext(ctx, `
		INSERT INTO message_reactions (message_id, user_id, emoji)
		VALUES ($1, $2, $3)
		ON CONFLICT (message_id, user_id, emoji) DO NOTHING
	`, re.MessageID, re.UserID, re.Emoji)
	return err
}

func (r *MessageRepo) RemoveReaction(ctx context.Context, re domain.Reaction) error {
	exec := GetExecutor(ctx, r.db)
	_, err := exec.ExecContext(ctx, `
		DELETE FROM message_reactions
		WHERE message_id = $1 AND user_id = $2 AND emoji = $3
	`, re.MessageID, re.UserID, re.Emoji)
	return err
}
