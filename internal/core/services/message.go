package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"meshup/internal/core/contracts"
	"meshup/internal/core/domain"
	"meshup/pkg/logging"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxEmojiLength = 64

type IMessageService interface {
	// PostChannelMessage persists then broadcasts message.created to the channel room.
	PostChannelMessage(ctx context.Context, p *domain.Principal, ch *domain.Channel, in PostMessage) (*domain.Message, error)
	PostDirectMessage(ctx context.Context, p *domain.Principal, dm *domain.DirectMessage, content string) (*domain.DirectMessageMessage, error)
	React(ctx context.Context, p *domain.Principal, ch *domain.Channel, in ReactionInput) error
}

type PostMessage struct {
	Content  string
	ReplyTo  *uuid.UUID
	ThreadID *uuid.UUID
}

type ReactionInput struct {
	MessageID uuid.UUID
	Emoji     string
	Action    domain.ReactionAction
}

type ReactionPayload struct {
	MessageID string                `json:"message_id"`
	UserID    string                `json:"user_id"`
	Emoji     string                `json:"emoji"`
	Action    domain.ReactionAction `json:"action"`
}

type MessageService struct {
	log       *slog.Logger
	tx        contracts.Transactor
	messages  domain.MessageRepository
	dms       domain.DirectMessageRepository
	cooldown  contracts.Cooldown
	bridge    *Bridge
	maxLength int
}

func NewMessageService(
	log *slog.Logger,
	tx contracts.Transactor,
	messages domain.MessageRepository,
	dms domain.DirectMessageRepository,
	cooldown contracts.Cooldown,
	bridge *Bridge,
	maxLength int,
) *MessageService {
	return &MessageService{
		log:       log,
		tx:        tx,
		messages:  messages,
		dms:       dms,
		cooldown:  cooldown,
		bridge:    bridge,
		maxLength: maxLength,
	}
}

func (s *MessageService) content(raw string) (string, error) {
	c := strings.TrimSpace(raw)
	if c == "" {
		return "", fmt.Errorf("%w: content is empty", domain.ErrInvalidPayload)
	}
	if n := utf8.RuneCountInString(c); n > s.maxLength {
		return "", fmt.Errorf("%w: content exceeds %d characters", domain.ErrInvalidPayload, s.maxLength)
	}
	return c, nil
}

func (s *MessageService) PostChannelMessage(ctx context.Context, p *domain.Principal, ch *domain.Channel, in PostMessage) (*domain.Message, error) {
	ctx, span := tracer.Start(ctx, "MessageService.PostChannelMessage", trace.WithAttributes(
		attribute.String("channel_id", ch.ID.String()),
		attribute.String("user_id", p.ID.String()),
	))
	defer span.End()

	content, err := s.content(in.Content)
	if err != nil {
		span.SetStatus(codes.Error, "invalid content")
		return nil, err
	}

	if ch.SlowmodeDelay > 0 {
		key := fmt.Sprintf("slowmode:%s:%s", ch.ID, p.ID)
		ok, err := s.cooldown.Acquire(ctx, key, ch.SlowmodeDelay)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "cooldown failed")
			s.log.ErrorContext(ctx, "messages - slowmode - cooldown failed", logging.User(p.ID), logging.Err(err))
			return nil, err
		}
		if !ok {
			span.SetStatus(codes.Error, "slowmode")
			return nil, fmt.Errorf("%w: wait %s between messages", domain.ErrSlowmode, ch.SlowmodeDelay)
		}
	}

	msg := &domain.Message{
		ID:        uuid.New(),
		ChannelID: ch.ID,
		AuthorID:  p.ID,
		Author:    p.Basic(),
		Content:   content,
		ReplyTo:   in.ReplyTo,
		ThreadID:  in.ThreadID,
	}
	err = s.tx.WithTx(ctx, func(txCtx context.Context) error {
		if in.ReplyTo != nil {
			if err := s.sameChannel(txCtx, *in.ReplyTo, ch.ID); err != nil {
				return err
			}
		}
		return s.messages.CreateMessage(txCtx, msg)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create message failed")
		s.log.ErrorContext(ctx, "messages - post - persist failed", logging.User(p.ID), logging.Err(err))
		return nil, err
	}

	_ = s.bridge.Publish(ctx, domain.ChannelRoom(ch.ID), domain.TagMessageCreated, msg, uuid.Nil)
	return msg, nil
}

// sameChannel rejects replies pointing at another channel's messages.
func (s *MessageService) sameChannel(ctx context.Context, messageID, channelID uuid.UUID) error {
	ref, err := s.messages.GetMessage(ctx, messageID)
	if errors.Is(err, domain.ErrMessageNotFound) {
		return fmt.Errorf("%w: reply_to does not exist", domain.ErrInvalidPayload)
	}
	if err != nil {
		return err
	}
	if ref.ChannelID != channelID {
		return fmt.Errorf("%w: reply_to belongs to another channel", domain.ErrInvalidPayload)
	}
	return nil
}

func (s *MessageService) PostDirectMessage(ctx context.Context, p *domain.Principal, dm *domain.DirectMessage, raw string) (*domain.DirectMessageMessage, error) {
	ctx, span := tracer.Start(ctx, "MessageService.PostDirectMessage", trace.WithAttributes(
		attribute.String("dm_id", dm.ID.String()),
		attribute.String("user_id", p.ID.String()),
	))
	defer span.End()

	if !dm.HasParticipant(p.ID) {
		span.SetStatus(codes.Error, "not a participant")
		return nil, fmt.Errorf("%w: not a participant", domain.ErrForbidden)
	}
	content, err := s.content(raw)
	if err != nil {
		span.SetStatus(codes.Error, "invalid content")
		return nil, err
	}

	msg := &domain.DirectMessageMessage{
		ID:       uuid.New(),
		DMID:     dm.ID,
		AuthorID: p.ID,
		Author:   p.Basic(),
		Content:  content,
	}
	err = s.tx.WithTx(ctx, func(txCtx context.Context) error {
		return s.dms.CreateDirectMessageMessage(txCtx, msg)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create direct message failed")
		s.log.ErrorContext(ctx, "messages - post dm - persist failed", logging.User(p.ID), logging.Err(err))
		return nil, err
	}

	_ = s.bridge.Publish(ctx, domain.DMRoom(dm.ID), domain.TagMessageCreated, msg, uuid.Nil)
	return msg, nil
}

func (s *MessageService) React(ctx context.Context, p *domain.Principal, ch *domain.Channel, in ReactionInput) error {
	ctx, span := tracer.Start(ctx, "MessageService.React", trace.WithAttributes(
		attribute.String("message_id", in.MessageID.String()),
		attribute.String("action", string(in.Action)),
	))
	defer span.End()

	emoji := strings.TrimSpace(in.Emoji)
	switch {
	case in.Action != domain.ReactionAdd && in.Action != domain.ReactionRemove:
		return fmt.Errorf("%w: unknown reaction action %q", domain.ErrInvalidPayload, in.Action)
	case emoji == "" || utf8.RuneCountInString(emoji) > maxEmojiLength:
		return fmt.Errorf("%w: emoji", domain.ErrInvalidPayload)
	}

	r := domain.Reaction{MessageID: in.MessageID, UserID: p.ID, Emoji: emoji}
	err := s.tx.WithTx(ctx, func(txCtx context.Context) error {
		msg, err := s.messages.GetMessage(txCtx, in.MessageID)
		if err != nil {
			return err
		}
		if msg.ChannelID != ch.ID {
			return domain.ErrMessageNotFound
		}
		if in.Action == domain.ReactionAdd {
			return s.messages.AddReaction(txCtx, r)
		}
		return s.messages.RemoveReaction(txCtx, r)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reaction failed")
		s.log.DebugContext(ctx, "messages - react - failed", logging.User(p.ID), logging.Err(err))
		return err
	}

	return s.bridge.Publish(ctx, domain.ChannelRoom(ch.ID), domain.TagReaction, ReactionPayload{
		MessageID: in.MessageID.String(),
		UserID:    p.ID.String(),
		Emoji:     emoji,
		Action:    in.Action,
	}, uuid.Nil)
}
