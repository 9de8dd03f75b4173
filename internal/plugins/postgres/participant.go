package postgres

import (
	"context"
	"time"

	"meshup/internal/core/domain"

	"github.com/google/uuid"
)

// Participant, invitation and screen share rows of CallRepo.

const participantColumns = `
	id, call_id, user_id, peer_id, audio_state, video_state, screen_share_state, joined_at, left_at`

func scanParticipant(row scanner) (*domain.CallParticipant, error) {
	var p domain.CallParticipant
	err := row.Scan(&p.ID, &p.CallID, &p.UserID, &p.PeerID, &p.AudioState, &p.VideoState, &p.ScreenShareState, &p.JoinedAt, &p.LeftAt)
	if err != nil {
		return nil, notFound(err, domain.ErrParticipantNotFound)
	}
	return &p, nil
}

func (r *CallRepo) GetParticipant(ctx context.Context, callID, userID uuid.UUID) (*domain.CallParticipant, error) {
	exec := GetExecutor(ctx, r.db)
	return scanParticipant(exec.QueryRowContext(ctx, `
		SELECT `+participantColumns+`
		FROM call_participants
		WHERE call_id = $1 AND user_id = $2
	`, callID, userID))
}

func (r *CallRepo) CreateParticipant(ctx context.Context, p *domain.CallParticipant) error {
	exec := GetExecutor(ctx, r.db)
	return exec.QueryRowContext(ctx, `
		INSERT INTO call_participants (id, call_id, user_id, peer_id, audio_state, video_state, screen_share_state)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING joined_at
	`, p.ID, p.CallID, p.UserID, p.PeerID, string(p.AudioState), string(p.VideoState), string(p.ScreenShareState)).
		Scan(&p.JoinedAt)
}

func (r *CallRepo) UpdateParticipant(ctx context.Context, p *domain.CallParticipant) error {
	exec := GetExecutor(ctx, r.db)
	res, err := exec.ExecContext(ctx, `
		UPDATE call_participants
		SET peer_id = $2, audio_state = $3, video_state = $4, screen_share_state = $5,
		    joined_at = $6, left_at = $7
		WHERE id = $1
	`, p.ID, p.PeerID, string(p.AudioState), string(p.VideoState), string(p.ScreenShareState), p.JoinedAt, p.LeftAt)
	if err != nil {
		return err
	}
	return affected(res, domain.ErrParticipantNotFound)
}

func (r *CallRepo) CountOpenParticipants(ctx context.Context, callID uuid.UUID) (int, error) {
	var n int
	exec := GetExecutor(ctx, r.db)
	err := exec.QueryRowContext(ctx, `
		SELECT count(*) FROM call_participants WHERE call_id = $1 AND left_at IS NULL
	`, callID).Scan(&n)
	return n, err
}

func (r *CallRepo) CountParticipants(ctx context.Context, callID uuid.UUID) (int, error) {
	var n int
	exec := GetExecutor(ctx, r.db)
	err := exec.QueryRowContext(ctx, `SELECT count(*) FROM call_participants WHERE call_id = $1`, callID).Scan(&n)
	return n, err
}

func (r *CallRepo) CloseOpenParticipants(ctx context.Context, callID uuid.UUID, at time.Time) (int, error) {
	exec := GetExecutor(ctx, r.db)
	res, err := exec.ExecContext(ctx, `
		UPDATE call_participants SET left_at = $2 WHERE call_id = $1 AND left_at IS NULL
	`, callID, at)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *CallRepo) ListParticipants(ctx context.Context, callID uuid.UUID, openOnly bool) ([]domain.CallParticipant, error) {
	exec := GetExecutor(ctx, r.db)
	rows, err := exec.QueryContext(ctx, `
		SELECT `+participantColumns+`
		FROM call_participants
		WHERE call_id = $1 AND (NOT $2 OR left_at IS NULL)
		ORDER BY joined_at
	`, callID, openOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CallParticipant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

const invitationColumns = `id, call_id, inviter_id, invitee_id, status, created_at, responded_at, response_time_seconds`

func scanInvitation(row scanner) (*domain.CallInvitation, error) {
	var inv domain.CallInvitation
	err := row.Scan(&inv.ID, &inv.CallID, &inv.InviterID, &inv.InviteeID, &inv.Status, &inv.CreatedAt, &inv.RespondedAt, &inv.ResponseTimeSeconds)
	if err != nil {
		return nil, notFound(err, domain.ErrInvitationNotFound)
	}
	return &inv, nil
}

func (r *CallRepo) CreateInvitation(ctx context.Context, inv *domain.CallInvitation) error {
	exec := GetExecutor(ctx, r.db)
	return exec.QueryRowContext(ctx, `
		INSERT INTO call_invitations (id, call_id, inviter_id, invitee_id, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (call_id, invitee_id) DO UPDATE SET status = EXCLUDED.status
		RETURNING created_at
	`, inv.ID, inv.CallID, inv.InviterID, inv.InviteeID, string(inv.Status)).Scan(&inv.CreatedAt)
}

func (r *CallRepo) GetInvitation(ctx context.Context, callID, inviteeID uuid.UUID) (*domain.CallInvitation, error) {
	exec := GetExecutor(ctx, r.db)
	return scanInvitation(exec.QueryRowContext(ctx, `
		SELECT `+invitationColumns+` FROM call_invitations WHERE call_id = $1 AND invitee_id = $2
	`, callID, inviteeID))
}

func (r *CallRepo) UpdateInvitation(ctx context.Context, inv *domain.CallInvitation) error {
	exec := GetExecutor(ctx, r.db)
	res, err := exec.ExecContext(ctx, `
		UPDATE call_invitations
		SET status = $2, responded_at = $3, response_time_seconds = $4
		WHERE id = $1
	`, inv.ID, string(inv.Status), inv.RespondedAt, inv.ResponseTimeSeconds)
	if err != nil {
		return err
	}
	return affected(res, domain.ErrInvitationNotFound)
}

func (r *CallRepo) ListInvitations(ctx context.Context, callID uuid.UUID) ([]domain.CallInvitation, error) {
	exec := GetExecutor(ctx, r.db)
	rows, err := exec.QueryContext(ctx, `
		SELECT `+invitationColumns+` FROM call_invitations WHERE call_id = $1 ORDER BY created_at
	`, callID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CallInvitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

const shareColumns = `
	id, call_id, participant_id, stream_id, status, width, height, frame_rate, bitrate, include_audio, started_at, ended_at`

func (r *CallRepo) GetActiveScreenShare(ctx context.Context, participantID uuid.UUID) (*domain.ScreenShare, error) {
	var s domain.ScreenShare
	exec := GetExecutor(ctx, r.db)
	err := exec.QueryRowContext(ctx, `
		SELECT `+shareColumns+`
		FROM screen_shares
		WHERE participant_id = $1 AND status IN ('active', 'paused')
		ORDER BY started_at DESC
		LIMIT 1
	`, participantID).Scan(
		&s.ID, &s.CallID, &s.ParticipantID, &s.StreamID, &s.Status, &s.Width, &s.Height,
		&s.FrameRate, &s.Bitrate, &s.IncludeAudio, &s.StartedAt, &s.EndedAt,
	)
	if err != nil {
		return nil, notFound(err, domain.ErrNoActiveShare)
	}
	return &s, nil
}

func (r *CallRepo) CreateScreenShare(ctx context.Context, s *domain.ScreenShare) error {
	exec := GetExecutor(ctx, r.db)
	return exec.QueryRowContext(ctx, `
		INSERT INTO screen_shares (
			id, call_id, participant_id, stream_id, status, width, height, frame_rate, bitrate, include_audio
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING started_at
	`, s.ID, s.CallID, s.ParticipantID, s.StreamID, string(s.Status), s.Width, s.Height, s.FrameRate, s.Bitrate, s.IncludeAudio).
		Scan(&s.StartedAt)
}

func (r *CallRepo) UpdateScreenShare(ctx context.Context, s *domain.ScreenShare) error {
	exec := GetExecutor(ctx, r.db)
	_, err := exec.ExecContext(ctx, `
		UPDATE screen_shares SET status = $2, ended_at = $3 WHERE id = $1
	`, s.ID, string(s.Status), s.EndedAt)
	return err
}
