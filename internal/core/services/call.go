package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"meshup/internal/core/contracts"
	"meshup/internal/core/domain"
	"meshup/internal/platform/metrics"
	"meshup/pkg/logging"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type ICallService interface {
	// Initiate creates the call, self-joins the initiator and invites recipients.
	Initiate(ctx context.Context, p *domain.Principal, in domain.InitiateCall) (*InitiateResult, error)
	// Join creates or reopens the caller's participant row with a fresh peer id.
	Join(ctx context.Context, p *domain.Principal, callID uuid.UUID) (*JoinResult, error)
	// Leave closes the caller's open row and ends the call when nobody is left.
	Leave(ctx context.Context, p *domain.Principal, callID uuid.UUID) (*LeaveResult, error)
	// End is initiator only. It closes every open row.
	End(ctx context.Context, p *domain.Principal, callID uuid.UUID) (*EndResult, error)
	UpdateMedia(ctx context.Context, p *domain.Principal, callID uuid.UUID, upd domain.MediaUpdate) (*domain.CallParticipant, error)
	StartScreenShare(ctx context.Context, p *domain.Principal, callID uuid.UUID, opts domain.ScreenShareOptions) (*domain.ScreenShare, error)
	StopScreenShare(ctx context.Context, p *domain.Principal, callID uuid.UUID) (*domain.ScreenShare, error)
	Decline(ctx context.Context, p *domain.Principal, callID uuid.UUID) (*domain.CallSession, error)
	// SetStatus toggles between active and on_hold.
	SetStatus(ctx context.Context, p *domain.Principal, callID uuid.UUID, to domain.CallStatus) (*domain.CallSession, error)
	// ExpireRinging moves calls ringing since before cutoff to missed.
	ExpireRinging(ctx context.Context, cutoff time.Time) (int, error)
	Participants(ctx context.Context, callID uuid.UUID) ([]domain.CallParticipant, error)
}

type InitiateResult struct {
	Call        *domain.CallSession
	Participant *domain.CallParticipant
	Invitations []domain.CallInvitation
}

type JoinResult struct {
	Call          *domain.CallSession
	Participant   *domain.CallParticipant
	AlreadyJoined bool
	Reopened      bool
}

type LeaveResult struct {
	Call        *domain.CallSession
	Participant *domain.CallParticipant
	Duration    time.Duration
	CallEnded   bool
}

type EndResult struct {
	Call             *domain.CallSession
	Duration         time.Duration
	ParticipantCount int
}

// CallService is the call state machine. Every mutation locks the call row
// inside a transaction; broadcasts go out after commit.
type CallService struct {
	log        *slog.Logger
	tx         contracts.Transactor
	calls      domain.CallRepository
	channels   domain.ChannelRepository
	dms        domain.DirectMessageRepository
	membership contracts.MembershipService
	bridge     *Bridge
	now        func() time.Time
}

func NewCallService(
	log *slog.Logger,
	tx contracts.Transactor,
	calls domain.CallRepository,
	channels domain.ChannelRepository,
	dms domain.DirectMessageRepository,
	membership contracts.MembershipService,
	bridge *Bridge,
) *CallService {
	return &CallService{
		log:        log,
		tx:         tx,
		calls:      calls,
		channels:   channels,
		dms:        dms,
		membership: membership,
		bridge:     bridge,
		now:        time.Now,
	}
}

func (s *CallService) fail(ctx context.Context, span trace.Span, op string, callID uuid.UUID, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, domain.ErrorCode(err))
	if domain.ErrorCode(err) == "internal" {
		s.log.ErrorContext(ctx, "calls - "+op+" - failed", logging.Call(callID), logging.Err(err))
	} else {
		s.log.DebugContext(ctx, "calls - "+op+" - rejected", logging.Call(callID), logging.Err(err))
	}
	return err
}

func (s *CallService) Initiate(ctx context.Context, p *domain.Principal, in domain.InitiateCall) (*InitiateResult, error) {
	ctx, span := tracer.Start(ctx, "CallService.Initiate", trace.WithAttributes(
		attribute.String("user_id", p.ID.String()),
		attribute.String("call_type", string(in.Type)),
	))
	defer span.End()

	if !in.Type.Valid() {
		return nil, s.fail(ctx, span, "initiate", uuid.Nil, fmt.Errorf("%w: call type %q", domain.ErrInvalidPayload, in.Type))
	}
	if err := s.resolveContext(ctx, p, &in); err != nil {
		return nil, s.fail(ctx, span, "initiate", uuid.Nil, err)
	}
	recipients := dedupe(in.Recipients, p.ID)

	call := &domain.CallSession{
		ID:                uuid.New(),
		Type:              in.Type,
		Status:            domain.CallInitiating,
		InitiatorID:       p.ID,
		ServerID:          in.ServerID,
		ChannelID:         in.ChannelID,
		DMID:              in.DMID,
		TotalParticipants: 1,
		PeakParticipants:  1,
	}
	if len(recipients) > 0 {
		call.Status = domain.CallRinging
	}
	self := newParticipant(call, p.ID)
	invitations := make([]domain.CallInvitation, 0, len(recipients))

	err := s.tx.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.calls.CreateCall(txCtx, call); err != nil {
			return err
		}
		if err := s.calls.CreateParticipant(txCtx, self); err != nil {
			return err
		}
		for _, r := range recipients {
			inv := domain.CallInvitation{
				ID:        uuid.New(),
				CallID:    call.ID,
				InviterID: p.ID,
				InviteeID: r,
				Status:    domain.InvitePending,
			}
			if err := s.calls.CreateInvitation(txCtx, &inv); err != nil {
				return err
			}
			invitations = append(invitations, inv)
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, span, "initiate", call.ID, err)
	}
	span.SetAttributes(attribute.String("call_id", call.ID.String()))
	metrics.CallTransitions.WithLabelValues(string(call.Status)).Inc()
	s.log.InfoContext(ctx, "calls - initiate - success", logging.Call(call.ID), logging.User(p.ID), "recipients", len(recipients))

	s.announce(ctx, call, p, recipients)
	return &InitiateResult{Call: call, Participant: self, Invitations: invitations}, nil
}

// resolveContext fills ServerID from the channel and checks the initiator may
// place a call there. DM calls with no recipients invite the other participants.
func (s *CallService) resolveContext(ctx context.Context, p *domain.Principal, in *domain.InitiateCall) error {
	switch {
	case in.ChannelID != nil:
		ch, err := s.channels.GetChannel(ctx, *in.ChannelID)
		if err != nil {
			return err
		}
		in.ServerID = &ch.ServerID
		return s.requireMember(ctx, p, ch.ServerID, domain.ErrForbidden)
	case in.DMID != nil:
		dm, err := s.dms.GetDirectMessage(ctx, *in.DMID)
		if err != nil {
			return err
		}
		if !dm.HasParticipant(p.ID) {
			return fmt.Errorf("%w: not a participant", domain.ErrForbidden)
		}
		if len(in.Recipients) == 0 {
			in.Recipients = dm.Participants
		}
		return nil
	case in.ServerID != nil:
		return s.requireMember(ctx, p, *in.ServerID, domain.ErrForbidden)
	}
	return fmt.Errorf("%w: call needs a channel, direct message or server", domain.ErrInvalidPayload)
}

func (s *CallService) requireMember(ctx context.Context, p *domain.Principal, serverID uuid.UUID, refusal error) error {
	if p.IsAdmin {
		return nil
	}
	m, err := s.membership.Membership(ctx, serverID, p.ID)
	if err != nil {
		return err
	}
	if !m.IsMember || m.IsBanned {
		return refusal
	}
	return nil
}

// announce publishes one call_invitation per recipient to the space presence
// room, and to the direct message room for DM calls.
func (s *CallService) announce(ctx context.Context, call *domain.CallSession, initiator *domain.Principal, recipients []uuid.UUID) {
	for _, r := range recipients {
		payload := CallInvitationPayload{
			CallID:      call.ID.String(),
			CallType:    call.Type,
			Initiator:   initiator.Basic(),
			RecipientID: r.String(),
		}
		if call.ServerID != nil {
			_ = s.bridge.Publish(ctx, domain.PresenceRoom(*call.ServerID), domain.TagCallInvitation, payload, uuid.Nil)
		}
		if call.DMID != nil {
			_ = s.bridge.Publish(ctx, domain.DMRoom(*call.DMID), domain.TagCallInvitation, payload, uuid.Nil)
		}
	}
}

func (s *CallService) Join(ctx context.Context, p *domain.Principal, callID uuid.UUID) (*JoinResult, error) {
	ctx, span := tracer.Start(ctx, "CallService.Join", trace.WithAttributes(
		attribute.String("call_id", callID.String()),
		attribute.String("user_id", p.ID.String()),
	))
	defer span.End()

	var res JoinResult
	var activated bool
	err := s.tx.WithTx(ctx, func(txCtx context.Context) error {
		call, err := s.calls.LockCall(txCtx, callID)
		if err != nil {
			return err
		}
		if call.Status.Terminal() {
			return domain.ErrCallInactive
		}
		now := s.now()

		if call.InitiatorID != p.ID {
			if err := s.acceptInvitation(txCtx, p, call, now); err != nil {
				return err
			}
		}

		part, err := s.calls.GetParticipant(txCtx, call.ID, p.ID)
		switch {
		case err == nil && part.Open():
			res.AlreadyJoined = true
		case err == nil:
			part.LeftAt = nil
			part.JoinedAt = now
			part.PeerID = domain.NewPeerID()
			part.ScreenShareState = domain.MediaInactive
			if err := s.calls.UpdateParticipant(txCtx, part); err != nil {
				return err
			}
			res.Reopened = true
		case errors.Is(err, domain.ErrParticipantNotFound):
			part = newParticipant(call, p.ID)
			if err := s.calls.CreateParticipant(txCtx, part); err != nil {
				return err
			}
		default:
			return err
		}

		if !res.AlreadyJoined {
			if call.Status == domain.CallRinging || call.Status == domain.CallInitiating {
				call.Status = domain.CallActive
				call.StartedAt = &now
				activated = true
			}
			open, err := s.calls.CountOpenParticipants(txCtx, call.ID)
			if err != nil {
				return err
			}
			if open > call.PeakParticipants {
				call.PeakParticipants = open
			}
			total, err := s.calls.CountParticipants(txCtx, call.ID)
			if err != nil {
				return err
			}
			if total > call.TotalParticipants {
				call.TotalParticipants = total
			}
			if err := s.calls.UpdateCall(txCtx, call); err != nil {
				return err
			}
		}
		res.Call = call
		res.Participant = part
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, span, "join", callID, err)
	}
	if activated {
		metrics.CallTransitions.WithLabelValues(string(domain.CallActive)).Inc()
	}
	if res.AlreadyJoined {
		return &res, nil
	}

	s.log.InfoContext(ctx, "calls - join - success", logging.Call(callID), logging.User(p.ID), "reopened", res.Reopened)
	_ = s.bridge.Publish(ctx, domain.CallRoom(callID), domain.TagParticipantJoined, ParticipantEventPayload{
		CallID:      callID.String(),
		Participant: NewParticipantView(res.Participant, p),
	}, uuid.Nil)
	return &res, nil
}

// acceptInvitation marks the caller's invitation accepted. Callers without one
// must be members of the call's space.
func (s *CallService) acceptInvitation(ctx context.Context, p *domain.Principal, call *domain.CallSession, now time.Time) error {
	inv, err := s.calls.GetInvitation(ctx, call.ID, p.ID)
	if errors.Is(err, domain.ErrInvitationNotFound) {
		if call.ServerID == nil {
			return domain.ErrNotInvited
		}
		return s.requireMember(ctx, p, *call.ServerID, domain.ErrNotInvited)
	}
	if err != nil {
		return err
	}
	if inv.Status == domain.InviteAccepted {
		return nil
	}
	rt := seconds(now.Sub(call.CreatedAt))
	inv.Status = domain.InviteAccepted
	inv.RespondedAt = &now
	inv.ResponseTimeSeconds = &rt
	return s.calls.UpdateInvitation(ctx, inv)
}

func (s *CallService) Leave(ctx context.Context, p *domain.Principal, callID uuid.UUID) (*LeaveResult, error) {
	ctx, span := tracer.Start(ctx, "CallService.Leave", trace.WithAttributes(
		attribute.String("call_id", callID.String()),
		attribute.String("user_id", p.ID.String()),
	))
	defer span.End()

	var res LeaveResult
	err := s.tx.WithTx(ctx, func(txCtx context.Context) error {
		call, err := s.calls.LockCall(txCtx, callID)
		if err != nil {
			return err
		}
		part, err := s.openParticipant(txCtx, callID, p.ID)
		if err != nil {
			return err
		}
		now := s.now()
		if err := s.endShare(txCtx, part, now); err != nil {
			return err
		}
		part.LeftAt = &now
		if err := s.calls.UpdateParticipant(txCtx, part); err != nil {
			return err
		}
		res.Duration = now.Sub(part.JoinedAt)

		open, err := s.calls.CountOpenParticipants(txCtx, callID)
		if err != nil {
			return err
		}
		if open == 0 && !call.Status.Terminal() {
			call.Status = domain.CallEnded
			call.EndedAt = &now
			if err := s.calls.UpdateCall(txCtx, call); err != nil {
				return err
			}
			res.CallEnded = true
		}
		res.Call = call
		res.Participant = part
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, span, "leave", callID, err)
	}

	s.log.InfoContext(ctx, "calls - leave - success", logging.Call(callID), logging.User(p.ID), "call_ended", res.CallEnded)
	room := domain.CallRoom(callID)
	_ = s.bridge.Publish(ctx, room, domain.TagParticipantLeft, ParticipantEventPayload{
		CallID:      callID.String(),
		Participant: NewParticipantView(res.Participant, p),
	}, uuid.Nil)
	if res.CallEnded {
		metrics.CallTransitions.WithLabelValues(string(domain.CallEnded)).Inc()
		_ = s.bridge.Publish(ctx, room, domain.TagCallEnded, CallEndedPayload{
			CallID:          callID.String(),
			Status:          domain.CallEnded,
			DurationSeconds: seconds(res.Call.Duration(s.now())),
		}, uuid.Nil)
	}
	return &res, nil
}

func (s *CallService) End(ctx context.Context, p *domain.Principal, callID uuid.UUID) (*EndResult, error) {
	ctx, span := tracer.Start(ctx, "CallService.End", trace.WithAttributes(
		attribute.String("call_id", callID.String()),
		attribute.String("user_id", p.ID.String()),
	))
	defer span.End()

	var res EndResult
	err := s.tx.WithTx(ctx, func(txCtx context.Context) error {
		call, err := s.calls.LockCall(txCtx, callID)
		if err != nil {
			return err
		}
		if call.InitiatorID != p.ID {
			return fmt.Errorf("%w: only the initiator can end the call", domain.ErrForbidden)
		}
		if call.Status.Terminal() {
			return domain.ErrAlreadyEnded
		}
		now := s.now()
		if _, err := s.calls.CloseOpenParticipants(txCtx, callID, now); err != nil {
			return err
		}
		call.Status = domain.CallEnded
		call.EndedAt = &now
		if err := s.calls.UpdateCall(txCtx, call); err != nil {
			return err
		}
		count, err := s.calls.CountParticipants(txCtx, callID)
		if err != nil {
			return err
		}
		res.Call = call
		res.Duration = call.Duration(now)
		res.ParticipantCount = count
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, span, "end", callID, err)
	}

	metrics.CallTransitions.WithLabelValues(string(domain.CallEnded)).Inc()
	s.log.InfoContext(ctx, "calls - end - success", logging.Call(callID), logging.User(p.ID), "duration", res.Duration)
	_ = s.bridge.Publish(ctx, domain.CallRoom(callID), domain.TagCallEnded, CallEndedPayload{
		CallID:          callID.String(),
		Status:          domain.CallEnded,
		DurationSeconds: seconds(res.Duration),
		EndedBy:         p.ID.String(),
	}, uuid.Nil)
	return &res, nil
}

func (s *CallService) openParticipant(ctx context.Context, callID, userID uuid.UUID) (*domain.CallParticipant, error) {
	part, err := s.calls.GetParticipant(ctx, callID, userID)
	if errors.Is(err, domain.ErrParticipantNotFound) {
		return nil, domain.ErrNotInCall
	}
	if err != nil {
		return nil, err
	}
	if !part.Open() {
		return nil, domain.ErrNotInCall
	}
	return part, nil
}

// endShare closes the participant's share, if any, when they drop out of the call.
func (s *CallService) endShare(ctx context.Context, part *domain.CallParticipant, now time.Time) error {
	share, err := s.calls.GetActiveScreenShare(ctx, part.ID)
	if errors.Is(err, domain.ErrNoActiveShare) {
		return nil
	}
	if err != nil {
		return err
	}
	share.Status = domain.ShareEnded
	share.EndedAt = &now
	part.ScreenShareState = domain.MediaInactive
	return s.calls.UpdateScreenShare(ctx, share)
}

func (s *CallService) UpdateMedia(ctx context.Context, p *domain.Principal, callID uuid.UUID, upd domain.MediaUpdate) (*domain.CallParticipant, error) {
	ctx, span := tracer.Start(ctx, "CallService.UpdateMedia", trace.WithAttributes(
		attribute.String("call_id", callID.String()),
		attribute.String("user_id", p.ID.String()),
	))
	defer span.End()

	if upd.Empty() || !upd.Valid() {
		return nil, s.fail(ctx, span, "update media", callID, fmt.Errorf("%w: media state", domain.ErrInvalidPayload))
	}
	var part *domain.CallParticipant
	err := s.tx.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		if part, err = s.openParticipant(txCtx, callID, p.ID); err != nil {
			return err
		}
		upd.Apply(part)
		return s.calls.UpdateParticipant(txCtx, part)
	})
	if err != nil {
		return nil, s.fail(ctx, span, "update media", callID, err)
	}

	_ = s.bridge.Publish(ctx, domain.CallRoom(callID), domain.TagMediaState, ParticipantEventPayload{
		CallID:      callID.String(),
		Participant: NewParticipantView(part, p),
	}, uuid.Nil)
	return part, nil
}

func (s *CallService) StartScreenShare(ctx context.Context, p *domain.Principal, callID uuid.UUID, opts domain.ScreenShareOptions) (*domain.ScreenShare, error) {
	ctx, span := tracer.Start(ctx, "CallService.StartScreenShare", trace.WithAttributes(
		attribute.String("call_id", callID.String()),
		attribute.String("user_id", p.ID.String()),
	))
	defer span.End()

	opts = opts.WithDefaults()
	var share *domain.ScreenShare
	var part *domain.CallParticipant
	err := s.tx.WithTx(ctx, func(txCtx context.Context) error {
		call, err := s.calls.LockCall(txCtx, callID)
		if err != nil {
			return err
		}
		if call.Status.Terminal() {
			return domain.ErrCallInactive
		}
		if part, err = s.openParticipant(txCtx, callID, p.ID); err != nil {
			return err
		}
		_, err = s.calls.GetActiveScreenShare(txCtx, part.ID)
		switch {
		case err == nil:
			return domain.ErrAlreadySharing
		case !errors.Is(err, domain.ErrNoActiveShare):
			return err
		}
		share = &domain.ScreenShare{
			ID:            uuid.New(),
			CallID:        callID,
			ParticipantID: part.ID,
			StreamID:      "stream_" + uuid.NewString(),
			Status:        domain.ShareActive,
			Width:         opts.Width,
			Height:        opts.Height,
			FrameRate:     opts.FrameRate,
			Bitrate:       opts.Bitrate,
			IncludeAudio:  opts.IncludeAudio,
		}
		if err := s.calls.CreateScreenShare(txCtx, share); err != nil {
			return err
		}
		part.ScreenShareState = domain.MediaActive
		return s.calls.UpdateParticipant(txCtx, part)
	})
	if err != nil {
		return nil, s.fail(ctx, span, "start screen share", callID, err)
	}

	_ = s.bridge.Publish(ctx, domain.CallRoom(callID), domain.TagScreenShareStarted, ScreenSharePayload{
		CallID:       callID.String(),
		UserID:       p.ID.String(),
		PeerID:       part.PeerID,
		StreamID:     share.StreamID,
		Resolution:   fmt.Sprintf("%dx%d", share.Width, share.Height),
		FrameRate:    share.FrameRate,
		Bitrate:      share.Bitrate,
		IncludeAudio: share.IncludeAudio,
	}, uuid.Nil)
	return share, nil
}

func (s *CallService) StopScreenShare(ctx context.Context, p *domain.Principal, callID uuid.UUID) (*domain.ScreenShare, error) {
	ctx, span := tracer.Start(ctx, "CallService.StopScreenShare", trace.WithAttributes(
		attribute.String("call_id", callID.String()),
		attribute.String("user_id", p.ID.String()),
	))
	defer span.End()

	var share *domain.ScreenShare
	var part *domain.CallParticipant
	err := s.tx.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		if part, err = s.openParticipant(txCtx, callID, p.ID); err != nil {
			return err
		}
		if share, err = s.calls.GetActiveScreenShare(txCtx, part.ID); err != nil {
			return err
		}
		now := s.now()
		share.Status = domain.ShareEnded
		share.EndedAt = &now
		if err := s.calls.UpdateScreenShare(txCtx, share); err != nil {
			return err
		}
		part.ScreenShareState = domain.MediaInactive
		return s.calls.UpdateParticipant(txCtx, part)
	})
	if err != nil {
		return nil, s.fail(ctx, span, "stop screen share", callID, err)
	}

	_ = s.bridge.Publish(ctx, domain.CallRoom(callID), domain.TagScreenShareEnded, ScreenSharePayload{
		CallID:   callID.String(),
		UserID:   p.ID.String(),
		PeerID:   part.PeerID,
		StreamID: share.StreamID,
	}, uuid.Nil)
	return share, nil
}

func (s *CallService) Decline(ctx context.Context, p *domain.Principal, callID uuid.UUID) (*domain.CallSession, error) {
	ctx, span := tracer.Start(ctx, "CallService.Decline", trace.WithAttributes(
		attribute.String("call_id", callID.String()),
		attribute.String("user_id", p.ID.String()),
	))
	defer span.End()

	var call *domain.CallSession
	var terminal bool
	err := s.tx.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		if call, err = s.calls.LockCall(txCtx, callID); err != nil {
			return err
		}
		if call.Status.Terminal() {
			return domain.ErrCallInactive
		}
		inv, err := s.calls.GetInvitation(txCtx, callID, p.ID)
		if errors.Is(err, domain.ErrInvitationNotFound) {
			return domain.ErrNotInvited
		}
		if err != nil {
			return err
		}
		if inv.Status != domain.InvitePending {
			return fmt.Errorf("%w: invitation already %s", domain.ErrInvalidTransition, inv.Status)
		}
		now := s.now()
		rt := seconds(now.Sub(call.CreatedAt))
		inv.Status = domain.InviteDeclined
		inv.RespondedAt = &now
		inv.ResponseTimeSeconds = &rt
		if err := s.calls.UpdateInvitation(txCtx, inv); err != nil {
			return err
		}

		if call.Status != domain.CallRinging {
			return nil
		}
		invs, err := s.calls.ListInvitations(txCtx, callID)
		if err != nil {
			return err
		}
		for _, other := range invs {
			if other.Status != domain.InviteDeclined {
				return nil
			}
		}
		if _, err := s.calls.CloseOpenParticipants(txCtx, callID, now); err != nil {
			return err
		}
		call.Status = domain.CallDeclined
		call.EndedAt = &now
		terminal = true
		return s.calls.UpdateCall(txCtx, call)
	})
	if err != nil {
		return nil, s.fail(ctx, span, "decline", callID, err)
	}

	room := domain.CallRoom(callID)
	if terminal {
		metrics.CallTransitions.WithLabelValues(string(domain.CallDeclined)).Inc()
		_ = s.bridge.Publish(ctx, room, domain.TagCallEnded, CallEndedPayload{
			CallID:  callID.String(),
			Status:  domain.CallDeclined,
			EndedBy: p.ID.String(),
		}, uuid.Nil)
		return call, nil
	}
	_ = s.bridge.Publish(ctx, room, domain.TagCallStatus, CallStatusPayload{
		CallID:  callID.String(),
		Status:  call.Status,
		ActorID: p.ID.String(),
	}, uuid.Nil)
	return call, nil
}

func (s *CallService) SetStatus(ctx context.Context, p *domain.Principal, callID uuid.UUID, to domain.CallStatus) (*domain.CallSession, error) {
	ctx, span := tracer.Start(ctx, "CallService.SetStatus", trace.WithAttributes(
		attribute.String("call_id", callID.String()),
		attribute.String("to", string(to)),
	))
	defer span.End()

	var call *domain.CallSession
	err := s.tx.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		if call, err = s.calls.LockCall(txCtx, callID); err != nil {
			return err
		}
		if call.Status.Terminal() {
			return domain.ErrCallInactive
		}
		if _, err := s.openParticipant(txCtx, callID, p.ID); err != nil {
			return err
		}
		legal := (call.Status == domain.CallActive && to == domain.CallOnHold) ||
			(call.Status == domain.CallOnHold && to == domain.CallActive)
		if !legal {
			return fmt.Errorf("%w: %s to %s", domain.ErrInvalidTransition, call.Status, to)
		}
		call.Status = to
		return s.calls.UpdateCall(txCtx, call)
	})
	if err != nil {
		return nil, s.fail(ctx, span, "set status", callID, err)
	}

	metrics.CallTransitions.WithLabelValues(string(to)).Inc()
	_ = s.bridge.Publish(ctx, domain.CallRoom(callID), domain.TagCallStatus, CallStatusPayload{
		CallID:  callID.String(),
		Status:  to,
		ActorID: p.ID.String(),
	}, uuid.Nil)
	return call, nil
}

func (s *CallService) ExpireRinging(ctx context.Context, cutoff time.Time) (int, error) {
	ctx, span := tracer.Start(ctx, "CallService.ExpireRinging")
	defer span.End()

	ids, err := s.calls.ListRingingBefore(ctx, cutoff)
	if err != nil {
		return 0, s.fail(ctx, span, "expire ringing", uuid.Nil, err)
	}

	var errs []error
	expired := 0
	for _, id := range ids {
		missed, err := s.expire(ctx, id, cutoff)
		if err != nil {
			errs = append(errs, s.fail(ctx, span, "expire ringing", id, err))
			continue
		}
		if !missed {
			continue
		}
		expired++
		metrics.CallTransitions.WithLabelValues(string(domain.CallMissed)).Inc()
		_ = s.bridge.Publish(ctx, domain.CallRoom(id), domain.TagCallEnded, CallEndedPayload{
			CallID: id.String(),
			Status: domain.CallMissed,
		}, uuid.Nil)
	}
	span.SetAttributes(attribute.Int("expired", expired))
	return expired, errors.Join(errs...)
}

func (s *CallService) expire(ctx context.Context, callID uuid.UUID, cutoff time.Time) (bool, error) {
	var missed bool
	err := s.tx.WithTx(ctx, func(txCtx context.Context) error {
		call, err := s.calls.LockCall(txCtx, callID)
		if err != nil {
			return err
		}
		// Answered or declined since the listing.
		if call.Status != domain.CallRinging || !call.CreatedAt.Before(cutoff) {
			return nil
		}
		now := s.now()
		invs, err := s.calls.ListInvitations(txCtx, callID)
		if err != nil {
			return err
		}
		for i := range invs {
			if invs[i].Status != domain.InvitePending {
				continue
			}
			invs[i].Status = domain.InviteMissed
			if err := s.calls.UpdateInvitation(txCtx, &invs[i]); err != nil {
				return err
			}
		}
		if _, err := s.calls.CloseOpenParticipants(txCtx, callID, now); err != nil {
			return err
		}
		call.Status = domain.CallMissed
		call.EndedAt = &now
		missed = true
		return s.calls.UpdateCall(txCtx, call)
	})
	return missed, err
}

func (s *CallService) Participants(ctx context.Context, callID uuid.UUID) ([]domain.CallParticipant, error) {
	ctx, span := tracer.Start(ctx, "CallService.Participants", trace.WithAttributes(
		attribute.String("call_id", callID.String()),
	))
	defer span.End()

	if _, err := s.calls.GetCall(ctx, callID); err != nil {
		return nil, s.fail(ctx, span, "participants", callID, err)
	}
	parts, err := s.calls.ListParticipants(ctx, callID, false)
	if err != nil {
		return nil, s.fail(ctx, span, "participants", callID, err)
	}
	return parts, nil
}

func newParticipant(call *domain.CallSession, userID uuid.UUID) *domain.CallParticipant {
	video := domain.MediaInactive
	if call.Type == domain.CallVideo {
		video = domain.MediaActive
	}
	return &domain.CallParticipant{
		ID:               uuid.New(),
		CallID:           call.ID,
		UserID:           userID,
		PeerID:           domain.NewPeerID(),
		AudioState:       domain.MediaActive,
		VideoState:       video,
		ScreenShareState: domain.MediaInactive,
	}
}

func dedupe(ids []uuid.UUID, skip uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == skip || id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
