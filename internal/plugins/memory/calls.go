package memory

import (
	"context"
	"sort"
	"time"

	"meshup/internal/core/domain"

	"github.com/google/uuid"
)

func (s *Store) CreateCall(_ context.Context, c *domain.CallSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.CreatedAt = s.now()
	s.calls[c.ID] = *c
	return nil
}

func (s *Store) GetCall(_ context.Context, id uuid.UUID) (*domain.CallSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.calls[id]
	if !ok {
		return nil, domain.ErrCallNotFound
	}
	return &c, nil
}

// LockCall is GetCall; WithTx already serializes writers.
func (s *Store) LockCall(ctx context.Context, id uuid.UUID) (*domain.CallSession, error) {
	return s.GetCall(ctx, id)
}

func (s *Store) UpdateCall(_ context.Context, c *domain.CallSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.calls[c.ID]; !ok {
		return domain.ErrCallNotFound
	}
	s.calls[c.ID] = *c
	return nil
}

func (s *Store) ListRingingBefore(_ context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []uuid.UUID
	for id, c := range s.calls {
		if c.Status == domain.CallRinging && c.CreatedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *Store) GetParticipant(_ context.Context, callID, userID uuid.UUID) (*domain.CallParticipant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.participants {
		if p.CallID == callID && p.UserID == userID {
			return &p, nil
		}
	}
	return nil, domain.ErrParticipantNotFound
}

// CreateParticipant enforces the (call, user) unique constraint.
func (s *Store) CreateParticipant(_ context.Context, p *domain.CallParticipant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.participants {
		if existing.CallID == p.CallID && existing.UserID == p.UserID {
			return domain.ErrStateConflict
		}
	}
	p.JoinedAt = s.now()
	s.participants[p.ID] = *p
	return nil
}

func (s *Store) UpdateParticipant(_ context.Context, p *domain.CallParticipant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.participants[p.ID]; !ok {
		return domain.ErrParticipantNotFound
	}
	s.participants[p.ID] = *p
	return nil
}

func (s *Store) CountOpenParticipants(_ context.Context, callID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, p := range s.participants {
		if p.CallID == callID && p.LeftAt == nil {
			n++
		}
	}
	return n, nil
}

func (s *Store) CountParticipants(_ context.Context, callID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, p := range s.participants {
		if p.CallID == callID {
			n++
		}
	}
	return n, nil
}

func (s *Store) CloseOpenParticipants(_ context.Context, callID uuid.UUID, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, p := range s.participants {
		if p.CallID == callID && p.LeftAt == nil {
			left := at
			p.LeftAt = &left
			s.participants[id] = p
			n++
		}
	}
	return n, nil
}

func (s *Store) ListParticipants(_ context.Context, callID uuid.UUID, openOnly bool) ([]domain.CallParticipant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.CallParticipant
	for _, p := range s.participants {
		if p.CallID != callID || (openOnly && p.LeftAt != nil) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (s *Store) CreateInvitation(_ context.Context, inv *domain.CallInvitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv.CreatedAt = s.now()
	for id, existing := range s.invitations {
		if existing.CallID == inv.CallID && existing.InviteeID == inv.InviteeID {
			inv.ID = id
		}
	}
	s.invitations[inv.ID] = *inv
	return nil
}

func (s *Store) GetInvitation(_ context.Context, callID, inviteeID uuid.UUID) (*domain.CallInvitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, inv := range s.invitations {
		if inv.CallID == callID && inv.InviteeID == inviteeID {
			return &inv, nil
		}
	}
	return nil, domain.ErrInvitationNotFound
}

func (s *Store) UpdateInvitation(_ context.Context, inv *domain.CallInvitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.invitations[inv.ID]; !ok {
		return domain.ErrInvitationNotFound
	}
	s.invitations[inv.ID] = *inv
	return nil
}

func (s *Store) ListInvitations(_ context.Context, callID uuid.UUID) ([]domain.CallInvitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.CallInvitation
	for _, inv := range s.invitations {
		if inv.CallID == callID {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetActiveScreenShare(_ context.Context, participantID uuid.UUID) (*domain.ScreenShare, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sh := range s.shares {
		if sh.ParticipantID == participantID && (sh.Status == domain.ShareActive || sh.Status == domain.SharePaused) {
			return &sh, nil
		}
	}
	return nil, domain.ErrNoActiveShare
}

func (s *Store) CreateScreenShare(_ context.Context, sh *domain.ScreenShare) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh.StartedAt = s.now()
	s.shares[sh.ID] = *sh
	return nil
}

func (s *Store) UpdateScreenShare(_ context.Context, sh *domain.ScreenShare) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shares[sh.ID] = *sh
	return nil
}
