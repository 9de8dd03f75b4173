// Package memory holds in-process implementations of the datastore,
// membership lookup, presence store, cooldown markers and broker.
// They back tests and single-node development runs.
package memory

import (
	"context"
	"sync"
	"time"

	"meshup/internal/core/domain"

	"github.com/google/uuid"
)

type memberKey struct{ server, user uuid.UUID }

type reactionKey struct {
	message, user uuid.UUID
	emoji         string
}

type attendeeKey struct{ event, user uuid.UUID }

// Store implements every repository in domain plus contracts.Transactor and
// contracts.MembershipService. WithTx serializes transactions, which stands
// in for the row lock LockCall takes in postgres. There is no rollback.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	now  func() time.Time

	users     map[uuid.UUID]domain.Principal
	statuses  map[uuid.UUID]domain.UserStatus
	servers   map[uuid.UUID]domain.Server
	members   map[memberKey]domain.Membership
	channels  map[uuid.UUID]domain.Channel
	messages  map[uuid.UUID]domain.Message
	reactions map[reactionKey]struct{}
	dms       map[uuid.UUID]domain.DirectMessage
	dmMsgs    map[uuid.UUID]domain.DirectMessageMessage
	events    map[uuid.UUID]domain.Event
	attendees map[attendeeKey]domain.EventAttendee

	calls        map[uuid.UUID]domain.CallSession
	participants map[uuid.UUID]domain.CallParticipant
	invitations  map[uuid.UUID]domain.CallInvitation
	shares       map[uuid.UUID]domain.ScreenShare
}

func NewStore() *Store {
	return &Store{
		now:          time.Now,
		users:        make(map[uuid.UUID]domain.Principal),
		statuses:     make(map[uuid.UUID]domain.UserStatus),
		servers:      make(map[uuid.UUID]domain.Server),
		members:      make(map[memberKey]domain.Membership),
		channels:     make(map[uuid.UUID]domain.Channel),
		messages:     make(map[uuid.UUID]domain.Message),
		reactions:    make(map[reactionKey]struct{}),
		dms:          make(map[uuid.UUID]domain.DirectMessage),
		dmMsgs:       make(map[uuid.UUID]domain.DirectMessageMessage),
		events:       make(map[uuid.UUID]domain.Event),
		attendees:    make(map[attendeeKey]domain.EventAttendee),
		calls:        make(map[uuid.UUID]domain.CallSession),
		participants: make(map[uuid.UUID]domain.CallParticipant),
		invitations:  make(map[uuid.UUID]domain.CallInvitation),
		shares:       make(map[uuid.UUID]domain.ScreenShare),
	}
}

// SetClock replaces the time source used for created_at style columns.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

type txKeyType struct{}

var txKey = txKeyType{}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(context.WithValue(ctx, txKey, struct{}{}))
}

// Seeding

func (s *Store) PutUser(p domain.Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[p.ID] = p
}

func (s *Store) PutServer(srv domain.Server) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.servers[srv.ID] = srv
}

func (s *Store) PutMember(serverID, userID uuid.UUID, banned bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[memberKey{serverID, userID}] = domain.Membership{IsMember: !banned, IsBanned: banned}
}

func (s *Store) PutChannel(c domain.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[c.ID] = c
}

func (s *Store) PutDirectMessage(dm domain.DirectMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dm.Participants = append([]uuid.UUID(nil), dm.Participants...)
	s.dms[dm.ID] = dm
}

func (s *Store) PutEvent(e domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.ID] = e
}

// Users and spaces

func (s *Store) GetPrincipal(_ context.Context, id uuid.UUID) (*domain.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &p, nil
}

func (s *Store) UpdateStatus(_ context.Context, id uuid.UUID, status domain.UserStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return domain.ErrUserNotFound
	}
	s.statuses[id] = status
	return nil
}

// UserStatus reads back the status persisted by UpdateStatus.
func (s *Store) UserStatus(id uuid.UUID) domain.UserStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.statuses[id]; ok {
		return st
	}
	return domain.StatusOffline
}

func (s *Store) GetServer(_ context.Context, id uuid.UUID) (*domain.Server, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	srv, ok := s.servers[id]
	if !ok {
		return nil, domain.ErrServerNotFound
	}
	return &srv, nil
}

func (s *Store) Membership(_ context.Context, serverID, userID uuid.UUID) (domain.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	srv, ok := s.servers[serverID]
	if !ok {
		return domain.Membership{}, domain.ErrServerNotFound
	}
	m := s.members[memberKey{serverID, userID}]
	if srv.OwnerID == userID {
		m.IsMember = true
	}
	return m, nil
}

func (s *Store) GetChannel(_ context.Context, id uuid.UUID) (*domain.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.channels[id]
	if !ok {
		return nil, domain.ErrChannelNotFound
	}
	return &c, nil
}

// Messages

func (s *Store) CreateMessage(_ context.Context, m *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.channels[m.ChannelID]; !ok {
		return domain.ErrChannelNotFound
	}
	m.CreatedAt = s.now()
	s.messages[m.ID] = *m
	return nil
}

func (s *Store) GetMessage(_ context.Context, id uuid.UUID) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	return &m, nil
}

// MessageCount is the number of stored channel messages.
func (s *Store) MessageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

func (s *Store) AddReaction(_ context.Context, r domain.Reaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[r.MessageID]; !ok {
		return domain.ErrMessageNotFound
	}
	s.reactions[reactionKey{r.MessageID, r.UserID, r.Emoji}] = struct{}{}
	return nil
}

func (s *Store) RemoveReaction(_ context.Context, r domain.Reaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reactions, reactionKey{r.MessageID, r.UserID, r.Emoji})
	return nil
}

func (s *Store) HasReaction(r domain.Reaction) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.reactions[reactionKey{r.MessageID, r.UserID, r.Emoji}]
	return ok
}

func (s *Store) GetDirectMessage(_ context.Context, id uuid.UUID) (*domain.DirectMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dm, ok := s.dms[id]
	if !ok {
		return nil, domain.ErrDMNotFound
	}
	dm.Participants = append([]uuid.UUID(nil), dm.Participants...)
	return &dm, nil
}

func (s *Store) CreateDirectMessageMessage(_ context.Context, m *domain.DirectMessageMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dms[m.DMID]; !ok {
		return domain.ErrDMNotFound
	}
	m.CreatedAt = s.now()
	s.dmMsgs[m.ID] = *m
	return nil
}

// Events

func (s *Store) GetEvent(_ context.Context, id uuid.UUID) (*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	return &e, nil
}

func (s *Store) UpdateEvent(_ context.Context, e *domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[e.ID]; !ok {
		return domain.ErrEventNotFound
	}
	s.events[e.ID] = *e
	return nil
}

func (s *Store) UpsertAttendee(_ context.Context, a *domain.EventAttendee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[a.EventID]; !ok {
		return domain.ErrEventNotFound
	}
	a.RespondedAt = s.now()
	s.attendees[attendeeKey{a.EventID, a.UserID}] = *a
	return nil
}

func (s *Store) Attendee(eventID, userID uuid.UUID) (domain.EventAttendee, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attendees[attendeeKey{eventID, userID}]
	return a, ok
}
