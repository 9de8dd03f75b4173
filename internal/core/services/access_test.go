package services

import (
	"context"
	"errors"
	"testing"

	"meshup/internal/core/domain"
	"meshup/pkg/logging"

	"github.com/google/uuid"
)

func TestAuthorize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.store
	authz := NewAccessAuthorizer(logging.Discard(), s, s, s, s, s, s)

	private := domain.Channel{ID: uuid.New(), ServerID: f.server.ID, IsPrivate: true}
	s.PutChannel(private)
	dm := domain.DirectMessage{ID: uuid.New(), Participants: []uuid.UUID{f.alice.ID, f.bob.ID}}
	s.PutDirectMessage(dm)
	ev := domain.Event{ID: uuid.New(), ServerID: f.server.ID, OrganizerID: f.dave.ID}
	s.PutEvent(ev)

	banned := &domain.Principal{ID: uuid.New(), Username: "mallory"}
	s.PutUser(*banned)
	s.PutMember(f.server.ID, banned.ID, true)
	admin := &domain.Principal{ID: uuid.New(), Username: "root", IsAdmin: true}

	calls := newCallService(f, newClock())
	call := f.channelCall(t, calls, f.bob.ID)

	cases := []struct {
		name string
		p    *domain.Principal
		room domain.Room
		want error
	}{
		{"anonymous", nil, domain.ChannelRoom(f.channel.ID), domain.ErrUnauthorized},
		{"public channel outsider", f.dave, domain.ChannelRoom(f.channel.ID), nil},
		{"private channel member", f.bob, domain.ChannelRoom(private.ID), nil},
		{"private channel outsider", f.dave, domain.ChannelRoom(private.ID), domain.ErrForbidden},
		{"banned", banned, domain.ChannelRoom(f.channel.ID), domain.ErrForbidden},
		{"admin", admin, domain.ChannelRoom(private.ID), nil},
		{"missing channel", f.alice, domain.ChannelRoom(uuid.New()), domain.ErrNotFound},
		{"dm participant", f.bob, domain.DMRoom(dm.ID), nil},
		{"dm outsider", f.carol, domain.DMRoom(dm.ID), domain.ErrForbidden},
		{"presence member", f.carol, domain.PresenceRoom(f.server.ID), nil},
		{"presence outsider", f.dave, domain.PresenceRoom(f.server.ID), domain.ErrForbidden},
		{"presence unknown space", f.alice, domain.PresenceRoom(uuid.New()), domain.ErrNotFound},
		{"call invitee", f.bob, domain.CallRoom(call.ID), nil},
		{"call space member", f.carol, domain.CallRoom(call.ID), nil},
		{"call outsider", f.dave, domain.CallRoom(call.ID), domain.ErrForbidden},
		{"event organizer outside space", f.dave, domain.EventRoom(ev.ID), nil},
		{"event member", f.carol, domain.EventRoom(ev.ID), nil},
		{"event banned", banned, domain.EventRoom(ev.ID), domain.ErrForbidden},
		{"unknown kind", f.alice, domain.Room{Kind: "lobby", Key: uuid.New()}, domain.ErrNotFound},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			access, err := authz.Authorize(ctx, c.p, c.room)
			if c.want != nil {
				if !errors.Is(err, c.want) {
					t.Fatalf("err = %v, want %v", err, c.want)
				}
				return
			}
			if err != nil {
				t.Fatalf("authorize: %v", err)
			}
			if access.Room != c.room {
				t.Errorf("room = %v", access.Room)
			}
		})
	}
}

func TestAuthorizeResolvesEntity(t *testing.T) {
	f := newFixture(t)
	authz := NewAccessAuthorizer(logging.Discard(), f.store, f.store, f.store, f.store, f.store, f.store)

	access, err := authz.Authorize(context.Background(), f.bob, domain.ChannelRoom(f.channel.ID))
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if access.Channel == nil || access.Channel.ID != f.channel.ID || access.ServerID != f.server.ID {
		t.Errorf("access = %+v", access)
	}
}
