package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"meshup/internal/core/domain"
	"meshup/internal/plugins/memory"
	"meshup/pkg/logging"
)

func TestPresenceConnectDisconnect(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	store := memory.NewPresenceStore()
	svc := NewPresenceService(logging.Discard(), f.store, store, f.bridge, time.Minute)

	room := domain.PresenceRoom(f.server.ID)
	observer := f.listen(f.bob, room)
	self := f.listen(f.alice, room)

	if err := svc.Connect(ctx, f.alice, room, self.ID()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if f.store.UserStatus(f.alice.ID) != domain.StatusOnline {
		t.Errorf("profile status = %s, want online", f.store.UserStatus(f.alice.ID))
	}
	if st, _ := store.Status(ctx, f.alice.ID); st != domain.StatusOnline {
		t.Errorf("marker status = %s", st)
	}
	if observer.count(domain.TagUserOnline) != 1 || self.count(domain.TagUserOnline) != 0 {
		t.Errorf("user_online went to observer %v and self %v", observer.tags(), self.tags())
	}

	online, err := svc.Ping(ctx, f.alice, room)
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	if len(online) != 1 || online[0] != f.alice.ID.String() {
		t.Errorf("online = %v", online)
	}

	f.registry.Leave(room, self)
	if err := svc.Disconnect(ctx, f.alice, room); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	var off PresencePayload
	observer.last(t, domain.TagUserOffline, &off)
	if off.Status != domain.StatusOffline || off.UserID != f.alice.ID.String() {
		t.Errorf("user_offline payload = %+v", off)
	}
	if online, _ := store.Online(ctx, room.String(), time.Minute); len(online) != 0 {
		t.Errorf("still online after disconnect: %v", online)
	}
}

func TestPresenceChannelRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewPresenceService(logging.Discard(), f.store, memory.NewPresenceStore(), f.bridge, time.Minute)

	room := domain.ChannelRoom(f.channel.ID)
	observer := f.listen(f.bob, room)

	if err := svc.Connect(ctx, f.alice, room, observer.ID()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if len(observer.tags()) != 0 {
		t.Errorf("excluded handle got %v", observer.tags())
	}
	if err := svc.ChannelStatus(ctx, f.alice, f.channel.ID, domain.StatusAway); err != nil {
		t.Fatalf("channel status: %v", err)
	}
	if err := svc.Disconnect(ctx, f.alice, room); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	got := observer.tags()
	if len(got) != 2 || got[0] != domain.TagPresenceUpdate || got[1] != domain.TagUserLeft {
		t.Errorf("frames = %v", got)
	}
	if f.store.UserStatus(f.alice.ID) != domain.StatusOffline {
		t.Error("channel presence must not touch the profile status")
	}
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewPresenceService(logging.Discard(), f.store, memory.NewPresenceStore(), f.bridge, time.Minute)
	observer := f.listen(f.bob, domain.PresenceRoom(f.server.ID))

	if err := svc.UpdateStatus(ctx, f.alice, f.server.ID, "busy"); !errors.Is(err, domain.ErrInvalidPayload) {
		t.Fatalf("bad status: err = %v", err)
	}
	if err := svc.UpdateStatus(ctx, f.alice, f.server.ID, domain.StatusDND); err != nil {
		t.Fatalf("update: %v", err)
	}
	if f.store.UserStatus(f.alice.ID) != domain.StatusDND {
		t.Errorf("profile status = %s", f.store.UserStatus(f.alice.ID))
	}
	var got PresencePayload
	observer.last(t, domain.TagStatusUpdated, &got)
	if got.Status != domain.StatusDND {
		t.Errorf("status_updated payload = %+v", got)
	}
}

func TestPresenceDisconnectKeepsOtherTabOnline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	store := memory.NewPresenceStore()
	svc := NewPresenceService(logging.Discard(), f.store, store, f.bridge, time.Minute)

	room := domain.PresenceRoom(f.server.ID)
	observer := f.listen(f.bob, room)
	first := f.listen(f.alice, room)
	second := f.listen(f.alice, room)

	if err := svc.Connect(ctx, f.alice, room, first.ID()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	f.registry.Leave(room, first)
	if err := svc.Disconnect(ctx, f.alice, room); err != nil {
		t.Fatalf("disconnect first: %v", err)
	}
	if n := observer.count(domain.TagUserOffline); n != 0 {
		t.Fatalf("user_offline sent while a handle is still open (%d)", n)
	}
	if online, _ := store.Online(ctx, room.String(), time.Minute); len(online) != 1 {
		t.Errorf("online = %v, want alice", online)
	}

	f.registry.Leave(room, second)
	if err := svc.Disconnect(ctx, f.alice, room); err != nil {
		t.Fatalf("disconnect second: %v", err)
	}
	if n := observer.count(domain.TagUserOffline); n != 1 {
		t.Errorf("user_offline frames = %d, want 1", n)
	}
}
