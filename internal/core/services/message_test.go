package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"meshup/internal/core/domain"
	"meshup/internal/plugins/memory"
	"meshup/pkg/logging"

	"github.com/google/uuid"
)

// brokenMessages fails every write.
type brokenMessages struct {
	domain.MessageRepository
}

func (brokenMessages) CreateMessage(context.Context, *domain.Message) error {
	return errors.New("connection refused")
}

func newMessageService(f *fixture, cooldown *memory.Cooldown) *MessageService {
	return NewMessageService(logging.Discard(), f.store, f.store, f.store, cooldown, f.bridge, 20)
}

func TestPostChannelMessageBroadcasts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newMessageService(f, memory.NewCooldown())

	room := domain.ChannelRoom(f.channel.ID)
	sender := f.listen(f.alice, room)
	other := f.listen(f.bob, room)

	msg, err := svc.PostChannelMessage(ctx, f.alice, &f.channel, PostMessage{Content: "  hello  "})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if msg.Content != "hello" {
		t.Errorf("content = %q, want trimmed", msg.Content)
	}
	for name, r := range map[string]*recorder{"sender": sender, "other": other} {
		var got domain.Message
		r.last(t, domain.TagMessageCreated, &got)
		if got.ID != msg.ID || got.Author.Username != "alice" {
			t.Errorf("%s got %+v", name, got)
		}
	}
	if f.store.MessageCount() != 1 {
		t.Errorf("stored messages = %d", f.store.MessageCount())
	}
}

func TestPostChannelMessageRejects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newMessageService(f, memory.NewCooldown())
	other := domain.Channel{ID: uuid.New(), ServerID: f.server.ID}
	f.store.PutChannel(other)
	foreign, err := svc.PostChannelMessage(ctx, f.alice, &other, PostMessage{Content: "elsewhere"})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	missing := uuid.New()

	cases := []struct {
		name string
		in   PostMessage
		want error
	}{
		{"empty", PostMessage{Content: "   "}, domain.ErrInvalidPayload},
		{"too long", PostMessage{Content: strings.Repeat("x", 21)}, domain.ErrInvalidPayload},
		{"unknown reply", PostMessage{Content: "hi", ReplyTo: &missing}, domain.ErrInvalidPayload},
		{"reply across channels", PostMessage{Content: "hi", ReplyTo: &foreign.ID}, domain.ErrInvalidPayload},
	}
	watcher := f.listen(f.bob, domain.ChannelRoom(f.channel.ID))
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := svc.PostChannelMessage(ctx, f.alice, &f.channel, c.in); !errors.Is(err, c.want) {
				t.Errorf("err = %v, want %v", err, c.want)
			}
		})
	}
	if n := len(watcher.tags()); n != 0 {
		t.Errorf("rejected posts broadcast %d frames", n)
	}

	// Limit counts runes, not bytes.
	if _, err := svc.PostChannelMessage(ctx, f.alice, &f.channel, PostMessage{Content: strings.Repeat("é", 20)}); err != nil {
		t.Errorf("20 runes rejected: %v", err)
	}
}

func TestPostChannelMessageSlowmode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	clk := newClock()
	cooldown := memory.NewCooldown()
	cooldown.SetClock(clk.Now)
	svc := newMessageService(f, cooldown)

	ch := f.channel
	ch.SlowmodeDelay = 10 * time.Second

	if _, err := svc.PostChannelMessage(ctx, f.alice, &ch, PostMessage{Content: "one"}); err != nil {
		t.Fatalf("first post: %v", err)
	}
	if _, err := svc.PostChannelMessage(ctx, f.alice, &ch, PostMessage{Content: "two"}); !errors.Is(err, domain.ErrSlowmode) {
		t.Fatalf("second post: err = %v, want ErrSlowmode", err)
	}
	if _, err := svc.PostChannelMessage(ctx, f.bob, &ch, PostMessage{Content: "mine"}); err != nil {
		t.Errorf("slowmode is per user: %v", err)
	}
	clk.Advance(11 * time.Second)
	if _, err := svc.PostChannelMessage(ctx, f.alice, &ch, PostMessage{Content: "three"}); err != nil {
		t.Errorf("post after window: %v", err)
	}
}

func TestPersistFailureSkipsBroadcast(t *testing.T) {
	f := newFixture(t)
	svc := NewMessageService(logging.Discard(), f.store, brokenMessages{f.store}, f.store, memory.NewCooldown(), f.bridge, 100)
	watcher := f.listen(f.bob, domain.ChannelRoom(f.channel.ID))

	_, err := svc.PostChannelMessage(context.Background(), f.alice, &f.channel, PostMessage{Content: "lost"})
	if err == nil {
		t.Fatal("expected persist error")
	}
	if domain.ErrorCode(err) != "internal" {
		t.Errorf("code = %s, want internal", domain.ErrorCode(err))
	}
	if n := len(watcher.tags()); n != 0 {
		t.Errorf("broadcast %d frames after failed persist", n)
	}
}

func TestPostDirectMessage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newMessageService(f, memory.NewCooldown())

	dm := domain.DirectMessage{ID: uuid.New(), Participants: []uuid.UUID{f.alice.ID, f.bob.ID}}
	f.store.PutDirectMessage(dm)
	watcher := f.listen(f.bob, domain.DMRoom(dm.ID))

	msg, err := svc.PostDirectMessage(ctx, f.alice, &dm, "psst")
	if err != nil {
		t.Fatalf("post dm: %v", err)
	}
	var got domain.DirectMessageMessage
	watcher.last(t, domain.TagMessageCreated, &got)
	if got.ID != msg.ID || got.DMID != dm.ID {
		t.Errorf("message.created payload = %+v", got)
	}

	if _, err := svc.PostDirectMessage(ctx, f.carol, &dm, "hi"); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("outsider: err = %v, want ErrForbidden", err)
	}
}

func TestReact(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newMessageService(f, memory.NewCooldown())

	msg, err := svc.PostChannelMessage(ctx, f.alice, &f.channel, PostMessage{Content: "react to me"})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	watcher := f.listen(f.alice, domain.ChannelRoom(f.channel.ID))

	add := ReactionInput{MessageID: msg.ID, Emoji: "👍", Action: domain.ReactionAdd}
	if err := svc.React(ctx, f.bob, &f.channel, add); err != nil {
		t.Fatalf("react: %v", err)
	}
	if !f.store.HasReaction(domain.Reaction{MessageID: msg.ID, UserID: f.bob.ID, Emoji: "👍"}) {
		t.Error("reaction not stored")
	}
	var got ReactionPayload
	watcher.last(t, domain.TagReaction, &got)
	if got.Action != domain.ReactionAdd || got.UserID != f.bob.ID.String() {
		t.Errorf("reaction payload = %+v", got)
	}

	remove := add
	remove.Action = domain.ReactionRemove
	if err := svc.React(ctx, f.bob, &f.channel, remove); err != nil {
		t.Fatalf("unreact: %v", err)
	}
	if f.store.HasReaction(domain.Reaction{MessageID: msg.ID, UserID: f.bob.ID, Emoji: "👍"}) {
		t.Error("reaction not removed")
	}

	bad := add
	bad.Action = "toggle"
	if err := svc.React(ctx, f.bob, &f.channel, bad); !errors.Is(err, domain.ErrInvalidPayload) {
		t.Errorf("bad action: err = %v, want ErrInvalidPayload", err)
	}
	other := domain.Channel{ID: uuid.New(), ServerID: f.server.ID}
	if err := svc.React(ctx, f.bob, &other, add); !errors.Is(err, domain.ErrMessageNotFound) {
		t.Errorf("cross channel: err = %v, want ErrMessageNotFound", err)
	}
}
