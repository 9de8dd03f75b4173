package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"meshup/internal/core/domain"
	"meshup/internal/platform/metrics"
	"meshup/pkg/logging"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newCallService(f *fixture, clk *clock) *CallService {
	f.store.SetClock(clk.Now)
	svc := NewCallService(logging.Discard(), f.store, f.store, f.store, f.store, f.store, f.bridge)
	svc.now = clk.Now
	return svc
}

func (f *fixture) channelCall(t *testing.T, svc *CallService, recipients ...uuid.UUID) *domain.CallSession {
	t.Helper()
	res, err := svc.Initiate(context.Background(), f.alice, domain.InitiateCall{
		Type:       domain.CallVideo,
		ChannelID:  &f.channel.ID,
		Recipients: recipients,
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	return res.Call
}

func TestCallLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	clk := newClock()
	svc := newCallService(f, clk)

	lobby := f.listen(f.carol, domain.PresenceRoom(f.server.ID))

	res, err := svc.Initiate(ctx, f.alice, domain.InitiateCall{
		Type:       domain.CallVideo,
		ChannelID:  &f.channel.ID,
		Recipients: []uuid.UUID{f.bob.ID, f.carol.ID, f.bob.ID, f.alice.ID},
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	call := res.Call
	if call.Status != domain.CallRinging {
		t.Fatalf("status = %s, want ringing", call.Status)
	}
	if call.ServerID == nil || *call.ServerID != f.server.ID {
		t.Fatalf("server id not resolved from channel: %v", call.ServerID)
	}
	if len(res.Invitations) != 2 {
		t.Fatalf("invitations = %d, want 2 after dedupe", len(res.Invitations))
	}
	if res.Participant.VideoState != domain.MediaActive || res.Participant.AudioState != domain.MediaActive {
		t.Errorf("initiator media = %s/%s", res.Participant.AudioState, res.Participant.VideoState)
	}
	if n := lobby.count(domain.TagCallInvitation); n != 2 {
		t.Errorf("call_invitation frames = %d, want 2", n)
	}

	watcher := f.listen(f.alice, domain.CallRoom(call.ID))

	clk.Advance(5 * time.Second)
	bobJoin, err := svc.Join(ctx, f.bob, call.ID)
	if err != nil {
		t.Fatalf("bob join: %v", err)
	}
	if bobJoin.Call.Status != domain.CallActive || bobJoin.Call.StartedAt == nil {
		t.Fatalf("first answer should activate the call: %+v", bobJoin.Call)
	}
	if _, err := svc.Join(ctx, f.carol, call.ID); err != nil {
		t.Fatalf("carol join: %v", err)
	}

	again, err := svc.Join(ctx, f.carol, call.ID)
	if err != nil {
		t.Fatalf("carol join again: %v", err)
	}
	if !again.AlreadyJoined {
		t.Error("second join while open should report AlreadyJoined")
	}
	if n := watcher.count(domain.TagParticipantJoined); n != 2 {
		t.Errorf("participant_joined frames = %d, want 2", n)
	}

	if _, err := svc.Leave(ctx, f.bob, call.ID); err != nil {
		t.Fatalf("bob leave: %v", err)
	}
	rejoin, err := svc.Join(ctx, f.bob, call.ID)
	if err != nil {
		t.Fatalf("bob rejoin: %v", err)
	}
	if !rejoin.Reopened {
		t.Error("rejoin should reopen the closed row")
	}
	if rejoin.Participant.PeerID == bobJoin.Participant.PeerID {
		t.Error("rejoin kept the old peer id")
	}
	if rejoin.Participant.ID != bobJoin.Participant.ID {
		t.Error("rejoin created a second row")
	}
	if got := rejoin.Call.PeakParticipants; got != 3 {
		t.Errorf("peak = %d, want 3", got)
	}
	if got := rejoin.Call.TotalParticipants; got != 3 {
		t.Errorf("total = %d, want 3", got)
	}

	if _, err := svc.End(ctx, f.bob, call.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("non-initiator end: err = %v, want ErrForbidden", err)
	}

	clk.Advance(90 * time.Second)
	end, err := svc.End(ctx, f.alice, call.ID)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if end.Call.Status != domain.CallEnded || end.Call.EndedAt == nil {
		t.Fatalf("ended call = %+v", end.Call)
	}
	if end.Duration != 90*time.Second {
		t.Errorf("duration = %v, want 1m30s from started_at", end.Duration)
	}
	if end.ParticipantCount != 3 {
		t.Errorf("participant count = %d, want 3", end.ParticipantCount)
	}

	var ended CallEndedPayload
	watcher.last(t, domain.TagCallEnded, &ended)
	if ended.EndedBy != f.alice.ID.String() || ended.DurationSeconds != 90 {
		t.Errorf("call_ended payload = %+v", ended)
	}

	parts, err := svc.Participants(ctx, call.ID)
	if err != nil {
		t.Fatalf("participants: %v", err)
	}
	for _, p := range parts {
		if p.Open() {
			t.Errorf("participant %s left open after end", p.UserID)
		}
	}

	if _, err := svc.End(ctx, f.alice, call.ID); !errors.Is(err, domain.ErrAlreadyEnded) {
		t.Errorf("second end: err = %v, want ErrAlreadyEnded", err)
	}
	if _, err := svc.Join(ctx, f.bob, call.ID); !errors.Is(err, domain.ErrCallInactive) {
		t.Errorf("join after end: err = %v, want ErrCallInactive", err)
	}
}

func TestLastLeaveEndsCall(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newCallService(f, newClock())

	res, err := svc.Initiate(ctx, f.alice, domain.InitiateCall{Type: domain.CallVoice, ServerID: &f.server.ID})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if res.Call.Status != domain.CallInitiating {
		t.Fatalf("status = %s, want initiating without recipients", res.Call.Status)
	}
	if res.Participant.VideoState != domain.MediaInactive {
		t.Errorf("voice call video = %s", res.Participant.VideoState)
	}

	watcher := f.listen(f.bob, domain.CallRoom(res.Call.ID))

	if _, err := svc.Leave(ctx, f.bob, res.Call.ID); !errors.Is(err, domain.ErrNotInCall) {
		t.Fatalf("leave without joining: err = %v, want ErrNotInCall", err)
	}

	left, err := svc.Leave(ctx, f.alice, res.Call.ID)
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if !left.CallEnded || left.Call.Status != domain.CallEnded {
		t.Fatalf("last leave did not end the call: %+v", left)
	}
	got := watcher.tags()
	if len(got) != 2 || got[0] != domain.TagParticipantLeft || got[1] != domain.TagCallEnded {
		t.Errorf("frames = %v, want [participant_left call_ended]", got)
	}
}

func TestJoinRequiresInvitationOrMembership(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newCallService(f, newClock())

	call := f.channelCall(t, svc, f.bob.ID)

	if _, err := svc.Join(ctx, f.dave, call.ID); !errors.Is(err, domain.ErrNotInvited) {
		t.Errorf("outsider join: err = %v, want ErrNotInvited", err)
	}
	// Members of the space may join without an invitation.
	if _, err := svc.Join(ctx, f.carol, call.ID); err != nil {
		t.Errorf("uninvited member join: %v", err)
	}

	dm := domain.DirectMessage{ID: uuid.New(), Participants: []uuid.UUID{f.alice.ID, f.bob.ID}}
	f.store.PutDirectMessage(dm)
	res, err := svc.Initiate(ctx, f.alice, domain.InitiateCall{Type: domain.CallVoice, DMID: &dm.ID})
	if err != nil {
		t.Fatalf("dm initiate: %v", err)
	}
	if len(res.Invitations) != 1 || res.Invitations[0].InviteeID != f.bob.ID {
		t.Fatalf("dm call should invite the other participant: %+v", res.Invitations)
	}
	if _, err := svc.Join(ctx, f.carol, res.Call.ID); !errors.Is(err, domain.ErrNotInvited) {
		t.Errorf("dm outsider join: err = %v, want ErrNotInvited", err)
	}
	if _, err := svc.Join(ctx, f.bob, res.Call.ID); err != nil {
		t.Errorf("dm invitee join: %v", err)
	}

	if _, err := svc.Initiate(ctx, f.carol, domain.InitiateCall{Type: domain.CallVoice, DMID: &dm.ID}); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("dm outsider initiate: err = %v, want ErrForbidden", err)
	}
	if _, err := svc.Initiate(ctx, f.alice, domain.InitiateCall{Type: domain.CallVoice}); !errors.Is(err, domain.ErrInvalidPayload) {
		t.Errorf("initiate without context: err = %v, want ErrInvalidPayload", err)
	}
	if _, err := svc.Initiate(ctx, f.alice, domain.InitiateCall{Type: "conference", ServerID: &f.server.ID}); !errors.Is(err, domain.ErrInvalidPayload) {
		t.Errorf("initiate with bad type: err = %v, want ErrInvalidPayload", err)
	}
}

func TestDecline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newCallService(f, newClock())

	call := f.channelCall(t, svc, f.bob.ID, f.carol.ID)
	watcher := f.listen(f.alice, domain.CallRoom(call.ID))

	got, err := svc.Decline(ctx, f.bob, call.ID)
	if err != nil {
		t.Fatalf("bob decline: %v", err)
	}
	if got.Status != domain.CallRinging {
		t.Fatalf("status after one decline = %s, want ringing", got.Status)
	}
	if n := watcher.count(domain.TagCallStatus); n != 1 {
		t.Errorf("call_status frames = %d, want 1", n)
	}
	if _, err := svc.Decline(ctx, f.bob, call.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("second decline: err = %v, want ErrInvalidTransition", err)
	}
	if _, err := svc.Decline(ctx, f.dave, call.ID); !errors.Is(err, domain.ErrNotInvited) {
		t.Errorf("uninvited decline: err = %v, want ErrNotInvited", err)
	}

	got, err = svc.Decline(ctx, f.carol, call.ID)
	if err != nil {
		t.Fatalf("carol decline: %v", err)
	}
	if got.Status != domain.CallDeclined || got.EndedAt == nil {
		t.Fatalf("status after all declined = %s", got.Status)
	}
	var ended CallEndedPayload
	watcher.last(t, domain.TagCallEnded, &ended)
	if ended.Status != domain.CallDeclined {
		t.Errorf("call_ended status = %s", ended.Status)
	}
	if _, err := svc.Join(ctx, f.alice, call.ID); !errors.Is(err, domain.ErrCallInactive) {
		t.Errorf("join declined call: err = %v, want ErrCallInactive", err)
	}
}

func TestExpireRinging(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	clk := newClock()
	svc := newCallService(f, clk)

	stale := f.channelCall(t, svc, f.bob.ID)
	answered := f.channelCall(t, svc, f.carol.ID)
	if _, err := svc.Join(ctx, f.carol, answered.ID); err != nil {
		t.Fatalf("join: %v", err)
	}
	watcher := f.listen(f.alice, domain.CallRoom(stale.ID))

	clk.Advance(2 * time.Minute)
	fresh := f.channelCall(t, svc, f.bob.ID)

	n, err := svc.ExpireRinging(ctx, clk.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired = %d, want 1", n)
	}

	for id, want := range map[uuid.UUID]domain.CallStatus{
		stale.ID:    domain.CallMissed,
		answered.ID: domain.CallActive,
		fresh.ID:    domain.CallRinging,
	} {
		c, err := f.store.GetCall(ctx, id)
		if err != nil {
			t.Fatalf("get call: %v", err)
		}
		if c.Status != want {
			t.Errorf("call %s status = %s, want %s", id, c.Status, want)
		}
	}

	inv, err := f.store.GetInvitation(ctx, stale.ID, f.bob.ID)
	if err != nil {
		t.Fatalf("get invitation: %v", err)
	}
	if inv.Status != domain.InviteMissed {
		t.Errorf("invitation status = %s, want missed", inv.Status)
	}
	var ended CallEndedPayload
	watcher.last(t, domain.TagCallEnded, &ended)
	if ended.Status != domain.CallMissed {
		t.Errorf("call_ended status = %s", ended.Status)
	}

	if n, _ := svc.ExpireRinging(ctx, clk.Now().Add(-time.Minute)); n != 0 {
		t.Errorf("second sweep expired %d calls", n)
	}
}

func TestHold(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newCallService(f, newClock())

	call := f.channelCall(t, svc, f.bob.ID)
	if _, err := svc.SetStatus(ctx, f.alice, call.ID, domain.CallOnHold); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("hold while ringing: err = %v, want ErrInvalidTransition", err)
	}
	if _, err := svc.Join(ctx, f.bob, call.ID); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := svc.SetStatus(ctx, f.carol, call.ID, domain.CallOnHold); !errors.Is(err, domain.ErrNotInCall) {
		t.Errorf("hold by outsider: err = %v, want ErrNotInCall", err)
	}

	steps := []struct {
		to      domain.CallStatus
		wantErr error
	}{
		{domain.CallOnHold, nil},
		{domain.CallOnHold, domain.ErrInvalidTransition},
		{domain.CallActive, nil},
		{domain.CallEnded, domain.ErrInvalidTransition},
	}
	for _, s := range steps {
		got, err := svc.SetStatus(ctx, f.bob, call.ID, s.to)
		if s.wantErr != nil {
			if !errors.Is(err, s.wantErr) {
				t.Errorf("to %s: err = %v, want %v", s.to, err, s.wantErr)
			}
			continue
		}
		if err != nil {
			t.Fatalf("to %s: %v", s.to, err)
		}
		if got.Status != s.to {
			t.Errorf("status = %s, want %s", got.Status, s.to)
		}
	}
}

func TestMediaAndScreenShare(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newCallService(f, newClock())

	call := f.channelCall(t, svc, f.bob.ID)
	if _, err := svc.Join(ctx, f.bob, call.ID); err != nil {
		t.Fatalf("join: %v", err)
	}
	watcher := f.listen(f.alice, domain.CallRoom(call.ID))

	if _, err := svc.UpdateMedia(ctx, f.bob, call.ID, domain.MediaUpdate{}); !errors.Is(err, domain.ErrInvalidPayload) {
		t.Errorf("empty media update: err = %v, want ErrInvalidPayload", err)
	}
	muted := domain.MediaMuted
	part, err := svc.UpdateMedia(ctx, f.bob, call.ID, domain.MediaUpdate{AudioState: &muted})
	if err != nil {
		t.Fatalf("update media: %v", err)
	}
	if part.AudioState != domain.MediaMuted || part.VideoState != domain.MediaActive {
		t.Errorf("media = %s/%s", part.AudioState, part.VideoState)
	}
	var media ParticipantEventPayload
	watcher.last(t, domain.TagMediaState, &media)
	if media.Participant.AudioState != domain.MediaMuted {
		t.Errorf("media_state payload = %+v", media.Participant)
	}

	share, err := svc.StartScreenShare(ctx, f.bob, call.ID, domain.ScreenShareOptions{FrameRate: 15})
	if err != nil {
		t.Fatalf("start share: %v", err)
	}
	if share.Width != 1920 || share.Height != 1080 || share.FrameRate != 15 {
		t.Errorf("share options = %dx%d@%d", share.Width, share.Height, share.FrameRate)
	}
	var started ScreenSharePayload
	watcher.last(t, domain.TagScreenShareStarted, &started)
	if started.Resolution != "1920x1080" || started.StreamID != share.StreamID {
		t.Errorf("screen_share_started payload = %+v", started)
	}
	if _, err := svc.StartScreenShare(ctx, f.bob, call.ID, domain.ScreenShareOptions{}); !errors.Is(err, domain.ErrAlreadySharing) {
		t.Errorf("second share: err = %v, want ErrAlreadySharing", err)
	}
	if _, err := svc.StopScreenShare(ctx, f.alice, call.ID); !errors.Is(err, domain.ErrNoActiveShare) {
		t.Errorf("stop without share: err = %v, want ErrNoActiveShare", err)
	}

	// Leaving closes an open share, so a rejoin can share again.
	if _, err := svc.Leave(ctx, f.bob, call.ID); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if _, err := svc.Join(ctx, f.bob, call.ID); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if _, err := svc.StartScreenShare(ctx, f.bob, call.ID, domain.ScreenShareOptions{}); err != nil {
		t.Fatalf("share after rejoin: %v", err)
	}
	stopped, err := svc.StopScreenShare(ctx, f.bob, call.ID)
	if err != nil {
		t.Fatalf("stop share: %v", err)
	}
	if stopped.Status != domain.ShareEnded || stopped.EndedAt == nil {
		t.Errorf("stopped share = %+v", stopped)
	}
	if n := watcher.count(domain.TagScreenShareEnded); n != 1 {
		t.Errorf("screen_share_ended frames = %d, want 1", n)
	}
}

func TestConcurrentJoinsActivateOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewCallService(logging.Discard(), f.store, f.store, f.store, f.store, f.store, f.bridge)
	call := f.channelCall(t, svc)

	const joiners = 20
	members := make([]*domain.Principal, joiners)
	for i := range members {
		p := &domain.Principal{ID: uuid.New(), Username: fmt.Sprintf("member%d", i)}
		f.store.PutUser(*p)
		f.store.PutMember(f.server.ID, p.ID, false)
		members[i] = p
	}

	activations := metrics.CallTransitions.WithLabelValues(string(domain.CallActive))
	before := testutil.ToFloat64(activations)

	var wg sync.WaitGroup
	results := make([]*JoinResult, joiners)
	errs := make([]error, joiners)
	for i, p := range members {
		wg.Add(1)
		go func(i int, p *domain.Principal) {
			defer wg.Done()
			results[i], errs[i] = svc.Join(ctx, p, call.ID)
		}(i, p)
	}
	wg.Wait()

	var startedAt time.Time
	for i, err := range errs {
		if err != nil {
			t.Fatalf("join %d: %v", i, err)
		}
		got := results[i].Call.StartedAt
		if got == nil {
			t.Fatalf("join %d: call not started", i)
		}
		if startedAt.IsZero() {
			startedAt = *got
		} else if !got.Equal(startedAt) {
			t.Errorf("join %d saw started_at %v, want %v", i, got, startedAt)
		}
	}
	if got := testutil.ToFloat64(activations) - before; got != 1 {
		t.Errorf("ringing to active transitions = %v, want 1", got)
	}

	stored, err := f.store.GetCall(ctx, call.ID)
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	if stored.Status != domain.CallActive || stored.PeakParticipants != joiners+1 || stored.TotalParticipants != joiners+1 {
		t.Errorf("call = status %s peak %d total %d, want active %d %d",
			stored.Status, stored.PeakParticipants, stored.TotalParticipants, joiners+1, joiners+1)
	}
	open, err := f.store.ListParticipants(ctx, call.ID, true)
	if err != nil {
		t.Fatalf("list participants: %v", err)
	}
	if len(open) != joiners+1 {
		t.Errorf("open participants = %d, want %d", len(open), joiners+1)
	}
}
