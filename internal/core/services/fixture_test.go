package services

import (
	"sync"
	"testing"
	"time"

	"meshup/internal/app/registry"
	"meshup/internal/core/domain"
	"meshup/internal/plugins/memory"
	"meshup/pkg/logging"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// recorder is a registry handle that keeps every frame it was sent.
type recorder struct {
	id        uuid.UUID
	principal *domain.Principal

	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func newRecorder(p *domain.Principal) *recorder {
	return &recorder{id: uuid.New(), principal: p}
}

func (r *recorder) ID() uuid.UUID                { return r.id }
func (r *recorder) Principal() *domain.Principal { return r.principal }

func (r *recorder) Send(frame []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return domain.ErrDeliveryFailure
	}
	r.frames = append(r.frames, frame)
	return nil
}

func (r *recorder) Seq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return uint64(len(r.frames))
}

func (r *recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

type received struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (r *recorder) tags() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.frames))
	for _, f := range r.frames {
		var env received
		_ = json.Unmarshal(f, &env)
		out = append(out, env.Type)
	}
	return out
}

// last decodes the payload of the most recent frame tagged tag into v.
func (r *recorder) last(t *testing.T, tag string, v any) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.frames) - 1; i >= 0; i-- {
		var env received
		if err := json.Unmarshal(r.frames[i], &env); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		if env.Type == tag {
			if err := json.Unmarshal(env.Payload, v); err != nil {
				t.Fatalf("decode %s payload: %v", tag, err)
			}
			return
		}
	}
	t.Fatalf("no %s frame among %d frames", tag, len(r.frames))
}

func (r *recorder) count(tag string) int {
	n := 0
	for _, got := range r.tags() {
		if got == tag {
			n++
		}
	}
	return n
}

type fixture struct {
	store    *memory.Store
	registry *registry.Registry
	bridge   *Bridge

	server  domain.Server
	channel domain.Channel
	alice   *domain.Principal
	bob     *domain.Principal
	carol   *domain.Principal
	dave    *domain.Principal // not a member
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	reg := registry.NewRegistry(logging.Discard(), nil)
	t.Cleanup(reg.Close)

	f := &fixture{
		store:    store,
		registry: reg,
		bridge:   NewBridge(logging.Discard(), reg),
		alice:    &domain.Principal{ID: uuid.New(), Username: "alice"},
		bob:      &domain.Principal{ID: uuid.New(), Username: "bob"},
		carol:    &domain.Principal{ID: uuid.New(), Username: "carol"},
		dave:     &domain.Principal{ID: uuid.New(), Username: "dave"},
	}
	f.server = domain.Server{ID: uuid.New(), OwnerID: f.alice.ID}
	f.channel = domain.Channel{ID: uuid.New(), ServerID: f.server.ID, Name: "general"}

	store.PutServer(f.server)
	store.PutChannel(f.channel)
	for _, p := range []*domain.Principal{f.alice, f.bob, f.carol, f.dave} {
		store.PutUser(*p)
	}
	for _, p := range []*domain.Principal{f.alice, f.bob, f.carol} {
		store.PutMember(f.server.ID, p.ID, false)
	}
	return f
}

// listen joins a fresh recorder for p to room.
func (f *fixture) listen(p *domain.Principal, room domain.Room) *recorder {
	r := newRecorder(p)
	f.registry.Join(room, r)
	return r
}

// clock is a settable time source shared by the store and a service.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
