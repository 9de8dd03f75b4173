package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"meshup/internal/core/contracts"
	"meshup/internal/core/domain"
	"meshup/internal/platform/metrics"
	"meshup/pkg/logging"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

const resubscribeDelay = time.Second

// relayFrame is what travels over the broker. Origin lets a process skip
// frames it already delivered locally.
type relayFrame struct {
	Origin  uuid.UUID       `json:"origin"`
	Exclude uuid.UUID       `json:"exclude"`
	Frame   json.RawMessage `json:"frame"`
}

// Registry is the room membership set. Without a broker it is purely local.
// With one, every room that has local members keeps a relay subscription open
// so frames broadcast by other processes reach this process's handles.
type Registry struct {
	log    *slog.Logger
	broker contracts.Broker
	origin uuid.UUID

	mu      sync.RWMutex
	rooms   map[domain.Room]map[uuid.UUID]contracts.Client
	joined  map[uuid.UUID]map[domain.Room]struct{}
	workers map[domain.Room]context.CancelFunc
}

// NewRegistry builds a registry. broker may be nil for a single process.
func NewRegistry(log *slog.Logger, broker contracts.Broker) *Registry {
	return &Registry{
		log:     log,
		broker:  broker,
		origin:  uuid.New(),
		rooms:   make(map[domain.Room]map[uuid.UUID]contracts.Client),
		joined:  make(map[uuid.UUID]map[domain.Room]struct{}),
		workers: make(map[domain.Room]context.CancelFunc),
	}
}

func (r *Registry) Join(room domain.Room, c contracts.Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[room]
	if members == nil {
		members = make(map[uuid.UUID]contracts.Client)
		r.rooms[room] = members
		r.startRelay(room)
	}
	if _, ok := members[c.ID()]; ok {
		return false
	}
	members[c.ID()] = c

	rooms := r.joined[c.ID()]
	if rooms == nil {
		rooms = make(map[domain.Room]struct{})
		r.joined[c.ID()] = rooms
	}
	rooms[room] = struct{}{}
	return true
}

func (r *Registry) Leave(room domain.Room, c contracts.Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(room, c.ID())
}

func (r *Registry) LeaveAll(c contracts.Client) []domain.Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms := make([]domain.Room, 0, len(r.joined[c.ID()]))
	for room := range r.joined[c.ID()] {
		rooms = append(rooms, room)
	}
	for _, room := range rooms {
		r.leaveLocked(room, c.ID())
	}
	return rooms
}

func (r *Registry) leaveLocked(room domain.Room, id uuid.UUID) bool {
	members := r.rooms[room]
	if _, ok := members[id]; !ok {
		return false
	}
	delete(members, id)
	if rooms := r.joined[id]; rooms != nil {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(r.joined, id)
		}
	}
	if len(members) == 0 {
		delete(r.rooms, room)
		if cancel := r.workers[room]; cancel != nil {
			cancel()
			delete(r.workers, room)
		}
	}
	return true
}

func (r *Registry) Connected(room domain.Room, userID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.rooms[room] {
		if p := c.Principal(); p != nil && p.ID == userID {
			return true
		}
	}
	return false
}

func (r *Registry) Members(room domain.Room) []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(r.rooms[room]))
	for id := range r.rooms[room] {
		ids = append(ids, id)
	}
	return ids
}

// Broadcast delivers locally, then hands the frame to the broker for other
// processes. A failed publish only costs remote delivery.
func (r *Registry) Broadcast(ctx context.Context, room domain.Room, frame []byte, exclude uuid.UUID) {
	metrics.Broadcasts.WithLabelValues(string(room.Kind)).Inc()
	r.deliver(room, frame, exclude)

	if r.broker == nil {
		return
	}
	payload, err := json.Marshal(relayFrame{Origin: r.origin, Exclude: exclude, Frame: frame})
	if err != nil {
		r.log.ErrorContext(ctx, "registry - broadcast - encode relay failed", logging.Room(room.String()), logging.Err(err))
		return
	}
	if err := r.broker.Publish(ctx, room.Subject(), payload); err != nil {
		metrics.BrokerErrors.WithLabelValues("publish").Inc()
		r.log.WarnContext(ctx, "registry - broadcast - publish failed, delivered locally only", logging.Room(room.String()), logging.Err(err))
	}
}

// deliver sends to every local member under the read lock. Handles that
// refuse the frame are pruned after the lock is released.
func (r *Registry) deliver(room domain.Room, frame []byte, exclude uuid.UUID) {
	var failed []contracts.Client

	r.mu.RLock()
	for id, c := range r.rooms[room] {
		if id == exclude {
			continue
		}
		if err := c.Send(frame); err != nil {
			failed = append(failed, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range failed {
		metrics.DeliveryFailures.WithLabelValues(string(room.Kind)).Inc()
		r.log.Warn("registry - broadcast - delivery failed, pruning handle",
			logging.Room(room.String()), logging.Handle(c.ID()), logging.Sequence(c.Seq()))
		r.LeaveAll(c)
		c.Close()
	}
}

// startRelay must be called with mu held.
func (r *Registry) startRelay(room domain.Room) {
	if r.broker == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.workers[room] = cancel
	go r.relay(ctx, room)
}

func (r *Registry) relay(ctx context.Context, room domain.Room) {
	handler := func(payload []byte) {
		var rf relayFrame
		if err := json.Unmarshal(payload, &rf); err != nil {
			metrics.BrokerErrors.WithLabelValues("decode").Inc()
			r.log.Warn("registry - relay - decode failed", logging.Room(room.String()), logging.Err(err))
			return
		}
		if rf.Origin == r.origin {
			return
		}
		r.deliver(room, rf.Frame, rf.Exclude)
	}

	for {
		err := r.broker.Subscribe(ctx, room.Subject(), handler)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			metrics.BrokerErrors.WithLabelValues("subscribe").Inc()
			r.log.Warn("registry - relay - subscribe failed", logging.Room(room.String()), logging.Err(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(resubscribeDelay):
		}
	}
}

// Close stops every relay subscription.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for room, cancel := range r.workers {
		cancel()
		delete(r.workers, room)
	}
}
