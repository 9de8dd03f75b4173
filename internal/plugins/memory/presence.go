package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"meshup/internal/core/domain"

	"github.com/google/uuid"
)

// PresenceStore mirrors the redis layout: per scope last seen times and per user statuses.
type PresenceStore struct {
	mu       sync.Mutex
	now      func() time.Time
	scopes   map[string]map[uuid.UUID]time.Time
	statuses map[uuid.UUID]statusEntry
}

type statusEntry struct {
	status  domain.UserStatus
	expires time.Time
}

func NewPresenceStore() *PresenceStore {
	return &PresenceStore{
		now:      time.Now,
		scopes:   make(map[string]map[uuid.UUID]time.Time),
		statuses: make(map[uuid.UUID]statusEntry),
	}
}

func (p *PresenceStore) MarkOnline(_ context.Context, scope string, userID uuid.UUID, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	members, ok := p.scopes[scope]
	if !ok {
		members = make(map[uuid.UUID]time.Time)
		p.scopes[scope] = members
	}
	members[userID] = p.now()
	return nil
}

func (p *PresenceStore) MarkOffline(_ context.Context, scope string, userID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if members, ok := p.scopes[scope]; ok {
		delete(members, userID)
		if len(members) == 0 {
			delete(p.scopes, scope)
		}
	}
	return nil
}

func (p *PresenceStore) Online(_ context.Context, scope string, ttl time.Duration) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cutoff := p.now().Add(-ttl)
	var out []string
	for id, seen := range p.scopes[scope] {
		if seen.After(cutoff) {
			out = append(out, id.String())
		}
	}
	sort.Strings(out)
	return out, nil
}

func (p *PresenceStore) SetStatus(_ context.Context, userID uuid.UUID, status domain.UserStatus, ttl time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses[userID] = statusEntry{status: status, expires: p.now().Add(ttl)}
	return nil
}

func (p *PresenceStore) Status(_ context.Context, userID uuid.UUID) (domain.UserStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.statuses[userID]
	if !ok || p.now().After(e.expires) {
		return domain.StatusOffline, nil
	}
	return e.status, nil
}

// Cooldown keeps markers in a map. Expired markers are dropped lazily on Acquire.
type Cooldown struct {
	mu      sync.Mutex
	now     func() time.Time
	markers map[string]time.Time
}

func NewCooldown() *Cooldown {
	return &Cooldown{now: time.Now, markers: make(map[string]time.Time)}
}

// SetClock replaces the time source. Tests use it to step past a window.
func (c *Cooldown) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *Cooldown) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if exp, ok := c.markers[key]; ok && now.Before(exp) {
		return false, nil
	}
	c.markers[key] = now.Add(ttl)
	return true, nil
}
