package contracts

import (
	"context"
	"time"

	"meshup/internal/core/domain"

	"github.com/google/uuid"
)

// PresenceStore keeps short-lived presence markers. Each scope is a ZSET of
// user ids scored by last seen time; statuses are per user keys with a TTL.
type PresenceStore interface {
	MarkOnline(ctx context.Context, scope string, userID uuid.UUID, ttl time.Duration) error
	MarkOffline(ctx context.Context, scope string, userID uuid.UUID) error
	// Online returns the users seen in scope within ttl.
	Online(ctx context.Context, scope string, ttl time.Duration) ([]string, error)
	SetStatus(ctx context.Context, userID uuid.UUID, status domain.UserStatus, ttl time.Duration) error
	Status(ctx context.Context, userID uuid.UUID) (domain.UserStatus, error)
}

// Cooldown hands out short-lived markers. Acquire returns false while a marker for key is alive.
type Cooldown interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}
