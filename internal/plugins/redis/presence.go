package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"meshup/internal/core/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisPresenceStore keeps one ZSET per scope scored by last seen unix time
// and one status key per user.
type RedisPresenceStore struct {
	rdb *redis.Client
}

func NewRedisPresenceStore(rdb *redis.Client) *RedisPresenceStore {
	return &RedisPresenceStore{
		rdb: rdb,
	}
}

func presenceKey(scope string) string { return "presence:" + scope }

func statusKey(userID uuid.UUID) string { return "presence:status:" + userID.String() }

// MarkOnline adds/updates a user in the scope's ZSet with the current timestamp.
func (p *RedisPresenceStore) MarkOnline(
	ctx context.Context,
	scope string,
	userID uuid.UUID,
	ttl time.Duration, // "inactivity threshold"
) error {
	key := presenceKey(scope)
	pipe := p.rdb.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(time.Now().Unix()),
		Member: userID.String(),
	})
	// Set an expiration on the whole ZSet so it doesn't leak memory
	// if the scope becomes inactive.
	pipe.Expire(ctx, key, ttl*2)
	_, err := pipe.Exec(ctx)
	return err
}

func (p *RedisPresenceStore) MarkOffline(ctx context.Context, scope string, userID uuid.UUID) error {
	return p.rdb.ZRem(ctx, presenceKey(scope), userID.String()).Err()
}

// Online returns users who have checked in within the last ttl.
func (p *RedisPresenceStore) Online(ctx context.Context, scope string, ttl time.Duration) ([]string, error) {
	key := presenceKey(scope)
	threshold := time.Now().Add(-ttl).Unix()

	// Remove stale members first (Self-cleaning)
	if err := p.rdb.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(threshold, 10)).Err(); err != nil {
		return nil, err
	}
	return p.rdb.ZRange(ctx, key, 0, -1).Result()
}

func (p *RedisPresenceStore) SetStatus(ctx context.Context, userID uuid.UUID, status domain.UserStatus, ttl time.Duration) error {
	return p.rdb.Set(ctx, statusKey(userID), string(status), ttl).Err()
}

// Status reads the marker; an expired or missing marker is offline.
func (p *RedisPresenceStore) Status(ctx context.Context, userID uuid.UUID) (domain.UserStatus, error) {
	s, err := p.rdb.Get(ctx, statusKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.StatusOffline, nil
	}
	if err != nil {
		return "", err
	}
	return domain.UserStatus(s), nil
}
