package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cooldown stores markers as SET NX EX keys, so the window is shared by every process.
type Cooldown struct {
	rdb *redis.Client
}

func NewCooldown(rdb *redis.Client) *Cooldown {
	return &Cooldown{rdb: rdb}
}

func (c *Cooldown) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, "cooldown:"+key, 1, ttl).Result()
}
