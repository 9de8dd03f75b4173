package redis

import (
	"context"
	"fmt"

	"meshup/internal/config"

	"github.com/redis/go-redis/v9"
)

// NewClient dials the shared client used by presence, cooldown markers and
// the Pub/Sub broker. The connection is verified with a bounded PING.
func NewClient(ctx context.Context, service string, cfg *config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis - parse url: %w", err)
	}
	opts.ClientName = service
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis - ping %s: %w", opts.Addr, err)
	}
	return rdb, nil
}
