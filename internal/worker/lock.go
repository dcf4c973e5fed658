package worker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker guards the alert cycle so only one engine instance recomputes and
// sends per interval. A nil Locker means single-instance deployment and
// every cycle runs.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type redisLocker struct {
	client *redis.Client
}

func NewRedisLocker(client *redis.Client) Locker {
	return redisLocker{client: client}
}

func (l redisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, key, "1", ttl).Result()
}
