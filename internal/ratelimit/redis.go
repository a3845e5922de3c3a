package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"pixelmint/internal/model"
)

// RedisLimiter stores cooldown markers as keys with a TTL equal to the
// minimum interval. SET NX makes check-and-record a single atomic step, so
// the limiter is safe across instances.
type RedisLimiter struct {
	client      *redis.Client
	minInterval time.Duration
}

var _ Limiter = (*RedisLimiter)(nil)

func NewRedisLimiter(client *redis.Client, minInterval time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, minInterval: minInterval}
}

func (l *RedisLimiter) Allow(ctx context.Context, userID string, kind model.OperationKind) (Admission, error) {
	key := cooldownKey(userID, kind)
	set, err := l.client.SetNX(ctx, key, time.Now().UTC().Unix(), l.minInterval).Result()
	if err != nil {
		return Admission{}, fmt.Errorf("ratelimit: check cooldown: %w", err)
	}
	if !set {
		return Admission{}, ErrCoolingDown
	}
	return Admission{ID: uuid.New().String()}, nil
}
