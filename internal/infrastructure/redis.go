package infrastructure

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// connectRedis opens a client and pings it so misconfiguration surfaces at
// boot.
func connectRedis(addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	return rdb, nil
}
