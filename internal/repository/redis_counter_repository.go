package repository

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const redisCounterPrefix = "counter:"

type redisCounterRepository struct {
	client *redis.Client
}

// NewRedisCounterRepository keeps counters in Redis using INCRBY, which is
// atomic and persists across restarts when Redis persistence is enabled.
func NewRedisCounterRepository(client *redis.Client) CounterRepository {
	return &redisCounterRepository{client: client}
}

func (r *redisCounterRepository) Increment(ctx context.Context, name string, delta int64) (int64, error) {
	return r.client.IncrBy(ctx, redisCounterPrefix+name, delta).Result()
}
