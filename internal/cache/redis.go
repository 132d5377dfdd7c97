package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisCachePrefix = "bsearch:cache:"
	redisLockPrefix  = "bsearch:lock:"
)

// RedisStore backs the fast tier; the stampede lock rides on SET NX PX.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, redisCachePrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, redisCachePrefix+key, value, ttl).Err()
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, redisCachePrefix+key).Err()
}

// AcquireLock sets the lock key only if absent. The TTL guarantees a crashed
// holder cannot wedge other waiters.
func (r *RedisStore) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, redisLockPrefix+key, "1", ttl).Result()
}

func (r *RedisStore) ReleaseLock(ctx context.Context, key string) error {
	return r.client.Del(ctx, redisLockPrefix+key).Err()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
