package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultCartTTL = 30 * 24 * time.Hour

// RedisStorage namespaces keys per owner and refreshes the TTL on every save.
type RedisStorage struct {
	client redis.Cmdable
	owner  string
	ttl    time.Duration
}

func NewRedisStorage(client redis.Cmdable, owner string, ttl time.Duration) (*RedisStorage, error) {
	if client == nil {
		return nil, errors.New("redis client required for cart storage")
	}
	if owner == "" {
		return nil, errors.New("cart owner is required")
	}
	if ttl <= 0 {
		ttl = defaultCartTTL
	}
	return &RedisStorage{client: client, owner: owner, ttl: ttl}, nil
}

func (r *RedisStorage) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

func (r *RedisStorage) Save(ctx context.Context, key string, data []byte) error {
	if err := r.client.Set(ctx, r.key(key), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) key(name string) string {
	return fmt.Sprintf("checkout:%s:%s", r.owner, name)
}
