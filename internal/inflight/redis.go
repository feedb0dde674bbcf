package inflight

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/imrishuroy/go-spa-checkout/internal/logger"
)

const defaultLockTTL = 30 * time.Second

// Redis guards keys across instances with SETNX + TTL. The TTL bounds how
// long a crashed holder can block the key.
type Redis struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	log    *logger.Logger
}

func NewRedis(client redis.Cmdable, prefix string, ttl time.Duration, log *logger.Logger) (*Redis, error) {
	if client == nil {
		return nil, errors.New("redis client required for inflight guard")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if prefix == "" {
		prefix = "inflight"
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl, log: log}, nil
}

func (r *Redis) TryAcquire(ctx context.Context, key string) (func(), error) {
	lockKey := fmt.Sprintf("%s:%s", r.prefix, key)
	owner := uuid.NewString()

	ok, err := r.client.SetNX(ctx, lockKey, owner, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("setnx: %w", err)
	}
	if !ok {
		return nil, ErrBusy
	}

	return func() {
		// release must outlive a cancelled request context
		releaseCtx := context.WithoutCancel(ctx)
		if err := r.release(releaseCtx, lockKey, owner); err != nil {
			r.log.Warn(releaseCtx, "inflight release failed", err)
		}
	}, nil
}

// releaseScript deletes the lock only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// release deletes the key only while this owner still holds it. The compare
// and delete run as one script so an expired lock taken over by another
// owner is left alone.
func (r *Redis) release(ctx context.Context, lockKey, owner string) error {
	if err := releaseScript.Run(ctx, r.client, []string{lockKey}, owner).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
