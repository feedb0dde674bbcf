package inflight

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalRejectsSecondHolder(t *testing.T) {
	g := NewLocal()
	ctx := context.Background()

	release, err := g.TryAcquire(ctx, "user-1")
	require.NoError(t, err)

	_, err = g.TryAcquire(ctx, "user-1")
	assert.ErrorIs(t, err, ErrBusy)

	other, err := g.TryAcquire(ctx, "user-2")
	require.NoError(t, err)
	other()

	release()
	release()
	again, err := g.TryAcquire(ctx, "user-1")
	require.NoError(t, err)
	again()
}

func TestLocalConcurrentAcquire(t *testing.T) {
	g := NewLocal()
	var winners int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := g.TryAcquire(context.Background(), "confirm"); err == nil {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), winners)
}

func setupRedisGuard(t *testing.T) (*Redis, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	g, err := NewRedis(client, "test", 10*time.Second, nil)
	require.NoError(t, err)
	return g, mr
}

func TestRedisGuard(t *testing.T) {
	g, mr := setupRedisGuard(t)
	ctx := context.Background()

	release, err := g.TryAcquire(ctx, "pay:user-1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:pay:user-1"))
	assert.Equal(t, 10*time.Second, mr.TTL("test:pay:user-1"))

	_, err = g.TryAcquire(ctx, "pay:user-1")
	assert.ErrorIs(t, err, ErrBusy)

	release()
	assert.False(t, mr.Exists("test:pay:user-1"))
}

func TestRedisGuardExpiresCrashedHolder(t *testing.T) {
	g, mr := setupRedisGuard(t)
	ctx := context.Background()

	stale, err := g.TryAcquire(ctx, "k")
	require.NoError(t, err)
	mr.FastForward(11 * time.Second)

	fresh, err := g.TryAcquire(ctx, "k")
	require.NoError(t, err)

	// the stale holder must not drop the new owner's lock
	stale()
	assert.True(t, mr.Exists("test:k"))
	fresh()
	assert.False(t, mr.Exists("test:k"))
}

func TestRedisReleaseLeavesForeignToken(t *testing.T) {
	g, mr := setupRedisGuard(t)
	ctx := context.Background()

	release, err := g.TryAcquire(ctx, "k")
	require.NoError(t, err)

	// another owner took over after expiry
	require.NoError(t, mr.Set("test:k", "someone-else"))
	release()

	got, err := mr.Get("test:k")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)

	require.NoError(t, g.release(ctx, "test:missing", "nobody"))
}
