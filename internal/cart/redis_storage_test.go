package cart

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisStorage(t *testing.T, owner string) (*RedisStorage, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewRedisStorage(client, owner, time.Hour)
	require.NoError(t, err)
	return store, mr
}

func TestRedisStorageRoundTrip(t *testing.T) {
	store, mr := setupRedisStorage(t, "user-1")
	ctx := context.Background()

	missing, err := store.Load(ctx, ServicesKey)
	require.NoError(t, err)
	assert.Nil(t, missing)

	c := LoadServices(ctx, store, nil)
	require.NoError(t, c.Add(ctx, ServiceItem{ID: "1", Title: "Masaje", Price: dec("40000")}))

	stored, err := mr.Get("checkout:user-1:" + ServicesKey)
	require.NoError(t, err)
	assert.Contains(t, stored, `"title":"Masaje"`)
	assert.Equal(t, time.Hour, mr.TTL("checkout:user-1:"+ServicesKey))

	reloaded := LoadServices(ctx, store, nil)
	assert.True(t, reloaded.Subtotal().Equal(dec("40000")))

	require.NoError(t, reloaded.Clear(ctx))
	assert.False(t, mr.Exists("checkout:user-1:"+ServicesKey))
}

func TestRedisStorageIsolatesOwners(t *testing.T) {
	store, mr := setupRedisStorage(t, "user-1")
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, ProductsKey, []byte("[]")))

	other, err := NewRedisStorage(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "user-2", 0)
	require.NoError(t, err)
	data, err := other.Load(ctx, ProductsKey)
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestRedisStorageUnavailableYieldsEmptyCart(t *testing.T) {
	store, mr := setupRedisStorage(t, "user-1")
	mr.Close()

	c := LoadProducts(context.Background(), store, nil)
	assert.Zero(t, c.Len())
}

func TestNewRedisStorageValidates(t *testing.T) {
	_, err := NewRedisStorage(nil, "u", 0)
	assert.Error(t, err)
}
