package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SPA_REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, "us-east-1", cfg.AWS.Region)
	assert.Equal(t, "bookings", cfg.Tables.Bookings)
	assert.Equal(t, 48*time.Hour, cfg.Tables.IdempotencyTTL)
	assert.Equal(t, 30*time.Second, cfg.Checkout.ConfirmLockTTL)
	assert.True(t, cfg.App.IsDev())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SPA_REDIS_URL", "redis://cache:6379/2")
	t.Setenv("SPA_APP_ENV", "prod")
	t.Setenv("SPA_BOOKINGS_TABLE", "spa-bookings")
	t.Setenv("SPA_CART_TTL", "24h")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.App.IsDev())
	assert.Equal(t, "spa-bookings", cfg.Tables.Bookings)
	assert.Equal(t, 24*time.Hour, cfg.Checkout.CartTTL)
}

func TestLoadRequiresRedis(t *testing.T) {
	t.Setenv("SPA_REDIS_URL", "")
	t.Setenv("SPA_REDIS_ADDR", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadWorkerSkipsRedis(t *testing.T) {
	t.Setenv("SPA_REDIS_URL", "")
	t.Setenv("SPA_REDIS_ADDR", "")
	t.Setenv("SPA_BOOKING_EVENTS_QUEUE_URL", "https://sqs.local/events")

	cfg, err := LoadWorker()
	require.NoError(t, err)
	assert.Equal(t, "SpaCheckout", cfg.Metrics.Namespace)
	assert.Equal(t, "https://sqs.local/events", cfg.Queue.BookingEventsURL)
}

func TestLoadLocalRunWithoutRedis(t *testing.T) {
	t.Setenv("SPA_REDIS_URL", "")
	t.Setenv("SPA_REDIS_ADDR", "")
	t.Setenv("SPA_RUN_LOCAL", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.App.RunLocal)
	assert.False(t, cfg.Redis.Configured())
}
