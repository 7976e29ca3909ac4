package storage

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gem-ledger/internal/config"
	"github.com/gem-ledger/internal/models"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewRedisCacheFromClient(client)
	t.Cleanup(func() { _ = cache.Close() })

	return cache, mr
}

func TestNewRedisCache(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cache, err := NewRedisCache(&config.RedisConfig{
		Host:           "localhost",
		Port:           "6379",
		MaxConnections: 10,
	})
	if err != nil {
		t.Skipf("Skipping test - Redis not available: %v", err)
		return
	}
	defer func() {
		_ = cache.Close()
	}()

	if err := cache.Ping(testContext(t)); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestTaskStartStore(t *testing.T) {
	cache, mr := setupTestRedis(t)
	store := NewTaskStartStore(cache, time.Hour)
	ctx := testContext(t)

	t.Run("missing start reports false", func(t *testing.T) {
		_, ok, err := store.Get(ctx, "acc", "task")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("record then get round trips at millisecond precision", func(t *testing.T) {
		at := time.Date(2026, 3, 1, 12, 0, 0, 123_000_000, time.UTC)
		require.NoError(t, store.Record(ctx, "acc", "task", at))

		got, ok, err := store.Get(ctx, "acc", "task")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, at.Equal(got))
	})

	t.Run("restart overwrites", func(t *testing.T) {
		later := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
		require.NoError(t, store.Record(ctx, "acc", "task", later))

		got, _, err := store.Get(ctx, "acc", "task")
		require.NoError(t, err)
		assert.True(t, later.Equal(got))
	})

	t.Run("records expire", func(t *testing.T) {
		require.NoError(t, store.Record(ctx, "acc", "expiring", time.Now()))
		mr.FastForward(2 * time.Hour)

		_, ok, err := store.Get(ctx, "acc", "expiring")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("clear removes the record", func(t *testing.T) {
		require.NoError(t, store.Clear(ctx, "acc", "task"))

		_, ok, err := store.Get(ctx, "acc", "task")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("corrupt value is an error", func(t *testing.T) {
		require.NoError(t, mr.Set(taskStartKey("acc", "bad"), "not-a-number"))

		_, _, err := store.Get(ctx, "acc", "bad")
		assert.Error(t, err)
	})
}

func TestSettingsCache(t *testing.T) {
	cache, mr := setupTestRedis(t)
	sc := NewSettingsCache(cache, time.Minute)
	ctx := testContext(t)

	_, ok, err := sc.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	want := models.DefaultSettings()
	require.NoError(t, sc.Set(ctx, want))

	got, ok, err := sc.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.Levels, got.Levels)
	assert.Equal(t, want.Channels, got.Channels)
	assert.Equal(t, want.MinWithdrawalUSDT, got.MinWithdrawalUSDT)

	require.NoError(t, sc.Invalidate(ctx))
	_, ok, err = sc.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	t.Run("corrupt entry is a miss", func(t *testing.T) {
		require.NoError(t, mr.Set(settingsCacheKey, "{"))
		_, ok, err := sc.Get(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
