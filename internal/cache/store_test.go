package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/prompthub/authcore/internal/database/testutil"
	"github.com/prompthub/authcore/internal/models"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestMemoryStoreFixedWindow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	store.clock = clock.Now
	ctx := context.Background()

	count, ttl, err := store.IncrementWithTTL(ctx, "login|1.2.3.4", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.Equal(t, time.Minute, ttl)

	clock.Advance(20 * time.Second)
	count, ttl, err = store.IncrementWithTTL(ctx, "login|1.2.3.4", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
	require.Equal(t, 40*time.Second, ttl)

	clock.Advance(40 * time.Second)
	count, _, err = store.IncrementWithTTL(ctx, "login|1.2.3.4", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count, "window should restart")

	clock.Advance(2 * time.Minute)
	removed, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)
}

func TestDatabaseStoreFixedWindow(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewDatabaseStore(db)
	store.clock = clock.Now
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		count, _, err := store.IncrementWithTTL(ctx, "k", time.Minute)
		require.NoError(t, err)
		require.EqualValues(t, i, count)
	}

	clock.Advance(time.Minute)
	count, ttl, err := store.IncrementWithTTL(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.Equal(t, time.Minute, ttl)

	clock.Advance(time.Minute)
	removed, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	var remaining int64
	require.NoError(t, db.Model(&models.CacheEntry{}).Count(&remaining).Error)
	require.Zero(t, remaining)
}

func TestRedisStoreRequiresAddress(t *testing.T) {
	_, err := NewRedisStore(context.Background(), RedisConfig{})
	require.ErrorContains(t, err, "address is required")
}

func TestRedisStoreIncrement(t *testing.T) {
	addr := os.Getenv("AUTHCORE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("AUTHCORE_TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	store, err := NewRedisStore(ctx, RedisConfig{Address: addr})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	key := "test|" + time.Now().Format(time.RFC3339Nano)
	count, ttl, err := store.IncrementWithTTL(ctx, key, time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.Greater(t, ttl, time.Duration(0))

	count, _, err = store.IncrementWithTTL(ctx, key, time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
}
