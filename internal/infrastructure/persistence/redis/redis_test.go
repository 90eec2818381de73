package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiebiao/library/internal/domain/inventory"
	apperrors "github.com/xiebiao/library/pkg/errors"
)

// 需要真实Redis: LIBRARY_TEST_REDIS_ADDR=127.0.0.1:6379
func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("LIBRARY_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LIBRARY_TEST_REDIS_ADDR未设置,跳过Redis集成测试")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	require.NoError(t, client.Ping(context.Background()).Err())
	require.NoError(t, client.FlushDB(context.Background()).Err())
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestSessionStore(t *testing.T) {
	client := newTestClient(t)
	store := NewSessionStore(client)
	ctx := context.Background()

	require.NoError(t, store.SaveSession(ctx, 7, map[string]interface{}{
		"email": "reader@example.com",
		"role":  "member",
	}, time.Minute))

	got, err := store.GetSession(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "reader@example.com", got["email"])

	ttl, err := client.TTL(ctx, sessionKey(7)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, store.DeleteSession(ctx, 7))
	_, err = store.GetSession(ctx, 7)
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))
}

func TestSessionStore_Blacklist(t *testing.T) {
	store := NewSessionStore(newTestClient(t))
	ctx := context.Background()

	ok, err := store.IsInBlacklist(ctx, "token-a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.AddToBlacklist(ctx, "token-a", time.Minute))
	ok, err = store.IsInBlacklist(ctx, "token-a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInventoryCache(t *testing.T) {
	client := newTestClient(t)
	cache := NewInventoryCache(client, time.Minute)
	ctx := context.Background()

	miss, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, miss)

	now := time.Now().UTC().Truncate(time.Second)
	rec, err := inventory.NewRecord(1, 3, now)
	require.NoError(t, err)
	require.NoError(t, cache.Set(ctx, rec))

	hit, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, 3, hit.Copies)
	assert.True(t, hit.Available)
	assert.True(t, now.Equal(hit.DateAdded))

	require.NoError(t, cache.Invalidate(ctx, 1, 2))
	miss, err = cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, miss)
}

func TestInventoryCache_CorruptEntry(t *testing.T) {
	client := newTestClient(t)
	cache := NewInventoryCache(client, 0)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, inventoryKey(9), "not-json", time.Minute).Err())
	got, err := cache.Get(ctx, 9)
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err := client.Exists(ctx, inventoryKey(9)).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInventoryCache_OlderVersionDoesNotOverwrite(t *testing.T) {
	client := newTestClient(t)
	cache := NewInventoryCache(client, time.Minute)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	stale, err := inventory.NewRecord(5, 1, now)
	require.NoError(t, err)
	fresh := *stale
	require.NoError(t, fresh.Decrement(now))

	require.NoError(t, cache.Set(ctx, &fresh))
	require.NoError(t, cache.Set(ctx, stale))

	hit, err := cache.Get(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, 0, hit.Copies)
	assert.False(t, hit.Available)
	assert.Equal(t, fresh.Version, hit.Version)

	ttl, err := client.PTTL(ctx, inventoryKey(5)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	restocked := fresh
	restocked.Increment(now)
	require.NoError(t, cache.Set(ctx, &restocked))
	hit, err = cache.Get(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, hit.Copies)
}
