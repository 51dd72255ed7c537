package cache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewWithClient(client)
	t.Cleanup(func() { _ = c.Close() })

	return c, mr
}

func TestRedisCache_GetMissReturnsEmpty(t *testing.T) {
	c, _ := setupTestCache(t)

	val, err := c.Get(t.Context(), "absent")
	require.NoError(t, err)
	assert.Empty(t, val)
}

func TestRedisCache_SetGetDel(t *testing.T) {
	c, mr := setupTestCache(t)
	ctx := t.Context()

	require.NoError(t, c.Set(ctx, ProgressKey(7), `{"xp":150}`, time.Minute))

	val, err := c.Get(ctx, ProgressKey(7))
	require.NoError(t, err)
	assert.Equal(t, `{"xp":150}`, val)

	mr.FastForward(2 * time.Minute)
	val, err = c.Get(ctx, ProgressKey(7))
	require.NoError(t, err)
	assert.Empty(t, val, "value should expire")

	require.NoError(t, c.Set(ctx, ProgressKey(7), "a", 0))
	require.NoError(t, c.Set(ctx, AchievementsKey(7), "b", 0))
	require.NoError(t, c.Del(ctx, UserKeys(7)...))
	assert.False(t, mr.Exists(ProgressKey(7)))
	assert.False(t, mr.Exists(AchievementsKey(7)))
}

func TestRedisCache_Health(t *testing.T) {
	c, mr := setupTestCache(t)

	assert.NoError(t, c.Health(t.Context()))

	mr.Close()
	assert.Error(t, c.Health(t.Context()))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "progress:user:42", ProgressKey(42))
	assert.Equal(t, "achievements:user:42", AchievementsKey(42))
	assert.Len(t, UserKeys(1), 2)
}
