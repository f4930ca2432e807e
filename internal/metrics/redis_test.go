package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisMetrics(t *testing.T) (*RedisMetrics, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisMetrics(client), mr
}

func TestRedisMetrics_GetSetDel(t *testing.T) {
	rm, _ := newTestRedisMetrics(t)
	ctx := context.Background()

	_, err := rm.Get(ctx, "missing")
	assert.ErrorIs(t, err, redis.Nil)

	require.NoError(t, rm.Set(ctx, "k", []byte("v"), time.Minute))

	val, err := rm.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), val)

	require.NoError(t, rm.Del(ctx, "k"))
	_, err = rm.Get(ctx, "k")
	assert.ErrorIs(t, err, redis.Nil)
}

func TestRedisMetrics_HitRate(t *testing.T) {
	rm, mr := newTestRedisMetrics(t)
	ctx := context.Background()

	assert.Equal(t, 0.0, rm.HitRate())

	require.NoError(t, mr.Set("a", "1"))
	_, _ = rm.Get(ctx, "a")
	_, _ = rm.Get(ctx, "a")
	_, _ = rm.Get(ctx, "a")
	_, _ = rm.Get(ctx, "b")

	assert.InDelta(t, 0.75, rm.HitRate(), 1e-9)

	rm.ResetStats()
	assert.Equal(t, 0.0, rm.HitRate())
}

func TestRedisMetrics_Ping(t *testing.T) {
	rm, mr := newTestRedisMetrics(t)

	assert.NoError(t, rm.Ping(context.Background()))
	assert.Equal(t, rm.client, rm.Client())

	mr.Close()
	assert.Error(t, rm.Ping(context.Background()))
}
