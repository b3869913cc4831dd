package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"jobagg-engine/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedis_RoundTrip(t *testing.T) {
	addr := os.Getenv("JOBAGG_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("JOBAGG_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	c := NewRedis(RedisOptions{Addr: addr})
	defer c.Close()
	require.NoError(t, c.Ping(ctx))

	fp := domain.Fingerprint("q=redis test|l=cape town|s=pnet")
	require.NoError(t, c.Invalidate(ctx, fp))

	require.NoError(t, c.Set(ctx, fp, result(2), time.Minute))
	e, ok, err := c.Get(ctx, fp)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, e.Result.Postings, 2)
	assert.Equal(t, fp, e.Fingerprint)

	require.NoError(t, c.Invalidate(ctx, fp))
	_, ok, err = c.Get(ctx, fp)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisKey_HashesFingerprint(t *testing.T) {
	k := redisKey("q=a|l=b|s=c")
	assert.Len(t, k, len(redisPrefix)+64)
	assert.Equal(t, k, redisKey("q=a|l=b|s=c"))
}
