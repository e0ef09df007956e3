package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/cabinet/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return srv, client
}

func TestCabinetLimiterExhaustsBurst(t *testing.T) {
	_, client := newRedis(t)
	limiter := NewCabinetLimiter(config.Config{RateLimitPerMin: 60, RateLimitBurst: 3}, client)
	require.True(t, limiter.Enabled())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		res, err := limiter.Allow(ctx, "42")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i+1)
	}

	res, err := limiter.Allow(ctx, "42")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 3, res.Limit)
	assert.Greater(t, res.RetryAfter, time.Duration(0))

	other, err := limiter.Allow(ctx, "43")
	require.NoError(t, err)
	assert.True(t, other.Allowed, "buckets are per cabinet")
}

func TestCabinetLimiterDisabled(t *testing.T) {
	var limiter *CabinetLimiter
	assert.False(t, limiter.Enabled())

	res, err := limiter.Allow(context.Background(), "42")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	assert.Nil(t, NewCabinetLimiter(config.Config{RateLimitPerMin: 60}, nil))
}

func TestTokenBucketRejectsInvalidLimits(t *testing.T) {
	_, client := newRedis(t)
	bucket := NewTokenBucket(client)

	_, err := bucket.Allow(context.Background(), "k", 0, 1)
	assert.ErrorIs(t, err, ErrInvalidLimit)
	_, err = bucket.Allow(context.Background(), "", 1, 1)
	assert.ErrorIs(t, err, ErrInvalidLimit)

	var unset *TokenBucket
	_, err = unset.Allow(context.Background(), "k", 1, 1)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestLockerWithLock(t *testing.T) {
	srv, client := newRedis(t)
	locker := NewLocker(client)
	ctx := context.Background()

	token, ok, err := locker.TryLock(ctx, "job:prune", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ran, err := locker.WithLock(ctx, "job:prune", time.Minute, func(context.Context) error {
		t.Fatal("must not run while the lease is held")
		return nil
	})
	require.NoError(t, err)
	assert.False(t, ran)

	require.NoError(t, locker.Release(ctx, "job:prune", "not-the-owner"))
	assert.True(t, srv.Exists("job:prune"))
	require.NoError(t, locker.Release(ctx, "job:prune", token))
	assert.False(t, srv.Exists("job:prune"))

	boom := errors.New("boom")
	ran, err = locker.WithLock(ctx, "job:prune", time.Minute, func(context.Context) error { return boom })
	assert.True(t, ran)
	assert.ErrorIs(t, err, boom)
	assert.False(t, srv.Exists("job:prune"), "lease released after fn")
}

func TestNilLockerRunsInline(t *testing.T) {
	var locker *Locker
	called := false
	ran, err := locker.WithLock(context.Background(), "k", time.Second, func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.True(t, called)
}
