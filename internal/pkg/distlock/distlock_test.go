package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exercise(t *testing.T, newLock Factory) {
	t.Helper()
	ctx := context.Background()

	first := newLock("campaign:L003")
	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	second := newLock("campaign:L003")
	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "held lock is not granted twice")

	other := newLock("campaign:L004")
	ok, err = other.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "different keys are independent")

	require.NoError(t, second.Release(ctx))
	ok, _ = newLock("campaign:L003").Acquire(ctx)
	assert.False(t, ok, "a non-owner release leaves the lock in place")

	require.NoError(t, first.Release(ctx))
	ok, err = newLock("campaign:L003").Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalLock(t *testing.T) {
	exercise(t, NewFactory(nil, 0))
}

func TestRedisLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	exercise(t, NewFactory(client, time.Minute))
}

func TestRedisLockExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	ctx := context.Background()

	ok, err := NewRedisLock(client, "campaign:X", time.Minute).Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists("listbuilder:lock:campaign:X"))

	mr.FastForward(2 * time.Minute)
	ok, err = NewRedisLock(client, "campaign:X", time.Minute).Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "a crashed holder's lock lapses with its TTL")
}

func TestRedisLockUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	mr.Close()

	_, err := NewRedisLock(client, "campaign:X", time.Minute).Acquire(context.Background())
	assert.Error(t, err)
}
