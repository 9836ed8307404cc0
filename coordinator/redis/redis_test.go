package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	co "github.com/unkn0wn-root/storekit/coordinator"
)

func TestLeaseMillis(t *testing.T) {
	assert.Equal(t, int64(1), leaseMillis(0))
	assert.Equal(t, int64(1), leaseMillis(time.Microsecond))
	assert.Equal(t, int64(1500), leaseMillis(1500*time.Millisecond))
}

func TestNewDefaults(t *testing.T) {
	_, err := New(Config{})
	require.ErrorIs(t, err, ErrNilClient)

	c, err := New(Config{Client: goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0"}), CloseClient: true})
	require.NoError(t, err)
	assert.Equal(t, "storekit_lock__channel:job", c.channel("job"))
	require.NoError(t, c.Close(context.Background()))
}

func newIntegration(t *testing.T) (*Coordinator, string) {
	t.Helper()
	addr := os.Getenv("STOREKIT_REDIS_ADDR")
	if addr == "" {
		t.Skip("STOREKIT_REDIS_ADDR not set")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	c, err := New(Config{Client: rdb, CloseClient: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c, "storekit-test:lock:" + uuid.NewString()
}

func TestRedisLockLifecycle(t *testing.T) {
	c, name := newIntegration(t)
	ctx := context.Background()

	g, err := c.TryAcquire(ctx, name, "h1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, co.Grant{Acquired: true, HoldCount: 1}, g)

	g, err = c.TryAcquire(ctx, name, "h1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), g.HoldCount)

	g, err = c.TryAcquire(ctx, name, "h2", time.Minute)
	require.NoError(t, err)
	assert.False(t, g.Acquired)
	assert.Greater(t, g.RetryAfter, time.Duration(0))

	st, err := c.Status(ctx, name, "h2")
	require.NoError(t, err)
	assert.Equal(t, co.Status{Locked: true, HoldCount: 0}, st)

	sub, err := c.Subscribe(ctx, name)
	require.NoError(t, err)
	defer sub.Close()

	n, err := c.Release(ctx, name, "h1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = c.Release(ctx, name, "h1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	select {
	case <-sub.C():
	case <-time.After(2 * time.Second):
		t.Fatal("no release notification")
	}

	_, err = c.Release(ctx, name, "h1", time.Minute)
	assert.True(t, errors.Is(err, co.ErrNotHeld))
}

func TestRedisLeaseExpires(t *testing.T) {
	c, name := newIntegration(t)
	ctx := context.Background()

	_, err := c.TryAcquire(ctx, name, "h1", 50*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(120 * time.Millisecond)

	ok, err := c.Renew(ctx, name, "h1", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	g, err := c.TryAcquire(ctx, name, "h2", time.Second)
	require.NoError(t, err)
	assert.True(t, g.Acquired)
	ok, err = c.ForceRelease(ctx, name)
	require.NoError(t, err)
	assert.True(t, ok)
}
