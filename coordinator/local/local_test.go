package local

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	co "github.com/unkn0wn-root/storekit/coordinator"
)

func TestReentrantCount(t *testing.T) {
	ctx := context.Background()
	c := New()

	for want := int64(1); want <= 3; want++ {
		g, err := c.TryAcquire(ctx, "l", "h1", time.Minute)
		require.NoError(t, err)
		require.True(t, g.Acquired)
		assert.Equal(t, want, g.HoldCount)
	}

	g, err := c.TryAcquire(ctx, "l", "h2", time.Minute)
	require.NoError(t, err)
	assert.False(t, g.Acquired)
	assert.Greater(t, g.RetryAfter, time.Duration(0))

	for want := int64(2); want >= 0; want-- {
		n, err := c.Release(ctx, "l", "h1", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	_, err = c.Release(ctx, "l", "h1", time.Minute)
	assert.True(t, errors.Is(err, co.ErrNotHeld))
}

func TestLeaseExpiryWakesSubscribers(t *testing.T) {
	ctx := context.Background()
	c := New()
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }

	_, err := c.TryAcquire(ctx, "l", "h1", time.Second)
	require.NoError(t, err)

	sub, err := c.Subscribe(ctx, "l")
	require.NoError(t, err)
	defer sub.Close()

	now = now.Add(time.Second)
	st, err := c.Status(ctx, "l", "h1")
	require.NoError(t, err)
	assert.False(t, st.Locked)

	select {
	case <-sub.C():
	default:
		t.Fatal("expiry should notify subscribers")
	}

	ok, err := c.Renew(ctx, "l", "h1", time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "an expired lease cannot be renewed")
}

func TestRenewExtendsLease(t *testing.T) {
	ctx := context.Background()
	c := New()
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }

	_, err := c.TryAcquire(ctx, "l", "h1", time.Second)
	require.NoError(t, err)

	now = now.Add(900 * time.Millisecond)
	ok, err := c.Renew(ctx, "l", "h1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(900 * time.Millisecond)
	st, err := c.Status(ctx, "l", "h1")
	require.NoError(t, err)
	assert.Equal(t, co.Status{Locked: true, HoldCount: 1}, st)

	ok, err = c.Renew(ctx, "l", "h2", time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "only the holder renews")
}

func TestForceReleaseNotifies(t *testing.T) {
	ctx := context.Background()
	c := New()

	_, err := c.TryAcquire(ctx, "l", "h1", time.Minute)
	require.NoError(t, err)
	sub, err := c.Subscribe(ctx, "l")
	require.NoError(t, err)

	ok, err := c.ForceRelease(ctx, "l")
	require.NoError(t, err)
	assert.True(t, ok)
	select {
	case <-sub.C():
	case <-time.After(time.Second):
		t.Fatal("no release notification")
	}

	ok, err = c.ForceRelease(ctx, "l")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assert.Empty(t, c.subs)
}
