package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*RedisClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc, err := NewRedisClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { rc.Close() })
	return rc, mr
}

func TestNewRedisClientErrors(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "://nope")
	assert.Error(t, err)
}

func TestUnreadCache(t *testing.T) {
	rc, mr := newTestClient(t)
	ctx := context.Background()

	_, ok := rc.GetUnread(ctx, "u1")
	assert.False(t, ok)

	rc.SetUnread(ctx, "u1", 7)
	rc.SetUnread(ctx, "u2", 3)
	n, ok := rc.GetUnread(ctx, "u1")
	require.True(t, ok)
	assert.Equal(t, int64(7), n)

	rc.InvalidateUnread(ctx, "u1", "u2")
	_, ok = rc.GetUnread(ctx, "u1")
	assert.False(t, ok)
	_, ok = rc.GetUnread(ctx, "u2")
	assert.False(t, ok)

	rc.SetUnread(ctx, "u3", 1)
	mr.FastForward(UnreadTTL + time.Second)
	_, ok = rc.GetUnread(ctx, "u3")
	assert.False(t, ok)
}

func TestTokenRevocation(t *testing.T) {
	rc, mr := newTestClient(t)
	ctx := context.Background()

	revoked, err := rc.IsTokenRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, rc.RevokeToken(ctx, "jti-1", time.Minute))
	revoked, err = rc.IsTokenRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	mr.FastForward(2 * time.Minute)
	revoked, err = rc.IsTokenRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, rc.RevokeToken(ctx, "expired", 0))
}

func TestIncrementWindow(t *testing.T) {
	rc, mr := newTestClient(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, left, err := rc.IncrementWindow(ctx, "1.2.3.4", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, n)
		assert.LessOrEqual(t, left, time.Minute)
	}

	mr.FastForward(61 * time.Second)
	n, _, err := rc.IncrementWindow(ctx, "1.2.3.4", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
