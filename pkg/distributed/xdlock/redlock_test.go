package xdlock_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xcoord/pkg/distributed/xdlock"
)

func newTestRedlock(t *testing.T, nodes int) (xdlock.RedlockFactory, []*miniredis.Miniredis) {
	t.Helper()
	servers := make([]*miniredis.Miniredis, nodes)
	clients := make([]redis.UniversalClient, nodes)
	for i := range nodes {
		servers[i] = miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: servers[i].Addr()})
		t.Cleanup(func() { _ = client.Close() })
		clients[i] = client
	}
	factory, err := xdlock.NewRedlockFactory(clients)
	require.NoError(t, err)
	return factory, servers
}

func TestNewRedlockFactory_NilClients(t *testing.T) {
	_, err := xdlock.NewRedlockFactory(nil)
	assert.ErrorIs(t, err, xdlock.ErrNilClient)

	_, err = xdlock.NewRedlockFactory([]redis.UniversalClient{nil})
	assert.ErrorIs(t, err, xdlock.ErrNilClient)
}

func TestRedlock_TryLock(t *testing.T) {
	factory, servers := newTestRedlock(t, 3)
	ctx := context.Background()
	assert.NotNil(t, factory.Redsync())

	h, err := factory.TryLock(ctx, "job", xdlock.WithTTL(3*time.Second))
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "lock:job", h.Key())

	for _, mr := range servers {
		v, err := mr.Get("lock:job")
		require.NoError(t, err)
		assert.Equal(t, h.Token(), v)
	}

	other, err := factory.TryLock(ctx, "job")
	require.NoError(t, err)
	assert.Nil(t, other)

	require.NoError(t, h.Unlock(ctx))
	for _, mr := range servers {
		assert.False(t, mr.Exists("lock:job"))
	}
}

func TestRedlock_DefaultExpiry(t *testing.T) {
	factory, servers := newTestRedlock(t, 1)

	h, err := factory.TryLock(context.Background(), "job")
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Positive(t, servers[0].TTL("lock:job"))
}

func TestRedlock_LockTimeout(t *testing.T) {
	factory, _ := newTestRedlock(t, 1)
	ctx := context.Background()

	a, err := factory.Lock(ctx, "job", xdlock.WithTTL(5*time.Second))
	require.NoError(t, err)

	_, err = factory.Lock(ctx, "job", xdlock.WithBlockingTimeout(150*time.Millisecond))
	assert.True(t, xdlock.IsTimeout(err))

	require.NoError(t, a.Unlock(ctx))
	b, err := factory.Lock(ctx, "job", xdlock.WithBlockingTimeout(time.Second))
	require.NoError(t, err)
	require.NoError(t, b.Unlock(ctx))
}

func TestRedlock_UnlockAfterExpiry(t *testing.T) {
	factory, servers := newTestRedlock(t, 1)
	ctx := context.Background()

	h, err := factory.TryLock(ctx, "job", xdlock.WithTTL(time.Second))
	require.NoError(t, err)
	require.NotNil(t, h)

	servers[0].FastForward(2 * time.Second)
	assert.ErrorIs(t, h.Unlock(ctx), xdlock.ErrNotLocked)
}

func TestRedlock_CloseAndHealth(t *testing.T) {
	factory, servers := newTestRedlock(t, 2)
	ctx := context.Background()

	require.NoError(t, factory.Health(ctx))

	servers[1].Close()
	assert.Error(t, factory.Health(ctx))

	require.NoError(t, factory.Close(ctx))
	assert.ErrorIs(t, factory.Health(ctx), xdlock.ErrFactoryClosed)
	_, err := factory.TryLock(ctx, "job")
	assert.ErrorIs(t, err, xdlock.ErrFactoryClosed)
}
