package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSemaphoreLocker_SecondAcquireFailsUntilReleased(t *testing.T) {
	l := NewSemaphoreLocker()

	release, ok, err := l.TryAcquire(context.Background(), "doc-1")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryAcquire(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.False(t, ok, "a held lock must not be re-acquirable")

	release()

	release2, ok, err := l.TryAcquire(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.True(t, ok)
	release2()
}

func TestSemaphoreLocker_DistinctNamesAreIndependent(t *testing.T) {
	l := NewSemaphoreLocker()

	releaseA, ok, err := l.TryAcquire(context.Background(), "doc-a")
	require.NoError(t, err)
	require.True(t, ok)
	defer releaseA()

	releaseB, ok, err := l.TryAcquire(context.Background(), "doc-b")
	require.NoError(t, err)
	assert.True(t, ok, "locks on different documents must not contend")
	releaseB()
}

func newTestRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, "dirc:lock:", time.Minute), mr
}

func TestRedisLocker_SecondAcquireFailsUntilReleased(t *testing.T) {
	l, _ := newTestRedisLocker(t)

	release, ok, err := l.TryAcquire(context.Background(), "doc-1")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryAcquire(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.False(t, ok)

	release()

	release2, ok, err := l.TryAcquire(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.True(t, ok)
	release2()
}

func TestRedisLocker_ReleaseOnlyRemovesOwnLock(t *testing.T) {
	l1, mr := newTestRedisLocker(t)

	client2 := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client2.Close() })
	l2 := NewRedisLocker(client2, "dirc:lock:", time.Minute)

	release1, ok, err := l1.TryAcquire(context.Background(), "doc-1")
	require.NoError(t, err)
	require.True(t, ok)
	release1()

	release2, ok, err := l2.TryAcquire(context.Background(), "doc-1")
	require.NoError(t, err)
	require.True(t, ok)

	// the first locker's release must be a no-op now that l2 owns the key
	release1()
	_, ok, err = l1.TryAcquire(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.False(t, ok, "a stale release must not free another owner's lock")

	release2()
}

func TestRedisLocker_OwnerIDsDiffer(t *testing.T) {
	l1, mr := newTestRedisLocker(t)
	client2 := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client2.Close() })
	l2 := NewRedisLocker(client2, "dirc:lock:", time.Minute)

	assert.NotEqual(t, l1.OwnerID(), l2.OwnerID())
}
