package locks

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newLocker(t *testing.T, ttl time.Duration) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, ttl), mr
}

func TestObtainIsExclusive(t *testing.T) {
	locker, _ := newLocker(t, time.Minute)
	ctx := context.Background()

	lease, err := locker.Obtain(ctx, "lock:a")
	require.NoError(t, err)

	_, err = locker.Obtain(ctx, "lock:a")
	require.ErrorIs(t, err, ErrNotObtained)

	other, err := locker.Obtain(ctx, "lock:b")
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lease.Release(ctx))
	again, err := locker.Obtain(ctx, "lock:a")
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestLeaseExpires(t *testing.T) {
	locker, mr := newLocker(t, time.Second)
	ctx := context.Background()

	lease, err := locker.Obtain(ctx, "lock:a")
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	next, err := locker.Obtain(ctx, "lock:a")
	require.NoError(t, err)
	require.NoError(t, lease.Release(ctx))
	require.NoError(t, next.Release(ctx))
}

func TestWithLockReleasesAfterError(t *testing.T) {
	locker, mr := newLocker(t, time.Minute)
	ctx := context.Background()
	boom := errors.New("boom")

	err := locker.WithLock(ctx, "lock:a", func(ctx context.Context) error {
		require.True(t, mr.Exists("lock:a"))
		_, err := locker.Obtain(ctx, "lock:a")
		require.ErrorIs(t, err, ErrNotObtained)
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.False(t, mr.Exists("lock:a"))
}
