package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLocker(client, nil), mr
}

func TestWithLockRunsAndReleases(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	ran := false
	err := locker.WithLock(ctx, "job:test", time.Minute, func(ctx context.Context) error {
		ran = true
		require.True(t, mr.Exists("job:test"))
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)
	require.False(t, mr.Exists("job:test"))
}

func TestWithLockRejectsConcurrentHolder(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()

	err := locker.WithLock(ctx, "job:test", time.Minute, func(ctx context.Context) error {
		inner := locker.WithLock(ctx, "job:test", time.Minute, func(context.Context) error {
			t.Fatal("inner section must not run")
			return nil
		})
		require.ErrorIs(t, inner, ErrLockHeld)
		return nil
	})
	require.NoError(t, err)
}

func TestWithLockPropagatesError(t *testing.T) {
	locker, mr := newTestLocker(t)
	boom := errors.New("boom")
	err := locker.WithLock(context.Background(), "job:test", time.Minute, func(context.Context) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.False(t, mr.Exists("job:test"))
}

func TestNilLockerRunsDirectly(t *testing.T) {
	var locker *Locker
	called := false
	require.NoError(t, locker.WithLock(context.Background(), "k", time.Second, func(context.Context) error {
		called = true
		return nil
	}))
	require.True(t, called)
}

func TestOnceKeepsLeaseAfterSuccess(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	runs := 0
	run := func(context.Context) error {
		runs++
		return nil
	}
	require.NoError(t, locker.Once(ctx, "alert:2026-03-02", time.Hour, run))
	require.ErrorIs(t, locker.Once(ctx, "alert:2026-03-02", time.Hour, run), ErrLockHeld)
	require.Equal(t, 1, runs)

	mr.FastForward(2 * time.Hour)
	require.NoError(t, locker.Once(ctx, "alert:2026-03-02", time.Hour, run))
	require.Equal(t, 2, runs)
}

func TestOnceReleasesLeaseOnFailure(t *testing.T) {
	locker, mr := newTestLocker(t)
	boom := errors.New("smtp down")
	err := locker.Once(context.Background(), "alert:day", time.Hour, func(context.Context) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.False(t, mr.Exists("alert:day"))
}
