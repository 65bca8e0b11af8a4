package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketcore/pkg/locks"
)

type fakeLocker struct {
	held     map[string]bool
	err      error
	unlocked int
}

func (f *fakeLocker) Acquire(_ context.Context, scope, id string) (locks.Unlock, error) {
	if f.err != nil {
		return nil, f.err
	}
	key := scope + ":" + id
	if f.held[key] {
		return nil, locks.ErrNotAcquired
	}
	f.held[key] = true
	return func(context.Context) error {
		delete(f.held, key)
		f.unlocked++
		return nil
	}, nil
}

func TestLockerLockAcquireAndRelease(t *testing.T) {
	locker := &fakeLocker{held: map[string]bool{}}
	first, err := NewLockerLock(locker, "marketcore-cron")
	require.NoError(t, err)
	second, err := NewLockerLock(locker, "marketcore-cron")
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, locker.held["cron:marketcore-cron"])

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, second.Release(ctx))
	require.Zero(t, locker.unlocked)

	require.NoError(t, first.Release(ctx))
	require.NoError(t, first.Release(ctx))
	require.Equal(t, 1, locker.unlocked)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLockerLockWrapsBackendErrors(t *testing.T) {
	lock, err := NewLockerLock(&fakeLocker{err: errors.New("redis unavailable")}, "id")
	require.NoError(t, err)
	_, err = lock.Acquire(context.Background())
	require.ErrorContains(t, err, "redis unavailable")
}

func TestLockerLockOverNoopLockerAlwaysAcquires(t *testing.T) {
	lock, err := NewLockerLock(locks.NoopLocker{}, "id")
	require.NoError(t, err)
	ok, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, lock.Release(context.Background()))

	_, err = NewLockerLock(nil, "id")
	require.Error(t, err)
}
