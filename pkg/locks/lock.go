package locks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	defaultTTL          = 30 * time.Second
	defaultPollInterval = 25 * time.Millisecond
)

// ErrNotAcquired is returned when the lock stayed owned by someone else
// for the whole wait window.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker serializes work on a (scope, id) pair across processes.
type Locker interface {
	Acquire(ctx context.Context, scope, id string) (Unlock, error)
}

// Unlock releases an acquired lock.
type Unlock func(ctx context.Context) error

// redisStore defines the operations used by RedisLocker.
type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DelIfValue(ctx context.Context, key, value string) (bool, error)
	LockKey(scope, id string) string
}

// RedisLocker implements Locker using Redis SETNX + TTL. The TTL bounds how
// long a crashed owner can hold the key.
type RedisLocker struct {
	client       redisStore
	ttl          time.Duration
	wait         time.Duration
	pollInterval time.Duration
}

// NewRedisLocker constructs a Redis-backed locker. wait bounds how long
// Acquire polls before giving up; zero means a single attempt.
func NewRedisLocker(client redisStore, ttl, wait time.Duration) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisLocker{client: client, ttl: ttl, wait: wait, pollInterval: defaultPollInterval}, nil
}

// Acquire polls until the key is owned by this caller, the wait window
// elapses or ctx is done.
func (l *RedisLocker) Acquire(ctx context.Context, scope, id string) (Unlock, error) {
	if scope == "" || id == "" {
		return nil, errors.New("lock scope and id are required")
	}
	key := l.client.LockKey(scope, id)
	owner := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, key, owner, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("setnx: %w", err)
		}
		if ok {
			return l.unlockFunc(key, owner), nil
		}
		if !time.Now().Before(deadline) {
			return nil, ErrNotAcquired
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.pollInterval):
		}
	}
}

// unlockFunc frees the lock only if this owner still holds it; a key that
// expired and was taken by someone else is left alone.
func (l *RedisLocker) unlockFunc(key, owner string) Unlock {
	return func(ctx context.Context) error {
		if _, err := l.client.DelIfValue(ctx, key, owner); err != nil {
			return fmt.Errorf("release lock: %w", err)
		}
		return nil
	}
}

// NoopLocker is used when no Redis is configured; callers then rely on
// database row locks alone.
type NoopLocker struct{}

func (NoopLocker) Acquire(context.Context, string, string) (Unlock, error) {
	return func(context.Context) error { return nil }, nil
}
