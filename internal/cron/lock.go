package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/angelmondragon/marketcore/pkg/locks"
)

const lockScope = "cron"

// Lock coordinates exclusive cron runs.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// LockerLock adapts a keyed locks.Locker to the cycle lock used by Service.
type LockerLock struct {
	locker locks.Locker
	id     string

	mu     sync.Mutex
	unlock locks.Unlock
}

// NewLockerLock guards cycles with the (cron, id) key of locker.
func NewLockerLock(locker locks.Locker, id string) (*LockerLock, error) {
	if locker == nil {
		return nil, errors.New("locker required for cron lock")
	}
	if id == "" {
		return nil, errors.New("lock id is required")
	}
	return &LockerLock{locker: locker, id: id}, nil
}

// Acquire reports false when another instance owns the cycle.
func (l *LockerLock) Acquire(ctx context.Context) (bool, error) {
	unlock, err := l.locker.Acquire(ctx, lockScope, l.id)
	if errors.Is(err, locks.ErrNotAcquired) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("acquire cron lock: %w", err)
	}
	l.mu.Lock()
	l.unlock = unlock
	l.mu.Unlock()
	return true, nil
}

// Release frees a lock taken by Acquire. It is a no-op otherwise.
func (l *LockerLock) Release(ctx context.Context) error {
	l.mu.Lock()
	unlock := l.unlock
	l.unlock = nil
	l.mu.Unlock()
	if unlock == nil {
		return nil
	}
	return unlock(ctx)
}
