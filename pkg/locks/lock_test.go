package locks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestRedisLockerExclusive(t *testing.T) {
	store := newFakeStore()
	locker, err := NewRedisLocker(store, time.Minute, 0)
	if err != nil {
		t.Fatalf("new locker: %v", err)
	}
	ctx := context.Background()

	unlock, err := locker.Acquire(ctx, "vendor_payout", "7")
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	if _, err := locker.Acquire(ctx, "vendor_payout", "7"); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired, got %v", err)
	}
	if _, err := locker.Acquire(ctx, "vendor_payout", "8"); err != nil {
		t.Fatalf("different id should not contend: %v", err)
	}

	if err := unlock(ctx); err != nil {
		t.Fatalf("unlock failed: %v", err)
	}
	if _, err := locker.Acquire(ctx, "vendor_payout", "7"); err != nil {
		t.Fatalf("expected acquire after unlock, got %v", err)
	}
}

func TestRedisLockerUnlockKeepsForeignOwner(t *testing.T) {
	store := newFakeStore()
	locker, _ := NewRedisLocker(store, time.Minute, 0)
	ctx := context.Background()

	unlock, err := locker.Acquire(ctx, "vendor_payout", "1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	// Simulate TTL expiry followed by another owner taking the key.
	store.set("mc:lock:vendor_payout:1", "someone-else")

	if err := unlock(ctx); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if value, _ := store.Get(ctx, "mc:lock:vendor_payout:1"); value != "someone-else" {
		t.Fatalf("foreign owner should be untouched, got %q", value)
	}
}

func TestRedisLockerWaitsForRelease(t *testing.T) {
	store := newFakeStore()
	locker, _ := NewRedisLocker(store, time.Minute, time.Second)
	ctx := context.Background()

	unlock, err := locker.Acquire(ctx, "vendor_payout", "3")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var secondErr error
	go func() {
		defer wg.Done()
		second, err := locker.Acquire(ctx, "vendor_payout", "3")
		secondErr = err
		if err == nil {
			_ = second(ctx)
		}
	}()

	time.Sleep(50 * time.Millisecond)
	if err := unlock(ctx); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	wg.Wait()
	if secondErr != nil {
		t.Fatalf("waiting acquire should succeed after release, got %v", secondErr)
	}
}

func TestNoopLocker(t *testing.T) {
	unlock, err := NoopLocker{}.Acquire(context.Background(), "vendor_payout", "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := unlock(context.Background()); err != nil {
		t.Fatalf("unexpected unlock error: %v", err)
	}
}

type fakeStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]string{}}
}

func (f *fakeStore) set(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = fmt.Sprint(value)
	return true, nil
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.data[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (f *fakeStore) DelIfValue(_ context.Context, key, value string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data[key] != value {
		return false, nil
	}
	delete(f.data, key)
	return true, nil
}

func (f *fakeStore) LockKey(scope, id string) string {
	return "mc:lock:" + scope + ":" + id
}
