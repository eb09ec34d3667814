// Package lock provides the keyed execution lock that guarantees a given async
// invocation record is never attempted by two goroutines (or processes) at once.
//
// Acquisition never waits: when the key is held the caller gets ErrNotAcquired
// and is expected to skip the attempt.
package lock

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotAcquired is returned by WithLock when the key is held by someone else.
	ErrNotAcquired = errors.New("lock not acquired")
	// ErrEmptyKey is returned when an empty lock key is provided.
	ErrEmptyKey = errors.New("lock key cannot be empty")
	// ErrNotHeld is returned by Unlock when the lock was already released or expired.
	ErrNotHeld = errors.New("lock was not held or already expired")
	// ErrNilLockFn is returned when a nil function is passed to WithLock.
	ErrNilLockFn = errors.New("lock function is nil")
)

// Handle represents an acquired lock. It must be released via Unlock.
type Handle interface {
	Unlock(ctx context.Context) error
}

// Locker acquires keyed locks.
//
// Example usage:
//
//	err := locker.WithLock(ctx, record.LockKey(), func(ctx context.Context) error {
//	    return attempt(ctx, record)
//	})
//	if errors.Is(err, lock.ErrNotAcquired) {
//	    return nil // another attempt is in flight, skip
//	}
type Locker interface {
	// TryLock attempts to acquire key once. It returns false without error when the
	// key is already held.
	TryLock(ctx context.Context, key string) (Handle, bool, error)

	// WithLock runs fn while holding key and releases it on every exit path,
	// including panics. Returns ErrNotAcquired when the key is held.
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// withLock implements WithLock on top of a TryLock function.
func withLock(
	ctx context.Context,
	tryLock func(ctx context.Context, key string) (Handle, bool, error),
	key string,
	fn func(ctx context.Context) error,
) (err error) {
	if fn == nil {
		return ErrNilLockFn
	}

	handle, acquired, err := tryLock(ctx, key)
	if err != nil {
		return err
	}
	if !acquired {
		return ErrNotAcquired
	}

	defer func() {
		// Release even when ctx is already cancelled or timed out.
		if unlockErr := handle.Unlock(context.WithoutCancel(ctx)); unlockErr != nil {
			err = errors.Join(err, fmt.Errorf("release lock %s: %w", key, unlockErr))
		}
	}()

	return fn(ctx)
}
