package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_TryLock(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_AcquireAndRelease", func(t *testing.T) {
		l := NewLocal()

		handle, ok, err := l.TryLock(ctx, "retry:1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, l.Held("retry:1"))

		require.NoError(t, handle.Unlock(ctx))
		assert.False(t, l.Held("retry:1"))
	})

	t.Run("Success_HeldKeyNotAcquired", func(t *testing.T) {
		l := NewLocal()

		_, ok, err := l.TryLock(ctx, "retry:1")
		require.NoError(t, err)
		require.True(t, ok)

		handle, ok, err := l.TryLock(ctx, "retry:1")
		assert.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, handle)
	})

	t.Run("Success_DistinctKeysIndependent", func(t *testing.T) {
		l := NewLocal()

		_, ok1, err := l.TryLock(ctx, "retry:1")
		require.NoError(t, err)
		_, ok2, err := l.TryLock(ctx, "retry:2")
		require.NoError(t, err)

		assert.True(t, ok1)
		assert.True(t, ok2)
	})

	t.Run("Error_EmptyKey", func(t *testing.T) {
		_, _, err := NewLocal().TryLock(ctx, "")
		assert.ErrorIs(t, err, ErrEmptyKey)
	})

	t.Run("Error_CancelledContext", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, ok, err := NewLocal().TryLock(cancelled, "retry:1")
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, ok)
	})

	t.Run("Error_StaleHandleCannotReleaseNewOwner", func(t *testing.T) {
		l := NewLocal()

		first, _, err := l.TryLock(ctx, "retry:1")
		require.NoError(t, err)
		require.NoError(t, first.Unlock(ctx))

		_, ok, err := l.TryLock(ctx, "retry:1")
		require.NoError(t, err)
		require.True(t, ok)

		assert.ErrorIs(t, first.Unlock(ctx), ErrNotHeld)
		assert.True(t, l.Held("retry:1"))
	})
}

func TestLocal_WithLock(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_ReleasesAfterFn", func(t *testing.T) {
		l := NewLocal()
		called := false

		err := l.WithLock(ctx, "retry:1", func(ctx context.Context) error {
			called = true
			assert.True(t, l.Held("retry:1"))
			return nil
		})

		assert.NoError(t, err)
		assert.True(t, called)
		assert.False(t, l.Held("retry:1"))
	})

	t.Run("Success_ReturnsFnError", func(t *testing.T) {
		l := NewLocal()
		fnErr := errors.New("listener failed")

		err := l.WithLock(ctx, "retry:1", func(ctx context.Context) error {
			return fnErr
		})

		assert.ErrorIs(t, err, fnErr)
		assert.False(t, l.Held("retry:1"))
	})

	t.Run("Success_ReleasesOnPanic", func(t *testing.T) {
		l := NewLocal()

		assert.Panics(t, func() {
			_ = l.WithLock(ctx, "retry:1", func(ctx context.Context) error {
				panic("boom")
			})
		})
		assert.False(t, l.Held("retry:1"))
	})

	t.Run("Error_NotAcquired", func(t *testing.T) {
		l := NewLocal()
		_, _, err := l.TryLock(ctx, "retry:1")
		require.NoError(t, err)

		called := false
		err = l.WithLock(ctx, "retry:1", func(ctx context.Context) error {
			called = true
			return nil
		})

		assert.ErrorIs(t, err, ErrNotAcquired)
		assert.False(t, called)
	})

	t.Run("Error_NilFn", func(t *testing.T) {
		err := NewLocal().WithLock(ctx, "retry:1", nil)
		assert.ErrorIs(t, err, ErrNilLockFn)
	})

	t.Run("Success_AtMostOneHolderUnderContention", func(t *testing.T) {
		l := NewLocal()

		var inFlight, maxInFlight, ran atomic.Int32
		release := make(chan struct{})
		var wg sync.WaitGroup

		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = l.WithLock(ctx, "retry:1", func(ctx context.Context) error {
					current := inFlight.Add(1)
					for {
						prev := maxInFlight.Load()
						if current <= prev || maxInFlight.CompareAndSwap(prev, current) {
							break
						}
					}
					ran.Add(1)
					<-release
					inFlight.Add(-1)
					return nil
				})
			}()
		}

		// Wait until one goroutine holds the key, then let it finish.
		assert.Eventually(t, func() bool { return ran.Load() >= 1 }, timeout, tick)
		close(release)
		wg.Wait()

		assert.Equal(t, int32(1), maxInFlight.Load())
		assert.False(t, l.Held("retry:1"))
	})
}
