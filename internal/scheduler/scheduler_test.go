package scheduler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newLogger(buf *syncBuffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestNew(t *testing.T) {
	noop := func(ctx context.Context) error { return nil }

	t.Run("Success_SkipsDisabledJobs", func(t *testing.T) {
		s, err := New(nil,
			Job{Name: "retry_sweeper", Schedule: "@every 5s", Enabled: true, Run: noop},
			Job{Name: "history_reaper", Schedule: "@daily", Enabled: false, Run: noop},
		)

		require.NoError(t, err)
		assert.Equal(t, []string{"retry_sweeper"}, s.Jobs())
		require.NoError(t, s.Stop(context.Background()))
	})

	t.Run("Success_AcceptsStandardAndSecondsSpecs", func(t *testing.T) {
		s, err := New(nil,
			Job{Name: "five_fields", Schedule: "0 3 * * *", Enabled: true, Run: noop},
			Job{Name: "six_fields", Schedule: "*/10 * * * * *", Enabled: true, Run: noop},
		)

		require.NoError(t, err)
		assert.Len(t, s.Jobs(), 2)
		require.NoError(t, s.Stop(context.Background()))
	})

	t.Run("Error_InvalidSchedule", func(t *testing.T) {
		_, err := New(nil, Job{Name: "retry_sweeper", Schedule: "every five seconds", Enabled: true, Run: noop})

		assert.ErrorContains(t, err, "invalid schedule")
		assert.ErrorContains(t, err, "retry_sweeper")
	})

	t.Run("Error_MissingRun", func(t *testing.T) {
		_, err := New(nil, Job{Name: "retry_sweeper", Schedule: "@every 5s", Enabled: true})

		assert.ErrorContains(t, err, "has no run function")
	})
}

func TestScheduler_Run(t *testing.T) {
	t.Run("Success_RunsJobs", func(t *testing.T) {
		defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

		var runs atomic.Int32
		s, err := New(nil, Job{
			Name:     "retry_sweeper",
			Schedule: "@every 1s",
			Enabled:  true,
			Run: func(ctx context.Context) error {
				runs.Add(1)
				return nil
			},
		})
		require.NoError(t, err)

		s.Start()
		assert.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 10*time.Millisecond)
		require.NoError(t, s.Stop(context.Background()))
	})

	t.Run("Success_SkipsOverlappingRuns", func(t *testing.T) {
		defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

		var inFlight, maxInFlight, runs atomic.Int32
		release := make(chan struct{})
		s, err := New(nil, Job{
			Name:     "retry_sweeper",
			Schedule: "@every 1s",
			Enabled:  true,
			Run: func(ctx context.Context) error {
				current := inFlight.Add(1)
				defer inFlight.Add(-1)
				if current > maxInFlight.Load() {
					maxInFlight.Store(current)
				}
				runs.Add(1)
				<-release
				return nil
			},
		})
		require.NoError(t, err)

		s.Start()
		assert.Eventually(t, func() bool { return runs.Load() == 1 }, 3*time.Second, 10*time.Millisecond)
		// Let at least one more tick fire while the first run blocks.
		time.Sleep(1500 * time.Millisecond)
		close(release)

		require.NoError(t, s.Stop(context.Background()))
		assert.Equal(t, int32(1), maxInFlight.Load())
	})

	t.Run("Success_LogsJobErrors", func(t *testing.T) {
		defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

		logs := &syncBuffer{}
		s, err := New(newLogger(logs), Job{
			Name:     "history_reaper",
			Schedule: "@every 1s",
			Enabled:  true,
			Run: func(ctx context.Context) error {
				return errors.New("database is locked")
			},
		})
		require.NoError(t, err)

		s.Start()
		assert.Eventually(t, func() bool {
			return bytes.Contains([]byte(logs.String()), []byte("database is locked"))
		}, 3*time.Second, 10*time.Millisecond)
		require.NoError(t, s.Stop(context.Background()))
		assert.Contains(t, logs.String(), `"job":"history_reaper"`)
	})

	t.Run("Success_RecoversPanics", func(t *testing.T) {
		defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

		logs := &syncBuffer{}
		var runs atomic.Int32
		s, err := New(newLogger(logs), Job{
			Name:     "retry_sweeper",
			Schedule: "@every 1s",
			Enabled:  true,
			Run: func(ctx context.Context) error {
				runs.Add(1)
				panic("sweep exploded")
			},
		})
		require.NoError(t, err)

		s.Start()
		assert.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 10*time.Millisecond)
		require.NoError(t, s.Stop(context.Background()))
		assert.Eventually(t, func() bool {
			return bytes.Contains([]byte(logs.String()), []byte("sweep exploded"))
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("Error_StopTimeoutCancelsJobs", func(t *testing.T) {
		defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

		started := make(chan struct{})
		var once sync.Once
		var cancelled atomic.Bool
		s, err := New(nil, Job{
			Name:     "retry_sweeper",
			Schedule: "@every 1s",
			Enabled:  true,
			Run: func(ctx context.Context) error {
				once.Do(func() { close(started) })
				<-ctx.Done()
				cancelled.Store(true)
				return ctx.Err()
			},
		})
		require.NoError(t, err)

		s.Start()
		<-started

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		assert.ErrorIs(t, s.Stop(ctx), context.DeadlineExceeded)
		assert.True(t, cancelled.Load())
		// A second Stop is a no-op.
		assert.NoError(t, s.Stop(context.Background()))
	})
}

func TestCronLogger(t *testing.T) {
	logs := &syncBuffer{}
	logger := NewCronLogger(newLogger(logs))

	logger.Info("wake", "now", "2026-01-01")
	logger.Error(errors.New("boom"), "panic", "stack", "trace")

	out := logs.String()
	assert.Contains(t, out, `"level":"DEBUG","msg":"cron: wake"`)
	assert.Contains(t, out, `"level":"ERROR","msg":"cron: panic","error":"boom"`)
}
