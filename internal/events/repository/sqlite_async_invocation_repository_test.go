package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/eventrelay/internal/database"
	"github.com/allisson/eventrelay/internal/events/domain"
	"github.com/allisson/eventrelay/internal/testutil"
)

func newTestInvocation(createdAt time.Time) *domain.AsyncInvocation {
	return &domain.AsyncInvocation{
		ID:           uuid.Must(uuid.NewV7()),
		EventName:    "order.placed",
		ListenerName: "send_confirmation_email",
		Payload:      `{"event_name":"order.placed","listener_name":"send_confirmation_email","event":{"order_id":"42"}}`,
		Status:       domain.AsyncInvocationStatusPending,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
}

func TestNewSQLiteAsyncInvocationRepository(t *testing.T) {
	db := testutil.SetupSQLiteDB(t)
	defer testutil.TeardownDB(t, db)

	repo := NewSQLiteAsyncInvocationRepository(db)
	assert.NotNil(t, repo)
	assert.Equal(t, db, repo.db)
}

func TestSQLiteAsyncInvocationRepository_CreateAndGet(t *testing.T) {
	db := testutil.SetupSQLiteDB(t)
	defer testutil.TeardownDB(t, db)

	repo := NewSQLiteAsyncInvocationRepository(db)
	ctx := context.Background()

	t.Run("Success_RoundTrip", func(t *testing.T) {
		createdAt := time.Date(2026, 3, 1, 12, 30, 0, 123456789, time.UTC)
		invocation := newTestInvocation(createdAt)

		require.NoError(t, repo.Create(ctx, invocation))

		got, err := repo.Get(ctx, invocation.ID)
		require.NoError(t, err)
		assert.Equal(t, invocation.ID, got.ID)
		assert.Equal(t, invocation.EventName, got.EventName)
		assert.Equal(t, invocation.ListenerName, got.ListenerName)
		assert.Equal(t, invocation.Payload, got.Payload)
		assert.Equal(t, domain.AsyncInvocationStatusPending, got.Status)
		assert.Equal(t, 0, got.Attempts)
		assert.Nil(t, got.LastError)
		assert.True(t, createdAt.Equal(got.CreatedAt))
		assert.True(t, createdAt.Equal(got.UpdatedAt))
	})

	t.Run("Error_DuplicateID", func(t *testing.T) {
		invocation := newTestInvocation(time.Now())
		require.NoError(t, repo.Create(ctx, invocation))

		assert.Error(t, repo.Create(ctx, invocation))
	})

	t.Run("Error_NotFound", func(t *testing.T) {
		got, err := repo.Get(ctx, uuid.Must(uuid.NewV7()))
		assert.ErrorIs(t, err, domain.ErrAsyncInvocationNotFound)
		assert.Nil(t, got)
	})
}

func TestSQLiteAsyncInvocationRepository_Create_WithinTransaction(t *testing.T) {
	db := testutil.SetupSQLiteDB(t)
	defer testutil.TeardownDB(t, db)

	repo := NewSQLiteAsyncInvocationRepository(db)
	txManager := database.NewTxManager(db)
	ctx := context.Background()

	invocation := newTestInvocation(time.Now())
	err := txManager.WithTx(ctx, func(ctx context.Context) error {
		if err := repo.Create(ctx, invocation); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	_, err = repo.Get(ctx, invocation.ID)
	assert.ErrorIs(t, err, domain.ErrAsyncInvocationNotFound)
}

func TestSQLiteAsyncInvocationRepository_Delete(t *testing.T) {
	db := testutil.SetupSQLiteDB(t)
	defer testutil.TeardownDB(t, db)

	repo := NewSQLiteAsyncInvocationRepository(db)
	ctx := context.Background()

	invocation := newTestInvocation(time.Now())
	require.NoError(t, repo.Create(ctx, invocation))

	require.NoError(t, repo.Delete(ctx, invocation.ID))
	_, err := repo.Get(ctx, invocation.ID)
	assert.ErrorIs(t, err, domain.ErrAsyncInvocationNotFound)

	// Deleting twice is fine.
	assert.NoError(t, repo.Delete(ctx, invocation.ID))
}

func TestSQLiteAsyncInvocationRepository_MarkFailed(t *testing.T) {
	db := testutil.SetupSQLiteDB(t)
	defer testutil.TeardownDB(t, db)

	repo := NewSQLiteAsyncInvocationRepository(db)
	ctx := context.Background()

	t.Run("Success_IncrementsAttempts", func(t *testing.T) {
		createdAt := time.Now().UTC().Add(-time.Minute)
		invocation := newTestInvocation(createdAt)
		require.NoError(t, repo.Create(ctx, invocation))

		failedAt := createdAt.Add(30 * time.Second)
		require.NoError(t, repo.MarkFailed(ctx, invocation.ID, "smtp timeout", failedAt))
		require.NoError(t, repo.MarkFailed(ctx, invocation.ID, "smtp refused", failedAt.Add(time.Second)))

		got, err := repo.Get(ctx, invocation.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.AsyncInvocationStatusFailed, got.Status)
		assert.Equal(t, 2, got.Attempts)
		require.NotNil(t, got.LastError)
		assert.Equal(t, "smtp refused", *got.LastError)
		assert.True(t, createdAt.Equal(got.CreatedAt))
		assert.True(t, failedAt.Add(time.Second).Equal(got.UpdatedAt))
		assert.Equal(t, invocation.Payload, got.Payload)
	})

	t.Run("Error_NotFound", func(t *testing.T) {
		err := repo.MarkFailed(ctx, uuid.Must(uuid.NewV7()), "boom", time.Now())
		assert.ErrorIs(t, err, domain.ErrAsyncInvocationNotFound)
	})
}

func TestSQLiteAsyncInvocationRepository_ListOutstanding(t *testing.T) {
	db := testutil.SetupSQLiteDB(t)
	defer testutil.TeardownDB(t, db)

	repo := NewSQLiteAsyncInvocationRepository(db)
	ctx := context.Background()

	t.Run("Success_Empty", func(t *testing.T) {
		invocations, err := repo.ListOutstanding(ctx, 0, 10)
		require.NoError(t, err)
		assert.NotNil(t, invocations)
		assert.Empty(t, invocations)
	})

	base := time.Now().UTC().Add(-time.Hour)
	first := newTestInvocation(base)
	second := newTestInvocation(base.Add(time.Minute))
	third := newTestInvocation(base.Add(2 * time.Minute))

	// Insert out of order.
	require.NoError(t, repo.Create(ctx, third))
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))
	require.NoError(t, repo.MarkFailed(ctx, second.ID, "boom", time.Now()))

	t.Run("Success_OldestFirstIncludingFailed", func(t *testing.T) {
		invocations, err := repo.ListOutstanding(ctx, 0, 10)
		require.NoError(t, err)
		require.Len(t, invocations, 3)
		assert.Equal(t, first.ID, invocations[0].ID)
		assert.Equal(t, second.ID, invocations[1].ID)
		assert.Equal(t, domain.AsyncInvocationStatusFailed, invocations[1].Status)
		assert.Equal(t, third.ID, invocations[2].ID)
	})

	t.Run("Success_Pagination", func(t *testing.T) {
		invocations, err := repo.ListOutstanding(ctx, 1, 1)
		require.NoError(t, err)
		require.Len(t, invocations, 1)
		assert.Equal(t, second.ID, invocations[0].ID)
	})
}

func TestSQLiteAsyncInvocationRepository_ListRetryable(t *testing.T) {
	db := testutil.SetupSQLiteDB(t)
	defer testutil.TeardownDB(t, db)

	repo := NewSQLiteAsyncInvocationRepository(db)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	first := newTestInvocation(base)
	second := newTestInvocation(base.Add(time.Minute))
	third := newTestInvocation(base.Add(2 * time.Minute))
	for _, invocation := range []*domain.AsyncInvocation{first, second, third} {
		require.NoError(t, repo.Create(ctx, invocation))
	}

	// first failed twice most recently, second failed once a while ago.
	require.NoError(t, repo.MarkFailed(ctx, second.ID, "boom", base.Add(3*time.Minute)))
	require.NoError(t, repo.MarkFailed(ctx, first.ID, "boom", base.Add(4*time.Minute)))
	require.NoError(t, repo.MarkFailed(ctx, first.ID, "boom", base.Add(5*time.Minute)))

	t.Run("Success_LeastRecentlyAttemptedFirst", func(t *testing.T) {
		invocations, err := repo.ListRetryable(ctx, 0, 10)
		require.NoError(t, err)
		require.Len(t, invocations, 3)
		assert.Equal(t, third.ID, invocations[0].ID)
		assert.Equal(t, second.ID, invocations[1].ID)
		assert.Equal(t, first.ID, invocations[2].ID)
	})

	t.Run("Success_RespectsLimit", func(t *testing.T) {
		invocations, err := repo.ListRetryable(ctx, 0, 1)
		require.NoError(t, err)
		require.Len(t, invocations, 1)
		assert.Equal(t, third.ID, invocations[0].ID)
	})

	t.Run("Success_SkipsExhausted", func(t *testing.T) {
		invocations, err := repo.ListRetryable(ctx, 2, 10)
		require.NoError(t, err)
		require.Len(t, invocations, 2)
		assert.Equal(t, third.ID, invocations[0].ID)
		assert.Equal(t, second.ID, invocations[1].ID)
	})

	t.Run("Success_CountExhausted", func(t *testing.T) {
		count, err := repo.CountExhausted(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		count, err = repo.CountExhausted(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})
}

func TestSQLiteAsyncInvocationRepository_OlderThan(t *testing.T) {
	db := testutil.SetupSQLiteDB(t)
	defer testutil.TeardownDB(t, db)

	repo := NewSQLiteAsyncInvocationRepository(db)
	ctx := context.Background()

	threshold := time.Now().UTC().Add(-7 * 24 * time.Hour)
	old1 := newTestInvocation(threshold.Add(-48 * time.Hour))
	old2 := newTestInvocation(threshold.Add(-time.Nanosecond))
	boundary := newTestInvocation(threshold)
	recent := newTestInvocation(threshold.Add(time.Hour))

	for _, invocation := range []*domain.AsyncInvocation{recent, boundary, old2, old1} {
		require.NoError(t, repo.Create(ctx, invocation))
	}

	t.Run("Success_ListStrictlyOlder", func(t *testing.T) {
		invocations, err := repo.ListOlderThan(ctx, threshold, 10)
		require.NoError(t, err)
		require.Len(t, invocations, 2)
		assert.Equal(t, old1.ID, invocations[0].ID)
		assert.Equal(t, old2.ID, invocations[1].ID)
	})

	t.Run("Success_ListRespectsLimit", func(t *testing.T) {
		invocations, err := repo.ListOlderThan(ctx, threshold, 1)
		require.NoError(t, err)
		require.Len(t, invocations, 1)
		assert.Equal(t, old1.ID, invocations[0].ID)
	})

	t.Run("Success_Count", func(t *testing.T) {
		count, err := repo.CountOlderThan(ctx, threshold)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})

	t.Run("Success_ThresholdInAnotherZone", func(t *testing.T) {
		count, err := repo.CountOlderThan(ctx, threshold.In(time.FixedZone("UTC-3", -3*3600)))
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})
}
