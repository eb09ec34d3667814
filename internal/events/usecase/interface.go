// Package usecase implements durable event delivery: the dispatcher, the record store
// service, the guarded async invoker and the retry sweeper and history reaper jobs.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/eventrelay/internal/events/domain"
	"github.com/allisson/eventrelay/internal/events/registry"
)

// AsyncInvocationRepository defines persistence operations for async invocation records.
// Implementations must support transaction-aware operations via context propagation.
type AsyncInvocationRepository interface {
	// Create stores a new record.
	Create(ctx context.Context, invocation *domain.AsyncInvocation) error

	// Get retrieves a record by ID. Returns ErrAsyncInvocationNotFound if not found.
	Get(ctx context.Context, id uuid.UUID) (*domain.AsyncInvocation, error)

	// Delete removes a record. Deleting a missing record is not an error.
	Delete(ctx context.Context, id uuid.UUID) error

	// MarkFailed flags a record for retry and increments its attempt counter.
	// Returns ErrAsyncInvocationNotFound if not found.
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string, updatedAt time.Time) error

	// ListOutstanding lists records oldest first.
	ListOutstanding(ctx context.Context, offset, limit int) ([]*domain.AsyncInvocation, error)

	// ListRetryable lists up to limit records with fewer than maxAttempts attempts, least
	// recently attempted first. A maxAttempts of zero disables the filter.
	ListRetryable(ctx context.Context, maxAttempts, limit int) ([]*domain.AsyncInvocation, error)

	// CountExhausted counts records that reached maxAttempts attempts.
	CountExhausted(ctx context.Context, maxAttempts int) (int64, error)

	// ListOlderThan lists up to limit records created strictly before olderThan, oldest first.
	ListOlderThan(ctx context.Context, olderThan time.Time, limit int) ([]*domain.AsyncInvocation, error)

	// CountOlderThan counts records created strictly before olderThan.
	CountOlderThan(ctx context.Context, olderThan time.Time) (int64, error)
}

// ListenerRegistry resolves listeners and event decoders. Satisfied by *registry.Registry.
type ListenerRegistry interface {
	ListenersFor(eventName string) []registry.Registration
	AsyncListener(eventName, listenerName string) (domain.Listener, error)
	Decode(eventName string, raw []byte) (domain.Event, error)
}

// AsyncInvocationUseCase is the record store: the persistence service for async
// invocation records. It never retries on its own.
type AsyncInvocationUseCase interface {
	// BuildPayload shapes the data needed to re-deliver event to listenerName. No I/O.
	BuildPayload(eventName, listenerName string, event domain.Event) (*domain.AsyncInvocationPayload, error)

	// Create durably inserts a new pending record for payload.
	Create(ctx context.Context, payload *domain.AsyncInvocationPayload) (*domain.AsyncInvocation, error)

	// Get retrieves a record by ID.
	Get(ctx context.Context, id uuid.UUID) (*domain.AsyncInvocation, error)

	// Delete removes a record. It is idempotent.
	Delete(ctx context.Context, id uuid.UUID) error

	// MarkFailed flags a record as needing another attempt and stores cause. It never
	// removes the record.
	MarkFailed(ctx context.Context, id uuid.UUID, cause error) error

	// ListOutstanding lists records still awaiting successful delivery, oldest first.
	ListOutstanding(ctx context.Context, offset, limit int) ([]*domain.AsyncInvocation, error)

	// ListRetryable lists up to limit records the retry sweeper should attempt next. Failed
	// attempts move a record to the back, so consecutive calls rotate through every record.
	ListRetryable(ctx context.Context, maxAttempts, limit int) ([]*domain.AsyncInvocation, error)

	// CountExhausted counts records that reached maxAttempts attempts.
	CountExhausted(ctx context.Context, maxAttempts int) (int64, error)

	// ListOlderThan lists up to limit records created before olderThan.
	ListOlderThan(ctx context.Context, olderThan time.Time, limit int) ([]*domain.AsyncInvocation, error)

	// CountOlderThan counts records created before olderThan.
	CountOlderThan(ctx context.Context, olderThan time.Time) (int64, error)
}

// Dispatcher is the public entry point of event delivery.
type Dispatcher interface {
	// Dispatch routes event to its listeners and returns the same event. Sync listener
	// errors and record persistence errors are returned; async listener failures never are.
	Dispatch(ctx context.Context, event domain.Event) (domain.Event, error)
}

// AsyncInvoker runs one guarded attempt of an async invocation record.
type AsyncInvoker interface {
	Attempt(ctx context.Context, invocation *domain.AsyncInvocation) (AttemptOutcome, error)
}

// TaskSubmitter schedules deferred work without blocking. Satisfied by *Executor.
type TaskSubmitter interface {
	Submit(task Task) bool
}

// RetrySweeper re-attempts every outstanding async invocation record.
type RetrySweeper interface {
	// Sweep runs one sweep cycle. Returns ErrSweepInProgress if a cycle is already running.
	Sweep(ctx context.Context) (SweepResult, error)
}

// HistoryReaper purges records past the retention period.
type HistoryReaper interface {
	// Reap deletes records created more than olderThan ago and returns how many were
	// deleted, or with dryRun how many would be.
	Reap(ctx context.Context, olderThan time.Duration, dryRun bool) (int64, error)
}
