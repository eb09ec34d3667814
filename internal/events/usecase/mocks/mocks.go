// Package mocks provides mock implementations of the event delivery use cases for testing.
package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/allisson/eventrelay/internal/events/domain"
	"github.com/allisson/eventrelay/internal/events/usecase"
)

// MockDispatcher is a mock implementation of Dispatcher.
type MockDispatcher struct {
	mock.Mock
}

// Dispatch mocks the Dispatch method of Dispatcher.
func (m *MockDispatcher) Dispatch(ctx context.Context, event domain.Event) (domain.Event, error) {
	args := m.Called(ctx, event)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(domain.Event), args.Error(1)
}

// MockRetrySweeper is a mock implementation of RetrySweeper.
type MockRetrySweeper struct {
	mock.Mock
}

// Sweep mocks the Sweep method of RetrySweeper.
func (m *MockRetrySweeper) Sweep(ctx context.Context) (usecase.SweepResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(usecase.SweepResult), args.Error(1)
}

// MockHistoryReaper is a mock implementation of HistoryReaper.
type MockHistoryReaper struct {
	mock.Mock
}

// Reap mocks the Reap method of HistoryReaper.
func (m *MockHistoryReaper) Reap(ctx context.Context, olderThan time.Duration, dryRun bool) (int64, error) {
	args := m.Called(ctx, olderThan, dryRun)
	return args.Get(0).(int64), args.Error(1)
}

// MockAsyncInvoker is a mock implementation of AsyncInvoker.
type MockAsyncInvoker struct {
	mock.Mock
}

// Attempt mocks the Attempt method of AsyncInvoker.
func (m *MockAsyncInvoker) Attempt(
	ctx context.Context,
	invocation *domain.AsyncInvocation,
) (usecase.AttemptOutcome, error) {
	args := m.Called(ctx, invocation)
	return args.Get(0).(usecase.AttemptOutcome), args.Error(1)
}

// MockAsyncInvocationUseCase is a mock implementation of AsyncInvocationUseCase.
type MockAsyncInvocationUseCase struct {
	mock.Mock
}

// BuildPayload mocks the BuildPayload method.
func (m *MockAsyncInvocationUseCase) BuildPayload(
	eventName, listenerName string,
	event domain.Event,
) (*domain.AsyncInvocationPayload, error) {
	args := m.Called(eventName, listenerName, event)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AsyncInvocationPayload), args.Error(1)
}

// Create mocks the Create method.
func (m *MockAsyncInvocationUseCase) Create(
	ctx context.Context,
	payload *domain.AsyncInvocationPayload,
) (*domain.AsyncInvocation, error) {
	args := m.Called(ctx, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AsyncInvocation), args.Error(1)
}

// Get mocks the Get method.
func (m *MockAsyncInvocationUseCase) Get(ctx context.Context, id uuid.UUID) (*domain.AsyncInvocation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AsyncInvocation), args.Error(1)
}

// Delete mocks the Delete method.
func (m *MockAsyncInvocationUseCase) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MarkFailed mocks the MarkFailed method.
func (m *MockAsyncInvocationUseCase) MarkFailed(ctx context.Context, id uuid.UUID, cause error) error {
	args := m.Called(ctx, id, cause)
	return args.Error(0)
}

// ListOutstanding mocks the ListOutstanding method.
func (m *MockAsyncInvocationUseCase) ListOutstanding(
	ctx context.Context,
	offset, limit int,
) ([]*domain.AsyncInvocation, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.AsyncInvocation), args.Error(1)
}

// ListRetryable mocks the ListRetryable method.
func (m *MockAsyncInvocationUseCase) ListRetryable(
	ctx context.Context,
	maxAttempts, limit int,
) ([]*domain.AsyncInvocation, error) {
	args := m.Called(ctx, maxAttempts, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.AsyncInvocation), args.Error(1)
}

// CountExhausted mocks the CountExhausted method.
func (m *MockAsyncInvocationUseCase) CountExhausted(ctx context.Context, maxAttempts int) (int64, error) {
	args := m.Called(ctx, maxAttempts)
	return args.Get(0).(int64), args.Error(1)
}

// ListOlderThan mocks the ListOlderThan method.
func (m *MockAsyncInvocationUseCase) ListOlderThan(
	ctx context.Context,
	olderThan time.Time,
	limit int,
) ([]*domain.AsyncInvocation, error) {
	args := m.Called(ctx, olderThan, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.AsyncInvocation), args.Error(1)
}

// CountOlderThan mocks the CountOlderThan method.
func (m *MockAsyncInvocationUseCase) CountOlderThan(ctx context.Context, olderThan time.Time) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

var (
	_ usecase.Dispatcher             = (*MockDispatcher)(nil)
	_ usecase.RetrySweeper           = (*MockRetrySweeper)(nil)
	_ usecase.HistoryReaper          = (*MockHistoryReaper)(nil)
	_ usecase.AsyncInvoker           = (*MockAsyncInvoker)(nil)
	_ usecase.AsyncInvocationUseCase = (*MockAsyncInvocationUseCase)(nil)
)
