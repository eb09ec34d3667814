package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/allisson/eventrelay/internal/events/domain"
	"github.com/allisson/eventrelay/internal/events/lock"
	"github.com/allisson/eventrelay/internal/metrics"
)

// AttemptOutcome describes how a guarded attempt ended.
type AttemptOutcome string

const (
	// AttemptSucceeded means the listener succeeded and the record was deleted.
	AttemptSucceeded AttemptOutcome = "succeeded"
	// AttemptFailed means the listener failed or panicked and the record was flagged for retry.
	AttemptFailed AttemptOutcome = "failed"
	// AttemptSkipped means the record lock was held elsewhere; nothing ran.
	AttemptSkipped AttemptOutcome = "skipped"
	// AttemptMissing means the record was gone once the lock was acquired; nothing ran.
	AttemptMissing AttemptOutcome = "missing"
)

const metricsDomain = "events"

// InvokerConfig holds guarded attempt configuration.
type InvokerConfig struct {
	// AttemptTimeout bounds one listener call. Zero disables the timeout.
	AttemptTimeout time.Duration
}

// invoker runs async listener attempts under the execution lock of their record.
type invoker struct {
	config   InvokerConfig
	registry ListenerRegistry
	store    AsyncInvocationUseCase
	locker   lock.Locker
	metrics  metrics.BusinessMetrics
	tracer   trace.Tracer
	logger   *slog.Logger
}

// NewInvoker creates an AsyncInvoker. A nil tracer disables spans.
func NewInvoker(
	config InvokerConfig,
	registry ListenerRegistry,
	store AsyncInvocationUseCase,
	locker lock.Locker,
	businessMetrics metrics.BusinessMetrics,
	tracer trace.Tracer,
	logger *slog.Logger,
) AsyncInvoker {
	if businessMetrics == nil {
		businessMetrics = metrics.NewNoOpBusinessMetrics()
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("eventrelay/events")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &invoker{
		config:   config,
		registry: registry,
		store:    store,
		locker:   locker,
		metrics:  businessMetrics,
		tracer:   tracer,
		logger:   logger,
	}
}

// Attempt runs one attempt of invocation. The event is always rebuilt from the persisted
// payload. Listener failures are converted into record state and never returned; the
// returned error only reports lock or persistence failures.
func (i *invoker) Attempt(ctx context.Context, invocation *domain.AsyncInvocation) (AttemptOutcome, error) {
	start := time.Now()
	outcome := AttemptSkipped

	ctx, span := i.tracer.Start(ctx, "events.async_attempt", trace.WithAttributes(
		attribute.String("record_id", invocation.ID.String()),
		attribute.String("event_name", invocation.EventName),
		attribute.String("listener_name", invocation.ListenerName),
	))
	defer span.End()

	err := i.locker.WithLock(ctx, invocation.LockKey(), func(ctx context.Context) error {
		// Writes must land even if the caller is shutting down.
		storeCtx := context.WithoutCancel(ctx)

		// The record may have been completed or reaped since it was listed.
		if _, err := i.store.Get(storeCtx, invocation.ID); err != nil {
			if errors.Is(err, domain.ErrAsyncInvocationNotFound) {
				outcome = AttemptMissing
				return nil
			}
			return err
		}

		stack, listenerErr := i.run(ctx, invocation)
		if listenerErr == nil {
			outcome = AttemptSucceeded
			i.logger.Debug("async listener succeeded",
				slog.String("record_id", invocation.ID.String()),
				slog.String("event_name", invocation.EventName),
				slog.String("listener_name", invocation.ListenerName),
				slog.Int("attempt", invocation.Attempts+1),
				slog.Duration("duration", time.Since(start)),
			)
			return i.store.Delete(storeCtx, invocation.ID)
		}

		outcome = AttemptFailed
		span.RecordError(listenerErr)
		i.logger.Error("async listener failed",
			slog.String("record_id", invocation.ID.String()),
			slog.String("event_name", invocation.EventName),
			slog.String("listener_name", invocation.ListenerName),
			slog.Int("attempt", invocation.Attempts+1),
			slog.Duration("duration", time.Since(start)),
			slog.String("error_type", fmt.Sprintf("%T", listenerErr)),
			slog.Any("error", listenerErr),
			slog.String("stack", stack),
		)
		return i.store.MarkFailed(storeCtx, invocation.ID, listenerErr)
	})

	switch {
	case errors.Is(err, lock.ErrNotAcquired):
		i.logger.Debug("async invocation attempt skipped, record is locked",
			slog.String("record_id", invocation.ID.String()),
			slog.String("listener_name", invocation.ListenerName),
		)
		outcome, err = AttemptSkipped, nil
	case err != nil:
		i.logger.Error("failed to record async invocation outcome",
			slog.String("record_id", invocation.ID.String()),
			slog.String("event_name", invocation.EventName),
			slog.String("listener_name", invocation.ListenerName),
			slog.String("outcome", string(outcome)),
			slog.Any("error", err),
		)
		span.SetStatus(codes.Error, err.Error())
	case outcome == AttemptFailed:
		span.SetStatus(codes.Error, "listener failed")
	}

	span.SetAttributes(attribute.String("outcome", string(outcome)))

	status := string(outcome)
	if err != nil {
		status = "error"
	}
	i.metrics.RecordOperation(ctx, metricsDomain, "async_attempt", status)
	i.metrics.RecordDuration(ctx, metricsDomain, "async_attempt", time.Since(start), status)

	return outcome, err
}

// run resolves the listener, rebuilds the event and calls the listener, converting a
// panic into an error. The stack is the panicking goroutine's for panics and the
// observation point's otherwise.
func (i *invoker) run(ctx context.Context, invocation *domain.AsyncInvocation) (stack string, err error) {
	listener, err := i.registry.AsyncListener(invocation.EventName, invocation.ListenerName)
	if err != nil {
		return string(debug.Stack()), err
	}

	event, err := decodeInvocationEvent(i.registry, invocation)
	if err != nil {
		return string(debug.Stack()), err
	}

	if i.config.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.config.AttemptTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
			stack = string(debug.Stack())
		}
	}()

	if err := listener.Handle(ctx, event); err != nil {
		return string(debug.Stack()), err
	}

	return "", nil
}

// PanicError wraps a value recovered from a panicking async listener.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("listener panicked: %v", e.Value)
}
