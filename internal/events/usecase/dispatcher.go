package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/allisson/eventrelay/internal/database"
	apperrors "github.com/allisson/eventrelay/internal/errors"
	"github.com/allisson/eventrelay/internal/events/domain"
	"github.com/allisson/eventrelay/internal/events/registry"
)

// syncRecordID is logged for sync attempts, which are never persisted.
const syncRecordID = "0"

// dispatcher implements Dispatcher.
type dispatcher struct {
	registry ListenerRegistry
	store    AsyncInvocationUseCase
	invoker  AsyncInvoker
	tasks    TaskSubmitter
	logger   *slog.Logger
}

// NewDispatcher creates the event dispatcher.
func NewDispatcher(
	registry ListenerRegistry,
	store AsyncInvocationUseCase,
	invoker AsyncInvoker,
	tasks TaskSubmitter,
	logger *slog.Logger,
) Dispatcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &dispatcher{
		registry: registry,
		store:    store,
		invoker:  invoker,
		tasks:    tasks,
		logger:   logger,
	}
}

// Dispatch persists and schedules one record per async listener, then runs the sync
// listeners inline in registration order. Records created by Dispatch join the
// transaction carried by ctx, if any, and their first attempts are submitted once it
// commits.
func (d *dispatcher) Dispatch(ctx context.Context, event domain.Event) (domain.Event, error) {
	if event == nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "event is required")
	}

	eventName := event.EventName()
	syncListeners, asyncListeners := partitionListeners(d.registry.ListenersFor(eventName))

	for _, registration := range asyncListeners {
		payload, err := d.store.BuildPayload(eventName, registration.Name, event)
		if err != nil {
			return event, err
		}

		invocation, err := d.store.Create(ctx, payload)
		if err != nil {
			return event, apperrors.Wrap(
				err,
				fmt.Sprintf("failed to persist async invocation of %s for %s", registration.Name, eventName),
			)
		}

		// Inside a caller transaction the record is invisible to the executor until commit.
		database.AfterCommit(ctx, func() { d.schedule(invocation) })
	}

	for _, registration := range syncListeners {
		start := time.Now()
		if err := registration.Listener.Handle(ctx, event); err != nil {
			d.logger.Error("sync listener failed",
				slog.String("record_id", syncRecordID),
				slog.String("event_name", eventName),
				slog.String("listener_name", registration.Name),
				slog.Duration("duration", time.Since(start)),
				slog.String("error_type", fmt.Sprintf("%T", err)),
				slog.Any("error", err),
				slog.String("stack", string(debug.Stack())),
			)
			return event, err
		}

		d.logger.Debug("sync listener succeeded",
			slog.String("record_id", syncRecordID),
			slog.String("event_name", eventName),
			slog.String("listener_name", registration.Name),
			slog.Duration("duration", time.Since(start)),
		)

		if stoppable, ok := event.(domain.StoppableEvent); ok && stoppable.IsPropagationStopped() {
			break
		}
	}

	return event, nil
}

// schedule hands the first attempt to the executor. A rejected task is not an error:
// the record is durable and the retry sweeper will attempt it.
func (d *dispatcher) schedule(invocation *domain.AsyncInvocation) {
	submitted := d.tasks.Submit(func(ctx context.Context) {
		_, _ = d.invoker.Attempt(ctx, invocation)
	})
	if !submitted {
		d.logger.Warn("async executor rejected task, deferring to retry sweeper",
			slog.String("record_id", invocation.ID.String()),
			slog.String("event_name", invocation.EventName),
			slog.String("listener_name", invocation.ListenerName),
		)
	}
}

// partitionListeners splits registrations into sync and async sets, keeping
// registration order and the first registration of each name within a set.
func partitionListeners(registrations []registry.Registration) (syncSet, asyncSet []registry.Registration) {
	seenSync := make(map[string]struct{})
	seenAsync := make(map[string]struct{})

	for _, registration := range registrations {
		seen := seenSync
		if registration.Async {
			seen = seenAsync
		}
		if _, dup := seen[registration.Name]; dup {
			continue
		}
		seen[registration.Name] = struct{}{}

		if registration.Async {
			asyncSet = append(asyncSet, registration)
		} else {
			syncSet = append(syncSet, registration)
		}
	}

	return syncSet, asyncSet
}
