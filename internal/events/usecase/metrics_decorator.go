package usecase

import (
	"context"
	"time"

	"github.com/allisson/eventrelay/internal/events/domain"
	"github.com/allisson/eventrelay/internal/metrics"
)

// dispatcherWithMetrics decorates Dispatcher with metrics instrumentation.
type dispatcherWithMetrics struct {
	next    Dispatcher
	metrics metrics.BusinessMetrics
}

// NewDispatcherWithMetrics wraps a Dispatcher with metrics recording.
func NewDispatcherWithMetrics(dispatcher Dispatcher, m metrics.BusinessMetrics) Dispatcher {
	return &dispatcherWithMetrics{
		next:    dispatcher,
		metrics: m,
	}
}

// Dispatch records metrics for event dispatch operations.
func (d *dispatcherWithMetrics) Dispatch(ctx context.Context, event domain.Event) (domain.Event, error) {
	start := time.Now()
	result, err := d.next.Dispatch(ctx, event)

	status := "success"
	if err != nil {
		status = "error"
	}

	d.metrics.RecordOperation(ctx, metricsDomain, "dispatch", status)
	d.metrics.RecordDuration(ctx, metricsDomain, "dispatch", time.Since(start), status)

	return result, err
}

// retrySweeperWithMetrics decorates RetrySweeper with metrics instrumentation.
type retrySweeperWithMetrics struct {
	next    RetrySweeper
	metrics metrics.BusinessMetrics
}

// NewRetrySweeperWithMetrics wraps a RetrySweeper with metrics recording.
func NewRetrySweeperWithMetrics(sweeper RetrySweeper, m metrics.BusinessMetrics) RetrySweeper {
	return &retrySweeperWithMetrics{
		next:    sweeper,
		metrics: m,
	}
}

// Sweep records metrics for retry sweep operations.
func (r *retrySweeperWithMetrics) Sweep(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	result, err := r.next.Sweep(ctx)

	status := "success"
	if err != nil {
		status = "error"
	}

	r.metrics.RecordOperation(ctx, metricsDomain, "retry_sweep", status)
	r.metrics.RecordDuration(ctx, metricsDomain, "retry_sweep", time.Since(start), status)

	return result, err
}

// historyReaperWithMetrics decorates HistoryReaper with metrics instrumentation.
type historyReaperWithMetrics struct {
	next    HistoryReaper
	metrics metrics.BusinessMetrics
}

// NewHistoryReaperWithMetrics wraps a HistoryReaper with metrics recording.
func NewHistoryReaperWithMetrics(reaper HistoryReaper, m metrics.BusinessMetrics) HistoryReaper {
	return &historyReaperWithMetrics{
		next:    reaper,
		metrics: m,
	}
}

// Reap records metrics for history reap operations.
func (h *historyReaperWithMetrics) Reap(ctx context.Context, olderThan time.Duration, dryRun bool) (int64, error) {
	start := time.Now()
	count, err := h.next.Reap(ctx, olderThan, dryRun)

	status := "success"
	if err != nil {
		status = "error"
	}

	h.metrics.RecordOperation(ctx, metricsDomain, "history_reap", status)
	h.metrics.RecordDuration(ctx, metricsDomain, "history_reap", time.Since(start), status)

	return count, err
}
