package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/eventrelay/internal/errors"
	"github.com/allisson/eventrelay/internal/events/lock"
)

// HistoryReaperConfig holds retention sweep configuration.
type HistoryReaperConfig struct {
	// BatchSize is the number of records examined per batch.
	BatchSize int
}

// historyReaper implements HistoryReaper.
type historyReaper struct {
	config HistoryReaperConfig
	store  AsyncInvocationUseCase
	locker lock.Locker
	logger *slog.Logger
	now    func() time.Time
}

// NewHistoryReaper creates a HistoryReaper. Deletions take the same lock as attempts,
// so a record with an attempt in flight is left for the next run.
func NewHistoryReaper(
	config HistoryReaperConfig,
	store AsyncInvocationUseCase,
	locker lock.Locker,
	logger *slog.Logger,
) HistoryReaper {
	if config.BatchSize <= 0 {
		config.BatchSize = 500
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &historyReaper{
		config: config,
		store:  store,
		locker: locker,
		logger: logger,
		now:    time.Now,
	}
}

// Reap deletes records created more than olderThan ago, whatever their status.
func (r *historyReaper) Reap(ctx context.Context, olderThan time.Duration, dryRun bool) (int64, error) {
	if olderThan < 0 {
		return 0, apperrors.Wrap(apperrors.ErrInvalidInput, "retention must not be negative")
	}

	cutoff := r.now().UTC().Add(-olderThan)

	if dryRun {
		return r.store.CountOlderThan(ctx, cutoff)
	}

	var deleted int64
	skipped := make(map[uuid.UUID]struct{})
	for {
		batch, err := r.store.ListOlderThan(ctx, cutoff, r.config.BatchSize)
		if err != nil {
			return deleted, err
		}

		progressed := 0
		for _, invocation := range batch {
			err := r.locker.WithLock(ctx, invocation.LockKey(), func(ctx context.Context) error {
				return r.store.Delete(ctx, invocation.ID)
			})
			if errors.Is(err, lock.ErrNotAcquired) {
				skipped[invocation.ID] = struct{}{}
				continue
			}
			if err != nil {
				return deleted, err
			}
			deleted++
			progressed++
		}

		// A short batch is the last one; a batch of only locked records would repeat.
		if len(batch) < r.config.BatchSize || progressed == 0 {
			break
		}
	}

	r.logger.Info("history reaper finished",
		slog.Time("cutoff", cutoff),
		slog.Int64("deleted", deleted),
		slog.Int("skipped", len(skipped)),
	)

	return deleted, nil
}
