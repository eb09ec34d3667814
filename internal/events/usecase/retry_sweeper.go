package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/allisson/eventrelay/internal/errors"
)

// ErrSweepInProgress is returned when a sweep is requested while another one runs.
var ErrSweepInProgress = apperrors.Wrap(apperrors.ErrConflict, "retry sweep already in progress")

// RetrySweeperConfig holds retry sweep configuration.
type RetrySweeperConfig struct {
	// BatchSize is the maximum number of records examined per sweep.
	BatchSize int
	// MaxAttempts skips records that already failed this many times. Zero means unbounded.
	MaxAttempts int
	// Concurrency is the number of records attempted in parallel.
	Concurrency int
}

// SweepResult summarizes one sweep cycle.
type SweepResult struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Exhausted int `json:"exhausted"`
}

// retrySweeper implements RetrySweeper.
type retrySweeper struct {
	config  RetrySweeperConfig
	store   AsyncInvocationUseCase
	invoker AsyncInvoker
	logger  *slog.Logger
	running atomic.Bool
}

// NewRetrySweeper creates a RetrySweeper.
func NewRetrySweeper(
	config RetrySweeperConfig,
	store AsyncInvocationUseCase,
	invoker AsyncInvoker,
	logger *slog.Logger,
) RetrySweeper {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &retrySweeper{
		config:  config,
		store:   store,
		invoker: invoker,
		logger:  logger,
	}
}

// Sweep re-attempts the least recently attempted records through the invoker. Each
// record is rebuilt from its persisted payload; records locked by an in-flight attempt
// are skipped. Records at MaxAttempts are only counted.
func (s *retrySweeper) Sweep(ctx context.Context) (SweepResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return SweepResult{}, ErrSweepInProgress
	}
	defer s.running.Store(false)

	var (
		mu     sync.Mutex
		result SweepResult
		errs   []error
	)

	if s.config.MaxAttempts > 0 {
		exhausted, err := s.store.CountExhausted(ctx, s.config.MaxAttempts)
		if err != nil {
			return SweepResult{}, err
		}
		result.Exhausted = int(exhausted)
	}

	invocations, err := s.store.ListRetryable(ctx, s.config.MaxAttempts, s.config.BatchSize)
	if err != nil {
		return SweepResult{}, err
	}

	group := new(errgroup.Group)
	group.SetLimit(s.config.Concurrency)

	for _, invocation := range invocations {
		if ctx.Err() != nil {
			break
		}

		group.Go(func() error {
			outcome, err := s.invoker.Attempt(ctx, invocation)

			mu.Lock()
			defer mu.Unlock()

			result.Processed++
			switch outcome {
			case AttemptSucceeded:
				result.Succeeded++
			case AttemptFailed:
				result.Failed++
			default:
				result.Skipped++
			}
			if err != nil {
				errs = append(errs, err)
			}
			return nil
		})
	}

	_ = group.Wait()

	logArgs := []any{
		slog.Int("processed", result.Processed),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("failed", result.Failed),
		slog.Int("skipped", result.Skipped),
		slog.Int("exhausted", result.Exhausted),
	}
	switch {
	case result.Exhausted > 0:
		s.logger.Warn("retry sweep finished with exhausted records", logArgs...)
	case result.Processed > 0:
		s.logger.Info("retry sweep finished", logArgs...)
	default:
		s.logger.Debug("retry sweep finished", logArgs...)
	}

	return result, errors.Join(errs...)
}
