package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/allisson/eventrelay/internal/events/http/dto"
	eventsUseCase "github.com/allisson/eventrelay/internal/events/usecase"
)

// RunRetryAsyncInvocations runs one retry sweep and reports its outcome. Failed attempts
// are part of the result; only errors preventing the sweep are returned.
//
// Requirements: Database must be migrated and accessible.
func RunRetryAsyncInvocations(
	ctx context.Context,
	sweeper eventsUseCase.RetrySweeper,
	logger *slog.Logger,
	writer io.Writer,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	logger.Info("retrying async invocations")

	result, err := sweeper.Sweep(ctx)
	if err != nil && result.Processed == 0 {
		return fmt.Errorf("failed to retry async invocations: %w", err)
	}
	if err != nil {
		logger.Warn("retry sweep finished with errors", slog.Any("error", err))
	}

	if format == "json" {
		return writeJSON(writer, dto.MapSweepResultToResponse(result))
	}

	_, werr := fmt.Fprintf(
		writer,
		"Processed %d async invocation(s): %d succeeded, %d failed, %d skipped, %d exhausted\n",
		result.Processed,
		result.Succeeded,
		result.Failed,
		result.Skipped,
		result.Exhausted,
	)
	return werr
}
