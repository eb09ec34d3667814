package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	eventsUseCase "github.com/allisson/eventrelay/internal/events/usecase"
)

// RunCleanAsyncInvocations deletes async invocation records older than the specified
// number of days, whatever their status. Supports dry-run mode to preview the
// deletion count and both text/JSON output formats.
//
// Requirements: Database must be migrated and accessible.
func RunCleanAsyncInvocations(
	ctx context.Context,
	reaper eventsUseCase.HistoryReaper,
	logger *slog.Logger,
	writer io.Writer,
	days int,
	dryRun bool,
	format string,
) error {
	if days < 0 {
		return fmt.Errorf("days must be a positive number, got: %d", days)
	}
	if err := validateFormat(format); err != nil {
		return err
	}

	logger.Info("cleaning async invocations",
		slog.Int("days", days),
		slog.Bool("dry_run", dryRun),
	)

	count, err := reaper.Reap(ctx, time.Duration(days)*24*time.Hour, dryRun)
	if err != nil {
		return fmt.Errorf("failed to delete async invocations: %w", err)
	}

	if format == "json" {
		if err := writeJSON(writer, map[string]any{
			"count":   count,
			"days":    days,
			"dry_run": dryRun,
		}); err != nil {
			return err
		}
	} else {
		verb := "Successfully deleted"
		if dryRun {
			verb = "Dry-run mode: Would delete"
		}
		if _, err := fmt.Fprintf(
			writer,
			"%s %d async invocation(s) older than %d day(s)\n",
			verb,
			count,
			days,
		); err != nil {
			return err
		}
	}

	logger.Info("cleanup completed",
		slog.Int64("count", count),
		slog.Int("days", days),
		slog.Bool("dry_run", dryRun),
	)

	return nil
}
