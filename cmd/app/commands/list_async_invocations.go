package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/allisson/eventrelay/internal/events/http/dto"
	eventsUseCase "github.com/allisson/eventrelay/internal/events/usecase"
)

// RunListAsyncInvocations prints the records still awaiting successful delivery,
// oldest first.
func RunListAsyncInvocations(
	ctx context.Context,
	store eventsUseCase.AsyncInvocationUseCase,
	logger *slog.Logger,
	writer io.Writer,
	offset, limit int,
	format string,
) error {
	if offset < 0 {
		return fmt.Errorf("offset must be a positive number, got: %d", offset)
	}
	if limit < 1 || limit > 1000 {
		return fmt.Errorf("limit must be between 1 and 1000, got: %d", limit)
	}
	if err := validateFormat(format); err != nil {
		return err
	}

	invocations, err := store.ListOutstanding(ctx, offset, limit)
	if err != nil {
		return fmt.Errorf("failed to list async invocations: %w", err)
	}

	logger.Debug("listed async invocations", slog.Int("count", len(invocations)))

	if format == "json" {
		return writeJSON(writer, dto.MapAsyncInvocationsToListResponse(invocations))
	}

	if len(invocations) == 0 {
		_, err := fmt.Fprintln(writer, "No outstanding async invocations")
		return err
	}

	tw := tabwriter.NewWriter(writer, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tEVENT\tLISTENER\tSTATUS\tATTEMPTS\tCREATED AT\tLAST ERROR")
	for _, invocation := range invocations {
		lastError := "-"
		if invocation.LastError != nil {
			lastError = *invocation.LastError
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			invocation.ID,
			invocation.EventName,
			invocation.ListenerName,
			invocation.Status,
			invocation.Attempts,
			invocation.CreatedAt.UTC().Format(time.RFC3339),
			lastError,
		)
	}
	return tw.Flush()
}
