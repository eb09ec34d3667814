package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/allisson/eventrelay/internal/database"
	eventsHTTP "github.com/allisson/eventrelay/internal/events/http"
	"github.com/allisson/eventrelay/internal/events/http/dto"
	eventsUseCase "github.com/allisson/eventrelay/internal/events/usecase"
	"github.com/allisson/eventrelay/internal/validation"
)

// RunDispatchEvent decodes body as the named event and dispatches it. Sync listeners
// run before it returns; async listener records are persisted and their first attempt
// is left to the executor or the retry sweeper. With a non-nil txManager the dispatch
// runs in one transaction, so a failing sync listener also discards the async records.
func RunDispatchEvent(
	ctx context.Context,
	dispatcher eventsUseCase.Dispatcher,
	txManager database.TxManager,
	decoder eventsHTTP.EventDecoder,
	logger *slog.Logger,
	writer io.Writer,
	name, body, format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	req := dto.DispatchEventRequest{Name: strings.TrimSpace(name), Body: json.RawMessage(body)}
	if err := req.Validate(); err != nil {
		return validation.WrapValidationError(err)
	}

	event, err := decoder.Decode(req.Name, req.Body)
	if err != nil {
		return fmt.Errorf("failed to decode event %s: %w", req.Name, err)
	}

	dispatch := func(ctx context.Context) error {
		event, err = dispatcher.Dispatch(ctx, event)
		return err
	}
	if txManager != nil {
		err = txManager.WithTx(ctx, dispatch)
	} else {
		err = dispatch(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to dispatch event %s: %w", req.Name, err)
	}

	logger.Info("event dispatched", slog.String("event_name", req.Name))

	if format == "json" {
		encoded, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to encode event %s: %w", req.Name, err)
		}
		return writeJSON(writer, dto.DispatchEventResponse{EventName: req.Name, Event: encoded})
	}

	_, err = fmt.Fprintf(writer, "Dispatched event %s\n", req.Name)
	return err
}
