// Package http provides HTTP handlers for event dispatch and async invocation records.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/allisson/eventrelay/internal/events/domain"
	"github.com/allisson/eventrelay/internal/events/http/dto"
	eventsUseCase "github.com/allisson/eventrelay/internal/events/usecase"
	"github.com/allisson/eventrelay/internal/httputil"
	customValidation "github.com/allisson/eventrelay/internal/validation"
)

// maxEventBodyBytes bounds the size of a dispatched event document.
const maxEventBodyBytes = 1 << 20

// EventDecoder rebuilds a registered event from its JSON encoding.
// Satisfied by *registry.Registry.
type EventDecoder interface {
	Decode(eventName string, raw []byte) (domain.Event, error)
}

// EventHandler handles HTTP requests that raise events.
type EventHandler struct {
	dispatcher eventsUseCase.Dispatcher
	decoder    EventDecoder
	logger     *slog.Logger
}

// NewEventHandler creates a new event handler with required dependencies.
func NewEventHandler(
	dispatcher eventsUseCase.Dispatcher,
	decoder EventDecoder,
	logger *slog.Logger,
) *EventHandler {
	return &EventHandler{
		dispatcher: dispatcher,
		decoder:    decoder,
		logger:     logger,
	}
}

// DispatchHandler decodes the request body as the named event and dispatches it.
// POST /v1/events/:name
// Returns 202 Accepted once sync listeners ran and async records were persisted.
func (h *EventHandler) DispatchHandler(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxEventBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.HandleBadRequestGin(
				c,
				fmt.Errorf("event body exceeds %d bytes", tooLarge.Limit),
				h.logger,
			)
			return
		}
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	req := dto.DispatchEventRequest{
		Name: c.Param("name"),
		Body: body,
	}
	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	event, err := h.decoder.Decode(req.Name, req.Body)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	event, err = h.dispatcher.Dispatch(c.Request.Context(), event)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	// Sync listeners may have enriched the event.
	encoded, err := json.Marshal(event)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusAccepted, dto.DispatchEventResponse{
		EventName: event.EventName(),
		Event:     encoded,
	})
}
