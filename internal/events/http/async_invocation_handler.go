package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/allisson/eventrelay/internal/events/http/dto"
	eventsUseCase "github.com/allisson/eventrelay/internal/events/usecase"
	"github.com/allisson/eventrelay/internal/httputil"
)

// AsyncInvocationHandler exposes outstanding async invocation records and manual retries.
type AsyncInvocationHandler struct {
	store   eventsUseCase.AsyncInvocationUseCase
	sweeper eventsUseCase.RetrySweeper
	logger  *slog.Logger
}

// NewAsyncInvocationHandler creates a new async invocation handler.
func NewAsyncInvocationHandler(
	store eventsUseCase.AsyncInvocationUseCase,
	sweeper eventsUseCase.RetrySweeper,
	logger *slog.Logger,
) *AsyncInvocationHandler {
	return &AsyncInvocationHandler{
		store:   store,
		sweeper: sweeper,
		logger:  logger,
	}
}

// ListHandler lists records still awaiting successful delivery, oldest first.
// GET /v1/async-invocations?offset=0&limit=50
func (h *AsyncInvocationHandler) ListHandler(c *gin.Context) {
	offset, limit, err := httputil.ParsePagination(c)
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	invocations, err := h.store.ListOutstanding(c.Request.Context(), offset, limit)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapAsyncInvocationsToListResponse(invocations))
}

// GetHandler retrieves one record.
// GET /v1/async-invocations/:id
func (h *AsyncInvocationHandler) GetHandler(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.HandleValidationErrorGin(c, fmt.Errorf("invalid id parameter: must be a UUID"), h.logger)
		return
	}

	invocation, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapAsyncInvocationToResponse(invocation))
}

// RetryHandler runs one retry sweep and reports its counts.
// POST /v1/async-invocations/retry
// Returns 409 Conflict when a sweep is already running. The sweep outlives a disconnected
// client so that its listeners are not recorded as failed.
func (h *AsyncInvocationHandler) RetryHandler(c *gin.Context) {
	result, err := h.sweeper.Sweep(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapSweepResultToResponse(result))
}
