package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	apperrors "github.com/allisson/eventrelay/internal/errors"
	"github.com/allisson/eventrelay/internal/events/domain"
)

// maxLastErrorLength bounds the stored failure message.
const maxLastErrorLength = 4096

// asyncInvocationUseCase implements AsyncInvocationUseCase.
type asyncInvocationUseCase struct {
	repo AsyncInvocationRepository
	now  func() time.Time
}

// NewAsyncInvocationUseCase creates the record store service over repo.
func NewAsyncInvocationUseCase(repo AsyncInvocationRepository) AsyncInvocationUseCase {
	return &asyncInvocationUseCase{
		repo: repo,
		now:  time.Now,
	}
}

// BuildPayload serializes event into a re-deliverable payload.
func (a *asyncInvocationUseCase) BuildPayload(
	eventName, listenerName string,
	event domain.Event,
) (*domain.AsyncInvocationPayload, error) {
	if eventName == "" || listenerName == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "event and listener names are required")
	}

	raw, err := json.Marshal(event)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to encode event "+eventName)
	}

	return &domain.AsyncInvocationPayload{
		EventName:    eventName,
		ListenerName: listenerName,
		Event:        raw,
	}, nil
}

// Create inserts a pending record with a UUIDv7 id.
func (a *asyncInvocationUseCase) Create(
	ctx context.Context,
	payload *domain.AsyncInvocationPayload,
) (*domain.AsyncInvocation, error) {
	if payload == nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "payload is required")
	}

	document, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to encode async invocation payload")
	}

	now := a.now().UTC()
	invocation := &domain.AsyncInvocation{
		ID:           uuid.Must(uuid.NewV7()),
		EventName:    payload.EventName,
		ListenerName: payload.ListenerName,
		Payload:      string(document),
		Status:       domain.AsyncInvocationStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := a.repo.Create(ctx, invocation); err != nil {
		return nil, err
	}

	return invocation, nil
}

// Get retrieves a record by ID.
func (a *asyncInvocationUseCase) Get(ctx context.Context, id uuid.UUID) (*domain.AsyncInvocation, error) {
	return a.repo.Get(ctx, id)
}

// Delete removes a record.
func (a *asyncInvocationUseCase) Delete(ctx context.Context, id uuid.UUID) error {
	return a.repo.Delete(ctx, id)
}

// MarkFailed records cause on the record and flags it for retry.
func (a *asyncInvocationUseCase) MarkFailed(ctx context.Context, id uuid.UUID, cause error) error {
	message := "unknown error"
	if cause != nil {
		message = cause.Error()
	}
	message = sanitizeLastError(message)

	return a.repo.MarkFailed(ctx, id, message, a.now().UTC())
}

// ListOutstanding lists records still awaiting successful delivery.
func (a *asyncInvocationUseCase) ListOutstanding(
	ctx context.Context,
	offset, limit int,
) ([]*domain.AsyncInvocation, error) {
	return a.repo.ListOutstanding(ctx, offset, limit)
}

// ListRetryable lists records the retry sweeper should attempt next.
func (a *asyncInvocationUseCase) ListRetryable(
	ctx context.Context,
	maxAttempts, limit int,
) ([]*domain.AsyncInvocation, error) {
	return a.repo.ListRetryable(ctx, maxAttempts, limit)
}

// CountExhausted counts records that reached maxAttempts attempts.
func (a *asyncInvocationUseCase) CountExhausted(ctx context.Context, maxAttempts int) (int64, error) {
	return a.repo.CountExhausted(ctx, maxAttempts)
}

// ListOlderThan lists records created before olderThan.
func (a *asyncInvocationUseCase) ListOlderThan(
	ctx context.Context,
	olderThan time.Time,
	limit int,
) ([]*domain.AsyncInvocation, error) {
	return a.repo.ListOlderThan(ctx, olderThan.UTC(), limit)
}

// CountOlderThan counts records created before olderThan.
func (a *asyncInvocationUseCase) CountOlderThan(ctx context.Context, olderThan time.Time) (int64, error) {
	return a.repo.CountOlderThan(ctx, olderThan.UTC())
}

// decodeInvocationEvent rebuilds the event of invocation from its persisted payload.
func decodeInvocationEvent(reg ListenerRegistry, invocation *domain.AsyncInvocation) (domain.Event, error) {
	var payload domain.AsyncInvocationPayload
	if err := json.Unmarshal([]byte(invocation.Payload), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}

	return reg.Decode(invocation.EventName, payload.Event)
}

// sanitizeLastError makes message storable as database text: valid UTF-8, no NUL bytes
// and at most maxLastErrorLength bytes, cut on a rune boundary.
func sanitizeLastError(message string) string {
	message = strings.ReplaceAll(strings.ToValidUTF8(message, "\uFFFD"), "\x00", "")
	if len(message) <= maxLastErrorLength {
		return message
	}

	cut := maxLastErrorLength
	for cut > 0 && !utf8.RuneStart(message[cut]) {
		cut--
	}
	return message[:cut]
}
