package dto

import (
	"encoding/json"
	"time"

	"github.com/allisson/eventrelay/internal/events/domain"
	"github.com/allisson/eventrelay/internal/events/usecase"
)

// DispatchEventResponse is returned once an event has been dispatched.
type DispatchEventResponse struct {
	EventName string          `json:"event_name"`
	Event     json.RawMessage `json:"event"`
}

// AsyncInvocationResponse represents an async invocation record in API responses.
// The payload is omitted; it can be large and is only meaningful to the listener.
type AsyncInvocationResponse struct {
	ID           string    `json:"id"`
	EventName    string    `json:"event_name"`
	ListenerName string    `json:"listener_name"`
	Status       string    `json:"status"`
	Attempts     int       `json:"attempts"`
	LastError    *string   `json:"last_error"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ListAsyncInvocationsResponse represents a paginated list of async invocation records.
type ListAsyncInvocationsResponse struct {
	Data []AsyncInvocationResponse `json:"data"`
}

// RetryAsyncInvocationsResponse reports the outcome of one retry sweep.
type RetryAsyncInvocationsResponse struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Exhausted int `json:"exhausted"`
}

// MapAsyncInvocationToResponse converts a domain record to an API response.
func MapAsyncInvocationToResponse(invocation *domain.AsyncInvocation) AsyncInvocationResponse {
	return AsyncInvocationResponse{
		ID:           invocation.ID.String(),
		EventName:    invocation.EventName,
		ListenerName: invocation.ListenerName,
		Status:       string(invocation.Status),
		Attempts:     invocation.Attempts,
		LastError:    invocation.LastError,
		CreatedAt:    invocation.CreatedAt,
		UpdatedAt:    invocation.UpdatedAt,
	}
}

// MapAsyncInvocationsToListResponse converts a slice of domain records to a list response.
func MapAsyncInvocationsToListResponse(invocations []*domain.AsyncInvocation) ListAsyncInvocationsResponse {
	data := make([]AsyncInvocationResponse, 0, len(invocations))
	for _, invocation := range invocations {
		data = append(data, MapAsyncInvocationToResponse(invocation))
	}

	return ListAsyncInvocationsResponse{
		Data: data,
	}
}

// MapSweepResultToResponse converts a sweep result to an API response.
func MapSweepResultToResponse(result usecase.SweepResult) RetryAsyncInvocationsResponse {
	return RetryAsyncInvocationsResponse(result)
}
