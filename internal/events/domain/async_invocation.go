package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AsyncInvocationStatus represents the state of an async invocation record.
type AsyncInvocationStatus string

const (
	// AsyncInvocationStatusPending marks a record that was created and never attempted
	// to completion.
	AsyncInvocationStatusPending AsyncInvocationStatus = "pending"
	// AsyncInvocationStatusFailed marks a record whose last attempt failed and that is
	// waiting for the retry sweeper.
	AsyncInvocationStatusFailed AsyncInvocationStatus = "failed"
)

// lockKeyPrefix namespaces execution lock keys of async invocation records.
const lockKeyPrefix = "retry:"

// AsyncInvocation is the durable obligation of one async listener to process one event.
// A successful attempt deletes the row; there is no terminal success state.
type AsyncInvocation struct {
	ID           uuid.UUID
	EventName    string
	ListenerName string
	// Payload is the JSON document of an AsyncInvocationPayload.
	Payload   string
	Status    AsyncInvocationStatus
	Attempts  int
	LastError *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LockKey returns the execution lock key guarding attempts on this record.
func (a *AsyncInvocation) LockKey() string {
	return LockKey(a.ID)
}

// LockKey returns the execution lock key for the record id.
func LockKey(id uuid.UUID) string {
	return lockKeyPrefix + id.String()
}

// AsyncInvocationPayload holds everything needed to re-deliver an event to a listener.
type AsyncInvocationPayload struct {
	EventName    string          `json:"event_name"`
	ListenerName string          `json:"listener_name"`
	Event        json.RawMessage `json:"event"`
}
