package domain

import (
	"github.com/allisson/eventrelay/internal/errors"
)

// Event delivery error definitions.
var (
	// ErrAsyncInvocationNotFound indicates the async invocation record does not exist.
	ErrAsyncInvocationNotFound = errors.Wrap(errors.ErrNotFound, "async invocation not found")

	// ErrEventNotRegistered indicates the event name has no registered decoder.
	ErrEventNotRegistered = errors.Wrap(errors.ErrInvalidInput, "event not registered")

	// ErrListenerNotRegistered indicates no async listener with the given name handles the event.
	ErrListenerNotRegistered = errors.Wrap(errors.ErrNotFound, "listener not registered")

	// ErrInvalidPayload indicates a persisted payload cannot be decoded.
	ErrInvalidPayload = errors.Wrap(errors.ErrInvalidInput, "invalid async invocation payload")
)
