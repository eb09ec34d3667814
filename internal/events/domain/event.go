// Package domain defines the core entities of in-process event delivery: events,
// listeners and the durable async invocation records that back async listeners.
package domain

// Event is an immutable, JSON-serializable value routed to zero or more listeners.
// EventName identifies the event type and is the routing key of the registry.
type Event interface {
	EventName() string
}

// StoppableEvent is an Event that can ask the dispatcher to stop calling further
// sync listeners.
type StoppableEvent interface {
	Event
	IsPropagationStopped() bool
}

// StoppableBase can be embedded in an event struct to make it a StoppableEvent.
// The flag is not serialized, so events rebuilt from a persisted payload always
// start with propagation enabled.
type StoppableBase struct {
	stopped bool
}

// StopPropagation marks the event so that no further sync listeners are called.
func (s *StoppableBase) StopPropagation() {
	s.stopped = true
}

// IsPropagationStopped reports whether StopPropagation was called.
func (s *StoppableBase) IsPropagationStopped() bool {
	return s.stopped
}
