package domain

import (
	"context"
	"reflect"
	"strings"
)

// UnknownListenerName is used when no name can be derived for a listener.
const UnknownListenerName = "unknown_listener"

// Listener is a named unit of behavior subscribed to an event type. The name is the
// correlation key of async invocation records, so it must be stable across releases.
type Listener interface {
	Name() string
	Handle(ctx context.Context, event Event) error
}

type funcListener struct {
	name string
	fn   func(ctx context.Context, event Event) error
}

func (l *funcListener) Name() string {
	return l.name
}

func (l *funcListener) Handle(ctx context.Context, event Event) error {
	return l.fn(ctx, event)
}

// ListenerFunc adapts a plain function to the Listener interface.
func ListenerFunc(name string, fn func(ctx context.Context, event Event) error) Listener {
	return &funcListener{name: name, fn: fn}
}

// ListenerName derives the name of a listener: its declared Name, then its
// package-qualified type name, then UnknownListenerName. Unnamed ListenerFunc
// adapters always resolve to UnknownListenerName.
func ListenerName(listener Listener) string {
	if listener == nil {
		return UnknownListenerName
	}

	if name := strings.TrimSpace(listener.Name()); name != "" {
		return name
	}

	// The adapter type says nothing about the wrapped function.
	if _, ok := listener.(*funcListener); ok {
		return UnknownListenerName
	}

	t := reflect.TypeOf(listener)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() != "" {
		return t.String()
	}

	return UnknownListenerName
}
