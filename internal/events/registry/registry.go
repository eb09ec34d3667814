// Package registry provides the statically built listener registry. Listeners and
// event decoders are registered once at process start through a Builder; the
// resulting Registry is read-only and safe for concurrent use.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/allisson/eventrelay/internal/events/domain"
)

// Registration binds a listener to an event together with its execution mode.
type Registration struct {
	Listener domain.Listener
	// Name is the derived listener name, computed once at registration.
	Name  string
	Async bool
}

// Decoder rebuilds an event from its JSON encoding.
type Decoder func(raw []byte) (domain.Event, error)

// Registry resolves listeners and decoders by event name.
type Registry struct {
	decoders  map[string]Decoder
	listeners map[string][]Registration
}

// ListenersFor returns the listeners of eventName in registration order.
func (r *Registry) ListenersFor(eventName string) []Registration {
	registrations := r.listeners[eventName]
	out := make([]Registration, len(registrations))
	copy(out, registrations)
	return out
}

// AsyncListener returns the async listener named listenerName registered for eventName.
func (r *Registry) AsyncListener(eventName, listenerName string) (domain.Listener, error) {
	for _, registration := range r.listeners[eventName] {
		if registration.Async && registration.Name == listenerName {
			return registration.Listener, nil
		}
	}
	return nil, fmt.Errorf("%w: %s for %s", domain.ErrListenerNotRegistered, listenerName, eventName)
}

// Decode rebuilds an event of type eventName from raw.
func (r *Registry) Decode(eventName string, raw []byte) (domain.Event, error) {
	decoder, ok := r.decoders[eventName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrEventNotRegistered, eventName)
	}

	event, err := decoder(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidPayload, eventName, err)
	}

	return event, nil
}

// EventNames returns the registered event names sorted alphabetically.
func (r *Registry) EventNames() []string {
	names := make([]string, 0, len(r.decoders))
	for name := range r.decoders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Builder collects registrations. Errors are accumulated and reported by Build.
type Builder struct {
	decoders  map[string]Decoder
	listeners map[string][]Registration
	errs      []error
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		decoders:  make(map[string]Decoder),
		listeners: make(map[string][]Registration),
	}
}

// eventPointer constrains PT to a pointer to T implementing domain.Event.
type eventPointer[T any] interface {
	*T
	domain.Event
}

// RegisterEvent registers the JSON decoder of the event type T. The event name is
// taken from the zero value of T.
func RegisterEvent[T any, PT eventPointer[T]](b *Builder) *Builder {
	name := PT(new(T)).EventName()
	return b.RegisterDecoder(name, func(raw []byte) (domain.Event, error) {
		event := PT(new(T))
		if err := json.Unmarshal(raw, event); err != nil {
			return nil, err
		}
		return event, nil
	})
}

// RegisterDecoder registers a custom decoder for eventName.
func (b *Builder) RegisterDecoder(eventName string, decoder Decoder) *Builder {
	eventName = strings.TrimSpace(eventName)
	switch {
	case eventName == "":
		b.errs = append(b.errs, errors.New("event name is required"))
	case decoder == nil:
		b.errs = append(b.errs, fmt.Errorf("decoder for %s is nil", eventName))
	default:
		if _, exists := b.decoders[eventName]; exists {
			b.errs = append(b.errs, fmt.Errorf("event %s already registered", eventName))
			return b
		}
		b.decoders[eventName] = decoder
	}
	return b
}

// Sync subscribes listener to eventName; it runs inline on the dispatching goroutine.
func (b *Builder) Sync(eventName string, listener domain.Listener) *Builder {
	return b.add(eventName, listener, false)
}

// Async subscribes listener to eventName; it runs on the deferred, persisted path.
func (b *Builder) Async(eventName string, listener domain.Listener) *Builder {
	return b.add(eventName, listener, true)
}

func (b *Builder) add(eventName string, listener domain.Listener, async bool) *Builder {
	eventName = strings.TrimSpace(eventName)
	if eventName == "" {
		b.errs = append(b.errs, errors.New("event name is required"))
		return b
	}
	if listener == nil {
		b.errs = append(b.errs, fmt.Errorf("listener for %s is nil", eventName))
		return b
	}

	b.listeners[eventName] = append(b.listeners[eventName], Registration{
		Listener: listener,
		Name:     domain.ListenerName(listener),
		Async:    async,
	})
	return b
}

// Build validates the registrations and returns the Registry. Async listeners
// require a decoder for their event, since retries rebuild the event from its payload.
func (b *Builder) Build() (*Registry, error) {
	errs := append([]error(nil), b.errs...)

	for eventName, registrations := range b.listeners {
		for _, registration := range registrations {
			if !registration.Async {
				continue
			}
			if _, ok := b.decoders[eventName]; !ok {
				errs = append(errs, fmt.Errorf(
					"async listener %s requires event %s to be registered",
					registration.Name,
					eventName,
				))
			}
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	registry := &Registry{
		decoders:  make(map[string]Decoder, len(b.decoders)),
		listeners: make(map[string][]Registration, len(b.listeners)),
	}
	for name, decoder := range b.decoders {
		registry.decoders[name] = decoder
	}
	for name, registrations := range b.listeners {
		registry.listeners[name] = append([]Registration(nil), registrations...)
	}

	return registry, nil
}
