// Package events implements the in-process event bus: an explicit
// registration table from event name to handlers, sequential dispatch in
// registration order, and a failure boundary around every handler.
package events

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/colinxr/notion-graph-view-sub001/internal/domain/shared"
	apperrors "github.com/colinxr/notion-graph-view-sub001/internal/errors"
)

// Handler reacts to a domain event.
type Handler interface {
	Handle(ctx context.Context, event shared.DomainEvent) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event shared.DomainEvent) error

func (f HandlerFunc) Handle(ctx context.Context, event shared.DomainEvent) error {
	return f(ctx, event)
}

// Subscriber is a Handler that declares its own name and the events it
// handles. Subscribe requires it.
type Subscriber interface {
	Handler
	Name() string
	Events() []string
}

// Registration is one row of the registration table.
type Registration struct {
	Name    string
	Events  []string
	Handler Handler
}

// Publisher is the producer-facing side of the bus.
type Publisher interface {
	Publish(ctx context.Context, event shared.DomainEvent) DispatchResult
	PublishAll(ctx context.Context, events []shared.DomainEvent) []DispatchResult
}

// Observer receives dispatch measurements.
type Observer interface {
	EventPublished(event string)
	HandlerCompleted(handler, event string, d time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) EventPublished(string)                                  {}
func (nopObserver) HandlerCompleted(string, string, time.Duration, error) {}

// MissingHandlerMetadataError reports a handler registered without a
// name-to-event association. It is a programming error and should abort
// startup.
type MissingHandlerMetadataError struct {
	Handler string
}

func (e *MissingHandlerMetadataError) Error() string {
	return fmt.Sprintf("handler %s declares no event names", e.Handler)
}

// Unwrap exposes the error as a configuration error.
func (e *MissingHandlerMetadataError) Unwrap() error {
	return apperrors.Configuration(apperrors.CodeMissingHandlerMetadata.String(), e.Error()).
		WithResource("event_handler").
		WithSeverity(apperrors.SeverityCritical).
		Build()
}

// DispatchResult summarizes one publish.
type DispatchResult struct {
	Event     string
	Attempted int
	Failed    int
}

type entry struct {
	name    string
	handler Handler
}

// Bus is the in-process event bus. Create one per process and pass it to
// every producer and subscriber.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]entry
	logger   *zap.Logger
	observer Observer
}

var _ Publisher = (*Bus)(nil)

// NewBus creates an empty bus. observer may be nil.
func NewBus(logger *zap.Logger, observer Observer) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Bus{
		handlers: make(map[string][]entry),
		logger:   logger,
		observer: observer,
	}
}

// Register adds one row of the registration table.
func (b *Bus) Register(r Registration) error {
	name := r.Name
	if name == "" {
		name = handlerName(r.Handler)
	}
	if r.Handler == nil {
		return apperrors.Configuration(apperrors.CodeInvalidConfig.String(), "handler cannot be nil").
			WithResource(name).
			Build()
	}
	if len(r.Events) == 0 {
		return &MissingHandlerMetadataError{Handler: name}
	}
	for _, ev := range r.Events {
		if ev == "" {
			return &MissingHandlerMetadataError{Handler: name}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ev := range r.Events {
		b.handlers[ev] = append(b.handlers[ev], entry{name: name, handler: r.Handler})
		b.logger.Info("registered event handler",
			zap.String("handler", name),
			zap.String("event", ev),
			zap.Int("position", len(b.handlers[ev])))
	}
	return nil
}

// Subscribe registers a handler under the events it declares. Handlers that
// do not implement Subscriber carry no metadata and are rejected.
func (b *Bus) Subscribe(h Handler) error {
	s, ok := h.(Subscriber)
	if !ok {
		return &MissingHandlerMetadataError{Handler: handlerName(h)}
	}
	return b.Register(Registration{Name: s.Name(), Events: s.Events(), Handler: s})
}

// RegisterAll registers a table in order and stops at the first error.
func (b *Bus) RegisterAll(table []Registration) error {
	for _, r := range table {
		if err := b.Register(r); err != nil {
			return err
		}
	}
	return nil
}

// Handlers returns the handler names registered for an event, in dispatch order.
func (b *Bus) Handlers(event string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.handlers[event]))
	for _, e := range b.handlers[event] {
		names = append(names, e.name)
	}
	return names
}

// Publish invokes every handler registered for the event, one after the
// other in registration order. Handler errors and panics are logged and
// counted; they never stop the remaining handlers and never reach the
// caller.
func (b *Bus) Publish(ctx context.Context, event shared.DomainEvent) DispatchResult {
	if event == nil {
		b.logger.Warn("ignoring nil event")
		return DispatchResult{}
	}
	name := event.EventName()

	b.mu.RLock()
	handlers := make([]entry, len(b.handlers[name]))
	copy(handlers, b.handlers[name])
	b.mu.RUnlock()

	b.observer.EventPublished(name)
	result := DispatchResult{Event: name, Attempted: len(handlers)}
	if len(handlers) == 0 {
		b.logger.Debug("no handlers registered for event", zap.String("event", name))
		return result
	}

	for _, h := range handlers {
		start := time.Now()
		err := b.invoke(ctx, h, event)
		duration := time.Since(start)
		b.observer.HandlerCompleted(h.name, name, duration, err)

		if err != nil {
			result.Failed++
			b.logger.Error("event handler failed",
				zap.String("handler", h.name),
				zap.String("event", name),
				zap.String("event_id", event.EventID()),
				zap.String("aggregate_id", event.AggregateID()),
				zap.Duration("duration", duration),
				zap.Error(err))
			continue
		}
		b.logger.Debug("event handler succeeded",
			zap.String("handler", h.name),
			zap.String("event", name),
			zap.Duration("duration", duration))
	}
	return result
}

// PublishAll publishes events in order, each fully dispatched before the next.
func (b *Bus) PublishAll(ctx context.Context, events []shared.DomainEvent) []DispatchResult {
	results := make([]DispatchResult, 0, len(events))
	for _, ev := range events {
		results = append(results, b.Publish(ctx, ev))
	}
	return results
}

func (b *Bus) invoke(ctx context.Context, h entry, event shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.Handler(apperrors.CodeHandlerPanicked.String(), fmt.Sprintf("handler panicked: %v", r)).
				WithResource(h.name).
				WithOperation(event.EventName()).
				WithDetails(string(debug.Stack())).
				Build()
		}
	}()
	return h.handler.Handle(ctx, event)
}

func handlerName(h Handler) string {
	if h == nil {
		return "<nil>"
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", h), "*")
}
