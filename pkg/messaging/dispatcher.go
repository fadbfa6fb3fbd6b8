// Package messaging carries committed domain events to their consumers:
// in-process subscribers via the Dispatcher, external systems via an
// EventSink fed by the outbox relay.
package messaging

import (
	"context"
	"log/slog"
	"sync"

	"github.com/plaenen/corebank/pkg/domain"
)

// EventSink publishes events to an external system. The outbox relay is the
// only producer; implementations must tolerate redelivery because the relay
// guarantees at-least-once.
type EventSink interface {
	// Publish delivers a single event. An error leaves the outbox message
	// unprocessed so the relay retries it.
	Publish(ctx context.Context, event domain.Event) error

	// Close releases the sink's resources.
	Close() error
}

// EventHandler processes a committed domain event in-process.
type EventHandler func(ctx context.Context, event domain.Event) error

// Dispatcher fans committed events out to in-process subscribers. Handlers
// run sequentially in subscription order; a failing handler is logged and
// skipped, it never fails the command that produced the event.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]EventHandler
	logger   *slog.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		handlers: make(map[string][]EventHandler),
		logger:   logger,
	}
}

// Subscribe registers a handler for an event type tag, e.g.
// domain.EventTypeMoneyTransferred.
func (d *Dispatcher) Subscribe(eventType string, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = append(d.handlers[eventType], handler)
}

// Dispatch delivers each event to its subscribers. Called after a successful
// commit; by then the events are durable in the outbox, so subscriber
// failures are an observability concern, not a correctness one.
func (d *Dispatcher) Dispatch(ctx context.Context, events []domain.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, event := range events {
		for _, handler := range d.handlers[event.EventType()] {
			if err := handler(ctx, event); err != nil {
				d.logger.Error("event subscriber failed",
					"event_type", event.EventType(),
					"event_id", event.EventID(),
					"error", err)
			}
		}
	}
}
