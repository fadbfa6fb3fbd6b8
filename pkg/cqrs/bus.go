package cqrs

import (
	"context"
	"fmt"
	"sync"

	"github.com/plaenen/corebank/pkg/domain"
	"github.com/plaenen/corebank/pkg/messaging"
)

// Bus is an in-process command and query bus. Middleware applies to commands
// only; queries bypass the pipeline because they neither mutate nor emit.
type Bus struct {
	mu            sync.RWMutex
	handlers      map[string]CommandHandler
	queryHandlers map[string]QueryHandler
	middleware    []CommandMiddleware
	dispatcher    *messaging.Dispatcher
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithDispatcher wires the in-process event dispatcher. Events returned by a
// command handler are dispatched after Send returns them durable.
func WithDispatcher(d *messaging.Dispatcher) BusOption {
	return func(b *Bus) {
		b.dispatcher = d
	}
}

// NewBus creates an empty bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		handlers:      make(map[string]CommandHandler),
		queryHandlers: make(map[string]QueryHandler),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Use appends middleware. The first registered middleware is the outermost.
func (b *Bus) Use(mw CommandMiddleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, mw)
}

// Register registers a command handler. Registering the same command type
// twice is a wiring bug and panics.
func (b *Bus) Register(commandType string, handler CommandHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.handlers[commandType]; exists {
		panic(fmt.Sprintf("command handler already registered for %s", commandType))
	}
	b.handlers[commandType] = handler
}

// RegisterQuery registers a query handler.
func (b *Bus) RegisterQuery(queryType string, handler QueryHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.queryHandlers[queryType]; exists {
		panic(fmt.Sprintf("query handler already registered for %s", queryType))
	}
	b.queryHandlers[queryType] = handler
}

// Send routes a command through the middleware pipeline to its handler.
// On success, committed events are fanned out to the dispatcher before the
// result is returned to the caller.
func (b *Bus) Send(ctx context.Context, cmd Command) (*Result, error) {
	b.mu.RLock()
	handler, ok := b.handlers[cmd.CommandType()]
	middleware := b.middleware
	b.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: no handler for command %s", domain.ErrInternal, cmd.CommandType())
	}

	// Wrap in reverse so the first Use call is the outermost layer.
	wrapped := handler
	for i := len(middleware) - 1; i >= 0; i-- {
		wrapped = middleware[i](wrapped)
	}

	result, err := wrapped.Handle(ctx, cmd)

	// A handler may return events alongside an error: a rejected transfer
	// still commits its InsufficientFunds event. Whatever came back is
	// durable in the outbox, so it is also fanned out in-process.
	if b.dispatcher != nil && result != nil && len(result.Events) > 0 {
		b.dispatcher.Dispatch(ctx, result.Events)
	}
	return result, err
}

// Ask routes a query to its handler.
func (b *Bus) Ask(ctx context.Context, q Query) (any, error) {
	b.mu.RLock()
	handler, ok := b.queryHandlers[q.QueryType()]
	b.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: no handler for query %s", domain.ErrInternal, q.QueryType())
	}
	return handler.Handle(ctx, q)
}
