// Package cqrs routes commands and queries to their handlers through a
// middleware pipeline. Commands run against the write path and return the
// events their commit produced; queries are read-only.
package cqrs

import (
	"context"

	"github.com/plaenen/corebank/pkg/domain"
)

// Command is a request to change state. CommandType is the routing key.
type Command interface {
	CommandType() string
}

// Query is a read-only request. QueryType is the routing key.
type Query interface {
	QueryType() string
}

// Result carries a command's outcome: the handler payload plus the domain
// events committed on its behalf. The bus hands the events to the in-process
// dispatcher after the handler returns.
type Result struct {
	Payload any
	Events  []domain.Event
}

// CommandHandler processes a single command type.
type CommandHandler interface {
	Handle(ctx context.Context, cmd Command) (*Result, error)
}

// CommandHandlerFunc is a function adapter for CommandHandler.
type CommandHandlerFunc func(ctx context.Context, cmd Command) (*Result, error)

// Handle implements CommandHandler.
func (f CommandHandlerFunc) Handle(ctx context.Context, cmd Command) (*Result, error) {
	return f(ctx, cmd)
}

// CommandMiddleware wraps command handlers with cross-cutting concerns.
type CommandMiddleware func(CommandHandler) CommandHandler

// QueryHandler processes a single query type.
type QueryHandler interface {
	Handle(ctx context.Context, q Query) (any, error)
}

// QueryHandlerFunc is a function adapter for QueryHandler.
type QueryHandlerFunc func(ctx context.Context, q Query) (any, error)

// Handle implements QueryHandler.
func (f QueryHandlerFunc) Handle(ctx context.Context, q Query) (any, error) {
	return f(ctx, q)
}

// Validatable is implemented by commands that carry their own validation.
// The validation middleware calls it before the handler runs.
type Validatable interface {
	Validate() error
}
