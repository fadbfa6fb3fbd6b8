package middleware

import (
	"context"

	"github.com/plaenen/corebank/pkg/cqrs"
)

// Validation rejects commands that fail their own Validate method before the
// handler runs. Commands without one pass through. Validation errors carry
// every failing field, not just the first.
func Validation() cqrs.CommandMiddleware {
	return func(next cqrs.CommandHandler) cqrs.CommandHandler {
		return cqrs.CommandHandlerFunc(func(ctx context.Context, cmd cqrs.Command) (*cqrs.Result, error) {
			if v, ok := cmd.(cqrs.Validatable); ok {
				if err := v.Validate(); err != nil {
					return nil, err
				}
			}
			return next.Handle(ctx, cmd)
		})
	}
}
