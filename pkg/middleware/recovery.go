package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/plaenen/corebank/pkg/cqrs"
	"github.com/plaenen/corebank/pkg/domain"
)

// Recovery recovers from panics in command handlers and turns them into
// internal errors.
func Recovery(logger *slog.Logger) cqrs.CommandMiddleware {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next cqrs.CommandHandler) cqrs.CommandHandler {
		return cqrs.CommandHandlerFunc(func(ctx context.Context, cmd cqrs.Command) (result *cqrs.Result, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.ErrorContext(ctx, "Command handler panicked",
						slog.String("command_type", cmd.CommandType()),
						slog.Any("panic", r),
						slog.String("stack_trace", string(debug.Stack())),
					)

					result = nil
					err = fmt.Errorf("%w: command handler panicked: %v", domain.ErrInternal, r)
				}
			}()

			return next.Handle(ctx, cmd)
		})
	}
}
