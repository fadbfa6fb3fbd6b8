// Package middleware provides the cross-cutting layers of the command
// pipeline: logging, panic recovery, validation and tracing.
package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/plaenen/corebank/pkg/cqrs"
)

// Logging logs command execution with timing information using slog.
func Logging(logger *slog.Logger) cqrs.CommandMiddleware {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next cqrs.CommandHandler) cqrs.CommandHandler {
		return cqrs.CommandHandlerFunc(func(ctx context.Context, cmd cqrs.Command) (*cqrs.Result, error) {
			start := time.Now()

			logger.InfoContext(ctx, "Executing command",
				slog.String("command_type", cmd.CommandType()),
			)

			result, err := next.Handle(ctx, cmd)

			duration := time.Since(start)

			if err != nil {
				logger.ErrorContext(ctx, "Command execution failed",
					slog.String("command_type", cmd.CommandType()),
					slog.Int64("duration_ms", duration.Milliseconds()),
					slog.String("error", err.Error()),
				)
				return result, err
			}

			eventCount := 0
			if result != nil {
				eventCount = len(result.Events)
			}
			logger.InfoContext(ctx, "Command executed successfully",
				slog.String("command_type", cmd.CommandType()),
				slog.Int("events_count", eventCount),
				slog.Int64("duration_ms", duration.Milliseconds()),
			)

			return result, nil
		})
	}
}
