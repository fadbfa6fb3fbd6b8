package middleware

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/plaenen/corebank/pkg/cqrs"
	"github.com/plaenen/corebank/pkg/observability"
)

// Tracing opens a span per command, named after the command type.
func Tracing(tracer trace.Tracer) cqrs.CommandMiddleware {
	return func(next cqrs.CommandHandler) cqrs.CommandHandler {
		return cqrs.CommandHandlerFunc(func(ctx context.Context, cmd cqrs.Command) (*cqrs.Result, error) {
			ctx, span := observability.StartSpan(ctx, tracer, "command."+cmd.CommandType(),
				observability.WithAttributes(observability.CommandAttrs(cmd.CommandType())...),
			)

			result, err := next.Handle(ctx, cmd)

			if result != nil {
				observability.SetSpanAttributes(ctx,
					observability.AttrEventCount.Int(len(result.Events)))
			}
			observability.EndSpan(span, err)

			return result, err
		})
	}
}
