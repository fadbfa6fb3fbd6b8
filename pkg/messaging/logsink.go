package messaging

import (
	"context"
	"log/slog"

	"github.com/plaenen/corebank/pkg/domain"
)

// LogSink is the EventSink used when no external broker is configured:
// relayed events are logged and acknowledged. In-process subscribers still
// receive every event through the dispatcher.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink that logs deliveries at debug level.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(ctx context.Context, event domain.Event) error {
	s.logger.DebugContext(ctx, "event delivered",
		"event_type", event.EventType(),
		"event_id", event.EventID())
	return nil
}

func (s *LogSink) Close() error { return nil }
