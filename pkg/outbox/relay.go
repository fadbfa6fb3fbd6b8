// Package outbox moves committed events from the outbox table to the
// external sink. The relay is the half of the transactional-outbox pattern
// that runs after the commit: it polls, publishes, and marks rows processed,
// giving at-least-once delivery in occurrence order.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/plaenen/corebank/pkg/domain"
	"github.com/plaenen/corebank/pkg/messaging"
	"github.com/plaenen/corebank/pkg/observability"
	"github.com/plaenen/corebank/pkg/store"
)

// Relay polls the outbox and publishes pending messages to the sink.
// It implements runner.Service.
type Relay struct {
	outbox store.OutboxStore
	sink   messaging.EventSink

	pollInterval time.Duration
	batchSize    int
	maxRetries   int
	logger       *slog.Logger
	tracer       trace.Tracer
	clock        func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
	mu     sync.Mutex
}

type relayConfig struct {
	pollInterval time.Duration
	batchSize    int
	maxRetries   int
	logger       *slog.Logger
	tracer       trace.Tracer
	clock        func() time.Time
}

// RelayOption configures a Relay.
type RelayOption func(*relayConfig)

// WithPollInterval sets how often the relay polls for pending messages.
// Default is 30 seconds.
func WithPollInterval(d time.Duration) RelayOption {
	return func(c *relayConfig) {
		c.pollInterval = d
	}
}

// WithBatchSize sets how many messages one pass picks up. Default is 20.
func WithBatchSize(n int) RelayOption {
	return func(c *relayConfig) {
		c.batchSize = n
	}
}

// WithMaxRetries sets the per-message retry budget before a message becomes
// a dead letter. Default is 3.
func WithMaxRetries(n int) RelayOption {
	return func(c *relayConfig) {
		c.maxRetries = n
	}
}

// WithLogger sets the relay logger.
func WithLogger(logger *slog.Logger) RelayOption {
	return func(c *relayConfig) {
		c.logger = logger
	}
}

// WithTracer sets the tracer for per-pass spans.
func WithTracer(tracer trace.Tracer) RelayOption {
	return func(c *relayConfig) {
		c.tracer = tracer
	}
}

// WithClock overrides the time source. Tests use this to pin "now".
func WithClock(clock func() time.Time) RelayOption {
	return func(c *relayConfig) {
		c.clock = clock
	}
}

// NewRelay creates a relay over the given outbox and sink.
func NewRelay(outbox store.OutboxStore, sink messaging.EventSink, opts ...RelayOption) *Relay {
	config := relayConfig{
		pollInterval: 30 * time.Second,
		batchSize:    20,
		maxRetries:   3,
		logger:       slog.Default(),
		tracer:       noop.NewTracerProvider().Tracer("outbox"),
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(&config)
	}

	return &Relay{
		outbox:       outbox,
		sink:         sink,
		pollInterval: config.pollInterval,
		batchSize:    config.batchSize,
		maxRetries:   config.maxRetries,
		logger:       config.logger,
		tracer:       config.tracer,
		clock:        config.clock,
	}
}

// Name implements runner.Service.
func (r *Relay) Name() string { return "outbox-relay" }

// Start launches the polling loop. It returns immediately; the loop runs
// until Stop is called.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopCh != nil {
		return fmt.Errorf("relay already started")
	}
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})

	go r.loop()
	return nil
}

// Stop shuts the polling loop down and waits for the in-flight pass.
func (r *Relay) Stop(ctx context.Context) error {
	r.mu.Lock()
	stopCh, doneCh := r.stopCh, r.doneCh
	r.mu.Unlock()

	if stopCh == nil {
		return nil
	}
	close(stopCh)

	select {
	case <-doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Relay) loop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			if _, err := r.RunOnce(context.Background()); err != nil {
				r.logger.Error("outbox pass failed", "error", err)
			}
		}
	}
}

// RunOnce executes a single relay pass and returns how many messages were
// published. Messages are processed oldest first; a message that fails to
// publish gets its retry count bumped and stays pending until the budget is
// exhausted, without blocking the messages behind it.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	ctx, span := observability.StartSpan(ctx, r.tracer, "outbox.relay.pass")
	var passErr error
	defer func() { observability.EndSpan(span, passErr) }()

	batch, err := r.outbox.PendingBatch(ctx, r.batchSize, r.maxRetries)
	if err != nil {
		passErr = fmt.Errorf("failed to load pending batch: %w", err)
		return 0, passErr
	}
	if len(batch) == 0 {
		return 0, nil
	}

	span.SetAttributes(attribute.Int("outbox.batch_size", len(batch)))

	published := 0
	for _, msg := range batch {
		if err := r.publishOne(ctx, msg); err != nil {
			msg.MarkFailed(err)
			if msg.Dead(r.maxRetries) {
				r.logger.Error("outbox message moved to dead letters",
					"message_id", msg.ID,
					"event_type", msg.Type,
					"retries", msg.RetryCount,
					"error", err)
			} else {
				r.logger.Warn("outbox publish failed, will retry",
					"message_id", msg.ID,
					"event_type", msg.Type,
					"retries", msg.RetryCount,
					"error", err)
			}
			continue
		}
		msg.MarkProcessed(r.clock())
		published++
	}

	if err := r.outbox.SaveBatch(ctx, batch); err != nil {
		passErr = fmt.Errorf("failed to save batch state: %w", err)
		return published, passErr
	}

	return published, nil
}

// publishOne decodes and publishes a single message. A payload whose type
// tag has no registered decoder can never be published; it is logged and
// treated as delivered so it does not clog the queue.
func (r *Relay) publishOne(ctx context.Context, msg *store.OutboxMessage) error {
	event, err := domain.DecodeEvent(msg.Type, msg.Content)
	if errors.Is(err, domain.ErrUnknownEventType) {
		r.logger.Warn("skipping outbox message with unknown event type",
			"message_id", msg.ID,
			"event_type", msg.Type)
		msg.MarkProcessed(r.clock())
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}

	if err := r.sink.Publish(ctx, event); err != nil {
		return err
	}
	return nil
}

// DeadLetters lists messages that exhausted their retry budget.
func (r *Relay) DeadLetters(ctx context.Context) ([]*store.OutboxMessage, error) {
	return r.outbox.DeadLetters(ctx, r.maxRetries)
}

// ResetDeadLetter puts a dead letter back into rotation after the underlying
// problem is fixed.
func (r *Relay) ResetDeadLetter(ctx context.Context, id string) error {
	return r.outbox.ResetDeadLetter(ctx, id)
}
