package store

import (
	"context"
	"time"

	"github.com/plaenen/corebank/pkg/domain"
	"github.com/plaenen/corebank/pkg/idgen"
)

// OutboxMessage is a serialized domain event awaiting publication. Rows are
// written in the same transaction as the state change that produced the
// event and later picked up by the relay.
type OutboxMessage struct {
	ID          string
	Type        string
	Content     []byte
	OccurredOn  time.Time
	ProcessedOn *time.Time
	RetryCount  int
	LastError   string
}

// NewOutboxMessage serializes an event into a message ready for insertion.
func NewOutboxMessage(event domain.Event) (*OutboxMessage, error) {
	content, err := domain.EncodeEvent(event)
	if err != nil {
		return nil, err
	}
	return &OutboxMessage{
		ID:         idgen.NewSortableID(),
		Type:       event.EventType(),
		Content:    content,
		OccurredOn: event.OccurredOn(),
	}, nil
}

// MarkProcessed records successful publication.
func (m *OutboxMessage) MarkProcessed(now time.Time) {
	processedOn := now
	m.ProcessedOn = &processedOn
	m.LastError = ""
}

// MarkFailed records a failed publication attempt.
func (m *OutboxMessage) MarkFailed(err error) {
	m.RetryCount++
	if err != nil {
		m.LastError = err.Error()
	}
}

// Dead reports whether the message has exhausted the given retry budget.
func (m *OutboxMessage) Dead(maxRetries int) bool {
	return m.ProcessedOn == nil && m.RetryCount >= maxRetries
}

// OutboxStore provides access to the outbox table.
type OutboxStore interface {
	// Append inserts messages. Implementations used by the unit of work
	// must honor the transaction carried in ctx.
	Append(ctx context.Context, messages []*OutboxMessage) error

	// PendingBatch returns up to limit unprocessed messages with fewer
	// than maxRetries attempts, ordered by occurrence time.
	PendingBatch(ctx context.Context, limit, maxRetries int) ([]*OutboxMessage, error)

	// SaveBatch persists the processed/retry state of messages after a
	// relay pass, all in one transaction.
	SaveBatch(ctx context.Context, messages []*OutboxMessage) error

	// DeadLetters returns unprocessed messages at or above maxRetries
	// attempts, ordered by occurrence time.
	DeadLetters(ctx context.Context, maxRetries int) ([]*OutboxMessage, error)

	// ResetDeadLetter zeroes the retry count of a message so the relay
	// picks it up again. Returns domain.ErrNotFound for unknown ids.
	ResetDeadLetter(ctx context.Context, id string) error
}
