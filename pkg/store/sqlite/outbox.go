package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/plaenen/corebank/pkg/domain"
	"github.com/plaenen/corebank/pkg/store"
)

type outboxStore struct {
	store *Store
}

const outboxColumns = `id, type, content, occurred_on, processed_on, retry_count, last_error`

func (o *outboxStore) Append(ctx context.Context, messages []*store.OutboxMessage) error {
	o.store.mu.Lock()
	defer o.store.mu.Unlock()

	tx, err := o.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertOutboxMessages(ctx, tx, messages); err != nil {
		return err
	}
	return tx.Commit()
}

func (o *outboxStore) PendingBatch(ctx context.Context, limit, maxRetries int) ([]*store.OutboxMessage, error) {
	return o.query(ctx, `
		SELECT `+outboxColumns+`
		FROM outbox_messages
		WHERE processed_on IS NULL AND retry_count < ?
		ORDER BY occurred_on, id
		LIMIT ?`, maxRetries, limit)
}

func (o *outboxStore) SaveBatch(ctx context.Context, messages []*store.OutboxMessage) error {
	o.store.mu.Lock()
	defer o.store.mu.Unlock()

	tx, err := o.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, m := range messages {
		var processedOn sql.NullInt64
		if m.ProcessedOn != nil {
			processedOn = sql.NullInt64{Int64: m.ProcessedOn.Unix(), Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE outbox_messages
			SET processed_on = ?, retry_count = ?, last_error = ?
			WHERE id = ?`,
			processedOn, m.RetryCount, m.LastError, m.ID,
		); err != nil {
			return fmt.Errorf("failed to save outbox message %s: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

func (o *outboxStore) DeadLetters(ctx context.Context, maxRetries int) ([]*store.OutboxMessage, error) {
	return o.query(ctx, `
		SELECT `+outboxColumns+`
		FROM outbox_messages
		WHERE processed_on IS NULL AND retry_count >= ?
		ORDER BY occurred_on, id`, maxRetries)
}

func (o *outboxStore) ResetDeadLetter(ctx context.Context, id string) error {
	o.store.mu.Lock()
	defer o.store.mu.Unlock()

	res, err := o.store.db.ExecContext(ctx, `
		UPDATE outbox_messages
		SET retry_count = 0, last_error = ''
		WHERE id = ? AND processed_on IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to reset outbox message: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to reset outbox message: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: outbox message %s", domain.ErrNotFound, id)
	}
	return nil
}

func (o *outboxStore) query(ctx context.Context, query string, args ...any) ([]*store.OutboxMessage, error) {
	o.store.mu.RLock()
	defer o.store.mu.RUnlock()

	rows, err := o.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	var messages []*store.OutboxMessage
	for rows.Next() {
		var (
			m           store.OutboxMessage
			occurredOn  int64
			processedOn sql.NullInt64
		)
		if err := rows.Scan(&m.ID, &m.Type, &m.Content, &occurredOn,
			&processedOn, &m.RetryCount, &m.LastError); err != nil {
			return nil, fmt.Errorf("failed to scan outbox message: %w", err)
		}
		m.OccurredOn = fromUnix(occurredOn)
		if processedOn.Valid {
			t := fromUnix(processedOn.Int64)
			m.ProcessedOn = &t
		}
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

func insertOutboxMessages(ctx context.Context, ex execer, messages []*store.OutboxMessage) error {
	for _, m := range messages {
		var processedOn sql.NullInt64
		if m.ProcessedOn != nil {
			processedOn = sql.NullInt64{Int64: m.ProcessedOn.Unix(), Valid: true}
		}
		if _, err := ex.ExecContext(ctx, `
			INSERT INTO outbox_messages (`+outboxColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.Type, m.Content, m.OccurredOn.Unix(),
			processedOn, m.RetryCount, m.LastError,
		); err != nil {
			return fmt.Errorf("failed to insert outbox message: %w", err)
		}
	}
	return nil
}
