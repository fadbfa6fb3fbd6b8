package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/plaenen/corebank/pkg/domain"
)

type transactionRepository struct {
	store *Store
}

const transactionColumns = `id, account_id, transaction_type, amount, currency,
	description, booked_at, reference, deleted_at, deleted_by`

func (r *transactionRepository) FindByID(ctx context.Context, id domain.TransactionID) (*domain.Transaction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	row := r.store.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE id = ? AND deleted_at IS NULL`, id.String())
	return scanTransaction(row)
}

func (r *transactionRepository) FindByAccount(ctx context.Context, accountID domain.AccountID) ([]*domain.Transaction, error) {
	return r.queryTransactions(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE account_id = ? AND deleted_at IS NULL
		ORDER BY booked_at DESC, id DESC`, accountID.String())
}

func (r *transactionRepository) FindByAccountBetween(ctx context.Context, accountID domain.AccountID, start, end time.Time) ([]*domain.Transaction, error) {
	return r.queryTransactions(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE account_id = ? AND deleted_at IS NULL
		  AND booked_at >= ? AND booked_at <= ?
		ORDER BY booked_at, id`, accountID.String(), start.Unix(), end.Unix())
}

func (r *transactionRepository) FindRecent(ctx context.Context, accountID domain.AccountID, since time.Time) ([]*domain.Transaction, error) {
	return r.queryTransactions(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE account_id = ? AND deleted_at IS NULL AND booked_at >= ?
		ORDER BY booked_at, id`, accountID.String(), since.Unix())
}

func (r *transactionRepository) FindBetween(ctx context.Context, start, end time.Time) ([]*domain.Transaction, error) {
	return r.queryTransactions(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE deleted_at IS NULL AND booked_at >= ? AND booked_at <= ?
		ORDER BY booked_at, id`, start.Unix(), end.Unix())
}

func (r *transactionRepository) FindOlderThan(ctx context.Context, cutoff time.Time) ([]*domain.Transaction, error) {
	return r.queryTransactions(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE deleted_at IS NULL AND booked_at < ?
		ORDER BY booked_at, id`, cutoff.Unix())
}

// AverageDailyBalance walks end-of-day balances over [start, end]. The
// opening balance is reconstructed from the current balance by backing out
// every transaction booked on or after the first day of the window, so days
// before the account saw its first movement still carry the right figure.
func (r *transactionRepository) AverageDailyBalance(ctx context.Context, accountID domain.AccountID, start, end time.Time) (decimal.Decimal, error) {
	startDay := startOfDay(start)
	endDay := startOfDay(end)
	if endDay.Before(startDay) {
		return decimal.Zero, fmt.Errorf("%w: period end before period start", domain.ErrValidation)
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var balanceAmount, currency string
	err := r.store.db.QueryRowContext(ctx, `
		SELECT balance_amount, currency FROM accounts WHERE id = ?`,
		accountID.String()).Scan(&balanceAmount, &currency)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("%w: account %s", domain.ErrNotFound, accountID)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load account balance: %w", err)
	}
	balance, err := scanMoney(balanceAmount, currency)
	if err != nil {
		return decimal.Zero, err
	}

	rows, err := r.store.db.QueryContext(ctx, `
		SELECT transaction_type, amount, booked_at
		FROM transactions
		WHERE account_id = ? AND deleted_at IS NULL AND booked_at >= ?
		ORDER BY booked_at, id`, accountID.String(), startDay.Unix())
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	type movement struct {
		day    time.Time
		amount decimal.Decimal
	}

	opening := balance.Amount
	var movements []movement
	for rows.Next() {
		var (
			txType   string
			amount   string
			bookedAt int64
		)
		if err := rows.Scan(&txType, &amount, &bookedAt); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan transaction: %w", err)
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: corrupt amount %q: %v", domain.ErrInternal, amount, err)
		}

		signed := d
		if domain.TransactionType(txType).BalanceSign() < 0 {
			signed = d.Neg()
		}
		// Everything from the window start onward sits inside the current
		// balance and must be backed out to get the opening figure.
		opening = opening.Sub(signed)

		day := startOfDay(fromUnix(bookedAt))
		if !day.After(endDay) {
			movements = append(movements, movement{day: day, amount: signed})
		}
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("failed to iterate transactions: %w", err)
	}

	days := int(endDay.Sub(startDay).Hours()/24) + 1
	running := opening
	total := decimal.Zero
	i := 0
	for day := startDay; !day.After(endDay); day = day.AddDate(0, 0, 1) {
		for i < len(movements) && movements[i].day.Equal(day) {
			running = running.Add(movements[i].amount)
			i++
		}
		total = total.Add(running)
	}

	return total.Div(decimal.NewFromInt(int64(days))), nil
}

func (r *transactionRepository) Add(ctx context.Context, transaction *domain.Transaction) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return insertTransaction(ctx, r.store.db, transaction)
}

func (r *transactionRepository) AddRange(ctx context.Context, transactions []*domain.Transaction) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, t := range transactions {
		if err := insertTransaction(ctx, tx, t); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *transactionRepository) Update(ctx context.Context, transaction *domain.Transaction) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	deletedAt, deletedBy := deletionColumns(transaction.Deleted())
	res, err := r.store.db.ExecContext(ctx, `
		UPDATE transactions SET deleted_at = ?, deleted_by = ? WHERE id = ?`,
		deletedAt, deletedBy, transaction.ID().String())
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: transaction %s", domain.ErrNotFound, transaction.ID())
	}
	return nil
}

func (r *transactionRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]*domain.Transaction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	rows, err := r.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

func insertTransaction(ctx context.Context, ex execer, t *domain.Transaction) error {
	deletedAt, deletedBy := deletionColumns(t.Deleted())
	_, err := ex.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID().String(),
		t.AccountID().String(),
		string(t.Type()),
		t.Amount().Amount.String(),
		t.Amount().Currency,
		t.Description(),
		t.Timestamp().Unix(),
		t.Reference(),
		deletedAt,
		deletedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		id          string
		accountID   string
		txType      string
		amount      string
		currency    string
		description string
		bookedAt    int64
		reference   string
		deletedAt   sql.NullInt64
		deletedBy   sql.NullString
	)
	err := row.Scan(&id, &accountID, &txType, &amount, &currency,
		&description, &bookedAt, &reference, &deletedAt, &deletedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: transaction", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}

	money, err := scanMoney(amount, currency)
	if err != nil {
		return nil, err
	}

	return domain.RehydrateTransaction(
		domain.TransactionID(id),
		domain.AccountID(accountID),
		domain.TransactionType(txType),
		money,
		description,
		fromUnix(bookedAt),
		reference,
		scanDeletion(deletedAt, deletedBy),
	), nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
