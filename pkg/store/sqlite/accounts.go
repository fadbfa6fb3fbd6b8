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

type accountRepository struct {
	store *Store
}

const accountColumns = `id, account_number, customer_id, account_type,
	balance_amount, currency, date_opened, active, row_version, last_activity,
	status, interest_bearing, archived, deleted_at, deleted_by`

func (r *accountRepository) FindByID(ctx context.Context, id domain.AccountID) (*domain.Account, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	row := r.store.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = ? AND deleted_at IS NULL`, id.String())
	return scanAccount(row)
}

func (r *accountRepository) FindByNumber(ctx context.Context, number domain.AccountNumber) (*domain.Account, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	row := r.store.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE account_number = ? AND deleted_at IS NULL`, number.String())
	return scanAccount(row)
}

func (r *accountRepository) FindByCustomer(ctx context.Context, customerID domain.CustomerID) ([]*domain.Account, error) {
	return r.queryAccounts(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE customer_id = ? AND deleted_at IS NULL
		ORDER BY date_opened`, customerID.String())
}

func (r *accountRepository) NumberExists(ctx context.Context, number domain.AccountNumber) (bool, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var count int
	err := r.store.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM accounts WHERE account_number = ?`, number.String()).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check account number: %w", err)
	}
	return count > 0, nil
}

func (r *accountRepository) FindByStatus(ctx context.Context, status domain.AccountStatus) ([]*domain.Account, error) {
	return r.queryAccounts(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE status = ? AND deleted_at IS NULL
		ORDER BY account_number`, string(status))
}

func (r *accountRepository) FindInterestBearing(ctx context.Context) ([]*domain.Account, error) {
	return r.queryAccounts(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE interest_bearing = 1 AND active = 1 AND deleted_at IS NULL
		ORDER BY account_number`)
}

func (r *accountRepository) FindInactiveSince(ctx context.Context, cutoff time.Time) ([]*domain.Account, error) {
	return r.queryAccounts(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE status = ? AND last_activity < ? AND deleted_at IS NULL
		ORDER BY last_activity`, string(domain.StatusActive), cutoff.Unix())
}

func (r *accountRepository) FindLowBalance(ctx context.Context, threshold decimal.Decimal) ([]*domain.Account, error) {
	// Balances are stored as decimal strings; the comparison casts to REAL,
	// which is precise enough for a reporting threshold.
	return r.queryAccounts(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE active = 1 AND deleted_at IS NULL
		  AND CAST(balance_amount AS REAL) < ?
		ORDER BY account_number`, threshold.InexactFloat64())
}

func (r *accountRepository) Add(ctx context.Context, account *domain.Account) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return insertAccount(ctx, r.store.db, account)
}

func (r *accountRepository) Update(ctx context.Context, account *domain.Account) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return updateAccount(ctx, r.store.db, account)
}

func (r *accountRepository) queryAccounts(ctx context.Context, query string, args ...any) ([]*domain.Account, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	rows, err := r.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// insertAccount writes the row with the next version so that a MarkFlushed
// on the in-memory aggregate lands on the same number.
func insertAccount(ctx context.Context, ex execer, account *domain.Account) error {
	deletedAt, deletedBy := deletionColumns(account.Deleted())
	_, err := ex.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID().String(),
		account.Number().String(),
		account.CustomerID().String(),
		string(account.Type()),
		account.Balance().Amount.String(),
		account.Balance().Currency,
		account.DateOpened().Unix(),
		account.IsActive(),
		account.RowVersion()+1,
		account.LastActivity().Unix(),
		string(account.Status()),
		account.IsInterestBearing(),
		account.IsArchived(),
		deletedAt,
		deletedBy,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: account number %s is already taken", domain.ErrValidation, account.Number())
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

// updateAccount performs a version-checked update. Zero affected rows on a
// live account means another writer got there first.
func updateAccount(ctx context.Context, ex execer, account *domain.Account) error {
	deletedAt, deletedBy := deletionColumns(account.Deleted())
	res, err := ex.ExecContext(ctx, `
		UPDATE accounts
		SET balance_amount = ?, currency = ?, active = ?, row_version = row_version + 1,
		    last_activity = ?, status = ?, interest_bearing = ?, archived = ?,
		    deleted_at = ?, deleted_by = ?
		WHERE id = ? AND row_version = ?`,
		account.Balance().Amount.String(),
		account.Balance().Currency,
		account.IsActive(),
		account.LastActivity().Unix(),
		string(account.Status()),
		account.IsInterestBearing(),
		account.IsArchived(),
		deletedAt,
		deletedBy,
		account.ID().String(),
		account.RowVersion(),
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: account %s at version %d", domain.ErrConcurrencyConflict, account.Number(), account.RowVersion())
	}
	return nil
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var (
		rec           domain.AccountRecord
		id            string
		number        string
		customerID    string
		accountType   string
		balanceAmount string
		currency      string
		dateOpened    int64
		lastActivity  int64
		status        string
		deletedAt     sql.NullInt64
		deletedBy     sql.NullString
	)
	err := row.Scan(
		&id,
		&number,
		&customerID,
		&accountType,
		&balanceAmount,
		&currency,
		&dateOpened,
		&rec.Active,
		&rec.RowVersion,
		&lastActivity,
		&status,
		&rec.InterestBearing,
		&rec.Archived,
		&deletedAt,
		&deletedBy,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: account", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}

	balance, err := scanMoney(balanceAmount, currency)
	if err != nil {
		return nil, err
	}

	rec.ID = domain.AccountID(id)
	rec.Number = domain.AccountNumber(number)
	rec.CustomerID = domain.CustomerID(customerID)
	rec.Type = domain.AccountType(accountType)
	rec.Balance = balance
	rec.DateOpened = fromUnix(dateOpened)
	rec.LastActivity = fromUnix(lastActivity)
	rec.Status = domain.AccountStatus(status)
	rec.Deleted = scanDeletion(deletedAt, deletedBy)
	return domain.RehydrateAccount(rec), nil
}
