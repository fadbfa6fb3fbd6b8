// Package store defines the persistence contracts of the banking core.
// Implementations live in subpackages; pkg/store/sqlite is the reference
// implementation backed by modernc.org/sqlite.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/plaenen/corebank/pkg/domain"
)

// CustomerRepository provides access to customer state.
type CustomerRepository interface {
	// FindByID returns the customer or domain.ErrNotFound.
	// Soft-deleted customers are not returned.
	FindByID(ctx context.Context, id domain.CustomerID) (*domain.Customer, error)

	// FindByEmail matches case-insensitively, or returns domain.ErrNotFound.
	FindByEmail(ctx context.Context, email string) (*domain.Customer, error)

	// ExistsByID reports whether a live customer with this id exists.
	ExistsByID(ctx context.Context, id domain.CustomerID) (bool, error)

	// ExistsByEmail reports whether any live customer has this email.
	ExistsByEmail(ctx context.Context, email string) (bool, error)

	// FindAll returns all live customers ordered by last name, first name.
	FindAll(ctx context.Context) ([]*domain.Customer, error)

	Add(ctx context.Context, customer *domain.Customer) error
	Update(ctx context.Context, customer *domain.Customer) error
}

// AccountRepository provides access to account state. Update enforces
// optimistic concurrency on the account row version and returns
// domain.ErrConcurrencyConflict when the stored version has moved on.
type AccountRepository interface {
	FindByID(ctx context.Context, id domain.AccountID) (*domain.Account, error)
	FindByNumber(ctx context.Context, number domain.AccountNumber) (*domain.Account, error)
	FindByCustomer(ctx context.Context, customerID domain.CustomerID) ([]*domain.Account, error)

	// NumberExists reports whether an account number is already taken,
	// including by soft-deleted accounts.
	NumberExists(ctx context.Context, number domain.AccountNumber) (bool, error)

	// FindByStatus returns live accounts in the given status.
	FindByStatus(ctx context.Context, status domain.AccountStatus) ([]*domain.Account, error)

	// FindInterestBearing returns live, active, interest-bearing accounts.
	FindInterestBearing(ctx context.Context) ([]*domain.Account, error)

	// FindInactiveSince returns active accounts whose last activity is
	// before the cutoff.
	FindInactiveSince(ctx context.Context, cutoff time.Time) ([]*domain.Account, error)

	// FindLowBalance returns active accounts with a balance strictly
	// below the threshold amount.
	FindLowBalance(ctx context.Context, threshold decimal.Decimal) ([]*domain.Account, error)

	Add(ctx context.Context, account *domain.Account) error
	Update(ctx context.Context, account *domain.Account) error
}

// TransactionRepository provides access to the transaction ledger.
// Soft-deleted transactions are excluded from every query.
type TransactionRepository interface {
	FindByID(ctx context.Context, id domain.TransactionID) (*domain.Transaction, error)

	// FindByAccount returns all transactions for an account, newest first.
	FindByAccount(ctx context.Context, accountID domain.AccountID) ([]*domain.Transaction, error)

	// FindByAccountBetween returns an account's transactions in [start, end],
	// oldest first.
	FindByAccountBetween(ctx context.Context, accountID domain.AccountID, start, end time.Time) ([]*domain.Transaction, error)

	// FindRecent returns an account's transactions at or after since,
	// oldest first. Used to rebuild in-period state such as the savings
	// monthly withdrawal count.
	FindRecent(ctx context.Context, accountID domain.AccountID, since time.Time) ([]*domain.Transaction, error)

	// FindBetween returns transactions booked in [start, end] across all
	// accounts, oldest first.
	FindBetween(ctx context.Context, start, end time.Time) ([]*domain.Transaction, error)

	// FindOlderThan returns transactions dated before the cutoff,
	// oldest first.
	FindOlderThan(ctx context.Context, cutoff time.Time) ([]*domain.Transaction, error)

	// AverageDailyBalance computes the mean end-of-day balance of an
	// account over [start, end]. Days without movement carry the prior
	// day's balance forward; the opening balance is the account balance
	// as of the end of the day before start.
	AverageDailyBalance(ctx context.Context, accountID domain.AccountID, start, end time.Time) (decimal.Decimal, error)

	Add(ctx context.Context, transaction *domain.Transaction) error
	AddRange(ctx context.Context, transactions []*domain.Transaction) error
	Update(ctx context.Context, transaction *domain.Transaction) error
}

// UnitOfWork tracks aggregates touched by one command and commits all of
// their changes, their new transactions and their pending events in a
// single database transaction.
//
// Commit either persists everything or nothing. On success it returns the
// events that were written to the outbox, with the tracked aggregates'
// pending-event buffers cleared; on failure the buffers are left intact so
// the command can be retried.
type UnitOfWork interface {
	// RegisterNew marks an account for insertion.
	RegisterNew(account *domain.Account)

	// RegisterDirty marks a loaded account for a version-checked update.
	RegisterDirty(account *domain.Account)

	// RegisterNewCustomer marks a customer for insertion.
	RegisterNewCustomer(customer *domain.Customer)

	// RegisterDirtyCustomer marks a loaded customer for update.
	RegisterDirtyCustomer(customer *domain.Customer)

	Commit(ctx context.Context) ([]domain.Event, error)
}

// UnitOfWorkFactory creates a fresh unit of work per command execution.
type UnitOfWorkFactory interface {
	NewUnitOfWork() UnitOfWork
}
