package domain

import (
	"fmt"
	"time"
)

// AccountType distinguishes product types; interest rates and withdrawal
// limits depend on it.
type AccountType string

const (
	AccountChecking     AccountType = "Checking"
	AccountSavings      AccountType = "Savings"
	AccountFixedDeposit AccountType = "FixedDeposit"
)

// AccountStatus is the maintenance status, orthogonal to the active flag.
type AccountStatus string

const (
	StatusActive    AccountStatus = "Active"
	StatusInactive  AccountStatus = "Inactive"
	StatusClosed    AccountStatus = "Closed"
	StatusSuspended AccountStatus = "Suspended"
	StatusArchived  AccountStatus = "Archived"
)

// SavingsMonthlyWithdrawalCap is the number of withdrawals a Savings account
// may make per calendar month.
const SavingsMonthlyWithdrawalCap = 6

// Thresholds used by UpdateStatusBasedOnRules and the maintenance job.
const (
	InactivityThreshold = 365 * 24 * time.Hour     // Active -> Inactive
	ArchiveThreshold    = 3 * 365 * 24 * time.Hour // archive candidates
)

// Account is the aggregate root. It owns its transactions and is the only
// entity that emits domain events. Methods are deterministic given the inputs
// and current state: no I/O, no logging, the caller supplies the clock.
type Account struct {
	id              AccountID
	number          AccountNumber
	customerID      CustomerID
	accountType     AccountType
	balance         Money
	dateOpened      time.Time
	active          bool
	deleted         *Deletion
	rowVersion      int64
	lastActivity    time.Time
	status          AccountStatus
	interestBearing bool
	archived        bool

	transactions []*Transaction // loaded children; see AttachTransactions
	newTx        []*Transaction // created this scope, flushed by the unit of work
	pending      []Event        // in-memory only, cleared on commit
}

// NewAccount opens an account. Requires a non-negative initial deposit with a
// valid currency. Emits AccountCreated.
func NewAccount(customerID CustomerID, number AccountNumber, accountType AccountType, initialDeposit Money, now time.Time) (*Account, error) {
	if initialDeposit.IsNegative() {
		return nil, fmt.Errorf("%w: initial deposit cannot be negative", ErrValidation)
	}
	if err := validateCurrency(initialDeposit.Currency); err != nil {
		return nil, err
	}

	a := &Account{
		id:           NewAccountID(),
		number:       number,
		customerID:   customerID,
		accountType:  accountType,
		balance:      initialDeposit,
		dateOpened:   now.UTC(),
		active:       true,
		lastActivity: now.UTC(),
		status:       StatusActive,
	}
	a.interestBearing = accountType == AccountSavings || accountType == AccountFixedDeposit

	a.emit(AccountCreated{
		EventModel:     NewEventModel(now),
		AccountID:      a.id,
		AccountNumber:  a.number,
		CustomerID:     a.customerID,
		AccountType:    a.accountType,
		InitialDeposit: initialDeposit,
	})
	return a, nil
}

func (a *Account) ID() AccountID            { return a.id }
func (a *Account) Number() AccountNumber    { return a.number }
func (a *Account) CustomerID() CustomerID   { return a.customerID }
func (a *Account) Type() AccountType        { return a.accountType }
func (a *Account) Balance() Money           { return a.balance }
func (a *Account) DateOpened() time.Time    { return a.dateOpened }
func (a *Account) IsActive() bool           { return a.active }
func (a *Account) Deleted() *Deletion       { return a.deleted }
func (a *Account) RowVersion() int64        { return a.rowVersion }
func (a *Account) LastActivity() time.Time  { return a.lastActivity }
func (a *Account) Status() AccountStatus    { return a.status }
func (a *Account) IsInterestBearing() bool  { return a.interestBearing }
func (a *Account) IsArchived() bool         { return a.archived }

// Transactions returns the loaded children, newest additions last.
func (a *Account) Transactions() []*Transaction {
	out := make([]*Transaction, 0, len(a.transactions)+len(a.newTx))
	out = append(out, a.transactions...)
	out = append(out, a.newTx...)
	return out
}

// NewTransactions returns children created in this scope, for the unit of work
// to insert alongside the account update.
func (a *Account) NewTransactions() []*Transaction { return a.newTx }

// AttachTransactions loads persisted children onto the aggregate. Repositories
// call this; the slice is treated as history, not as new writes.
func (a *Account) AttachTransactions(txs []*Transaction) {
	a.transactions = txs
}

func (a *Account) operational() error {
	if a.deleted != nil {
		return fmt.Errorf("%w: account %s is deleted", ErrInvalidOperation, a.number)
	}
	if !a.active {
		return fmt.Errorf("%w: account %s is not active", ErrInvalidOperation, a.number)
	}
	return nil
}

// Deposit credits the account. Requires a positive amount in the account's
// currency and an active, non-deleted account.
func (a *Account) Deposit(amount Money, description string, now time.Time) (*Transaction, error) {
	if err := a.operational(); err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: deposit amount must be positive", ErrValidation)
	}
	if !amount.SameCurrency(a.balance) {
		return nil, fmt.Errorf("%w: account is %s, deposit is %s", ErrCurrencyMismatch, a.balance.Currency, amount.Currency)
	}

	tx, err := newTransaction(NewTransactionID(), a.id, TransactionDeposit, amount, description, "", now)
	if err != nil {
		return nil, err
	}

	a.balance.Amount = a.balance.Amount.Add(amount.Amount)
	a.lastActivity = now.UTC()
	a.newTx = append(a.newTx, tx)
	return tx, nil
}

// Withdraw debits the account. Savings accounts are capped at
// SavingsMonthlyWithdrawalCap withdrawals per calendar month, counting the one
// being attempted; the count is derived from the loaded transactions, so
// callers must attach the current month's history before withdrawing.
func (a *Account) Withdraw(amount Money, description string, now time.Time) (*Transaction, error) {
	if err := a.operational(); err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: withdrawal amount must be positive", ErrValidation)
	}
	if !amount.SameCurrency(a.balance) {
		return nil, fmt.Errorf("%w: account is %s, withdrawal is %s", ErrCurrencyMismatch, a.balance.Currency, amount.Currency)
	}
	if a.balance.LessThan(amount) {
		return nil, &InsufficientFundsError{
			AccountNumber: a.number,
			Requested:     amount,
			Balance:       a.balance,
			Operation:     "Withdraw",
		}
	}
	if a.accountType == AccountSavings {
		if a.withdrawalsInMonth(now)+1 > SavingsMonthlyWithdrawalCap {
			return nil, fmt.Errorf("%w: savings account %s already has %d withdrawals this month",
				ErrWithdrawalLimit, a.number, a.withdrawalsInMonth(now))
		}
	}

	tx, err := newTransaction(NewTransactionID(), a.id, TransactionWithdrawal, amount, description, "", now)
	if err != nil {
		return nil, err
	}

	a.balance.Amount = a.balance.Amount.Sub(amount.Amount)
	a.lastActivity = now.UTC()
	a.newTx = append(a.newTx, tx)
	return tx, nil
}

func (a *Account) withdrawalsInMonth(now time.Time) int {
	y, m, _ := now.UTC().Date()
	count := 0
	for _, tx := range a.Transactions() {
		if tx.Type() != TransactionWithdrawal || tx.Deleted() != nil {
			continue
		}
		ty, tm, _ := tx.Timestamp().UTC().Date()
		if ty == y && tm == m {
			count++
		}
	}
	return count
}

// Transfer moves amount from a to dst as an atomic in-memory mutation:
// a TransferOut on the source, a TransferIn on the destination with the same
// reference, and a MoneyTransferred event on the source. On shortfall it
// appends an InsufficientFunds event and returns the failure without touching
// either balance. Persistence atomicity is the unit of work's responsibility.
func (a *Account) Transfer(dst *Account, amount Money, reference, description string, now time.Time) (TransactionID, error) {
	if dst == nil {
		return "", fmt.Errorf("%w: destination account is required", ErrValidation)
	}
	if a.id == dst.id {
		return "", fmt.Errorf("%w: cannot transfer to the same account", ErrValidation)
	}
	if err := a.operational(); err != nil {
		return "", err
	}
	if err := dst.operational(); err != nil {
		return "", err
	}
	if !amount.IsPositive() {
		return "", fmt.Errorf("%w: transfer amount must be positive", ErrValidation)
	}
	if !amount.SameCurrency(a.balance) || !amount.SameCurrency(dst.balance) {
		return "", fmt.Errorf("%w: transfer %s between %s and %s accounts",
			ErrCurrencyMismatch, amount.Currency, a.balance.Currency, dst.balance.Currency)
	}

	if a.balance.LessThan(amount) {
		a.emit(InsufficientFunds{
			EventModel:    NewEventModel(now),
			AccountNumber: a.number,
			Requested:     amount,
			Balance:       a.balance,
			Operation:     "Transfer",
		})
		return "", &InsufficientFundsError{
			AccountNumber: a.number,
			Requested:     amount,
			Balance:       a.balance,
			Operation:     "Transfer",
		}
	}

	transferID := NewTransactionID()
	if reference == "" {
		reference = GenerateReference(transferID, now)
	}

	out, err := newTransaction(NewTransactionID(), a.id, TransactionTransferOut, amount, description, reference, now)
	if err != nil {
		return "", err
	}
	in, err := newTransaction(NewTransactionID(), dst.id, TransactionTransferIn, amount, description, reference, now)
	if err != nil {
		return "", err
	}

	a.balance.Amount = a.balance.Amount.Sub(amount.Amount)
	dst.balance.Amount = dst.balance.Amount.Add(amount.Amount)
	a.lastActivity = now.UTC()
	dst.lastActivity = now.UTC()
	a.newTx = append(a.newTx, out)
	dst.newTx = append(dst.newTx, in)

	a.emit(MoneyTransferred{
		EventModel:        NewEventModel(now),
		TransactionID:     transferID,
		SourceNumber:      a.number,
		DestinationNumber: dst.number,
		Amount:            amount,
		Reference:         reference,
		TransferDate:      now.UTC(),
	})
	return transferID, nil
}

// CreditInterest applies an interest credit produced by NewInterestCredit:
// attaches the child and increments the balance.
func (a *Account) CreditInterest(tx *Transaction) error {
	if tx.Type() != TransactionInterestCredit {
		return fmt.Errorf("%w: expected InterestCredit transaction", ErrInvalidOperation)
	}
	if tx.AccountID() != a.id {
		return fmt.Errorf("%w: interest credit belongs to another account", ErrInvalidOperation)
	}
	if !tx.Amount().SameCurrency(a.balance) {
		return fmt.Errorf("%w: account is %s, credit is %s", ErrCurrencyMismatch, a.balance.Currency, tx.Amount().Currency)
	}
	a.balance.Amount = a.balance.Amount.Add(tx.Amount().Amount)
	a.newTx = append(a.newTx, tx)
	return nil
}

// CloseAccount transitions to Closed. Requires a zero balance.
func (a *Account) CloseAccount(now time.Time) error {
	if a.deleted != nil {
		return fmt.Errorf("%w: account %s is deleted", ErrInvalidOperation, a.number)
	}
	if a.status == StatusClosed {
		return fmt.Errorf("%w: account %s is already closed", ErrInvalidOperation, a.number)
	}
	if !a.balance.IsZero() {
		return fmt.Errorf("%w: account %s has a non-zero balance", ErrInvalidOperation, a.number)
	}
	a.status = StatusClosed
	a.active = false
	a.lastActivity = now.UTC()
	return nil
}

// MarkArchived flags the account archived and moves it to the Archived status.
func (a *Account) MarkArchived(now time.Time) {
	a.archived = true
	a.status = StatusArchived
	a.active = false
	a.lastActivity = now.UTC()
}

// UpdateStatusBasedOnRules applies the maintenance state machine:
// Active accounts idle for more than a year become Inactive.
func (a *Account) UpdateStatusBasedOnRules(now time.Time) {
	if a.status == StatusActive && now.UTC().Sub(a.lastActivity) > InactivityThreshold {
		a.status = StatusInactive
	}
}

// UpdateLastActivityDate stamps the activity clock.
func (a *Account) UpdateLastActivityDate(now time.Time) {
	a.lastActivity = now.UTC()
}

// SetInterestBearing toggles interest accrual.
func (a *Account) SetInterestBearing(v bool) {
	a.interestBearing = v
}

// SoftDelete marks the account deleted.
func (a *Account) SoftDelete(by string, now time.Time) error {
	if !a.balance.IsZero() {
		return fmt.Errorf("%w: account %s has a non-zero balance", ErrInvalidOperation, a.number)
	}
	if a.deleted == nil {
		a.deleted = &Deletion{At: now.UTC(), By: by}
		a.active = false
	}
	return nil
}

func (a *Account) emit(e Event) {
	a.pending = append(a.pending, e)
}

// PendingEvents returns a copy of the queued events. The queue is in-memory
// only; the unit of work drains it on commit.
func (a *Account) PendingEvents() []Event {
	out := make([]Event, len(a.pending))
	copy(out, a.pending)
	return out
}

// ClearPendingEvents empties the queue. Reserved for the unit of work.
func (a *Account) ClearPendingEvents() {
	a.pending = nil
}

// RestorePendingEvents puts a snapshot back after a failed commit so the
// in-memory aggregate does not diverge from persisted state.
func (a *Account) RestorePendingEvents(events []Event) {
	a.pending = events
}

// MarkFlushed is called by the unit of work after a successful commit:
// new children become history and the row version advances.
func (a *Account) MarkFlushed() {
	a.transactions = append(a.transactions, a.newTx...)
	a.newTx = nil
	a.rowVersion++
}

// AccountRecord carries persisted columns for rehydration.
type AccountRecord struct {
	ID              AccountID
	Number          AccountNumber
	CustomerID      CustomerID
	Type            AccountType
	Balance         Money
	DateOpened      time.Time
	Active          bool
	Deleted         *Deletion
	RowVersion      int64
	LastActivity    time.Time
	Status          AccountStatus
	InterestBearing bool
	Archived        bool
}

// RehydrateAccount rebuilds an Account from persisted columns.
// For repository use only; it applies no invariant checks and emits no events.
func RehydrateAccount(rec AccountRecord) *Account {
	return &Account{
		id:              rec.ID,
		number:          rec.Number,
		customerID:      rec.CustomerID,
		accountType:     rec.Type,
		balance:         rec.Balance,
		dateOpened:      rec.DateOpened,
		active:          rec.Active,
		deleted:         rec.Deleted,
		rowVersion:      rec.RowVersion,
		lastActivity:    rec.LastActivity,
		status:          rec.Status,
		interestBearing: rec.InterestBearing,
		archived:        rec.Archived,
	}
}
