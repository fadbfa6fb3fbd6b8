package sqlite

import (
	"context"
	"fmt"

	"github.com/plaenen/corebank/pkg/domain"
	"github.com/plaenen/corebank/pkg/store"
)

// unitOfWork collects the aggregates touched by one command and writes state
// rows, child transactions and outbox messages in a single database
// transaction. Aggregates are flushed (children promoted to history, pending
// events cleared, versions advanced) only after the commit lands.
type unitOfWork struct {
	store *Store

	newAccounts   []*domain.Account
	dirtyAccounts []*domain.Account
	newCustomers  []*domain.Customer
	dirtyCust     []*domain.Customer
}

func (u *unitOfWork) RegisterNew(account *domain.Account) {
	u.newAccounts = append(u.newAccounts, account)
}

func (u *unitOfWork) RegisterDirty(account *domain.Account) {
	u.dirtyAccounts = append(u.dirtyAccounts, account)
}

func (u *unitOfWork) RegisterNewCustomer(customer *domain.Customer) {
	u.newCustomers = append(u.newCustomers, customer)
}

func (u *unitOfWork) RegisterDirtyCustomer(customer *domain.Customer) {
	u.dirtyCust = append(u.dirtyCust, customer)
}

func (u *unitOfWork) Commit(ctx context.Context) ([]domain.Event, error) {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()

	events := u.collectEvents()
	messages := make([]*store.OutboxMessage, 0, len(events))
	for _, e := range events {
		m, err := store.NewOutboxMessage(e)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize event %s: %w", e.EventType(), err)
		}
		messages = append(messages, m)
	}

	tx, err := u.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, c := range u.newCustomers {
		if err := insertCustomer(ctx, tx, c); err != nil {
			return nil, err
		}
	}
	for _, c := range u.dirtyCust {
		if err := updateCustomer(ctx, tx, c); err != nil {
			return nil, err
		}
	}
	for _, a := range u.newAccounts {
		if err := insertAccount(ctx, tx, a); err != nil {
			return nil, err
		}
	}
	for _, a := range u.dirtyAccounts {
		if err := updateAccount(ctx, tx, a); err != nil {
			return nil, err
		}
	}

	for _, a := range u.trackedAccounts() {
		for _, t := range a.NewTransactions() {
			if err := insertTransaction(ctx, tx, t); err != nil {
				return nil, err
			}
		}
	}

	if err := insertOutboxMessages(ctx, tx, messages); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit unit of work: %w", err)
	}

	for _, a := range u.trackedAccounts() {
		a.MarkFlushed()
		a.ClearPendingEvents()
	}
	return events, nil
}

func (u *unitOfWork) trackedAccounts() []*domain.Account {
	out := make([]*domain.Account, 0, len(u.newAccounts)+len(u.dirtyAccounts))
	out = append(out, u.newAccounts...)
	out = append(out, u.dirtyAccounts...)
	return out
}

func (u *unitOfWork) collectEvents() []domain.Event {
	var events []domain.Event
	for _, a := range u.trackedAccounts() {
		events = append(events, a.PendingEvents()...)
	}
	return events
}
