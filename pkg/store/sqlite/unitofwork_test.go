package sqlite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/corebank/pkg/domain"
)

func TestUnitOfWork_CommitNewCustomerAndAccount(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	c := newTestCustomer(t, "ada@example.com")
	num, err := domain.ParseAccountNumber("1234567890")
	require.NoError(t, err)
	a, err := domain.NewAccount(c.ID(), num, domain.AccountChecking,
		domain.MustMoney("500", "USD"), testClock)
	require.NoError(t, err)

	uow := st.NewUnitOfWork()
	uow.RegisterNewCustomer(c)
	uow.RegisterNew(a)

	events, err := uow.Commit(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventTypeAccountCreated, events[0].EventType())

	// Pending events are drained and the version advanced to match the row.
	assert.Empty(t, a.PendingEvents())
	assert.Equal(t, int64(1), a.RowVersion())

	got, err := st.Accounts().FindByID(ctx, a.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.RowVersion())

	pending, err := st.Outbox().PendingBatch(ctx, 10, 3)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, domain.EventTypeAccountCreated, pending[0].Type)
}

func TestUnitOfWork_CommitTransferWritesEverythingAtomically(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	c := newTestCustomer(t, "ada@example.com")
	require.NoError(t, st.Customers().Add(ctx, c))
	src := newTestAccount(t, c.ID(), "1111111111", "1000")
	dst := newTestAccount(t, c.ID(), "2222222222", "100")
	require.NoError(t, st.Accounts().Add(ctx, src))
	require.NoError(t, st.Accounts().Add(ctx, dst))

	srcLoaded, err := st.Accounts().FindByID(ctx, src.ID())
	require.NoError(t, err)
	dstLoaded, err := st.Accounts().FindByID(ctx, dst.ID())
	require.NoError(t, err)

	_, err = srcLoaded.Transfer(dstLoaded, domain.MustMoney("200", "USD"), "R1", "rent", testClock)
	require.NoError(t, err)

	uow := st.NewUnitOfWork()
	uow.RegisterDirty(srcLoaded)
	uow.RegisterDirty(dstLoaded)

	events, err := uow.Commit(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventTypeMoneyTransferred, events[0].EventType())

	srcAfter, err := st.Accounts().FindByID(ctx, src.ID())
	require.NoError(t, err)
	dstAfter, err := st.Accounts().FindByID(ctx, dst.ID())
	require.NoError(t, err)
	assert.Equal(t, "800", srcAfter.Balance().Amount.String())
	assert.Equal(t, "300", dstAfter.Balance().Amount.String())

	srcTxs, err := st.Transactions().FindByAccount(ctx, src.ID())
	require.NoError(t, err)
	require.Len(t, srcTxs, 1)
	assert.Equal(t, domain.TransactionTransferOut, srcTxs[0].Type())
	assert.Equal(t, "R1", srcTxs[0].Reference())

	dstTxs, err := st.Transactions().FindByAccount(ctx, dst.ID())
	require.NoError(t, err)
	require.Len(t, dstTxs, 1)
	assert.Equal(t, domain.TransactionTransferIn, dstTxs[0].Type())
	assert.Equal(t, "R1", dstTxs[0].Reference())
}

func TestUnitOfWork_ConflictRollsBackEverything(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	c := newTestCustomer(t, "ada@example.com")
	require.NoError(t, st.Customers().Add(ctx, c))
	a := newTestAccount(t, c.ID(), "1111111111", "1000")
	require.NoError(t, st.Accounts().Add(ctx, a))

	loaded, err := st.Accounts().FindByID(ctx, a.ID())
	require.NoError(t, err)

	// Another writer moves the row forward underneath us.
	rival, err := st.Accounts().FindByID(ctx, a.ID())
	require.NoError(t, err)
	_, err = rival.Deposit(domain.MustMoney("1", "USD"), "race", testClock)
	require.NoError(t, err)
	require.NoError(t, st.Accounts().Update(ctx, rival))

	_, err = loaded.Deposit(domain.MustMoney("50", "USD"), "late", testClock)
	require.NoError(t, err)

	uow := st.NewUnitOfWork()
	uow.RegisterDirty(loaded)
	_, err = uow.Commit(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)

	// Nothing landed: no child row, no outbox row, pending events intact.
	txs, err := st.Transactions().FindByAccount(ctx, a.ID())
	require.NoError(t, err)
	assert.Empty(t, txs)

	pending, err := st.Outbox().PendingBatch(ctx, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestOutboxStore_RetryAndDeadLetterLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	c := newTestCustomer(t, "ada@example.com")
	num, err := domain.ParseAccountNumber("1234567890")
	require.NoError(t, err)
	a, err := domain.NewAccount(c.ID(), num, domain.AccountChecking,
		domain.MustMoney("500", "USD"), testClock)
	require.NoError(t, err)

	uow := st.NewUnitOfWork()
	uow.RegisterNewCustomer(c)
	uow.RegisterNew(a)
	_, err = uow.Commit(ctx)
	require.NoError(t, err)

	const maxRetries = 3

	for i := 1; i <= maxRetries; i++ {
		batch, err := st.Outbox().PendingBatch(ctx, 10, maxRetries)
		require.NoError(t, err)
		require.Len(t, batch, 1, "attempt %d", i)

		batch[0].MarkFailed(assert.AnError)
		require.NoError(t, st.Outbox().SaveBatch(ctx, batch))
	}

	// Exhausted messages drop out of the pending batch and surface as
	// dead letters.
	batch, err := st.Outbox().PendingBatch(ctx, 10, maxRetries)
	require.NoError(t, err)
	assert.Empty(t, batch)

	dead, err := st.Outbox().DeadLetters(ctx, maxRetries)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, maxRetries, dead[0].RetryCount)
	assert.NotEmpty(t, dead[0].LastError)

	require.NoError(t, st.Outbox().ResetDeadLetter(ctx, dead[0].ID))

	batch, err = st.Outbox().PendingBatch(ctx, 10, maxRetries)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Zero(t, batch[0].RetryCount)

	batch[0].MarkProcessed(testClock)
	require.NoError(t, st.Outbox().SaveBatch(ctx, batch))

	batch, err = st.Outbox().PendingBatch(ctx, 10, maxRetries)
	require.NoError(t, err)
	assert.Empty(t, batch)

	err = st.Outbox().ResetDeadLetter(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
