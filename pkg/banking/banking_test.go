package banking_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/corebank/pkg/banking"
	"github.com/plaenen/corebank/pkg/cqrs"
	"github.com/plaenen/corebank/pkg/domain"
	"github.com/plaenen/corebank/pkg/messaging"
	"github.com/plaenen/corebank/pkg/middleware"
	sqlitestore "github.com/plaenen/corebank/pkg/store/sqlite"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	store *sqlitestore.Store
	bus   *cqrs.Bus
	clock *testClock
}

func newFixture(t *testing.T, busOpts ...cqrs.BusOption) *fixture {
	t.Helper()

	store, err := sqlitestore.New(
		sqlitestore.WithMemoryDatabase(),
		sqlitestore.WithWALMode(false),
	)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := &testClock{now: time.Date(2025, 11, 15, 10, 0, 0, 0, time.UTC)}

	bus := cqrs.NewBus(busOpts...)
	bus.Use(middleware.Validation())

	service := banking.NewService(store.Customers(), store.Accounts(),
		store.Transactions(), store, banking.WithClock(clock.Now))
	service.Register(bus)

	return &fixture{store: store, bus: bus, clock: clock}
}

func (f *fixture) createCustomer(t *testing.T, email string) string {
	t.Helper()
	result, err := f.bus.Send(context.Background(), banking.CreateCustomer{
		FirstName:   "Ada",
		LastName:    "Obi",
		Email:       email,
		Phone:       "+2348012345678",
		Address:     "12 Marina, Lagos",
		DateOfBirth: time.Date(1990, 3, 14, 0, 0, 0, 0, time.UTC),
		BVN:         "12345678901",
		CreditScore: 720,
		EmailOptIn:  true,
	})
	require.NoError(t, err)
	return result.Payload.(banking.CreateCustomerResult).CustomerID
}

func (f *fixture) createAccount(t *testing.T, customerID string, accountType domain.AccountType, deposit string) string {
	t.Helper()
	result, err := f.bus.Send(context.Background(), banking.CreateAccount{
		CustomerID:     customerID,
		AccountType:    accountType,
		InitialDeposit: decimal.RequireFromString(deposit),
		Currency:       "NGN",
	})
	require.NoError(t, err)
	return result.Payload.(banking.CreateAccountResult).AccountNumber
}

func (f *fixture) pendingOutbox(t *testing.T) []string {
	t.Helper()
	batch, err := f.store.Outbox().PendingBatch(context.Background(), 100, 3)
	require.NoError(t, err)
	types := make([]string, 0, len(batch))
	for _, msg := range batch {
		types = append(types, msg.Type)
	}
	return types
}

func TestCreateCustomerAndAccount(t *testing.T) {
	f := newFixture(t)

	customerID := f.createCustomer(t, "ada@example.com")
	require.NotEmpty(t, customerID)

	result, err := f.bus.Send(context.Background(), banking.CreateAccount{
		CustomerID:     customerID,
		AccountType:    domain.AccountSavings,
		InitialDeposit: decimal.RequireFromString("1000"),
		Currency:       "NGN",
	})
	require.NoError(t, err)

	payload := result.Payload.(banking.CreateAccountResult)
	assert.Len(t, payload.AccountNumber, 10)
	require.Len(t, result.Events, 1)
	assert.Equal(t, domain.EventTypeAccountCreated, result.Events[0].EventType())

	assert.Equal(t, []string{domain.EventTypeAccountCreated}, f.pendingOutbox(t))
}

func TestCreateCustomer_DuplicateEmailRejected(t *testing.T) {
	f := newFixture(t)

	f.createCustomer(t, "ada@example.com")

	_, err := f.bus.Send(context.Background(), banking.CreateCustomer{
		FirstName:   "Bayo",
		LastName:    "Ade",
		Email:       "ADA@example.com", // matching is case-insensitive
		Phone:       "+2348098765432",
		Address:     "3 Allen Avenue, Ikeja",
		DateOfBirth: time.Date(1985, 6, 1, 0, 0, 0, 0, time.UTC),
		BVN:         "10987654321",
		CreditScore: 640,
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCreateCustomer_UnderageRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.bus.Send(context.Background(), banking.CreateCustomer{
		FirstName:   "Tolu",
		LastName:    "Obi",
		Email:       "tolu@example.com",
		Phone:       "+2348011112222",
		Address:     "12 Marina, Lagos",
		DateOfBirth: time.Now().AddDate(-17, 0, 0),
		BVN:         "12345678901",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)

	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "date_of_birth", vErr.Violations[0].Field)
}

func TestCreateAccount_NumberBudgetExhaustion(t *testing.T) {
	store, err := sqlitestore.New(
		sqlitestore.WithMemoryDatabase(),
		sqlitestore.WithWALMode(false),
	)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	bus := cqrs.NewBus()
	clock := &testClock{now: time.Date(2025, 11, 15, 10, 0, 0, 0, time.UTC)}
	// Every candidate collides with the first account's number.
	service := banking.NewService(store.Customers(), store.Accounts(),
		store.Transactions(), store,
		banking.WithClock(clock.Now),
		banking.WithNumberSource(func() domain.AccountNumber { return "5555555555" }),
	)
	service.Register(bus)
	f := &fixture{store: store, bus: bus, clock: clock}

	customerID := f.createCustomer(t, "ada@example.com")
	f.createAccount(t, customerID, domain.AccountChecking, "0")

	_, err = bus.Send(context.Background(), banking.CreateAccount{
		CustomerID:     customerID,
		AccountType:    domain.AccountChecking,
		InitialDeposit: decimal.Zero,
		Currency:       "NGN",
	})
	assert.ErrorIs(t, err, domain.ErrInternal)
}

func TestDepositAndWithdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	customerID := f.createCustomer(t, "ada@example.com")
	number := f.createAccount(t, customerID, domain.AccountChecking, "100")

	result, err := f.bus.Send(ctx, banking.DepositMoney{
		AccountNumber: number,
		Amount:        decimal.RequireFromString("400"),
		Currency:      "NGN",
		Description:   "salary",
	})
	require.NoError(t, err)
	assert.Equal(t, "500", result.Payload.(banking.MovementResult).Balance)

	// Overdraw fails without touching the balance.
	_, err = f.bus.Send(ctx, banking.WithdrawMoney{
		AccountNumber: number,
		Amount:        decimal.RequireFromString("500.01"),
		Currency:      "NGN",
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// Withdrawing the exact balance succeeds.
	result, err = f.bus.Send(ctx, banking.WithdrawMoney{
		AccountNumber: number,
		Amount:        decimal.RequireFromString("500"),
		Currency:      "NGN",
	})
	require.NoError(t, err)
	assert.Equal(t, "0", result.Payload.(banking.MovementResult).Balance)
}

func TestTransfer_HappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	customerID := f.createCustomer(t, "ada@example.com")
	src := f.createAccount(t, customerID, domain.AccountChecking, "1000")
	dst := f.createAccount(t, customerID, domain.AccountChecking, "500")

	result, err := f.bus.Send(ctx, banking.TransferMoney{
		SourceNumber:      src,
		DestinationNumber: dst,
		Amount:            decimal.RequireFromString("200"),
		Currency:          "NGN",
		Reference:         "R1",
		Description:       "x",
	})
	require.NoError(t, err)
	assert.Equal(t, "R1", result.Payload.(banking.TransferResult).Reference)

	balance, err := f.bus.Ask(ctx, banking.GetAccountBalance{AccountNumber: src})
	require.NoError(t, err)
	assert.Equal(t, "800", balance.(banking.AccountBalance).Balance)

	balance, err = f.bus.Ask(ctx, banking.GetAccountBalance{AccountNumber: dst})
	require.NoError(t, err)
	assert.Equal(t, "1100", balance.(banking.AccountBalance).Balance)

	assert.Contains(t, f.pendingOutbox(t), domain.EventTypeMoneyTransferred)
}

func TestTransfer_GeneratedReferenceReturned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	customerID := f.createCustomer(t, "ada@example.com")
	src := f.createAccount(t, customerID, domain.AccountChecking, "1000")
	dst := f.createAccount(t, customerID, domain.AccountChecking, "500")

	result, err := f.bus.Send(ctx, banking.TransferMoney{
		SourceNumber:      src,
		DestinationNumber: dst,
		Amount:            decimal.RequireFromString("200"),
		Currency:          "NGN",
		Description:       "no reference supplied",
	})
	require.NoError(t, err)

	reference := result.Payload.(banking.TransferResult).Reference
	assert.Regexp(t, `^\d{14}-[0-9a-f]{8}$`, reference)

	// The caller sees the same reference that landed on the ledger rows.
	source, err := f.store.Accounts().FindByNumber(ctx, domain.AccountNumber(src))
	require.NoError(t, err)
	rows, err := f.store.Transactions().FindByAccount(ctx, source.ID())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, reference, rows[0].Reference())
}

func TestTransfer_ShortfallCommitsEventAndFails(t *testing.T) {
	dispatcher := messaging.NewDispatcher(nil)

	var dispatched []string
	dispatcher.Subscribe(domain.EventTypeInsufficientFunds, func(ctx context.Context, e domain.Event) error {
		dispatched = append(dispatched, e.EventType())
		return nil
	})

	f := newFixture(t, cqrs.WithDispatcher(dispatcher))
	ctx := context.Background()

	customerID := f.createCustomer(t, "ada@example.com")
	src := f.createAccount(t, customerID, domain.AccountChecking, "10")
	dst := f.createAccount(t, customerID, domain.AccountChecking, "0")

	_, err := f.bus.Send(ctx, banking.TransferMoney{
		SourceNumber:      src,
		DestinationNumber: dst,
		Amount:            decimal.RequireFromString("100"),
		Currency:          "NGN",
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// The rejection event is durable and dispatched despite the error.
	assert.Contains(t, f.pendingOutbox(t), domain.EventTypeInsufficientFunds)
	assert.Equal(t, []string{domain.EventTypeInsufficientFunds}, dispatched)

	// Balances untouched.
	balance, err := f.bus.Ask(ctx, banking.GetAccountBalance{AccountNumber: src})
	require.NoError(t, err)
	assert.Equal(t, "10", balance.(banking.AccountBalance).Balance)
}

func TestTransfer_CrossCurrencyRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	customerID := f.createCustomer(t, "ada@example.com")
	src := f.createAccount(t, customerID, domain.AccountChecking, "1000")
	dst := f.createAccount(t, customerID, domain.AccountChecking, "500")

	before := len(f.pendingOutbox(t))

	_, err := f.bus.Send(ctx, banking.TransferMoney{
		SourceNumber:      src,
		DestinationNumber: dst,
		Amount:            decimal.RequireFromString("100"),
		Currency:          "USD",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCurrencyMismatch)

	// No new outbox rows, no balance movement.
	assert.Len(t, f.pendingOutbox(t), before)
	balance, err := f.bus.Ask(ctx, banking.GetAccountBalance{AccountNumber: src})
	require.NoError(t, err)
	assert.Equal(t, "1000", balance.(banking.AccountBalance).Balance)
}

func TestSavingsMonthlyWithdrawalCap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	customerID := f.createCustomer(t, "ada@example.com")
	number := f.createAccount(t, customerID, domain.AccountSavings, "10000")

	withdraw := func() error {
		_, err := f.bus.Send(ctx, banking.WithdrawMoney{
			AccountNumber: number,
			Amount:        decimal.RequireFromString("100"),
			Currency:      "NGN",
		})
		return err
	}

	for i := 0; i < 6; i++ {
		require.NoError(t, withdraw(), "withdrawal %d within the cap", i+1)
	}

	err := withdraw()
	assert.ErrorIs(t, err, domain.ErrWithdrawalLimit)

	// The cap resets with the calendar month.
	f.clock.Set(time.Date(2025, 12, 1, 9, 0, 0, 0, time.UTC))
	assert.NoError(t, withdraw())
}

func TestCloseAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	customerID := f.createCustomer(t, "ada@example.com")
	funded := f.createAccount(t, customerID, domain.AccountChecking, "50")
	empty := f.createAccount(t, customerID, domain.AccountChecking, "0")

	_, err := f.bus.Send(ctx, banking.CloseAccount{AccountNumber: funded})
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)

	_, err = f.bus.Send(ctx, banking.CloseAccount{AccountNumber: empty})
	require.NoError(t, err)

	details, err := f.bus.Ask(ctx, banking.GetAccountDetails{AccountNumber: empty})
	require.NoError(t, err)
	assert.Equal(t, string(domain.StatusClosed), details.(banking.AccountDetails).Status)
	assert.False(t, details.(banking.AccountDetails).Active)
}

func TestDeactivateCustomer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	customerID := f.createCustomer(t, "ada@example.com")
	number := f.createAccount(t, customerID, domain.AccountChecking, "75")

	_, err := f.bus.Send(ctx, banking.DeactivateCustomer{CustomerID: customerID})
	assert.ErrorIs(t, err, domain.ErrInvalidOperation, "blocked while funds remain")

	_, err = f.bus.Send(ctx, banking.WithdrawMoney{
		AccountNumber: number,
		Amount:        decimal.RequireFromString("75"),
		Currency:      "NGN",
	})
	require.NoError(t, err)

	_, err = f.bus.Send(ctx, banking.DeactivateCustomer{CustomerID: customerID})
	require.NoError(t, err)

	details, err := f.bus.Ask(ctx, banking.GetCustomerDetails{CustomerID: customerID})
	require.NoError(t, err)
	assert.False(t, details.(banking.CustomerDetails).Active)
}

func TestGetAccountDetails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	customerID := f.createCustomer(t, "ada@example.com")
	number := f.createAccount(t, customerID, domain.AccountSavings, "250.50")

	details, err := f.bus.Ask(ctx, banking.GetAccountDetails{AccountNumber: number})
	require.NoError(t, err)

	got := details.(banking.AccountDetails)
	assert.Equal(t, number, got.AccountNumber)
	assert.Equal(t, string(domain.AccountSavings), got.AccountType)
	assert.Equal(t, "250.5", got.Balance)
	assert.Equal(t, "NGN", got.Currency)
	assert.Equal(t, "Ada Obi", got.HolderName)
	assert.True(t, got.Active)

	_, err = f.bus.Ask(ctx, banking.GetAccountDetails{AccountNumber: "9999999999"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetTransactionHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	customerID := f.createCustomer(t, "ada@example.com")
	number := f.createAccount(t, customerID, domain.AccountChecking, "1000")

	amounts := []string{"10", "20", "30"}
	for _, amount := range amounts {
		_, err := f.bus.Send(ctx, banking.DepositMoney{
			AccountNumber: number,
			Amount:        decimal.RequireFromString(amount),
			Currency:      "NGN",
			Description:   "top-up " + amount,
		})
		require.NoError(t, err)
		f.clock.Set(f.clock.Now().Add(time.Minute))
	}

	// Resolve the account id through the customer projection.
	customer, err := f.bus.Ask(ctx, banking.GetCustomerDetails{CustomerID: customerID})
	require.NoError(t, err)
	require.Len(t, customer.(banking.CustomerDetails).Accounts, 1)

	account, err := f.store.Accounts().FindByNumber(ctx, domain.AccountNumber(number))
	require.NoError(t, err)

	history, err := f.bus.Ask(ctx, banking.GetTransactionHistory{
		AccountID: string(account.ID()),
		Start:     time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC),
		End:       time.Date(2025, 11, 30, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	dtos := history.([]banking.TransactionDTO)
	require.Len(t, dtos, 3)
	for i, dto := range dtos {
		assert.Equal(t, string(domain.TransactionDeposit), dto.Type)
		assert.Equal(t, amounts[i], dto.Amount, "oldest first")
	}
}

func TestGetCustomers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createCustomer(t, "ada@example.com")
	f.createCustomer(t, "bayo@example.com")

	customers, err := f.bus.Ask(ctx, banking.GetCustomers{})
	require.NoError(t, err)
	assert.Len(t, customers.([]banking.CustomerSummary), 2)
}
