package banking

import (
	"time"

	"github.com/plaenen/corebank/pkg/cqrs"
	"github.com/plaenen/corebank/pkg/domain"
	"github.com/plaenen/corebank/pkg/store"
)

// Attempt budget for allocating an unused account number.
const accountNumberAttempts = 10

// Service owns the command and query handlers. Each command execution gets a
// fresh unit of work from the factory; queries read through repositories
// only.
type Service struct {
	customers    store.CustomerRepository
	accounts     store.AccountRepository
	transactions store.TransactionRepository
	uowFactory   store.UnitOfWorkFactory

	clock     func() time.Time
	newNumber func() domain.AccountNumber
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock overrides the time source, used by tests.
func WithClock(clock func() time.Time) ServiceOption {
	return func(s *Service) { s.clock = clock }
}

// WithNumberSource overrides account-number generation, used by tests to
// force collisions.
func WithNumberSource(source func() domain.AccountNumber) ServiceOption {
	return func(s *Service) { s.newNumber = source }
}

// NewService wires the application layer over the persistence contracts.
func NewService(
	customers store.CustomerRepository,
	accounts store.AccountRepository,
	transactions store.TransactionRepository,
	uowFactory store.UnitOfWorkFactory,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		customers:    customers,
		accounts:     accounts,
		transactions: transactions,
		uowFactory:   uowFactory,
		clock:        time.Now,
		newNumber:    domain.RandomAccountNumber,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register binds every command and query handler onto the bus.
func (s *Service) Register(bus *cqrs.Bus) {
	bus.Register(CommandCreateCustomer, cqrs.CommandHandlerFunc(s.handleCreateCustomer))
	bus.Register(CommandCreateAccount, cqrs.CommandHandlerFunc(s.handleCreateAccount))
	bus.Register(CommandDepositMoney, cqrs.CommandHandlerFunc(s.handleDepositMoney))
	bus.Register(CommandWithdrawMoney, cqrs.CommandHandlerFunc(s.handleWithdrawMoney))
	bus.Register(CommandTransferMoney, cqrs.CommandHandlerFunc(s.handleTransferMoney))
	bus.Register(CommandCloseAccount, cqrs.CommandHandlerFunc(s.handleCloseAccount))
	bus.Register(CommandDeactivateCustomer, cqrs.CommandHandlerFunc(s.handleDeactivateCustomer))

	bus.RegisterQuery(QueryGetAccountDetails, cqrs.QueryHandlerFunc(s.handleGetAccountDetails))
	bus.RegisterQuery(QueryGetAccountBalance, cqrs.QueryHandlerFunc(s.handleGetAccountBalance))
	bus.RegisterQuery(QueryGetTransactionHistory, cqrs.QueryHandlerFunc(s.handleGetTransactionHistory))
	bus.RegisterQuery(QueryGetCustomers, cqrs.QueryHandlerFunc(s.handleGetCustomers))
	bus.RegisterQuery(QueryGetCustomerDetails, cqrs.QueryHandlerFunc(s.handleGetCustomerDetails))
}
