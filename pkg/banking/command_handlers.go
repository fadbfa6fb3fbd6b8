package banking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/plaenen/corebank/pkg/cqrs"
	"github.com/plaenen/corebank/pkg/domain"
)

func (s *Service) handleCreateCustomer(ctx context.Context, cmd cqrs.Command) (*cqrs.Result, error) {
	c, ok := cmd.(CreateCustomer)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected command %T", domain.ErrInternal, cmd)
	}

	taken, err := s.customers.ExistsByEmail(ctx, c.Email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, domain.NewValidationError(domain.Violation{
			Field:   "email",
			Message: "A customer with this email already exists.",
		})
	}

	customer, err := domain.NewCustomer(c.FirstName, c.LastName, c.Email, c.Phone,
		c.Address, c.DateOfBirth, c.BVN, c.CreditScore, c.EmailOptIn, s.clock())
	if err != nil {
		return nil, err
	}

	uow := s.uowFactory.NewUnitOfWork()
	uow.RegisterNewCustomer(customer)
	events, err := uow.Commit(ctx)
	if err != nil {
		return nil, err
	}

	return &cqrs.Result{
		Payload: CreateCustomerResult{CustomerID: string(customer.ID())},
		Events:  events,
	}, nil
}

func (s *Service) handleCreateAccount(ctx context.Context, cmd cqrs.Command) (*cqrs.Result, error) {
	c, ok := cmd.(CreateAccount)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected command %T", domain.ErrInternal, cmd)
	}

	customer, err := s.customers.FindByID(ctx, domain.CustomerID(c.CustomerID))
	if err != nil {
		return nil, err
	}

	number, err := s.allocateAccountNumber(ctx)
	if err != nil {
		return nil, err
	}

	deposit, err := domain.NewMoney(c.InitialDeposit, c.Currency)
	if err != nil {
		return nil, err
	}
	account, err := domain.NewAccount(customer.ID(), number, c.AccountType, deposit, s.clock())
	if err != nil {
		return nil, err
	}

	uow := s.uowFactory.NewUnitOfWork()
	uow.RegisterNew(account)
	events, err := uow.Commit(ctx)
	if err != nil {
		return nil, err
	}

	return &cqrs.Result{
		Payload: CreateAccountResult{
			AccountID:     string(account.ID()),
			AccountNumber: string(account.Number()),
		},
		Events: events,
	}, nil
}

// allocateAccountNumber retries random candidates against the uniqueness
// check within a fixed budget.
func (s *Service) allocateAccountNumber(ctx context.Context) (domain.AccountNumber, error) {
	for i := 0; i < accountNumberAttempts; i++ {
		candidate := s.newNumber()
		taken, err := s.accounts.NumberExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: could not allocate a unique account number in %d attempts",
		domain.ErrInternal, accountNumberAttempts)
}

func (s *Service) handleDepositMoney(ctx context.Context, cmd cqrs.Command) (*cqrs.Result, error) {
	c, ok := cmd.(DepositMoney)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected command %T", domain.ErrInternal, cmd)
	}

	account, err := s.accounts.FindByNumber(ctx, domain.AccountNumber(c.AccountNumber))
	if err != nil {
		return nil, err
	}
	amount, err := domain.NewMoney(c.Amount, c.Currency)
	if err != nil {
		return nil, err
	}

	tx, err := account.Deposit(amount, c.Description, s.clock())
	if err != nil {
		return nil, err
	}

	uow := s.uowFactory.NewUnitOfWork()
	uow.RegisterDirty(account)
	events, err := uow.Commit(ctx)
	if err != nil {
		return nil, err
	}

	return &cqrs.Result{
		Payload: MovementResult{
			TransactionID: string(tx.ID()),
			Balance:       account.Balance().Amount.String(),
			Currency:      account.Balance().Currency,
		},
		Events: events,
	}, nil
}

func (s *Service) handleWithdrawMoney(ctx context.Context, cmd cqrs.Command) (*cqrs.Result, error) {
	c, ok := cmd.(WithdrawMoney)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected command %T", domain.ErrInternal, cmd)
	}

	account, err := s.accounts.FindByNumber(ctx, domain.AccountNumber(c.AccountNumber))
	if err != nil {
		return nil, err
	}
	amount, err := domain.NewMoney(c.Amount, c.Currency)
	if err != nil {
		return nil, err
	}

	now := s.clock()

	// The savings cap counts persisted withdrawals of the current month;
	// attach them so the aggregate can see its own history.
	if account.Type() == domain.AccountSavings {
		monthStart := time.Date(now.UTC().Year(), now.UTC().Month(), 1, 0, 0, 0, 0, time.UTC)
		recent, err := s.transactions.FindRecent(ctx, account.ID(), monthStart)
		if err != nil {
			return nil, err
		}
		account.AttachTransactions(recent)
	}

	tx, err := account.Withdraw(amount, c.Description, now)
	if err != nil {
		return nil, err
	}

	uow := s.uowFactory.NewUnitOfWork()
	uow.RegisterDirty(account)
	events, err := uow.Commit(ctx)
	if err != nil {
		return nil, err
	}

	return &cqrs.Result{
		Payload: MovementResult{
			TransactionID: string(tx.ID()),
			Balance:       account.Balance().Amount.String(),
			Currency:      account.Balance().Currency,
		},
		Events: events,
	}, nil
}

func (s *Service) handleTransferMoney(ctx context.Context, cmd cqrs.Command) (*cqrs.Result, error) {
	c, ok := cmd.(TransferMoney)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected command %T", domain.ErrInternal, cmd)
	}

	source, err := s.accounts.FindByNumber(ctx, domain.AccountNumber(c.SourceNumber))
	if err != nil {
		return nil, err
	}
	destination, err := s.accounts.FindByNumber(ctx, domain.AccountNumber(c.DestinationNumber))
	if err != nil {
		return nil, err
	}
	amount, err := domain.NewMoney(c.Amount, c.Currency)
	if err != nil {
		return nil, err
	}

	transferID, transferErr := source.Transfer(destination, amount, c.Reference, c.Description, s.clock())
	if transferErr != nil {
		if !errors.Is(transferErr, domain.ErrInsufficientFunds) {
			return nil, transferErr
		}
		// A shortfall still produced an InsufficientFunds event; commit it
		// so the outbox carries the rejection before the error surfaces.
		uow := s.uowFactory.NewUnitOfWork()
		uow.RegisterDirty(source)
		events, err := uow.Commit(ctx)
		if err != nil {
			return nil, err
		}
		return &cqrs.Result{Events: events}, transferErr
	}

	// Commit flushes the source's new-transaction buffer, so a generated
	// reference has to be read off the TransferOut child first.
	reference := c.Reference
	for _, tx := range source.NewTransactions() {
		if tx.Type() == domain.TransactionTransferOut {
			reference = tx.Reference()
		}
	}

	uow := s.uowFactory.NewUnitOfWork()
	uow.RegisterDirty(source)
	uow.RegisterDirty(destination)
	events, err := uow.Commit(ctx)
	if err != nil {
		return nil, err
	}

	return &cqrs.Result{
		Payload: TransferResult{
			TransactionID: string(transferID),
			Reference:     reference,
		},
		Events: events,
	}, nil
}

func (s *Service) handleCloseAccount(ctx context.Context, cmd cqrs.Command) (*cqrs.Result, error) {
	c, ok := cmd.(CloseAccount)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected command %T", domain.ErrInternal, cmd)
	}

	account, err := s.accounts.FindByNumber(ctx, domain.AccountNumber(c.AccountNumber))
	if err != nil {
		return nil, err
	}
	if err := account.CloseAccount(s.clock()); err != nil {
		return nil, err
	}

	uow := s.uowFactory.NewUnitOfWork()
	uow.RegisterDirty(account)
	events, err := uow.Commit(ctx)
	if err != nil {
		return nil, err
	}
	return &cqrs.Result{Events: events}, nil
}

func (s *Service) handleDeactivateCustomer(ctx context.Context, cmd cqrs.Command) (*cqrs.Result, error) {
	c, ok := cmd.(DeactivateCustomer)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected command %T", domain.ErrInternal, cmd)
	}

	customer, err := s.customers.FindByID(ctx, domain.CustomerID(c.CustomerID))
	if err != nil {
		return nil, err
	}
	accounts, err := s.accounts.FindByCustomer(ctx, customer.ID())
	if err != nil {
		return nil, err
	}
	customer.AttachAccounts(accounts)

	if err := customer.Deactivate(); err != nil {
		return nil, err
	}

	uow := s.uowFactory.NewUnitOfWork()
	uow.RegisterDirtyCustomer(customer)
	events, err := uow.Commit(ctx)
	if err != nil {
		return nil, err
	}
	return &cqrs.Result{Events: events}, nil
}
