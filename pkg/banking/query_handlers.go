package banking

import (
	"context"
	"fmt"

	"github.com/plaenen/corebank/pkg/cqrs"
	"github.com/plaenen/corebank/pkg/domain"
)

func (s *Service) handleGetAccountDetails(ctx context.Context, query cqrs.Query) (any, error) {
	q, ok := query.(GetAccountDetails)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected query %T", domain.ErrInternal, query)
	}

	account, err := s.accounts.FindByNumber(ctx, domain.AccountNumber(q.AccountNumber))
	if err != nil {
		return nil, err
	}
	customer, err := s.customers.FindByID(ctx, account.CustomerID())
	if err != nil {
		return nil, err
	}

	return AccountDetails{
		AccountNumber: string(account.Number()),
		AccountType:   string(account.Type()),
		Balance:       account.Balance().Amount.String(),
		Currency:      account.Balance().Currency,
		DateOpened:    account.DateOpened(),
		Active:        account.IsActive(),
		Status:        string(account.Status()),
		HolderName:    customer.FullName(),
	}, nil
}

func (s *Service) handleGetAccountBalance(ctx context.Context, query cqrs.Query) (any, error) {
	q, ok := query.(GetAccountBalance)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected query %T", domain.ErrInternal, query)
	}

	account, err := s.accounts.FindByNumber(ctx, domain.AccountNumber(q.AccountNumber))
	if err != nil {
		return nil, err
	}
	return AccountBalance{
		AccountNumber: string(account.Number()),
		Balance:       account.Balance().Amount.String(),
		Currency:      account.Balance().Currency,
	}, nil
}

func (s *Service) handleGetTransactionHistory(ctx context.Context, query cqrs.Query) (any, error) {
	q, ok := query.(GetTransactionHistory)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected query %T", domain.ErrInternal, query)
	}

	end := q.End
	if end.IsZero() {
		end = s.clock()
	}
	transactions, err := s.transactions.FindByAccountBetween(ctx, domain.AccountID(q.AccountID), q.Start, end)
	if err != nil {
		return nil, err
	}

	history := make([]TransactionDTO, 0, len(transactions))
	for _, tx := range transactions {
		history = append(history, toTransactionDTO(tx))
	}
	return history, nil
}

func (s *Service) handleGetCustomers(ctx context.Context, query cqrs.Query) (any, error) {
	if _, ok := query.(GetCustomers); !ok {
		return nil, fmt.Errorf("%w: unexpected query %T", domain.ErrInternal, query)
	}

	customers, err := s.customers.FindAll(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]CustomerSummary, 0, len(customers))
	for _, customer := range customers {
		summaries = append(summaries, CustomerSummary{
			CustomerID: string(customer.ID()),
			FullName:   customer.FullName(),
			Email:      customer.Email(),
			Active:     customer.IsActive(),
		})
	}
	return summaries, nil
}

func (s *Service) handleGetCustomerDetails(ctx context.Context, query cqrs.Query) (any, error) {
	q, ok := query.(GetCustomerDetails)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected query %T", domain.ErrInternal, query)
	}

	customer, err := s.customers.FindByID(ctx, domain.CustomerID(q.CustomerID))
	if err != nil {
		return nil, err
	}
	accounts, err := s.accounts.FindByCustomer(ctx, customer.ID())
	if err != nil {
		return nil, err
	}

	summaries := make([]AccountSummary, 0, len(accounts))
	for _, account := range accounts {
		summaries = append(summaries, toAccountSummary(account))
	}

	return CustomerDetails{
		CustomerID:  string(customer.ID()),
		FirstName:   customer.FirstName(),
		LastName:    customer.LastName(),
		Email:       customer.Email(),
		Phone:       customer.Phone(),
		Address:     customer.Address(),
		DateOfBirth: customer.DateOfBirth(),
		CreditScore: customer.CreditScore(),
		EmailOptIn:  customer.EmailOptIn(),
		Active:      customer.IsActive(),
		Accounts:    summaries,
	}, nil
}
