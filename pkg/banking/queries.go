package banking

import (
	"time"

	"github.com/plaenen/corebank/pkg/validators"
)

// Query type tags.
const (
	QueryGetAccountDetails     = "corebank.GetAccountDetails"
	QueryGetAccountBalance     = "corebank.GetAccountBalance"
	QueryGetTransactionHistory = "corebank.GetTransactionHistory"
	QueryGetCustomers          = "corebank.GetCustomers"
	QueryGetCustomerDetails    = "corebank.GetCustomerDetails"
)

// GetAccountDetails projects one account with its owner's name.
type GetAccountDetails struct {
	AccountNumber string `json:"account_number"`
}

func (GetAccountDetails) QueryType() string { return QueryGetAccountDetails }

func (q GetAccountDetails) Validate() error {
	return validators.NewBuilder().
		Add(validators.ValidateNumeric("account_number", q.AccountNumber, 10)).
		Err()
}

// GetAccountBalance is the cheap balance projection.
type GetAccountBalance struct {
	AccountNumber string `json:"account_number"`
}

func (GetAccountBalance) QueryType() string { return QueryGetAccountBalance }

func (q GetAccountBalance) Validate() error {
	return validators.NewBuilder().
		Add(validators.ValidateNumeric("account_number", q.AccountNumber, 10)).
		Err()
}

// GetTransactionHistory lists an account's transactions in [Start, End],
// oldest first.
type GetTransactionHistory struct {
	AccountID string    `json:"account_id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
}

func (GetTransactionHistory) QueryType() string { return QueryGetTransactionHistory }

func (q GetTransactionHistory) Validate() error {
	b := validators.NewBuilder().
		Add(validators.ValidateRequired("account_id", q.AccountID))
	if !q.End.IsZero() && q.End.Before(q.Start) {
		b.Add(validators.NewValidationResult(false, "end",
			validators.WithMessage("End date must not be before the start date."),
			validators.WithValidationCode(validators.ValidationCodeInvalid)))
	}
	return b.Err()
}

// GetCustomers lists every live customer.
type GetCustomers struct{}

func (GetCustomers) QueryType() string { return QueryGetCustomers }

// GetCustomerDetails projects one customer with account summaries.
type GetCustomerDetails struct {
	CustomerID string `json:"customer_id"`
}

func (GetCustomerDetails) QueryType() string { return QueryGetCustomerDetails }

func (q GetCustomerDetails) Validate() error {
	return validators.NewBuilder().
		Add(validators.ValidateRequired("customer_id", q.CustomerID)).
		Err()
}
