package banking

import (
	"time"

	"github.com/plaenen/corebank/pkg/domain"
)

// CreateCustomerResult is the CreateCustomer payload.
type CreateCustomerResult struct {
	CustomerID string `json:"customer_id"`
}

// CreateAccountResult is the CreateAccount payload.
type CreateAccountResult struct {
	AccountID     string `json:"account_id"`
	AccountNumber string `json:"account_number"`
}

// MovementResult is the Deposit/Withdraw payload.
type MovementResult struct {
	TransactionID string `json:"transaction_id"`
	Balance       string `json:"balance"`
	Currency      string `json:"currency"`
}

// TransferResult is the TransferMoney payload.
type TransferResult struct {
	TransactionID string `json:"transaction_id"`
	Reference     string `json:"reference"`
}

// AccountDetails is the GetAccountDetails projection.
type AccountDetails struct {
	AccountNumber string    `json:"account_number"`
	AccountType   string    `json:"account_type"`
	Balance       string    `json:"balance"`
	Currency      string    `json:"currency"`
	DateOpened    time.Time `json:"date_opened"`
	Active        bool      `json:"active"`
	Status        string    `json:"status"`
	HolderName    string    `json:"holder_name"`
}

// AccountBalance is the GetAccountBalance projection.
type AccountBalance struct {
	AccountNumber string `json:"account_number"`
	Balance       string `json:"balance"`
	Currency      string `json:"currency"`
}

// TransactionDTO is one ledger line in a history projection.
type TransactionDTO struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Amount      string    `json:"amount"`
	Currency    string    `json:"currency"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
	Reference   string    `json:"reference"`
}

// AccountSummary is the nested account view inside customer projections.
type AccountSummary struct {
	AccountNumber string `json:"account_number"`
	AccountType   string `json:"account_type"`
	Balance       string `json:"balance"`
	Currency      string `json:"currency"`
	Status        string `json:"status"`
}

// CustomerSummary is one row of the GetCustomers projection.
type CustomerSummary struct {
	CustomerID string `json:"customer_id"`
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	Active     bool   `json:"active"`
}

// CustomerDetails is the GetCustomerDetails projection.
type CustomerDetails struct {
	CustomerID  string           `json:"customer_id"`
	FirstName   string           `json:"first_name"`
	LastName    string           `json:"last_name"`
	Email       string           `json:"email"`
	Phone       string           `json:"phone"`
	Address     string           `json:"address"`
	DateOfBirth time.Time        `json:"date_of_birth"`
	CreditScore int              `json:"credit_score"`
	EmailOptIn  bool             `json:"email_opt_in"`
	Active      bool             `json:"active"`
	Accounts    []AccountSummary `json:"accounts"`
}

func toTransactionDTO(tx *domain.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:          string(tx.ID()),
		Type:        string(tx.Type()),
		Amount:      tx.Amount().Amount.String(),
		Currency:    tx.Amount().Currency,
		Description: tx.Description(),
		Timestamp:   tx.Timestamp(),
		Reference:   tx.Reference(),
	}
}

func toAccountSummary(account *domain.Account) AccountSummary {
	return AccountSummary{
		AccountNumber: string(account.Number()),
		AccountType:   string(account.Type()),
		Balance:       account.Balance().Amount.String(),
		Currency:      account.Balance().Currency,
		Status:        string(account.Status()),
	}
}
