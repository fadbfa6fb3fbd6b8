// Package banking is the application layer: typed commands and queries plus
// the thin handlers that orchestrate aggregates, repositories and the unit
// of work. Handlers never call other handlers.
package banking

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/plaenen/corebank/pkg/domain"
	"github.com/plaenen/corebank/pkg/validators"
)

// Command type tags, used for bus routing and log correlation.
const (
	CommandCreateCustomer     = "corebank.CreateCustomer"
	CommandCreateAccount      = "corebank.CreateAccount"
	CommandDepositMoney       = "corebank.DepositMoney"
	CommandWithdrawMoney      = "corebank.WithdrawMoney"
	CommandTransferMoney      = "corebank.TransferMoney"
	CommandCloseAccount       = "corebank.CloseAccount"
	CommandDeactivateCustomer = "corebank.DeactivateCustomer"
)

// CreateCustomer registers a new customer.
type CreateCustomer struct {
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	Address     string    `json:"address"`
	DateOfBirth time.Time `json:"date_of_birth"`
	BVN         string    `json:"bvn"`
	CreditScore int       `json:"credit_score"`
	EmailOptIn  bool      `json:"email_opt_in"`
}

func (CreateCustomer) CommandType() string { return CommandCreateCustomer }

func (c CreateCustomer) Validate() error {
	b := validators.NewBuilder().
		Add(validators.ValidateRequired("first_name", c.FirstName)).
		Add(validators.ValidateRequired("last_name", c.LastName)).
		Add(validators.ValidateEmail("email", c.Email)).
		Add(validators.ValidatePhone("phone", c.Phone)).
		Add(validators.ValidateNumeric("bvn", c.BVN, 11))

	if c.DateOfBirth.IsZero() {
		b.Add(validators.NewValidationResult(false, "date_of_birth",
			validators.WithMessage("Date of birth is required."),
			validators.WithValidationCode(validators.ValidationCodeRequired)))
	} else if age(c.DateOfBirth, time.Now()) < domain.MinimumAge {
		b.Add(validators.NewValidationResult(false, "date_of_birth",
			validators.WithMessage(fmt.Sprintf("Customers must be at least %d years old.", domain.MinimumAge)),
			validators.WithValidationCode(validators.ValidationCodeInvalid)))
	}
	return b.Err()
}

func age(dateOfBirth, at time.Time) int {
	years := at.Year() - dateOfBirth.Year()
	anniversary := dateOfBirth.AddDate(years, 0, 0)
	if anniversary.After(at) {
		years--
	}
	return years
}

// CreateAccount opens an account for an existing customer. The account
// number is generated server-side.
type CreateAccount struct {
	CustomerID     string             `json:"customer_id"`
	AccountType    domain.AccountType `json:"account_type"`
	InitialDeposit decimal.Decimal    `json:"initial_deposit"`
	Currency       string             `json:"currency"`
}

func (CreateAccount) CommandType() string { return CommandCreateAccount }

func (c CreateAccount) Validate() error {
	b := validators.NewBuilder().
		Add(validators.ValidateRequired("customer_id", c.CustomerID)).
		Add(validators.ValidateStringLength("currency", c.Currency, 3, 3))

	switch c.AccountType {
	case domain.AccountChecking, domain.AccountSavings, domain.AccountFixedDeposit:
	default:
		b.Add(validators.NewValidationResult(false, "account_type",
			validators.WithValue(string(c.AccountType)),
			validators.WithMessage("Account type must be Checking, Savings or FixedDeposit."),
			validators.WithValidationCode(validators.ValidationCodeInvalid)))
	}
	if c.InitialDeposit.IsNegative() {
		b.Add(validators.NewValidationResult(false, "initial_deposit",
			validators.WithValue(c.InitialDeposit.String()),
			validators.WithMessage("Initial deposit cannot be negative."),
			validators.WithValidationCode(validators.ValidationCodeInvalid)))
	}
	return b.Err()
}

// DepositMoney credits an account.
type DepositMoney struct {
	AccountNumber string          `json:"account_number"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Description   string          `json:"description"`
}

func (DepositMoney) CommandType() string { return CommandDepositMoney }

func (c DepositMoney) Validate() error {
	return validateMovement(c.AccountNumber, c.Amount, c.Currency)
}

// WithdrawMoney debits an account, subject to the savings monthly cap.
type WithdrawMoney struct {
	AccountNumber string          `json:"account_number"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Description   string          `json:"description"`
}

func (WithdrawMoney) CommandType() string { return CommandWithdrawMoney }

func (c WithdrawMoney) Validate() error {
	return validateMovement(c.AccountNumber, c.Amount, c.Currency)
}

// TransferMoney moves funds between two accounts of the same currency.
type TransferMoney struct {
	SourceNumber      string          `json:"source_number"`
	DestinationNumber string          `json:"destination_number"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Reference         string          `json:"reference"`
	Description       string          `json:"description"`
}

func (TransferMoney) CommandType() string { return CommandTransferMoney }

func (c TransferMoney) Validate() error {
	b := validators.NewBuilder().
		Add(validators.ValidateNumeric("source_number", c.SourceNumber, 10)).
		Add(validators.ValidateNumeric("destination_number", c.DestinationNumber, 10)).
		Add(validators.ValidateStringLength("currency", c.Currency, 3, 3))

	if !c.Amount.IsPositive() {
		b.Add(positiveAmountViolation(c.Amount))
	}
	if c.SourceNumber != "" && c.SourceNumber == c.DestinationNumber {
		b.Add(validators.NewValidationResult(false, "destination_number",
			validators.WithValue(c.DestinationNumber),
			validators.WithMessage("Source and destination accounts must differ."),
			validators.WithValidationCode(validators.ValidationCodeInvalid)))
	}
	return b.Err()
}

// CloseAccount closes a zero-balance account.
type CloseAccount struct {
	AccountNumber string `json:"account_number"`
}

func (CloseAccount) CommandType() string { return CommandCloseAccount }

func (c CloseAccount) Validate() error {
	return validators.NewBuilder().
		Add(validators.ValidateNumeric("account_number", c.AccountNumber, 10)).
		Err()
}

// DeactivateCustomer disables a customer whose accounts are all settled.
type DeactivateCustomer struct {
	CustomerID string `json:"customer_id"`
}

func (DeactivateCustomer) CommandType() string { return CommandDeactivateCustomer }

func (c DeactivateCustomer) Validate() error {
	return validators.NewBuilder().
		Add(validators.ValidateRequired("customer_id", c.CustomerID)).
		Err()
}

func validateMovement(accountNumber string, amount decimal.Decimal, currency string) error {
	b := validators.NewBuilder().
		Add(validators.ValidateNumeric("account_number", accountNumber, 10)).
		Add(validators.ValidateStringLength("currency", currency, 3, 3))
	if !amount.IsPositive() {
		b.Add(positiveAmountViolation(amount))
	}
	return b.Err()
}

func positiveAmountViolation(amount decimal.Decimal) *validators.ValidationResult {
	return validators.NewValidationResult(false, "amount",
		validators.WithValue(amount.String()),
		validators.WithMessage("Amount must be greater than zero."),
		validators.WithValidationCode(validators.ValidationCodeInvalid))
}
