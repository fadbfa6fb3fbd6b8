package domain

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Typed identifiers. All entity ids are UUID strings; the distinct types keep
// a customer id from ever being passed where an account id is expected.
type (
	CustomerID    string
	AccountID     string
	TransactionID string
)

// NewCustomerID returns a fresh customer id.
func NewCustomerID() CustomerID { return CustomerID(uuid.NewString()) }

// NewAccountID returns a fresh account id.
func NewAccountID() AccountID { return AccountID(uuid.NewString()) }

// NewTransactionID returns a fresh transaction id.
func NewTransactionID() TransactionID { return TransactionID(uuid.NewString()) }

func (id CustomerID) String() string    { return string(id) }
func (id AccountID) String() string     { return string(id) }
func (id TransactionID) String() string { return string(id) }

// AccountNumber is a 10-digit numeric account number. It is immutable once an
// account is created and globally unique.
type AccountNumber string

// ParseAccountNumber validates the 10-digit format.
func ParseAccountNumber(s string) (AccountNumber, error) {
	if len(s) != 10 {
		return "", fmt.Errorf("%w: account number must be 10 digits, got %q", ErrValidation, s)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: account number must be numeric, got %q", ErrValidation, s)
		}
	}
	return AccountNumber(s), nil
}

func (n AccountNumber) String() string { return string(n) }

// RandomAccountNumber generates a candidate 10-digit account number with a
// non-zero first digit. Uniqueness is the caller's responsibility (checked
// against the store).
func RandomAccountNumber() AccountNumber {
	// [1000000000, 9999999999]
	span := big.NewInt(9_000_000_000)
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		panic(err) // crypto/rand never fails on supported platforms
	}
	n.Add(n, big.NewInt(1_000_000_000))
	return AccountNumber(n.String())
}

// Deletion records a soft delete: when and by whom.
// A nil *Deletion means the row is live.
type Deletion struct {
	At time.Time
	By string
}
