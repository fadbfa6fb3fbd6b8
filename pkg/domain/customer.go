package domain

import (
	"fmt"
	"strings"
	"time"
)

// Customer is the identity of a person. It owns a collection of accounts,
// loaded only when an operation needs them.
type Customer struct {
	id          CustomerID
	firstName   string
	lastName    string
	email       string
	phone       string
	address     string
	dateOfBirth time.Time
	bvn         string
	creditScore int
	emailOptIn  bool
	dateCreated time.Time
	active      bool
	deleted     *Deletion

	accounts []*Account // loaded on demand
}

// MinimumAge is the youngest a customer may be at registration.
const MinimumAge = 18

// NewCustomer registers a customer. Email is stored lowercased; global
// uniqueness is enforced by the store. Age and format checks live in the
// validation pipeline; the constructor only guards the hard invariants.
func NewCustomer(firstName, lastName, email, phone, address string, dateOfBirth time.Time, bvn string, creditScore int, emailOptIn bool, now time.Time) (*Customer, error) {
	if firstName == "" || lastName == "" {
		return nil, fmt.Errorf("%w: customer name is required", ErrValidation)
	}
	if email == "" {
		return nil, fmt.Errorf("%w: customer email is required", ErrValidation)
	}

	return &Customer{
		id:          NewCustomerID(),
		firstName:   firstName,
		lastName:    lastName,
		email:       strings.ToLower(email),
		phone:       phone,
		address:     address,
		dateOfBirth: dateOfBirth,
		bvn:         bvn,
		creditScore: creditScore,
		emailOptIn:  emailOptIn,
		dateCreated: now.UTC(),
		active:      true,
	}, nil
}

func (c *Customer) ID() CustomerID         { return c.id }
func (c *Customer) FirstName() string      { return c.firstName }
func (c *Customer) LastName() string       { return c.lastName }
func (c *Customer) Email() string          { return c.email }
func (c *Customer) Phone() string          { return c.phone }
func (c *Customer) Address() string        { return c.address }
func (c *Customer) DateOfBirth() time.Time { return c.dateOfBirth }
func (c *Customer) BVN() string            { return c.bvn }
func (c *Customer) CreditScore() int       { return c.creditScore }
func (c *Customer) EmailOptIn() bool       { return c.emailOptIn }
func (c *Customer) DateCreated() time.Time { return c.dateCreated }
func (c *Customer) IsActive() bool         { return c.active }
func (c *Customer) Deleted() *Deletion     { return c.deleted }

// FullName joins first and last name.
func (c *Customer) FullName() string {
	return c.firstName + " " + c.lastName
}

// Age returns full years at the given time.
func (c *Customer) Age(at time.Time) int {
	years := at.Year() - c.dateOfBirth.Year()
	anniversary := c.dateOfBirth.AddDate(years, 0, 0)
	if anniversary.After(at) {
		years--
	}
	return years
}

// Accounts returns the loaded account collection.
func (c *Customer) Accounts() []*Account { return c.accounts }

// AttachAccounts loads the owned accounts onto the aggregate.
func (c *Customer) AttachAccounts(accounts []*Account) {
	c.accounts = accounts
}

// Deactivate disables the customer. Blocked while any owned account carries a
// non-zero balance; callers must attach the accounts first.
func (c *Customer) Deactivate() error {
	if err := c.requireSettledAccounts(); err != nil {
		return err
	}
	c.active = false
	return nil
}

// SoftDelete marks the customer deleted under the same settled-accounts rule.
func (c *Customer) SoftDelete(by string, now time.Time) error {
	if err := c.requireSettledAccounts(); err != nil {
		return err
	}
	if c.deleted == nil {
		c.deleted = &Deletion{At: now.UTC(), By: by}
		c.active = false
	}
	return nil
}

func (c *Customer) requireSettledAccounts() error {
	for _, a := range c.accounts {
		if !a.Balance().IsZero() {
			return fmt.Errorf("%w: account %s has a non-zero balance", ErrInvalidOperation, a.Number())
		}
	}
	return nil
}

// CustomerRecord carries persisted columns for rehydration.
type CustomerRecord struct {
	ID          CustomerID
	FirstName   string
	LastName    string
	Email       string
	Phone       string
	Address     string
	DateOfBirth time.Time
	BVN         string
	CreditScore int
	EmailOptIn  bool
	DateCreated time.Time
	Active      bool
	Deleted     *Deletion
}

// RehydrateCustomer rebuilds a Customer from persisted columns.
func RehydrateCustomer(rec CustomerRecord) *Customer {
	return &Customer{
		id:          rec.ID,
		firstName:   rec.FirstName,
		lastName:    rec.LastName,
		email:       rec.Email,
		phone:       rec.Phone,
		address:     rec.Address,
		dateOfBirth: rec.DateOfBirth,
		bvn:         rec.BVN,
		creditScore: rec.CreditScore,
		emailOptIn:  rec.EmailOptIn,
		dateCreated: rec.DateCreated,
		active:      rec.Active,
		deleted:     rec.Deleted,
	}
}
