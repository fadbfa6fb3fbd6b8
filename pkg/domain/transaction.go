package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// TransactionType classifies a ledger entry. The amount is always carried as a
// positive Money; the type determines the sign applied to the balance.
type TransactionType string

const (
	TransactionDeposit        TransactionType = "Deposit"
	TransactionWithdrawal     TransactionType = "Withdrawal"
	TransactionTransfer       TransactionType = "Transfer"
	TransactionTransferIn     TransactionType = "TransferIn"
	TransactionTransferOut    TransactionType = "TransferOut"
	TransactionInterestCredit TransactionType = "InterestCredit"
)

// BalanceSign returns +1 for credit types and -1 for debit types.
func (t TransactionType) BalanceSign() int {
	switch t {
	case TransactionWithdrawal, TransactionTransferOut:
		return -1
	default:
		return 1
	}
}

// Transaction is an append-only child of an Account. Once created it is never
// mutated except for soft deletion.
type Transaction struct {
	id          TransactionID
	accountID   AccountID
	txType      TransactionType
	amount      Money
	description string
	timestamp   time.Time
	reference   string
	deleted     *Deletion
}

// newTransaction builds a child transaction. Every constructor input is stored
// into its field before returning. An empty reference gets the generated
// default format; a caller-provided reference is stored verbatim.
func newTransaction(id TransactionID, accountID AccountID, txType TransactionType, amount Money, description, reference string, when time.Time) (*Transaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: transaction amount must be positive, got %s", ErrValidation, amount)
	}
	if reference == "" {
		reference = GenerateReference(id, when)
	}
	return &Transaction{
		id:          id,
		accountID:   accountID,
		txType:      txType,
		amount:      amount,
		description: description,
		timestamp:   when.UTC(),
		reference:   reference,
	}, nil
}

// NewInterestCredit produces an InterestCredit transaction with an
// INT-YYYYMMDD-<8 uppercase hex> reference. Callers are responsible for also
// crediting the owning account's balance.
func NewInterestCredit(accountID AccountID, amount Money, when time.Time, description string) (*Transaction, error) {
	id := NewTransactionID()
	ref := fmt.Sprintf("INT-%s-%s", when.UTC().Format("20060102"), randomHex8())
	return newTransaction(id, accountID, TransactionInterestCredit, amount, description, ref, when)
}

// GenerateReference builds the default reference: YYYYMMDDhhmmss-<first 8 of id>.
func GenerateReference(id TransactionID, when time.Time) string {
	short := string(id)
	if len(short) > 8 {
		short = short[:8]
	}
	return when.UTC().Format("20060102150405") + "-" + short
}

func randomHex8() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		panic(err) // crypto/rand never fails on supported platforms
	}
	return strings.ToUpper(hex.EncodeToString(b))
}

func (t *Transaction) ID() TransactionID        { return t.id }
func (t *Transaction) AccountID() AccountID     { return t.accountID }
func (t *Transaction) Type() TransactionType    { return t.txType }
func (t *Transaction) Amount() Money            { return t.amount }
func (t *Transaction) Description() string      { return t.description }
func (t *Transaction) Timestamp() time.Time     { return t.timestamp }
func (t *Transaction) Reference() string        { return t.reference }
func (t *Transaction) Deleted() *Deletion       { return t.deleted }

// SoftDelete marks the transaction deleted. The only permitted mutation.
func (t *Transaction) SoftDelete(by string, now time.Time) {
	if t.deleted != nil {
		return
	}
	t.deleted = &Deletion{At: now.UTC(), By: by}
}

// RehydrateTransaction rebuilds a Transaction from persisted columns.
// For repository use only; it applies no invariant checks.
func RehydrateTransaction(id TransactionID, accountID AccountID, txType TransactionType, amount Money, description string, timestamp time.Time, reference string, deleted *Deletion) *Transaction {
	return &Transaction{
		id:          id,
		accountID:   accountID,
		txType:      txType,
		amount:      amount,
		description: description,
		timestamp:   timestamp,
		reference:   reference,
		deleted:     deleted,
	}
}
