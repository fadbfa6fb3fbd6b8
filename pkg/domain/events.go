package domain

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a domain event emitted by an aggregate. Events are immutable facts;
// every event carries its own unique id and the time it occurred.
type Event interface {
	// EventID returns the unique identifier of this event instance.
	EventID() string

	// EventType returns the registered type tag used for serialization.
	EventType() string

	// OccurredOn returns when the event happened.
	OccurredOn() time.Time
}

// EventModel provides the id and timestamp shared by all events.
// Embed it in concrete event types.
type EventModel struct {
	ID string    `json:"event_id"`
	At time.Time `json:"occurred_on"`
}

// NewEventModel stamps a fresh event id and timestamp.
func NewEventModel(now time.Time) EventModel {
	return EventModel{ID: uuid.NewString(), At: now.UTC()}
}

func (e EventModel) EventID() string       { return e.ID }
func (e EventModel) OccurredOn() time.Time { return e.At }

// Type tags. The tag is the discriminator stored in the outbox `type` column;
// renaming a tag is a wire-format change.
const (
	EventTypeAccountCreated    = "corebank.AccountCreated"
	EventTypeMoneyTransferred  = "corebank.MoneyTransferred"
	EventTypeInsufficientFunds = "corebank.InsufficientFunds"
)

// AccountCreated is emitted when a new account is opened.
type AccountCreated struct {
	EventModel
	AccountID      AccountID     `json:"account_id"`
	AccountNumber  AccountNumber `json:"account_number"`
	CustomerID     CustomerID    `json:"customer_id"`
	AccountType    AccountType   `json:"account_type"`
	InitialDeposit Money         `json:"initial_deposit"`
}

func (AccountCreated) EventType() string { return EventTypeAccountCreated }

// MoneyTransferred is emitted when a transfer between two accounts succeeds.
type MoneyTransferred struct {
	EventModel
	TransactionID     TransactionID `json:"transaction_id"`
	SourceNumber      AccountNumber `json:"source_account_number"`
	DestinationNumber AccountNumber `json:"destination_account_number"`
	Amount            Money         `json:"amount"`
	Reference         string        `json:"reference"`
	TransferDate      time.Time     `json:"transfer_date"`
}

func (MoneyTransferred) EventType() string { return EventTypeMoneyTransferred }

// InsufficientFunds is emitted when a debit is rejected for lack of balance.
// The rejected operation itself does not mutate any state.
type InsufficientFunds struct {
	EventModel
	AccountNumber AccountNumber `json:"account_number"`
	Requested     Money         `json:"requested_amount"`
	Balance       Money         `json:"current_balance"`
	Operation     string        `json:"operation"`
}

func (InsufficientFunds) EventType() string { return EventTypeInsufficientFunds }

// EventDecoder turns a serialized payload back into a concrete event.
type EventDecoder func(data []byte) (Event, error)

var (
	codecMu  sync.RWMutex
	decoders = map[string]EventDecoder{}
)

// RegisterEventType registers a decoder for a type tag. Registration is done
// in init functions; registering the same tag twice panics.
func RegisterEventType(tag string, decode EventDecoder) {
	codecMu.Lock()
	defer codecMu.Unlock()

	if _, exists := decoders[tag]; exists {
		panic(fmt.Sprintf("event decoder already registered for %s", tag))
	}
	decoders[tag] = decode
}

// EncodeEvent serializes an event to its JSON payload.
func EncodeEvent(e Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", e.EventType(), err)
	}
	return data, nil
}

// DecodeEvent resolves the concrete event type from its tag and deserializes
// the payload. Unknown tags return ErrUnknownEventType; the relay marks such
// rows processed so they never block the queue.
func DecodeEvent(tag string, data []byte) (Event, error) {
	codecMu.RLock()
	decode, ok := decoders[tag]
	codecMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, tag)
	}
	return decode(data)
}

func init() {
	RegisterEventType(EventTypeAccountCreated, func(data []byte) (Event, error) {
		var e AccountCreated
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	})
	RegisterEventType(EventTypeMoneyTransferred, func(data []byte) (Event, error) {
		var e MoneyTransferred
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	})
	RegisterEventType(EventTypeInsufficientFunds, func(data []byte) (Event, error) {
		var e InsufficientFunds
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	})
}
