package domain_test

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/plaenen/corebank/pkg/domain"
)

func TestEventCodec_RoundTrip(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	events := []domain.Event{
		domain.AccountCreated{
			EventModel:     domain.NewEventModel(now),
			AccountID:      domain.NewAccountID(),
			AccountNumber:  "1234567890",
			CustomerID:     domain.NewCustomerID(),
			AccountType:    domain.AccountSavings,
			InitialDeposit: domain.MustMoney("500.00", "NGN"),
		},
		domain.MoneyTransferred{
			EventModel:        domain.NewEventModel(now),
			TransactionID:     domain.NewTransactionID(),
			SourceNumber:      "1234567890",
			DestinationNumber: "0987654321",
			Amount:            domain.MustMoney("200.00", "NGN"),
			Reference:         "R1",
			TransferDate:      now,
		},
		domain.InsufficientFunds{
			EventModel:    domain.NewEventModel(now),
			AccountNumber: "1234567890",
			Requested:     domain.MustMoney("150.00", "NGN"),
			Balance:       domain.MustMoney("100.00", "NGN"),
			Operation:     "Transfer",
		},
	}

	for _, original := range events {
		t.Run(original.EventType(), func(t *testing.T) {
			data, err := domain.EncodeEvent(original)
			if err != nil {
				t.Fatalf("EncodeEvent() error = %v", err)
			}

			decoded, err := domain.DecodeEvent(original.EventType(), data)
			if err != nil {
				t.Fatalf("DecodeEvent() error = %v", err)
			}
			if decoded.EventID() != original.EventID() {
				t.Errorf("event id = %s, want %s", decoded.EventID(), original.EventID())
			}
			if !decoded.OccurredOn().Equal(original.OccurredOn()) {
				t.Errorf("occurred on = %s, want %s", decoded.OccurredOn(), original.OccurredOn())
			}
			if decoded.EventType() != original.EventType() {
				t.Errorf("event type = %s, want %s", decoded.EventType(), original.EventType())
			}
		})
	}
}

func TestDecodeEvent_UnknownTag(t *testing.T) {
	_, err := domain.DecodeEvent("corebank.NoSuchEvent", []byte(`{}`))
	if !errors.Is(err, domain.ErrUnknownEventType) {
		t.Fatalf("expected ErrUnknownEventType, got %v", err)
	}
}

func TestGenerateReference_Format(t *testing.T) {
	id := domain.TransactionID("a1b2c3d4-0000-0000-0000-000000000000")
	when := time.Date(2025, 11, 5, 14, 30, 45, 0, time.UTC)

	got := domain.GenerateReference(id, when)
	want := "20251105143045-a1b2c3d4"
	if got != want {
		t.Errorf("GenerateReference() = %q, want %q", got, want)
	}
}

func TestNewInterestCredit_Reference(t *testing.T) {
	when := time.Date(2025, 6, 30, 23, 59, 59, 0, time.UTC)
	tx, err := domain.NewInterestCredit(domain.NewAccountID(), domain.MustMoney("14.79", "NGN"), when, "monthly interest")
	if err != nil {
		t.Fatalf("NewInterestCredit() error = %v", err)
	}

	pattern := regexp.MustCompile(`^INT-20250630-[0-9A-F]{8}$`)
	if !pattern.MatchString(tx.Reference()) {
		t.Errorf("reference %q does not match %s", tx.Reference(), pattern)
	}
	if tx.Type() != domain.TransactionInterestCredit {
		t.Errorf("type = %s, want InterestCredit", tx.Type())
	}
}
