package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/plaenen/corebank/pkg/domain"
	"github.com/shopspring/decimal"
)

var testClock = time.Date(2025, 11, 15, 10, 30, 0, 0, time.UTC)

func newTestAccount(t *testing.T, accountType domain.AccountType, balance string) *domain.Account {
	t.Helper()
	acc, err := domain.NewAccount(
		domain.NewCustomerID(),
		domain.AccountNumber("1234567890"),
		accountType,
		domain.MustMoney(balance, "NGN"),
		testClock,
	)
	if err != nil {
		t.Fatalf("NewAccount() error = %v", err)
	}
	acc.ClearPendingEvents() // tests below only care about events they cause
	return acc
}

func TestNewAccount(t *testing.T) {
	tests := []struct {
		name    string
		deposit string
		wantErr bool
	}{
		{name: "positive initial deposit", deposit: "1000.00"},
		{name: "zero initial deposit is allowed", deposit: "0"},
		{name: "negative initial deposit fails", deposit: "-1.00", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc, err := domain.NewAccount(
				domain.NewCustomerID(),
				domain.AccountNumber("0987654321"),
				domain.AccountChecking,
				domain.MustMoney(tt.deposit, "NGN"),
				testClock,
			)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewAccount() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			events := acc.PendingEvents()
			if len(events) != 1 {
				t.Fatalf("expected 1 pending event, got %d", len(events))
			}
			created, ok := events[0].(domain.AccountCreated)
			if !ok {
				t.Fatalf("expected AccountCreated, got %T", events[0])
			}
			if created.AccountNumber != acc.Number() {
				t.Errorf("event account number = %s, want %s", created.AccountNumber, acc.Number())
			}
			if created.EventID() == "" {
				t.Error("event id must be set")
			}
		})
	}
}

func TestAccount_Withdraw_Boundaries(t *testing.T) {
	// Withdrawing the exact balance succeeds; one minor unit more fails.
	acc := newTestAccount(t, domain.AccountChecking, "100.00")

	if _, err := acc.Withdraw(domain.MustMoney("100.00", "NGN"), "all of it", testClock); err != nil {
		t.Fatalf("Withdraw(balance) error = %v", err)
	}
	if !acc.Balance().IsZero() {
		t.Errorf("balance = %s, want 0", acc.Balance())
	}

	acc2 := newTestAccount(t, domain.AccountChecking, "100.00")
	_, err := acc2.Withdraw(domain.MustMoney("100.01", "NGN"), "too much", testClock)
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	var detail *domain.InsufficientFundsError
	if !errors.As(err, &detail) {
		t.Fatalf("expected *InsufficientFundsError, got %T", err)
	}
	if !detail.Balance.Amount.Equal(decimal.RequireFromString("100.00")) {
		t.Errorf("error balance = %s, want 100.00", detail.Balance)
	}
}

func TestAccount_Withdraw_SavingsMonthlyCap(t *testing.T) {
	acc := newTestAccount(t, domain.AccountSavings, "10000.00")

	// Six withdrawals in November succeed.
	for i := 0; i < domain.SavingsMonthlyWithdrawalCap; i++ {
		if _, err := acc.Withdraw(domain.MustMoney("10.00", "NGN"), "cap test", testClock); err != nil {
			t.Fatalf("withdrawal %d error = %v", i+1, err)
		}
	}

	// The seventh fails.
	_, err := acc.Withdraw(domain.MustMoney("10.00", "NGN"), "one too many", testClock)
	if !errors.Is(err, domain.ErrWithdrawalLimit) {
		t.Fatalf("expected ErrWithdrawalLimit, got %v", err)
	}

	// The first withdrawal of the next month succeeds.
	december := testClock.AddDate(0, 1, 0)
	if _, err := acc.Withdraw(domain.MustMoney("10.00", "NGN"), "new month", december); err != nil {
		t.Fatalf("next-month withdrawal error = %v", err)
	}
}

func TestAccount_Withdraw_InactiveAccount(t *testing.T) {
	acc := newTestAccount(t, domain.AccountChecking, "0")
	if err := acc.CloseAccount(testClock); err != nil {
		t.Fatalf("CloseAccount() error = %v", err)
	}

	_, err := acc.Withdraw(domain.MustMoney("1.00", "NGN"), "", testClock)
	if !errors.Is(err, domain.ErrInvalidOperation) {
		t.Fatalf("expected ErrInvalidOperation, got %v", err)
	}
}

func TestAccount_Transfer(t *testing.T) {
	src := newTestAccount(t, domain.AccountChecking, "1000.00")
	dst := newTestAccount(t, domain.AccountChecking, "500.00")

	transferID, err := src.Transfer(dst, domain.MustMoney("200.00", "NGN"), "R1", "rent", testClock)
	if err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}
	if transferID == "" {
		t.Fatal("transfer id must be set")
	}

	if got := src.Balance().Amount.String(); got != "800" {
		t.Errorf("source balance = %s, want 800", got)
	}
	if got := dst.Balance().Amount.String(); got != "1100" {
		t.Errorf("destination balance = %s, want 1100", got)
	}

	srcTx := src.NewTransactions()
	dstTx := dst.NewTransactions()
	if len(srcTx) != 1 || srcTx[0].Type() != domain.TransactionTransferOut {
		t.Fatalf("expected one TransferOut on source, got %v", srcTx)
	}
	if len(dstTx) != 1 || dstTx[0].Type() != domain.TransactionTransferIn {
		t.Fatalf("expected one TransferIn on destination, got %v", dstTx)
	}
	if srcTx[0].Reference() != "R1" || dstTx[0].Reference() != "R1" {
		t.Errorf("caller reference must be stored verbatim on both legs, got %q / %q",
			srcTx[0].Reference(), dstTx[0].Reference())
	}

	events := src.PendingEvents()
	if len(events) != 1 {
		t.Fatalf("expected 1 event on source, got %d", len(events))
	}
	moved, ok := events[0].(domain.MoneyTransferred)
	if !ok {
		t.Fatalf("expected MoneyTransferred, got %T", events[0])
	}
	if moved.TransactionID != transferID {
		t.Errorf("event transaction id = %s, want %s", moved.TransactionID, transferID)
	}
}

func TestAccount_Transfer_Shortfall(t *testing.T) {
	src := newTestAccount(t, domain.AccountChecking, "100.00")
	dst := newTestAccount(t, domain.AccountChecking, "0")

	_, err := src.Transfer(dst, domain.MustMoney("150.00", "NGN"), "", "", testClock)
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	// Balances untouched, but the rejection event is queued for the outbox.
	if got := src.Balance().Amount.String(); got != "100" {
		t.Errorf("source balance changed on failed transfer: %s", got)
	}
	if !dst.Balance().IsZero() {
		t.Errorf("destination balance changed on failed transfer: %s", dst.Balance())
	}
	events := src.PendingEvents()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if _, ok := events[0].(domain.InsufficientFunds); !ok {
		t.Fatalf("expected InsufficientFunds event, got %T", events[0])
	}
}

func TestAccount_Transfer_Rejections(t *testing.T) {
	t.Run("same account", func(t *testing.T) {
		src := newTestAccount(t, domain.AccountChecking, "100.00")
		_, err := src.Transfer(src, domain.MustMoney("10.00", "NGN"), "", "", testClock)
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("cross currency", func(t *testing.T) {
		src := newTestAccount(t, domain.AccountChecking, "100.00")
		dst := newTestAccount(t, domain.AccountChecking, "100.00")
		_, err := src.Transfer(dst, domain.MustMoney("10.00", "USD"), "", "", testClock)
		if !errors.Is(err, domain.ErrCurrencyMismatch) {
			t.Fatalf("expected ErrCurrencyMismatch, got %v", err)
		}
		if len(src.PendingEvents()) != 0 {
			t.Error("no event may be queued on a currency rejection")
		}
	})
}

func TestAccount_CloseAccount(t *testing.T) {
	acc := newTestAccount(t, domain.AccountChecking, "10.00")
	if err := acc.CloseAccount(testClock); !errors.Is(err, domain.ErrInvalidOperation) {
		t.Fatalf("closing with non-zero balance: expected ErrInvalidOperation, got %v", err)
	}

	acc2 := newTestAccount(t, domain.AccountChecking, "0")
	if err := acc2.CloseAccount(testClock); err != nil {
		t.Fatalf("CloseAccount() error = %v", err)
	}
	if acc2.Status() != domain.StatusClosed || acc2.IsActive() {
		t.Errorf("status = %s active = %v, want Closed/false", acc2.Status(), acc2.IsActive())
	}
}

func TestAccount_UpdateStatusBasedOnRules(t *testing.T) {
	acc := newTestAccount(t, domain.AccountChecking, "0")

	acc.UpdateStatusBasedOnRules(testClock.AddDate(0, 6, 0))
	if acc.Status() != domain.StatusActive {
		t.Errorf("six idle months must not deactivate, status = %s", acc.Status())
	}

	acc.UpdateStatusBasedOnRules(testClock.AddDate(1, 0, 1))
	if acc.Status() != domain.StatusInactive {
		t.Errorf("over a year idle must deactivate, status = %s", acc.Status())
	}
}

func TestAccount_PendingEvents_Isolation(t *testing.T) {
	src := newTestAccount(t, domain.AccountChecking, "100.00")
	dst := newTestAccount(t, domain.AccountChecking, "0")
	if _, err := src.Transfer(dst, domain.MustMoney("50.00", "NGN"), "", "", testClock); err != nil {
		t.Fatal(err)
	}

	snapshot := src.PendingEvents()
	src.ClearPendingEvents()
	if len(src.PendingEvents()) != 0 {
		t.Fatal("clear must empty the queue")
	}
	src.RestorePendingEvents(snapshot)
	if len(src.PendingEvents()) != 1 {
		t.Fatal("restore must put the snapshot back")
	}
}
