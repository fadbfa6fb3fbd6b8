package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/plaenen/corebank/pkg/domain"
	"github.com/plaenen/corebank/pkg/store"
)

const (
	statementBatchSize = 100
	statementLookback  = 30 * 24 * time.Hour
)

// StatementReport summarizes one statement run.
type StatementReport struct {
	Processed int
	Failed    int
	Duration  time.Duration
}

// StatementJob renders a 30-day statement for every active account and mails
// it to customers who opted in.
type StatementJob struct {
	accounts     store.AccountRepository
	customers    store.CustomerRepository
	transactions store.TransactionRepository
	renderer     StatementRenderer
	email        EmailService
	logger       *slog.Logger
	clock        func() time.Time
}

// NewStatementJob wires the statement job. A nil logger falls back to
// slog.Default.
func NewStatementJob(
	accounts store.AccountRepository,
	customers store.CustomerRepository,
	transactions store.TransactionRepository,
	renderer StatementRenderer,
	email EmailService,
	logger *slog.Logger,
) *StatementJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatementJob{
		accounts:     accounts,
		customers:    customers,
		transactions: transactions,
		renderer:     renderer,
		email:        email,
		logger:       logger,
		clock:        time.Now,
	}
}

// WithClock overrides the time source, used by tests.
func (j *StatementJob) WithClock(clock func() time.Time) *StatementJob {
	j.clock = clock
	return j
}

// Run generates statements dated statementDate. Accounts are processed in
// batches of 100, concurrently within a batch; one account's failure never
// stops the rest.
func (j *StatementJob) Run(ctx context.Context, statementDate time.Time) (StatementReport, error) {
	start := j.clock()
	statementDate = statementDate.UTC()

	accounts, err := j.accounts.FindByStatus(ctx, domain.StatusActive)
	if err != nil {
		return StatementReport{}, fmt.Errorf("failed to load active accounts: %w", err)
	}

	var (
		mu        sync.Mutex
		processed int
		failed    int
	)

	for offset := 0; offset < len(accounts); offset += statementBatchSize {
		end := offset + statementBatchSize
		if end > len(accounts) {
			end = len(accounts)
		}
		batch := accounts[offset:end]

		var wg sync.WaitGroup
		for _, account := range batch {
			wg.Add(1)
			go func(account *domain.Account) {
				defer wg.Done()
				if err := j.generateOne(ctx, account, statementDate); err != nil {
					j.logger.Error("statement generation failed",
						"account_number", account.Number(),
						"error", err)
					mu.Lock()
					failed++
					mu.Unlock()
					return
				}
				mu.Lock()
				processed++
				mu.Unlock()
			}(account)
		}
		wg.Wait()
	}

	report := StatementReport{
		Processed: processed,
		Failed:    failed,
		Duration:  j.clock().Sub(start),
	}
	j.logger.Info("statement run finished",
		"statement_date", statementDate.Format("2006-01-02"),
		"processed", report.Processed,
		"failed", report.Failed,
		"duration_ms", report.Duration.Milliseconds())
	return report, nil
}

func (j *StatementJob) generateOne(ctx context.Context, account *domain.Account, statementDate time.Time) error {
	periodStart := statementDate.Add(-statementLookback)

	transactions, err := j.transactions.FindByAccountBetween(ctx, account.ID(), periodStart, statementDate)
	if err != nil {
		return fmt.Errorf("failed to load transactions: %w", err)
	}

	customer, err := j.customers.FindByID(ctx, account.CustomerID())
	if err != nil {
		return fmt.Errorf("failed to load customer: %w", err)
	}

	summary := AccountSummary{
		AccountNumber: account.Number(),
		AccountType:   account.Type(),
		HolderName:    customer.FullName(),
		Balance:       account.Balance(),
	}
	artifact, err := j.renderer.RenderAccountStatement(ctx, summary, transactions, periodStart, statementDate)
	if err != nil {
		return fmt.Errorf("failed to render statement: %w", err)
	}

	if !customer.EmailOptIn() {
		return nil
	}
	if err := j.email.SendStatementNotification(ctx, customer.Email(), customer.FullName(), statementDate, artifact); err != nil {
		return fmt.Errorf("failed to send statement notification: %w", err)
	}
	return nil
}
