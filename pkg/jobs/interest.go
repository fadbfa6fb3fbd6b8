package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/plaenen/corebank/pkg/domain"
	"github.com/plaenen/corebank/pkg/store"
)

// Annual interest rates by product.
var (
	rateSavingsHigh  = decimal.RequireFromString("0.015")
	rateSavingsLow   = decimal.RequireFromString("0.010")
	rateChecking     = decimal.RequireFromString("0.001")
	rateFixedDeposit = decimal.RequireFromString("0.035")

	savingsRateThreshold = decimal.NewFromInt(10000)
	daysPerYear          = decimal.NewFromInt(365)
)

// InterestReport summarizes one interest run.
type InterestReport struct {
	Processed int
	Failed    int
	Skipped   int
	Duration  time.Duration
}

// InterestJob credits monthly interest to interest-bearing accounts based on
// their average daily balance over the calendar month.
type InterestJob struct {
	accounts     store.AccountRepository
	transactions store.TransactionRepository
	uowFactory   store.UnitOfWorkFactory
	logger       *slog.Logger
	clock        func() time.Time
}

// NewInterestJob wires the interest job.
func NewInterestJob(
	accounts store.AccountRepository,
	transactions store.TransactionRepository,
	uowFactory store.UnitOfWorkFactory,
	logger *slog.Logger,
) *InterestJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &InterestJob{
		accounts:     accounts,
		transactions: transactions,
		uowFactory:   uowFactory,
		logger:       logger,
		clock:        time.Now,
	}
}

// WithClock overrides the time source, used by tests.
func (j *InterestJob) WithClock(clock func() time.Time) *InterestJob {
	j.clock = clock
	return j
}

// Run credits interest for the calendar month containing calculationDate.
// Each account is handled in isolation: its balance update and its credit
// transaction commit together in one unit of work, so a failure never leaves
// a credited balance without the matching ledger row.
func (j *InterestJob) Run(ctx context.Context, calculationDate time.Time) (InterestReport, error) {
	start := j.clock()
	windowStart, windowEnd := monthWindow(calculationDate)
	days := windowEnd.Sub(windowStart).Hours()/24 + 1

	accounts, err := j.accounts.FindInterestBearing(ctx)
	if err != nil {
		return InterestReport{}, fmt.Errorf("failed to load interest-bearing accounts: %w", err)
	}

	var report InterestReport
	for _, account := range accounts {
		credit, err := j.creditOne(ctx, account, windowStart, windowEnd, int64(days))
		if err != nil {
			j.logger.Error("interest calculation failed",
				"account_number", account.Number(),
				"error", err)
			report.Failed++
			continue
		}
		if credit == nil {
			report.Skipped++
			continue
		}
		report.Processed++
	}

	report.Duration = j.clock().Sub(start)
	j.logger.Info("interest run finished",
		"window_start", windowStart.Format("2006-01-02"),
		"window_end", windowEnd.Format("2006-01-02"),
		"processed", report.Processed,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"duration_ms", report.Duration.Milliseconds())
	return report, nil
}

// creditOne computes and applies interest for one account. It returns the
// credit transaction, or nil when the rate or the balance round to nothing.
func (j *InterestJob) creditOne(ctx context.Context, account *domain.Account, windowStart, windowEnd time.Time, days int64) (*domain.Transaction, error) {
	adb, err := j.transactions.AverageDailyBalance(ctx, account.ID(), windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to compute average daily balance: %w", err)
	}

	rate := annualRate(account.Type(), adb)
	interest := adb.Mul(rate).Mul(decimal.NewFromInt(days)).Div(daysPerYear).Round(4)
	if !interest.IsPositive() {
		return nil, nil
	}

	amount, err := domain.NewMoney(interest, account.Balance().Currency)
	if err != nil {
		return nil, err
	}
	description := fmt.Sprintf("Interest for %s", windowStart.Format("January 2006"))
	credit, err := domain.NewInterestCredit(account.ID(), amount, windowEnd, description)
	if err != nil {
		return nil, err
	}
	if err := account.CreditInterest(credit); err != nil {
		return nil, err
	}

	uow := j.uowFactory.NewUnitOfWork()
	uow.RegisterDirty(account)
	if _, err := uow.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit interest credit: %w", err)
	}
	return credit, nil
}

// annualRate returns the yearly rate for a product given its average daily
// balance. Unknown products earn nothing.
func annualRate(accountType domain.AccountType, balance decimal.Decimal) decimal.Decimal {
	switch accountType {
	case domain.AccountSavings:
		if balance.GreaterThanOrEqual(savingsRateThreshold) {
			return rateSavingsHigh
		}
		return rateSavingsLow
	case domain.AccountChecking:
		return rateChecking
	case domain.AccountFixedDeposit:
		return rateFixedDeposit
	default:
		return decimal.Zero
	}
}

// monthWindow returns the calendar-month window containing t:
// [1st 00:00:00, last day 23:59:59] in UTC.
func monthWindow(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0).Add(-time.Second)
	return start, end
}
