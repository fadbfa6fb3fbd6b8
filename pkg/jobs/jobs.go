// Package jobs implements the scheduled background work of the banking core:
// daily statement generation, monthly interest accrual and weekly account
// maintenance. Outbound side effects (email, statement rendering) sit behind
// interfaces; delivery is someone else's problem.
package jobs

import (
	"context"
	"time"

	"github.com/plaenen/corebank/pkg/domain"
)

// Job type tags as stored on job rows.
const (
	JobTypeDailyStatements = "statements.daily"
	JobTypeMonthlyInterest = "interest.monthly"
	JobTypeMaintenance     = "maintenance.weekly"
)

// Recurring registration ids. Stable across restarts so boot-time
// registration upserts instead of duplicating.
const (
	RecurringDailyStatements = "DailyStatementGeneration"
	RecurringMonthlyInterest = "MonthlyInterestCalculation"
	RecurringMaintenance     = "AccountCleanup"
)

// Default cron expressions for the recurring set.
const (
	CronDailyStatements = "0 2 * * *"
	CronMonthlyInterest = "0 1 1 * *"
	CronMaintenance     = "0 0 * * 0"
)

// AccountSummary is the statement header handed to the renderer.
type AccountSummary struct {
	AccountNumber domain.AccountNumber
	AccountType   domain.AccountType
	HolderName    string
	Balance       domain.Money
}

// EmailService sends outbound mail. Failures are logged by the caller and
// never retried here.
type EmailService interface {
	SendStatementNotification(ctx context.Context, email, fullName string, statementDate time.Time, artifact []byte) error
	SendJobFailureAlert(ctx context.Context, subject, message, details string) error
	SendCriticalAlert(ctx context.Context, subject, message, details string) error
}

// StatementRenderer turns an account's period activity into a statement
// artifact.
type StatementRenderer interface {
	RenderAccountStatement(ctx context.Context, summary AccountSummary, transactions []*domain.Transaction, start, end time.Time) ([]byte, error)
}
