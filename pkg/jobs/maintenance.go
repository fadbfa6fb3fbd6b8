package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/plaenen/corebank/pkg/store"
)

// Default cutoff for the old-transaction report.
const defaultTransactionRetentionYears = 7

// MaintenanceReport summarizes one maintenance run.
type MaintenanceReport struct {
	StatusUpdated   int
	Archived        int
	Failed          int
	OldTransactions int
	Duration        time.Duration
}

// MaintenanceJob performs the weekly account cleanup: idle accounts are
// moved to Inactive, long-dead zero-balance accounts are archived, and old
// transactions are enumerated for the archival report.
type MaintenanceJob struct {
	accounts       store.AccountRepository
	transactions   store.TransactionRepository
	retentionYears int
	logger         *slog.Logger
	clock          func() time.Time
}

// NewMaintenanceJob wires the maintenance job.
func NewMaintenanceJob(
	accounts store.AccountRepository,
	transactions store.TransactionRepository,
	logger *slog.Logger,
) *MaintenanceJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &MaintenanceJob{
		accounts:       accounts,
		transactions:   transactions,
		retentionYears: defaultTransactionRetentionYears,
		logger:         logger,
		clock:          time.Now,
	}
}

// WithClock overrides the time source, used by tests.
func (j *MaintenanceJob) WithClock(clock func() time.Time) *MaintenanceJob {
	j.clock = clock
	return j
}

// WithTransactionRetention sets how many years of transactions stay out of
// the archival report.
func (j *MaintenanceJob) WithTransactionRetention(years int) *MaintenanceJob {
	j.retentionYears = years
	return j
}

// Run executes both maintenance passes in sequence.
func (j *MaintenanceJob) Run(ctx context.Context) (MaintenanceReport, error) {
	start := j.clock()
	now := start.UTC()

	var report MaintenanceReport

	// Pass 1: inactive cleanup. Status rules demote idle accounts at one
	// year; zero-balance accounts idle past three years are archived.
	idleCutoff := now.AddDate(-2, 0, 0)
	archiveCutoff := now.AddDate(-3, 0, 0)

	idle, err := j.accounts.FindInactiveSince(ctx, idleCutoff)
	if err != nil {
		return report, fmt.Errorf("failed to load idle accounts: %w", err)
	}

	for _, account := range idle {
		before := account.Status()
		account.UpdateStatusBasedOnRules(now)

		archive := account.Balance().IsZero() && account.LastActivity().Before(archiveCutoff)
		if archive {
			account.MarkArchived(now)
		}

		if account.Status() == before {
			continue
		}
		if err := j.accounts.Update(ctx, account); err != nil {
			j.logger.Error("account maintenance update failed",
				"account_number", account.Number(),
				"error", err)
			report.Failed++
			continue
		}
		if archive {
			report.Archived++
		} else {
			report.StatusUpdated++
		}
	}

	// Pass 2: old-transaction enumeration. Archival itself happens
	// elsewhere; this run only reports what is due.
	retentionCutoff := now.AddDate(-j.retentionYears, 0, 0)
	old, err := j.transactions.FindOlderThan(ctx, retentionCutoff)
	if err != nil {
		return report, fmt.Errorf("failed to enumerate old transactions: %w", err)
	}
	report.OldTransactions = len(old)

	report.Duration = j.clock().Sub(start)
	j.logger.Info("maintenance run finished",
		"status_updated", report.StatusUpdated,
		"archived", report.Archived,
		"failed", report.Failed,
		"old_transactions", report.OldTransactions,
		"duration_ms", report.Duration.Milliseconds())
	return report, nil
}
