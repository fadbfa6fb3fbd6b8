package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/plaenen/corebank/pkg/scheduler"
)

// Handlers binds the job implementations to the scheduler and owns the
// failure-alert policy: a job that exhausts its attempt budget raises an
// email alert.
type Handlers struct {
	statements  *StatementJob
	interest    *InterestJob
	maintenance *MaintenanceJob
	email       EmailService
	logger      *slog.Logger
	clock       func() time.Time
}

// NewHandlers wires the three banking jobs.
func NewHandlers(
	statements *StatementJob,
	interest *InterestJob,
	maintenance *MaintenanceJob,
	email EmailService,
	logger *slog.Logger,
) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		statements:  statements,
		interest:    interest,
		maintenance: maintenance,
		email:       email,
		logger:      logger,
		clock:       time.Now,
	}
}

// Register binds every job type and upserts the recurring set. Cron
// overrides map recurring ids to expressions; missing entries keep the
// defaults.
func (h *Handlers) Register(ctx context.Context, sched *scheduler.Scheduler, cronOverrides map[string]string) error {
	sched.RegisterHandler(JobTypeDailyStatements, h.withAlert(h.runStatements))
	sched.RegisterHandler(JobTypeMonthlyInterest, h.withAlert(h.runInterest))
	sched.RegisterHandler(JobTypeMaintenance, h.withAlert(h.runMaintenance))

	recurring := []struct {
		id      string
		jobType string
		queue   string
		cron    string
	}{
		{RecurringDailyStatements, JobTypeDailyStatements, scheduler.QueueLow, CronDailyStatements},
		{RecurringMonthlyInterest, JobTypeMonthlyInterest, scheduler.QueueDefault, CronMonthlyInterest},
		{RecurringMaintenance, JobTypeMaintenance, scheduler.QueueLow, CronMaintenance},
	}
	for _, r := range recurring {
		expr := r.cron
		if override, ok := cronOverrides[r.id]; ok {
			expr = override
		}
		if err := sched.Schedule(ctx, r.id, r.jobType, r.queue, expr, nil); err != nil {
			return fmt.Errorf("failed to register recurring job %s: %w", r.id, err)
		}
	}
	return nil
}

// withAlert raises an email alert when a job burns its final attempt.
func (h *Handlers) withAlert(run scheduler.Handler) scheduler.Handler {
	return func(ctx context.Context, job *scheduler.Job) error {
		err := run(ctx, job)
		if err == nil || job.Attempts < job.MaxAttempts {
			return err
		}

		subject := fmt.Sprintf("Job %s failed permanently", job.Type)
		details := fmt.Sprintf("job_id=%s attempts=%d error=%v", job.ID, job.Attempts, err)
		if alertErr := h.email.SendJobFailureAlert(ctx, subject, "Background job exhausted its retries", details); alertErr != nil {
			h.logger.Error("failed to send job failure alert",
				"job_id", job.ID, "error", alertErr)
		}
		return err
	}
}

func (h *Handlers) runStatements(ctx context.Context, job *scheduler.Job) error {
	_, err := h.statements.Run(ctx, h.clock().UTC().Truncate(24*time.Hour))
	return err
}

func (h *Handlers) runInterest(ctx context.Context, job *scheduler.Job) error {
	// The job fires on the 1st; interest covers the month just ended.
	_, err := h.interest.Run(ctx, h.clock().UTC().AddDate(0, 0, -1))
	return err
}

func (h *Handlers) runMaintenance(ctx context.Context, job *scheduler.Job) error {
	_, err := h.maintenance.Run(ctx)
	return err
}
