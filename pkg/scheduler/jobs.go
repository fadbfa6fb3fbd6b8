package scheduler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/plaenen/corebank/pkg/domain"
	"github.com/plaenen/corebank/pkg/idgen"
)

// Enqueue inserts a one-shot job that becomes runnable at runAt. The payload
// is JSON-serialized; pass nil for payload-free jobs.
func (s *Scheduler) Enqueue(ctx context.Context, jobType, queue string, payload any, runAt time.Time) (string, error) {
	body, err := marshalPayload(payload)
	if err != nil {
		return "", err
	}

	id := idgen.NewSortableID()
	now := s.clock()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, job_type, queue, payload, state, run_at,
			max_attempts, enqueued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, jobType, queue, string(body), string(StateEnqueued),
		runAt.Unix(), s.maxAttempts, now.Unix())
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}
	return id, nil
}

// Schedule registers (or updates) a recurring job. The call is an idempotent
// upsert keyed by id, so boot-time registration can run on every start.
func (s *Scheduler) Schedule(ctx context.Context, id, jobType, queue, cronExpr string, payload any) error {
	schedule, err := s.cronParser.Parse(cronExpr)
	if err != nil {
		return fmt.Errorf("%w: invalid cron expression %q: %v", domain.ErrValidation, cronExpr, err)
	}

	body, err := marshalPayload(payload)
	if err != nil {
		return err
	}

	now := s.clock()
	nextRun := schedule.Next(now)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO recurring_jobs (id, job_type, queue, cron_expr, payload,
			next_run, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			job_type = excluded.job_type,
			queue = excluded.queue,
			cron_expr = excluded.cron_expr,
			payload = excluded.payload,
			next_run = excluded.next_run,
			updated_at = excluded.updated_at`,
		id, jobType, queue, cronExpr, string(body),
		nextRun.Unix(), now.Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("failed to schedule recurring job: %w", err)
	}
	return nil
}

// Delete removes a job by id: a one-shot row leaves the queue unless a
// worker is mid-flight on it, a recurring id drops the registration. It
// reports whether anything was removed.
func (s *Scheduler) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM jobs WHERE id = ? AND state != ?`,
		id, string(StateProcessing))
	if err != nil {
		return false, fmt.Errorf("failed to delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete job: %w", err)
	}
	if affected > 0 {
		return true, nil
	}

	res, err = s.db.ExecContext(ctx, `DELETE FROM recurring_jobs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete recurring job: %w", err)
	}
	affected, err = res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete recurring job: %w", err)
	}
	return affected > 0, nil
}

// DeleteRecurring removes a recurring registration. Jobs already enqueued
// from it are untouched.
func (s *Scheduler) DeleteRecurring(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM recurring_jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete recurring job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete recurring job: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: recurring job %s", domain.ErrNotFound, id)
	}
	return nil
}

// Trigger enqueues a recurring job immediately, outside its cron cadence.
func (s *Scheduler) Trigger(ctx context.Context, recurringID string) (string, error) {
	var (
		jobType string
		queue   string
		payload string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT job_type, queue, payload FROM recurring_jobs WHERE id = ?`,
		recurringID).Scan(&jobType, &queue, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: recurring job %s", domain.ErrNotFound, recurringID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to load recurring job: %w", err)
	}

	now := s.clock()
	id := idgen.NewSortableID()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, job_type, queue, payload, state, run_at,
			max_attempts, enqueued_at, recurring_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, jobType, queue, payload, string(StateEnqueued),
		now.Unix(), s.maxAttempts, now.Unix(), recurringID)
	if err != nil {
		return "", fmt.Errorf("failed to trigger recurring job: %w", err)
	}
	return id, nil
}

// enqueueDueRecurring materializes every recurring job whose next_run has
// passed, then advances next_run per its cron expression.
func (s *Scheduler) enqueueDueRecurring(ctx context.Context) error {
	now := s.clock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_type, queue, cron_expr, payload
		FROM recurring_jobs
		WHERE next_run <= ?`, now.Unix())
	if err != nil {
		return fmt.Errorf("failed to query due recurring jobs: %w", err)
	}

	type due struct {
		id       string
		jobType  string
		queue    string
		cronExpr string
		payload  string
	}
	var dues []due
	for rows.Next() {
		var d due
		if err := rows.Scan(&d.id, &d.jobType, &d.queue, &d.cronExpr, &d.payload); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan recurring job: %w", err)
		}
		dues = append(dues, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, d := range dues {
		schedule, err := s.cronParser.Parse(d.cronExpr)
		if err != nil {
			s.logger.Error("recurring job has invalid cron expression",
				"recurring_id", d.id, "cron", d.cronExpr, "error", err)
			continue
		}
		nextRun := schedule.Next(now)

		// Advance next_run first with an optimistic guard: if another
		// instance already advanced it, skip the enqueue.
		res, err := s.db.ExecContext(ctx, `
			UPDATE recurring_jobs
			SET next_run = ?, last_enqueued = ?, updated_at = ?
			WHERE id = ? AND next_run <= ?`,
			nextRun.Unix(), now.Unix(), now.Unix(), d.id, now.Unix())
		if err != nil {
			return fmt.Errorf("failed to advance recurring job: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			continue
		}

		id := idgen.NewSortableID()
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO jobs (id, job_type, queue, payload, state, run_at,
				max_attempts, enqueued_at, recurring_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, d.jobType, d.queue, d.payload, string(StateEnqueued),
			now.Unix(), s.maxAttempts, now.Unix(), d.id); err != nil {
			return fmt.Errorf("failed to enqueue recurring job %s: %w", d.id, err)
		}

		s.logger.Info("recurring job enqueued",
			"recurring_id", d.id, "job_type", d.jobType, "job_id", id)
	}
	return nil
}

// claimNext picks the oldest runnable job, respecting queue priority. The
// claim is an optimistic UPDATE; losing the race just means trying the next
// candidate on the following poll.
func (s *Scheduler) claimNext(ctx context.Context) (*Job, error) {
	now := s.clock()

	for _, queue := range s.queues {
		var id string
		err := s.db.QueryRowContext(ctx, `
			SELECT id FROM jobs
			WHERE state = ? AND queue = ? AND run_at <= ?
			ORDER BY run_at, id
			LIMIT 1`, string(StateEnqueued), queue, now.Unix()).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to find runnable job: %w", err)
		}

		res, err := s.db.ExecContext(ctx, `
			UPDATE jobs
			SET state = ?, attempts = attempts + 1, invisible_until = ?, claimed_by = ?
			WHERE id = ? AND state = ?`,
			string(StateProcessing), now.Add(s.invisibility).Unix(), s.serverID,
			id, string(StateEnqueued))
		if err != nil {
			return nil, fmt.Errorf("failed to claim job: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			// Another worker won the claim.
			continue
		}

		return s.loadJob(ctx, id)
	}
	return nil, nil
}

// markSucceeded finishes a job.
func (s *Scheduler) markSucceeded(ctx context.Context, job *Job) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET state = ?, finished_at = ?, invisible_until = NULL, last_error = ''
		WHERE id = ?`,
		string(StateSucceeded), s.clock().Unix(), job.ID)
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}
	return nil
}

// markFailed records a failed attempt: back to the queue with a linear
// backoff while budget remains, dead otherwise.
func (s *Scheduler) markFailed(ctx context.Context, job *Job, jobErr error) error {
	now := s.clock()

	if job.Attempts >= job.MaxAttempts {
		_, err := s.db.ExecContext(ctx, `
			UPDATE jobs
			SET state = ?, finished_at = ?, invisible_until = NULL, last_error = ?
			WHERE id = ?`,
			string(StateDead), now.Unix(), jobErr.Error(), job.ID)
		if err != nil {
			return fmt.Errorf("failed to bury job: %w", err)
		}
		s.logger.Error("job exhausted its attempts",
			"job_id", job.ID, "job_type", job.Type,
			"attempts", job.Attempts, "error", jobErr)
		return nil
	}

	runAt := now.Add(time.Duration(job.Attempts) * s.retryBackoff)
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET state = ?, run_at = ?, invisible_until = NULL, last_error = ?
		WHERE id = ?`,
		string(StateEnqueued), runAt.Unix(), jobErr.Error(), job.ID)
	if err != nil {
		return fmt.Errorf("failed to re-enqueue job: %w", err)
	}
	return nil
}

// reapExpired returns jobs whose invisibility deadline passed to the queue.
// This is how work survives a worker crash.
func (s *Scheduler) reapExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET state = ?, invisible_until = NULL, claimed_by = NULL
		WHERE state = ? AND invisible_until < ?`,
		string(StateEnqueued), string(StateProcessing), s.clock().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to reap expired jobs: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *Scheduler) loadJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, job_type, queue, payload, state, run_at, attempts,
			max_attempts, last_error, enqueued_at, finished_at, recurring_id
		FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job         Job
		payload     string
		state       string
		runAt       int64
		enqueuedAt  int64
		finishedAt  sql.NullInt64
		recurringID sql.NullString
	)
	err := row.Scan(&job.ID, &job.Type, &job.Queue, &payload, &state, &runAt,
		&job.Attempts, &job.MaxAttempts, &job.LastError, &enqueuedAt,
		&finishedAt, &recurringID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: job", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	job.Payload = []byte(payload)
	job.State = State(state)
	job.RunAt = time.Unix(runAt, 0).UTC()
	job.EnqueuedAt = time.Unix(enqueuedAt, 0).UTC()
	if finishedAt.Valid {
		t := time.Unix(finishedAt.Int64, 0).UTC()
		job.FinishedAt = &t
	}
	job.RecurringID = recurringID.String
	return &job, nil
}

func marshalPayload(payload any) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize job payload: %w", err)
	}
	return body, nil
}
