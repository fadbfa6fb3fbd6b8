package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ServerInfo describes a live scheduler instance.
type ServerInfo struct {
	ID          string
	Hostname    string
	Queues      []string
	WorkerCount int
	StartedAt   time.Time
	HeartbeatAt time.Time
}

// RecurringInfo describes a registered recurring job.
type RecurringInfo struct {
	ID           string
	JobType      string
	Queue        string
	CronExpr     string
	NextRun      time.Time
	LastEnqueued *time.Time
}

// CountsByState returns how many jobs sit in each lifecycle state. This is
// the dashboard's headline number.
func (s *Scheduler) CountsByState(ctx context.Context) (map[State]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT state, COUNT(*) FROM jobs GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[State]int)
	for rows.Next() {
		var (
			state string
			n     int
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("failed to scan job counts: %w", err)
		}
		counts[State(state)] = n
	}
	return counts, rows.Err()
}

// History returns finished jobs, most recent first.
func (s *Scheduler) History(ctx context.Context, limit int) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_type, queue, payload, state, run_at, attempts,
			max_attempts, last_error, enqueued_at, finished_at, recurring_id
		FROM jobs
		WHERE state IN (?, ?)
		ORDER BY finished_at DESC, id DESC
		LIMIT ?`,
		string(StateSucceeded), string(StateDead), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query job history: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// DeadJobs returns jobs that exhausted their attempts, most recent first.
func (s *Scheduler) DeadJobs(ctx context.Context, limit int) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_type, queue, payload, state, run_at, attempts,
			max_attempts, last_error, enqueued_at, finished_at, recurring_id
		FROM jobs
		WHERE state = ?
		ORDER BY finished_at DESC, id DESC
		LIMIT ?`,
		string(StateDead), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query dead jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// RetryDead gives a dead job a fresh attempt budget and puts it back on the
// queue.
func (s *Scheduler) RetryDead(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET state = ?, attempts = 0, run_at = ?, finished_at = NULL, last_error = ''
		WHERE id = ? AND state = ?`,
		string(StateEnqueued), s.clock().Unix(), jobID, string(StateDead))
	if err != nil {
		return fmt.Errorf("failed to retry dead job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("job %s is not dead or does not exist", jobID)
	}
	return nil
}

// RecurringJobs lists every recurring registration.
func (s *Scheduler) RecurringJobs(ctx context.Context) ([]RecurringInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_type, queue, cron_expr, next_run, last_enqueued
		FROM recurring_jobs
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query recurring jobs: %w", err)
	}
	defer rows.Close()

	var infos []RecurringInfo
	for rows.Next() {
		var (
			info         RecurringInfo
			nextRun      int64
			lastEnqueued *int64
		)
		if err := rows.Scan(&info.ID, &info.JobType, &info.Queue,
			&info.CronExpr, &nextRun, &lastEnqueued); err != nil {
			return nil, fmt.Errorf("failed to scan recurring job: %w", err)
		}
		info.NextRun = time.Unix(nextRun, 0).UTC()
		if lastEnqueued != nil {
			t := time.Unix(*lastEnqueued, 0).UTC()
			info.LastEnqueued = &t
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// Servers lists the scheduler instances that registered against this
// database and have not deregistered.
func (s *Scheduler) Servers(ctx context.Context) ([]ServerInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, hostname, queues, worker_count, started_at, heartbeat_at
		FROM scheduler_servers
		ORDER BY started_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query scheduler servers: %w", err)
	}
	defer rows.Close()

	var servers []ServerInfo
	for rows.Next() {
		var (
			info        ServerInfo
			queues      string
			startedAt   int64
			heartbeatAt int64
		)
		if err := rows.Scan(&info.ID, &info.Hostname, &queues,
			&info.WorkerCount, &startedAt, &heartbeatAt); err != nil {
			return nil, fmt.Errorf("failed to scan scheduler server: %w", err)
		}
		info.Queues = strings.Split(queues, ",")
		info.StartedAt = time.Unix(startedAt, 0).UTC()
		info.HeartbeatAt = time.Unix(heartbeatAt, 0).UTC()
		servers = append(servers, info)
	}
	return servers, rows.Err()
}
