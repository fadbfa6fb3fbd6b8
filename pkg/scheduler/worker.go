package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/plaenen/corebank/pkg/observability"
)

const (
	reapInterval      = 30 * time.Second
	heartbeatInterval = 15 * time.Second
)

// Name implements runner.Service.
func (s *Scheduler) Name() string { return "scheduler" }

// Start registers this server instance and launches the worker pool, the
// recurring-job materializer and the reaper. It returns once everything is
// running.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.registerServer(ctx); err != nil {
		return err
	}

	s.stopCh = make(chan struct{})

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.workerLoop(i)
	}

	s.wg.Add(1)
	go s.recurringLoop()

	s.wg.Add(1)
	go s.reaperLoop()

	s.wg.Add(1)
	go s.heartbeatLoop()

	s.logger.Info("scheduler started",
		"server_id", s.serverID,
		"workers", s.workerCount,
		"queues", strings.Join(s.queues, ","))
	return nil
}

// Stop signals all loops and waits for in-flight jobs to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	close(s.stopCh)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("scheduler shutdown interrupted: %w", ctx.Err())
	}

	if err := s.deregisterServer(context.Background()); err != nil {
		s.logger.Warn("failed to deregister scheduler server", "error", err)
	}

	s.logger.Info("scheduler stopped", "server_id", s.serverID)
	return nil
}

func (s *Scheduler) workerLoop(worker int) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			// Drain until the queues are empty, then go back to polling.
			for {
				claimed, err := s.runNext(context.Background())
				if err != nil {
					s.logger.Error("worker pass failed",
						"worker", worker, "error", err)
					break
				}
				if !claimed {
					break
				}
				select {
				case <-s.stopCh:
					return
				default:
				}
			}
		}
	}
}

// runNext claims and executes at most one job. It reports whether a job was
// claimed so callers know to keep draining.
func (s *Scheduler) runNext(ctx context.Context) (bool, error) {
	job, err := s.claimNext(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	s.runJob(ctx, job)
	return true, nil
}

func (s *Scheduler) runJob(ctx context.Context, job *Job) {
	ctx, span := observability.StartSpan(ctx, s.tracer, "scheduler.job",
		observability.WithAttributes(observability.JobAttrs(job.Type, job.Queue)...),
	)

	start := s.clock()

	handler, ok := s.handler(job.Type)
	if !ok {
		err := fmt.Errorf("no handler registered for job type %s", job.Type)
		if markErr := s.markFailed(ctx, job, err); markErr != nil {
			s.logger.Error("failed to record job failure",
				"job_id", job.ID, "error", markErr)
		}
		observability.EndSpan(span, err)
		return
	}

	err := s.runHandler(ctx, handler, job)
	duration := s.clock().Sub(start)

	if err != nil {
		s.logger.Warn("job failed",
			"job_id", job.ID,
			"job_type", job.Type,
			"attempt", job.Attempts,
			"max_attempts", job.MaxAttempts,
			"duration_ms", duration.Milliseconds(),
			"error", err)
		if markErr := s.markFailed(ctx, job, err); markErr != nil {
			s.logger.Error("failed to record job failure",
				"job_id", job.ID, "error", markErr)
		}
		observability.EndSpan(span, err)
		return
	}

	s.logger.Info("job succeeded",
		"job_id", job.ID,
		"job_type", job.Type,
		"attempt", job.Attempts,
		"duration_ms", duration.Milliseconds())
	if markErr := s.markSucceeded(ctx, job); markErr != nil {
		s.logger.Error("failed to record job success",
			"job_id", job.ID, "error", markErr)
	}
	observability.EndSpan(span, nil)
}

// runHandler isolates handler panics so one bad job cannot take down a
// worker.
func (s *Scheduler) runHandler(ctx context.Context, handler Handler, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panicked: %v", r)
		}
	}()
	return handler(ctx, job)
}

func (s *Scheduler) recurringLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := s.enqueueDueRecurring(context.Background()); err != nil {
				s.logger.Error("recurring job pass failed", "error", err)
			}
		}
	}
}

func (s *Scheduler) reaperLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			reaped, err := s.reapExpired(context.Background())
			if err != nil {
				s.logger.Error("reaper pass failed", "error", err)
				continue
			}
			if reaped > 0 {
				s.logger.Warn("re-enqueued jobs from crashed workers",
					"count", reaped)
			}
		}
	}
}

func (s *Scheduler) heartbeatLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := s.heartbeat(context.Background()); err != nil {
				s.logger.Warn("heartbeat failed", "error", err)
			}
		}
	}
}

func (s *Scheduler) registerServer(ctx context.Context) error {
	now := s.clock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduler_servers (id, hostname, queues, worker_count,
			started_at, heartbeat_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.serverID, s.hostname, strings.Join(s.queues, ","),
		s.workerCount, now.Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("failed to register scheduler server: %w", err)
	}
	return nil
}

func (s *Scheduler) heartbeat(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE scheduler_servers SET heartbeat_at = ? WHERE id = ?`,
		s.clock().Unix(), s.serverID)
	return err
}

func (s *Scheduler) deregisterServer(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM scheduler_servers WHERE id = ?`, s.serverID)
	return err
}
