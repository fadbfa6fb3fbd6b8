// Package scheduler is a durable background job runtime on SQLite. Jobs are
// rows; workers claim them with optimistic updates, so any number of workers
// can share one database without a broker. Recurring jobs carry a cron
// expression and are materialized into ordinary jobs when they come due.
package scheduler

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/plaenen/corebank/pkg/idgen"
	"github.com/plaenen/corebank/pkg/store/sqlite/migrate"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// State is the lifecycle state of a job row.
type State string

const (
	StateEnqueued   State = "enqueued"
	StateProcessing State = "processing"
	StateSucceeded  State = "succeeded"
	StateDead       State = "dead"
)

// Queue names in priority order. Workers drain critical before default
// before low.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// Job is one unit of background work.
type Job struct {
	ID          string
	Type        string
	Queue       string
	Payload     []byte
	State       State
	RunAt       time.Time
	Attempts    int
	MaxAttempts int
	LastError   string
	EnqueuedAt  time.Time
	FinishedAt  *time.Time
	RecurringID string
}

// UnmarshalPayload decodes the job payload into v.
func (j *Job) UnmarshalPayload(v any) error {
	if len(j.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(j.Payload, v)
}

// Handler executes one job. Returning an error re-enqueues the job until its
// attempt budget runs out.
type Handler func(ctx context.Context, job *Job) error

// Scheduler owns the job tables and the worker pool. It implements
// runner.Service.
type Scheduler struct {
	db     *sql.DB
	logger *slog.Logger
	tracer trace.Tracer
	clock  func() time.Time

	serverID     string
	hostname     string
	workerCount  int
	queues       []string
	pollInterval time.Duration
	invisibility time.Duration
	retryBackoff time.Duration
	maxAttempts  int
	cronParser   cron.Parser

	mu       sync.RWMutex
	handlers map[string]Handler

	stopCh chan struct{}
	wg     sync.WaitGroup
}

type schedulerConfig struct {
	logger       *slog.Logger
	tracer       trace.Tracer
	clock        func() time.Time
	workerCount  int
	queues       []string
	pollInterval time.Duration
	invisibility time.Duration
	retryBackoff time.Duration
	maxAttempts  int
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*schedulerConfig)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) SchedulerOption {
	return func(c *schedulerConfig) { c.logger = logger }
}

// WithTracer sets the tracer for per-job spans.
func WithTracer(tracer trace.Tracer) SchedulerOption {
	return func(c *schedulerConfig) { c.tracer = tracer }
}

// WithClock overrides the time source. Tests use this to pin "now".
func WithClock(clock func() time.Time) SchedulerOption {
	return func(c *schedulerConfig) { c.clock = clock }
}

// WithWorkerCount sets the number of concurrent workers. Default is 5.
func WithWorkerCount(n int) SchedulerOption {
	return func(c *schedulerConfig) { c.workerCount = n }
}

// WithQueues sets the queues this instance drains, in priority order.
// Default is critical, default, low.
func WithQueues(queues ...string) SchedulerOption {
	return func(c *schedulerConfig) { c.queues = queues }
}

// WithPollInterval sets how often idle workers look for work. Default is
// one second.
func WithPollInterval(d time.Duration) SchedulerOption {
	return func(c *schedulerConfig) { c.pollInterval = d }
}

// WithInvisibilityTimeout sets how long a claimed job stays invisible before
// the reaper hands it back. Default is 5 minutes.
func WithInvisibilityTimeout(d time.Duration) SchedulerOption {
	return func(c *schedulerConfig) { c.invisibility = d }
}

// WithRetryBackoff sets the base delay before a failed job runs again; the
// delay grows linearly with the attempt count. Default is 30 seconds.
func WithRetryBackoff(d time.Duration) SchedulerOption {
	return func(c *schedulerConfig) { c.retryBackoff = d }
}

// WithMaxAttempts sets the default attempt budget for new jobs. Default is 3.
func WithMaxAttempts(n int) SchedulerOption {
	return func(c *schedulerConfig) { c.maxAttempts = n }
}

// New creates a scheduler over db and runs its schema migrations. The
// scheduler keeps its own migration table so it can share a database with
// the banking store.
func New(db *sql.DB, opts ...SchedulerOption) (*Scheduler, error) {
	config := schedulerConfig{
		logger:       slog.Default(),
		tracer:       noop.NewTracerProvider().Tracer("scheduler"),
		clock:        time.Now,
		workerCount:  5,
		queues:       []string{QueueCritical, QueueDefault, QueueLow},
		pollInterval: time.Second,
		invisibility: 5 * time.Minute,
		retryBackoff: 30 * time.Second,
		maxAttempts:  3,
	}
	for _, opt := range opts {
		opt(&config)
	}

	m := migrate.New(db, "scheduler_schema_migrations")
	if err := m.LoadFromFS(migrationsFS, "migrations"); err != nil {
		return nil, fmt.Errorf("failed to load scheduler migrations: %w", err)
	}
	if err := m.Up(); err != nil {
		return nil, fmt.Errorf("failed to run scheduler migrations: %w", err)
	}

	hostname, _ := os.Hostname()

	return &Scheduler{
		db:           db,
		logger:       config.logger,
		tracer:       config.tracer,
		clock:        config.clock,
		serverID:     idgen.NewSortableID(),
		hostname:     hostname,
		workerCount:  config.workerCount,
		queues:       config.queues,
		pollInterval: config.pollInterval,
		invisibility: config.invisibility,
		retryBackoff: config.retryBackoff,
		maxAttempts:  config.maxAttempts,
		cronParser: cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		handlers: make(map[string]Handler),
	}, nil
}

// RegisterHandler binds a job type to its handler. Jobs of an unregistered
// type fail their attempt and eventually go dead.
func (s *Scheduler) RegisterHandler(jobType string, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[jobType] = handler
}

func (s *Scheduler) handler(jobType string) (Handler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[jobType]
	return h, ok
}
