// Command corebank runs the banking core: the command/query pipeline over a
// SQLite store, the outbox relay and the scheduled job runtime, composed
// under one service runner.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/plaenen/corebank/pkg/banking"
	"github.com/plaenen/corebank/pkg/config"
	"github.com/plaenen/corebank/pkg/cqrs"
	"github.com/plaenen/corebank/pkg/domain"
	"github.com/plaenen/corebank/pkg/jobs"
	"github.com/plaenen/corebank/pkg/messaging"
	"github.com/plaenen/corebank/pkg/middleware"
	natssink "github.com/plaenen/corebank/pkg/nats"
	"github.com/plaenen/corebank/pkg/outbox"
	"github.com/plaenen/corebank/pkg/runner"
	"github.com/plaenen/corebank/pkg/scheduler"
	sqlitestore "github.com/plaenen/corebank/pkg/store/sqlite"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(context.Background(), logger); err != nil {
		logger.Error("corebank exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := sqlitestore.New(
		sqlitestore.WithDSN(cfg.Database.DSN),
	)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	tracer := otel.Tracer("corebank")

	// Command pipeline. Recovery wraps everything; validation runs last so
	// a rejected command is still logged with its outcome.
	dispatcher := messaging.NewDispatcher(logger)
	bus := cqrs.NewBus(cqrs.WithDispatcher(dispatcher))
	bus.Use(middleware.Recovery(logger))
	bus.Use(middleware.Logging(logger))
	bus.Use(middleware.Tracing(tracer))
	bus.Use(middleware.Validation())

	service := banking.NewService(store.Customers(), store.Accounts(),
		store.Transactions(), store)
	service.Register(bus)

	// External sink: NATS JetStream when configured, otherwise the relay
	// just acknowledges against the log.
	var sink messaging.EventSink
	if cfg.Nats.URL != "" {
		natsCfg := natssink.DefaultConfig()
		natsCfg.URL = cfg.Nats.URL
		if cfg.Nats.Stream != "" {
			natsCfg.StreamName = cfg.Nats.Stream
		}
		sink, err = natssink.NewSink(natsCfg)
		if err != nil {
			return fmt.Errorf("failed to connect event sink: %w", err)
		}
	} else {
		sink = messaging.NewLogSink(logger)
	}
	defer sink.Close()

	relay := outbox.NewRelay(store.Outbox(), sink,
		outbox.WithPollInterval(cfg.Outbox.PollInterval),
		outbox.WithBatchSize(cfg.Outbox.BatchSize),
		outbox.WithMaxRetries(cfg.Outbox.MaxRetries),
		outbox.WithLogger(logger),
		outbox.WithTracer(tracer),
	)

	sched, err := scheduler.New(store.DB(),
		scheduler.WithLogger(logger),
		scheduler.WithTracer(tracer),
		scheduler.WithWorkerCount(cfg.Scheduler.WorkerCount),
		scheduler.WithMaxAttempts(cfg.Scheduler.RetryAttempts),
	)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	email := &logEmailService{logger: logger}
	handlers := jobs.NewHandlers(
		jobs.NewStatementJob(store.Accounts(), store.Customers(),
			store.Transactions(), &textStatementRenderer{}, email, logger),
		jobs.NewInterestJob(store.Accounts(), store.Transactions(), store, logger),
		jobs.NewMaintenanceJob(store.Accounts(), store.Transactions(), logger),
		email, logger,
	)
	if err := handlers.Register(ctx, sched, cfg.Scheduler.Jobs); err != nil {
		return fmt.Errorf("failed to register jobs: %w", err)
	}

	r := runner.New(
		[]runner.Service{relay, sched},
		runner.WithLogger(runner.NewSlogLogger(logger)),
	)
	return r.Run(ctx)
}

// logEmailService stands in for a real mail provider: notifications are
// logged, never sent. Delivery integration lives outside the core.
type logEmailService struct {
	logger *slog.Logger
}

func (s *logEmailService) SendStatementNotification(ctx context.Context, email, fullName string, statementDate time.Time, artifact []byte) error {
	s.logger.InfoContext(ctx, "statement notification",
		"email", email,
		"statement_date", statementDate.Format("2006-01-02"),
		"artifact_bytes", len(artifact))
	return nil
}

func (s *logEmailService) SendJobFailureAlert(ctx context.Context, subject, message, details string) error {
	s.logger.ErrorContext(ctx, "job failure alert",
		"subject", subject, "message", message, "details", details)
	return nil
}

func (s *logEmailService) SendCriticalAlert(ctx context.Context, subject, message, details string) error {
	s.logger.ErrorContext(ctx, "critical alert",
		"subject", subject, "message", message, "details", details)
	return nil
}

// textStatementRenderer produces a plain-text statement. PDF rendering is a
// deployment concern behind the same interface.
type textStatementRenderer struct{}

func (textStatementRenderer) RenderAccountStatement(ctx context.Context, summary jobs.AccountSummary, transactions []*domain.Transaction, start, end time.Time) ([]byte, error) {
	out := fmt.Sprintf("Statement for account %s (%s)\nPeriod %s to %s\nClosing balance %s\n\n",
		summary.AccountNumber, summary.AccountType,
		start.Format("2006-01-02"), end.Format("2006-01-02"),
		summary.Balance)
	for _, tx := range transactions {
		out += fmt.Sprintf("%s  %-14s %12s  %s  %s\n",
			tx.Timestamp().Format("2006-01-02"),
			tx.Type(), tx.Amount(), tx.Reference(), tx.Description())
	}
	return []byte(out), nil
}
