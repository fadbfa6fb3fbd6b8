// Package sqlite implements the store contracts on SQLite. It uses the pure
// Go driver, so the binary stays CGo-free, and keeps state rows and outbox
// rows in the same database so a unit of work can commit both atomically.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/plaenen/corebank/pkg/store"
	"github.com/plaenen/corebank/pkg/store/sqlite/migrate"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store owns the database handle and hands out repositories bound to it.
type Store struct {
	db    *sql.DB
	mu    sync.RWMutex // Protects concurrent access to the connection pool
	clock func() time.Time
}

type storeConfig struct {
	// dsn is the data source name (file path or ":memory:" for in-memory)
	dsn string

	// maxOpenConns sets the maximum number of open connections
	maxOpenConns int

	// maxIdleConns sets the maximum number of idle connections
	maxIdleConns int

	// walMode enables write-ahead logging for better concurrency
	walMode bool

	// autoMigrate automatically runs pending migrations on startup
	autoMigrate bool

	// clock supplies the current time; overridable in tests
	clock func() time.Time
}

func defaultStoreConfig() storeConfig {
	return storeConfig{
		dsn:          "corebank.db",
		maxOpenConns: 25,
		maxIdleConns: 5,
		walMode:      true,
		autoMigrate:  true,
		clock:        time.Now,
	}
}

// Option is a function that configures a Store.
type Option func(*storeConfig)

// WithDSN sets the data source name (file path or ":memory:" for in-memory).
func WithDSN(dsn string) Option {
	return func(c *storeConfig) {
		c.dsn = dsn
	}
}

// WithMemoryDatabase sets the database to an in-memory database.
func WithMemoryDatabase() Option {
	return func(c *storeConfig) {
		c.dsn = ":memory:"
	}
}

// WithMaxOpenConns sets the maximum number of open connections to the database.
func WithMaxOpenConns(n int) Option {
	return func(c *storeConfig) {
		c.maxOpenConns = n
	}
}

// WithMaxIdleConns sets the maximum number of idle connections in the pool.
func WithMaxIdleConns(n int) Option {
	return func(c *storeConfig) {
		c.maxIdleConns = n
	}
}

// WithWALMode enables write-ahead logging for better concurrency.
// Recommended for production use but not available for :memory: databases.
func WithWALMode(enabled bool) Option {
	return func(c *storeConfig) {
		c.walMode = enabled
	}
}

// WithAutoMigrate enables automatic migration on startup.
func WithAutoMigrate(enabled bool) Option {
	return func(c *storeConfig) {
		c.autoMigrate = enabled
	}
}

// WithClock overrides the time source. Tests use this to pin "now".
func WithClock(clock func() time.Time) Option {
	return func(c *storeConfig) {
		c.clock = clock
	}
}

// New opens (and if needed migrates) a SQLite-backed store.
//
// Example usage:
//
//	// Use defaults (corebank.db, WAL mode, auto-migrate)
//	st, err := sqlite.New()
//
//	// In-memory database for testing
//	st, err := sqlite.New(sqlite.WithMemoryDatabase())
func New(opts ...Option) (*Store, error) {
	config := defaultStoreConfig()
	for _, opt := range opts {
		opt(&config)
	}

	db, err := sql.Open("sqlite", config.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// For :memory: databases we need a single connection; otherwise each
	// connection gets its own isolated in-memory database.
	if config.dsn == ":memory:" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(config.maxOpenConns)
		db.SetMaxIdleConns(config.maxIdleConns)
	}
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, clock: config.clock}

	if config.walMode {
		if err := s.setWALMode(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set WAL mode: %w", err)
		}
	}

	if config.autoMigrate {
		if err := runMigrations(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return s, nil
}

func (s *Store) setWALMode() error {
	_, err := s.db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = NORMAL;
		PRAGMA foreign_keys = ON;
	`)
	return err
}

// runMigrations runs all pending core schema migrations.
func runMigrations(db *sql.DB) error {
	m := migrate.New(db, "corebank_schema_migrations")

	if err := m.LoadFromFS(migrationsFS, "migrations"); err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	if err := m.Up(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// DB exposes the handle for sibling packages (scheduler) that manage their
// own tables in the same database.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Customers returns the customer repository.
func (s *Store) Customers() store.CustomerRepository {
	return &customerRepository{store: s}
}

// Accounts returns the account repository.
func (s *Store) Accounts() store.AccountRepository {
	return &accountRepository{store: s}
}

// Transactions returns the transaction repository.
func (s *Store) Transactions() store.TransactionRepository {
	return &transactionRepository{store: s}
}

// Outbox returns the outbox store.
func (s *Store) Outbox() store.OutboxStore {
	return &outboxStore{store: s}
}

// NewUnitOfWork returns a fresh unit of work bound to this store.
func (s *Store) NewUnitOfWork() store.UnitOfWork {
	return &unitOfWork{store: s}
}

// execer abstracts *sql.DB and *sql.Tx so repository helpers can run inside
// or outside a unit-of-work transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
