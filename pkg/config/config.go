// Package config loads runtime configuration from CB_-prefixed environment
// variables. Secret-bearing values may be stored encrypted and resolved
// through a Go Cloud secrets keeper at load time.
package config

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gocloud.dev/secrets"
	// Keeper drivers are opt-in. Import the ones your deployment uses:
	// _ "gocloud.dev/secrets/awskms"
	// _ "gocloud.dev/secrets/gcpkms"
	// _ "gocloud.dev/secrets/hashivault"
	// _ "gocloud.dev/secrets/localsecrets"
)

// EnvPrefix is prepended to every configuration variable name.
const EnvPrefix = "CB_"

// SecretScheme marks a value that must be decrypted through a secrets
// keeper. Format: secret+<keeper-url>#<base64-ciphertext>.
const SecretScheme = "secret+"

// Config is the full runtime configuration.
type Config struct {
	Database  DatabaseConfig
	Outbox    OutboxConfig
	Scheduler SchedulerConfig
	Nats      NatsConfig
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	// DSN is the database path or connection string. Required.
	DSN string
}

// OutboxConfig configures the relay.
type OutboxConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxRetries   int
}

// SchedulerConfig configures the job runtime.
type SchedulerConfig struct {
	WorkerCount   int
	RetryAttempts int

	// Jobs maps recurring ids to cron expression overrides,
	// e.g. CB_SCHEDULER_JOBS="DailyStatementGeneration=30 3 * * *;AccountCleanup=0 1 * * 6".
	Jobs map[string]string
}

// NatsConfig configures the optional external event sink. An empty URL
// disables it.
type NatsConfig struct {
	URL    string
	Stream string
}

// Load reads configuration from the environment and resolves secret values.
func Load(ctx context.Context) (*Config, error) {
	cfg := &Config{
		Outbox: OutboxConfig{
			PollInterval: 30 * time.Second,
			BatchSize:    20,
			MaxRetries:   3,
		},
		Scheduler: SchedulerConfig{
			WorkerCount:   5,
			RetryAttempts: 3,
			Jobs:          map[string]string{},
		},
	}

	dsn := getenv("DATABASE_DSN")
	if dsn == "" {
		return nil, fmt.Errorf("%sDATABASE_DSN is required", EnvPrefix)
	}
	resolved, err := ResolveSecret(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database DSN: %w", err)
	}
	cfg.Database.DSN = resolved

	if err := parseDuration("OUTBOX_POLL_INTERVAL", &cfg.Outbox.PollInterval); err != nil {
		return nil, err
	}
	if err := parseInt("OUTBOX_BATCH_SIZE", &cfg.Outbox.BatchSize); err != nil {
		return nil, err
	}
	if err := parseInt("OUTBOX_MAX_RETRIES", &cfg.Outbox.MaxRetries); err != nil {
		return nil, err
	}
	if err := parseInt("SCHEDULER_WORKER_COUNT", &cfg.Scheduler.WorkerCount); err != nil {
		return nil, err
	}
	if err := parseInt("SCHEDULER_RETRY_ATTEMPTS", &cfg.Scheduler.RetryAttempts); err != nil {
		return nil, err
	}

	if raw := getenv("SCHEDULER_JOBS"); raw != "" {
		jobs, err := parseJobOverrides(raw)
		if err != nil {
			return nil, err
		}
		cfg.Scheduler.Jobs = jobs
	}

	cfg.Nats.URL = getenv("NATS_URL")
	cfg.Nats.Stream = getenv("NATS_STREAM")

	return cfg, nil
}

// ResolveSecret returns the value unchanged unless it carries the secret
// scheme, in which case the ciphertext is decrypted through the named
// keeper. The keeper driver must be linked into the binary.
func ResolveSecret(ctx context.Context, value string) (string, error) {
	if !strings.HasPrefix(value, SecretScheme) {
		return value, nil
	}

	rest := strings.TrimPrefix(value, SecretScheme)
	keeperURL, payload, found := strings.Cut(rest, "#")
	if !found || keeperURL == "" || payload == "" {
		return "", fmt.Errorf("malformed secret reference: want %s<keeper-url>#<base64-ciphertext>", SecretScheme)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("secret ciphertext is not valid base64: %w", err)
	}

	keeper, err := secrets.OpenKeeper(ctx, keeperURL)
	if err != nil {
		return "", fmt.Errorf("failed to open secrets keeper: %w", err)
	}
	defer keeper.Close()

	plaintext, err := keeper.Decrypt(ctx, ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt secret: %w", err)
	}
	return string(plaintext), nil
}

// parseJobOverrides parses "id=cron;id=cron" pairs. Cron expressions contain
// spaces, so entries are semicolon-separated.
func parseJobOverrides(raw string) (map[string]string, error) {
	jobs := make(map[string]string)
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, expr, found := strings.Cut(entry, "=")
		if !found || id == "" || expr == "" {
			return nil, fmt.Errorf("malformed job override %q: want id=cron", entry)
		}
		jobs[strings.TrimSpace(id)] = strings.TrimSpace(expr)
	}
	return jobs, nil
}

func getenv(name string) string {
	return os.Getenv(EnvPrefix + name)
}

func parseDuration(name string, out *time.Duration) error {
	raw := getenv(name)
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
	}
	*out = d
	return nil
}

func parseInt(name string, out *int) error {
	raw := getenv(name)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
	}
	*out = n
	return nil
}
