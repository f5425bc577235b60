// Package usage records one entry per chat completion and persists them in
// batches to SQLite or PostgreSQL.
package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/nghyane/query-gateway/internal/config"
)

// Backend defines the persistence contract for usage records.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Enqueue adds a record to the write queue without blocking.
	Enqueue(record Record)

	// Flush forces pending records to be written to storage.
	Flush(ctx context.Context) error

	QueryGlobalStats(ctx context.Context, since time.Time) (*AggregatedStats, error)
	QueryDailyStats(ctx context.Context, since time.Time) ([]DailyStats, error)
	QueryHourlyStats(ctx context.Context, since time.Time) ([]HourlyStats, error)

	// QueryTargetStats returns per-target statistics since the given time.
	QueryTargetStats(ctx context.Context, since time.Time) ([]TargetStats, error)

	// Cleanup removes records older than the given time.
	Cleanup(ctx context.Context, before time.Time) (int64, error)

	// Start begins background workers (write loop, cleanup loop).
	Start() error

	// Stop gracefully shuts down the backend, flushing pending writes.
	Stop() error
}

// BackendConfig holds parameters for backend initialization.
type BackendConfig struct {
	// DSN is the database connection string (sqlite://... or postgres://...).
	DSN string

	BatchSize     int
	FlushInterval time.Duration
	RetentionDays int
}

// BackendConfigFrom converts the usage section of the gateway config.
func BackendConfigFrom(cfg config.UsageConfig) BackendConfig {
	out := BackendConfig{
		DSN:           cfg.DSN,
		BatchSize:     cfg.BatchSize,
		RetentionDays: cfg.RetentionDays,
	}
	if cfg.FlushInterval != "" {
		if d, err := time.ParseDuration(cfg.FlushInterval); err == nil {
			out.FlushInterval = d
		}
	}
	return out
}

// NewBackend creates the appropriate backend based on DSN configuration.
func NewBackend(cfg BackendConfig) (Backend, error) {
	parsed, err := config.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}
	if parsed == nil {
		return nil, fmt.Errorf("DSN is required (use sqlite:// or postgres://)")
	}

	switch parsed.Backend {
	case "postgres":
		return NewPostgresBackend(parsed.URL, cfg)
	case "sqlite":
		return NewSQLiteBackend(parsed.Path, cfg)
	default:
		return nil, fmt.Errorf("unknown backend type: %q", parsed.Backend)
	}
}
