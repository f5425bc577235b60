package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBackend implements the Backend interface using PostgreSQL with pgx.
type PostgresBackend struct {
	pool  *pgxpool.Pool
	queue *writeQueue
}

var recordColumns = []string{
	"namespace", "target_kind", "target_name", "model", "mode", "query_name",
	"requested_at", "failed", "prompt_tokens", "completion_tokens", "total_tokens", "latency_ms",
}

// NewPostgresBackend creates a new PostgreSQL-backed persistence layer.
// The backend must be started with Start() before use.
func NewPostgresBackend(dsn string, cfg BackendConfig) (*PostgresBackend, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := ensurePostgresSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	b := &PostgresBackend{pool: pool, queue: newWriteQueue(cfg)}
	b.queue.write = b.writeBatch
	b.queue.cleanup = b.Cleanup
	return b, nil
}

func ensurePostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS usage_records (
		id BIGSERIAL PRIMARY KEY,
		namespace TEXT NOT NULL DEFAULT '',
		target_kind TEXT NOT NULL,
		target_name TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		mode TEXT NOT NULL DEFAULT '',
		query_name TEXT NOT NULL DEFAULT '',
		requested_at TIMESTAMPTZ NOT NULL,
		failed BOOLEAN NOT NULL DEFAULT FALSE,
		prompt_tokens BIGINT NOT NULL DEFAULT 0,
		completion_tokens BIGINT NOT NULL DEFAULT 0,
		total_tokens BIGINT NOT NULL DEFAULT 0,
		latency_ms BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_usage_requested_at ON usage_records(requested_at);
	CREATE INDEX IF NOT EXISTS idx_usage_target ON usage_records(target_kind, target_name);
	`)
	return err
}

func (b *PostgresBackend) Start() error {
	b.queue.start()
	return nil
}

func (b *PostgresBackend) Stop() error {
	if b == nil {
		return nil
	}
	b.queue.stop()
	b.pool.Close()
	return nil
}

func (b *PostgresBackend) Enqueue(record Record) {
	if b == nil {
		return
	}
	b.queue.enqueue(record)
}

func (b *PostgresBackend) Flush(ctx context.Context) error {
	if b == nil {
		return nil
	}
	return b.queue.flush(ctx)
}

func (b *PostgresBackend) QueryGlobalStats(ctx context.Context, since time.Time) (*AggregatedStats, error) {
	row := b.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE NOT failed),
			COUNT(*) FILTER (WHERE failed),
			COUNT(*) FILTER (WHERE mode = 'stream'),
			COALESCE(SUM(total_tokens), 0)::BIGINT
		FROM usage_records
		WHERE requested_at >= $1
	`, since)

	var stats AggregatedStats
	if err := row.Scan(&stats.TotalRequests, &stats.SuccessCount, &stats.FailureCount, &stats.StreamedCount, &stats.TotalTokens); err != nil {
		return nil, fmt.Errorf("failed to query global stats: %w", err)
	}
	return &stats, nil
}

func (b *PostgresBackend) QueryDailyStats(ctx context.Context, since time.Time) ([]DailyStats, error) {
	rows, err := b.pool.Query(ctx, `
		SELECT
			TO_CHAR(DATE(requested_at AT TIME ZONE 'UTC'), 'YYYY-MM-DD') as day,
			COUNT(*) as requests,
			COALESCE(SUM(total_tokens), 0)::BIGINT as tokens
		FROM usage_records
		WHERE requested_at >= $1
		GROUP BY day
		ORDER BY day
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily stats: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (DailyStats, error) {
		var d DailyStats
		err := row.Scan(&d.Day, &d.Requests, &d.Tokens)
		return d, err
	})
}

func (b *PostgresBackend) QueryHourlyStats(ctx context.Context, since time.Time) ([]HourlyStats, error) {
	rows, err := b.pool.Query(ctx, `
		SELECT
			EXTRACT(HOUR FROM requested_at AT TIME ZONE 'UTC')::INTEGER as hour,
			COUNT(*) as requests,
			COALESCE(SUM(total_tokens), 0)::BIGINT as tokens
		FROM usage_records
		WHERE requested_at >= $1
		GROUP BY hour
		ORDER BY hour
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query hourly stats: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (HourlyStats, error) {
		var h HourlyStats
		err := row.Scan(&h.Hour, &h.Requests, &h.Tokens)
		return h, err
	})
}

func (b *PostgresBackend) QueryTargetStats(ctx context.Context, since time.Time) ([]TargetStats, error) {
	rows, err := b.pool.Query(ctx, `
		SELECT
			target_kind,
			target_name,
			COUNT(*) as requests,
			COUNT(*) FILTER (WHERE NOT failed),
			COUNT(*) FILTER (WHERE failed),
			COUNT(*) FILTER (WHERE mode = 'stream'),
			COALESCE(SUM(prompt_tokens), 0)::BIGINT,
			COALESCE(SUM(completion_tokens), 0)::BIGINT,
			COALESCE(SUM(total_tokens), 0)::BIGINT,
			COALESCE(AVG(latency_ms), 0)::DOUBLE PRECISION
		FROM usage_records
		WHERE requested_at >= $1
		GROUP BY target_kind, target_name
		ORDER BY requests DESC, target_kind, target_name
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query target stats: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TargetStats, error) {
		var ts TargetStats
		err := row.Scan(
			&ts.Kind, &ts.Name, &ts.Requests, &ts.SuccessCount, &ts.FailureCount, &ts.StreamedCount,
			&ts.PromptTokens, &ts.CompletionTokens, &ts.TotalTokens, &ts.AvgLatencyMs,
		)
		return ts, err
	})
}

func (b *PostgresBackend) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	result, err := b.pool.Exec(ctx, `DELETE FROM usage_records WHERE requested_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// writeBatch writes a batch of records using CopyFrom.
func (b *PostgresBackend) writeBatch(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	_, err := b.pool.CopyFrom(
		ctx,
		pgx.Identifier{"usage_records"},
		recordColumns,
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			r := records[i]
			return []any{
				r.Namespace, r.TargetKind, r.TargetName, r.Model, r.Mode, r.QueryName,
				r.RequestedAt, r.Failed, r.PromptTokens, r.CompletionTokens, r.TotalTokens,
				r.Latency.Milliseconds(),
			}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to copy records: %w", err)
	}
	return nil
}
