package calllog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists call records in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS call_log (
			id TEXT PRIMARY KEY,
			call_sid TEXT NOT NULL,
			stream_sid TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			ended_at TIMESTAMPTZ,
			end_reason TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_call_log_call_sid ON call_log (call_sid);`,
		`CREATE INDEX IF NOT EXISTS idx_call_log_started ON call_log (started_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) CallStarted(ctx context.Context, record CallRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.StartedAt.IsZero() {
		record.StartedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO call_log (id, call_sid, stream_sid, started_at)
		 VALUES ($1, $2, $3, $4)`,
		record.ID,
		record.CallSID,
		record.StreamSID,
		record.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("record call start: %w", err)
	}
	return nil
}

func (s *PostgresStore) CallEnded(ctx context.Context, callSID, reason string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE call_log SET ended_at = now(), end_reason = $2
		 WHERE call_sid = $1 AND ended_at IS NULL`,
		callSID,
		reason,
	)
	if err != nil {
		return fmt.Errorf("record call end: %w", err)
	}
	return nil
}

func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]CallRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, call_sid, stream_sid, started_at, ended_at, end_reason
		 FROM call_log ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent calls: %w", err)
	}
	defer rows.Close()

	items := make([]CallRecord, 0, limit)
	for rows.Next() {
		var r CallRecord
		var endReason *string
		if err := rows.Scan(&r.ID, &r.CallSID, &r.StreamSID, &r.StartedAt, &r.EndedAt, &endReason); err != nil {
			return nil, fmt.Errorf("scan call row: %w", err)
		}
		if endReason != nil {
			r.EndReason = *endReason
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate call rows: %w", err)
	}

	return items, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
