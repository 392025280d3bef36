// Package store is the PostgreSQL record backend.
//
// Every document type shares one records table keyed by (doc_type,
// natural_key) with the validated fields stored as JSONB. A chunk is written
// in a single transaction with a savepoint around each record, so one bad
// record rolls back alone while the rest of the chunk commits.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements core.Backend and core.ImportLog on a pgx pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Store. A nil logger falls back to slog.Default.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// Pool returns the underlying pool, used by health checks.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS records (
		doc_type    TEXT        NOT NULL,
		natural_key TEXT        NOT NULL,
		data        JSONB       NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (doc_type, natural_key)
	)`,
	`CREATE TABLE IF NOT EXISTS import_runs (
		id          UUID        PRIMARY KEY,
		doc_type    TEXT        NOT NULL,
		file_name   TEXT,
		state       TEXT        NOT NULL,
		severity    TEXT        NOT NULL,
		total       INTEGER     NOT NULL,
		success     INTEGER     NOT NULL,
		failed      INTEGER     NOT NULL,
		skipped     INTEGER     NOT NULL,
		error       TEXT,
		client_ip   INET,
		user_agent  TEXT,
		started_at  TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS import_runs_finished_at_idx ON import_runs (finished_at DESC)`,
	`CREATE INDEX IF NOT EXISTS import_runs_doc_type_idx ON import_runs (doc_type, finished_at DESC)`,
}

// Migrate creates the tables if they do not exist. Safe to run on every start.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	s.logger.Debug("schema migrated", "statements", len(migrations))
	return nil
}
