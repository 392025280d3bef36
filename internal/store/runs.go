package store

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/JonMunkholm/bulkimport/internal/core"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const insertRunSQL = `INSERT INTO import_runs (
		id, doc_type, file_name, state, severity, total, success, failed, skipped,
		error, client_ip, user_agent, started_at, finished_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	ON CONFLICT (id) DO NOTHING`

const selectRunsSQL = `SELECT id, doc_type, file_name, state, severity, total, success, failed,
		skipped, error, client_ip, user_agent, started_at, finished_at
	FROM import_runs`

// RecordRun inserts a finished run. Recording the same run twice is a no-op.
func (s *Store) RecordRun(ctx context.Context, run core.ImportRun) error {
	id, err := uuid.Parse(run.ID)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", run.ID, err)
	}

	_, err = s.pool.Exec(ctx, insertRunSQL,
		pgtype.UUID{Bytes: id, Valid: true},
		run.DocType,
		toPgText(run.FileName),
		string(run.State),
		string(run.Severity),
		run.Total,
		run.Success,
		run.Failed,
		run.Skipped,
		toPgText(run.Error),
		parseClientIP(run.ClientIP),
		toPgText(run.UserAgent),
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert import run: %w", err)
	}
	return nil
}

// ListRuns returns runs newest first.
func (s *Store) ListRuns(ctx context.Context, filter core.RunFilter) ([]core.ImportRun, error) {
	if filter.Limit <= 0 {
		filter.Limit = core.DefaultHistoryLimit
	}

	query := selectRunsSQL
	args := []any{}
	if filter.DocType != "" {
		query += " WHERE doc_type = $1"
		args = append(args, filter.DocType)
	}
	query += fmt.Sprintf(" ORDER BY finished_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query import runs: %w", err)
	}
	defer rows.Close()

	runs := make([]core.ImportRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// PurgeRuns deletes runs that finished before olderThan.
func (s *Store) PurgeRuns(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM import_runs WHERE finished_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("purge import runs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanRun(rows pgx.Rows) (core.ImportRun, error) {
	var (
		id        pgtype.UUID
		run       core.ImportRun
		state     string
		severity  string
		fileName  pgtype.Text
		runErr    pgtype.Text
		clientIP  *netip.Addr
		userAgent pgtype.Text
	)

	err := rows.Scan(
		&id, &run.DocType, &fileName, &state, &severity,
		&run.Total, &run.Success, &run.Failed, &run.Skipped,
		&runErr, &clientIP, &userAgent, &run.StartedAt, &run.FinishedAt,
	)
	if err != nil {
		return core.ImportRun{}, fmt.Errorf("scan import run: %w", err)
	}

	if id.Valid {
		run.ID = uuid.UUID(id.Bytes).String()
	}
	run.State = core.JobState(state)
	run.Severity = core.RunSeverity(severity)
	run.FileName = fileName.String
	run.Error = runErr.String
	run.UserAgent = userAgent.String
	if clientIP != nil {
		run.ClientIP = clientIP.String()
	}
	return run, nil
}

func toPgText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

// parseClientIP strips a port if present. Unparseable addresses are stored as NULL.
func parseClientIP(s string) *netip.Addr {
	if s == "" {
		return nil
	}
	host := s
	if h, _, err := net.SplitHostPort(s); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return nil
	}
	return &addr
}
