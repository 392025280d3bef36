package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/bulkimport/internal/core"
	"github.com/jackc/pgx/v5"
)

const (
	insertRecordSQL = `INSERT INTO records (doc_type, natural_key, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (doc_type, natural_key) DO NOTHING`

	upsertRecordSQL = `INSERT INTO records (doc_type, natural_key, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (doc_type, natural_key)
		DO UPDATE SET data = EXCLUDED.data, updated_at = now()`

	selectRecordSQL = `SELECT data FROM records WHERE doc_type = $1 AND natural_key = $2`
)

// SubmitChunk stores a batch. A record whose key is already stored is
// reported as a conflict unless req.OverrideConflicts is set, in which case
// it replaces the stored one.
func (s *Store) SubmitChunk(ctx context.Context, docType string, req core.ChunkRequest) (core.ChunkResponse, error) {
	def, err := core.Lookup(docType)
	if err != nil {
		return core.ChunkResponse{}, err
	}

	results := core.ChunkResults{
		Total:     len(req.Records),
		Failed:    []core.ChunkFailure{},
		Conflicts: []core.ChunkConflict{},
	}

	// BEGIN TRANSACTION - one per chunk
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return core.ChunkResponse{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	stmt := insertRecordSQL
	if req.OverrideConflicts {
		stmt = upsertRecordSQL
	}

	for i, fields := range req.Records {
		key := def.KeyOf(fields)
		if key == "" {
			results.Failed = append(results.Failed, core.ChunkFailure{
				Index:  i,
				Reason: "missing natural key: " + strings.Join(def.NaturalKey, ", "),
			})
			continue
		}

		// Records are re-checked here since API clients may skip local validation
		if err := core.CheckFields(def, fields); err != nil {
			results.Failed = append(results.Failed, core.ChunkFailure{Index: i, Reason: err.Error()})
			continue
		}

		data, err := json.Marshal(fields)
		if err != nil {
			results.Failed = append(results.Failed, core.ChunkFailure{Index: i, Reason: err.Error()})
			continue
		}

		// Savepoint isolates each insert - PostgreSQL aborts the whole transaction on any error
		savepointName := fmt.Sprintf("sp_%d", i)
		if _, err := tx.Exec(ctx, "SAVEPOINT "+savepointName); err != nil {
			return core.ChunkResponse{}, fmt.Errorf("failed to create savepoint at index %d: %w", i, err)
		}

		tag, err := tx.Exec(ctx, stmt, docType, key, data)
		if err != nil {
			if _, rbErr := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+savepointName); rbErr != nil {
				return core.ChunkResponse{}, fmt.Errorf("failed to rollback savepoint at index %d: %w", i, rbErr)
			}
			results.Failed = append(results.Failed, core.ChunkFailure{
				Index:  i,
				Reason: "db error: " + err.Error(),
			})
			continue
		}

		if _, err := tx.Exec(ctx, "RELEASE SAVEPOINT "+savepointName); err != nil {
			return core.ChunkResponse{}, fmt.Errorf("failed to release savepoint at index %d: %w", i, err)
		}

		if tag.RowsAffected() == 0 {
			results.Conflicts = append(results.Conflicts, core.ChunkConflict{
				Index:      i,
				NaturalKey: key,
				Data:       fields,
			})
			continue
		}
		results.Success++
	}

	if err := tx.Commit(ctx); err != nil {
		return core.ChunkResponse{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug("chunk stored",
		"doc_type", docType,
		"records", results.Total,
		"success", results.Success,
		"failed", len(results.Failed),
		"conflicts", len(results.Conflicts),
	)

	return core.ChunkResponse{
		Success: len(results.Failed) == 0,
		Results: results,
	}, nil
}

// OverrideRecord replaces whatever is stored under naturalKey. The key must
// match the one derived from fields.
func (s *Store) OverrideRecord(ctx context.Context, docType, naturalKey string, fields core.Fields) (core.OverrideResponse, error) {
	def, err := core.Lookup(docType)
	if err != nil {
		return core.OverrideResponse{}, err
	}

	if key := def.KeyOf(fields); key != naturalKey {
		return core.OverrideResponse{
			Error: fmt.Sprintf("natural key %q does not match record key %q", naturalKey, key),
		}, nil
	}
	if err := core.CheckFields(def, fields); err != nil {
		return core.OverrideResponse{Error: err.Error()}, nil
	}

	data, err := json.Marshal(fields)
	if err != nil {
		return core.OverrideResponse{Error: err.Error()}, nil
	}

	if _, err := s.pool.Exec(ctx, upsertRecordSQL, docType, naturalKey, data); err != nil {
		return core.OverrideResponse{Error: "db error: " + err.Error()}, nil
	}

	return core.OverrideResponse{Success: true}, nil
}

// FetchExisting returns the stored record for naturalKey.
func (s *Store) FetchExisting(ctx context.Context, docType, naturalKey string) (core.Fields, bool, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, selectRecordSQL, docType, naturalKey).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("fetch %s/%s: %w", docType, naturalKey, err)
	}

	var fields core.Fields
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, false, fmt.Errorf("decode %s/%s: %w", docType, naturalKey, err)
	}
	return fields, true, nil
}
