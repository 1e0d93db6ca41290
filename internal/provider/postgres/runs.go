package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dwsmith1983/ledgerlens/internal/provider"
	"github.com/dwsmith1983/ledgerlens/pkg/types"
)

var runColumns = []string{
	"run_id", "status", "evaluated_at", "churn_threshold_days",
	"components", "error", "started_at", "finished_at",
}

// PutRun upserts a run record into the ledger.
func (s *Store) PutRun(ctx context.Context, run types.RunRecord) error {
	components, err := json.Marshal(run.Components)
	if err != nil {
		return fmt.Errorf("marshal run components: %w", err)
	}
	var errMsg *string
	if run.Error != "" {
		errMsg = &run.Error
	}
	query, args, err := psql.Insert("ledgerlens_runs").
		Columns(runColumns...).
		Values(run.RunID, string(run.Status), run.EvaluatedAt, run.ChurnThresholdDays,
			components, errMsg, run.StartedAt, run.FinishedAt).
		Suffix(`ON CONFLICT (run_id) DO UPDATE SET
			status      = EXCLUDED.status,
			components  = EXCLUDED.components,
			error       = EXCLUDED.error,
			finished_at = EXCLUDED.finished_at,
			updated_at  = NOW()`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build run upsert: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert run %s: %w", run.RunID, err)
	}
	return nil
}

// GetRun returns one run record.
func (s *Store) GetRun(ctx context.Context, runID string) (*types.RunRecord, error) {
	query, args, err := psql.Select(runColumns...).
		From("ledgerlens_runs").
		Where("run_id = ?", runID).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build run query: %w", err)
	}
	run, err := scanRun(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("run %q: %w", runID, provider.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return run, nil
}

// ListRuns returns up to limit run records, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]types.RunRecord, error) {
	b := psql.Select(runColumns...).
		From("ledgerlens_runs").
		OrderBy("started_at DESC", "run_id DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build runs query: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []types.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

func scanRun(row pgx.Row) (*types.RunRecord, error) {
	var (
		run        types.RunRecord
		status     string
		components []byte
		errMsg     *string
		finished   *time.Time
	)
	if err := row.Scan(&run.RunID, &status, &run.EvaluatedAt, &run.ChurnThresholdDays,
		&components, &errMsg, &run.StartedAt, &finished); err != nil {
		return nil, err
	}
	run.Status = types.RunStatus(status)
	run.EvaluatedAt = run.EvaluatedAt.UTC()
	run.StartedAt = run.StartedAt.UTC()
	if finished != nil {
		f := finished.UTC()
		run.FinishedAt = &f
	}
	if errMsg != nil {
		run.Error = *errMsg
	}
	if len(components) > 0 {
		if err := json.Unmarshal(components, &run.Components); err != nil {
			return nil, fmt.Errorf("unmarshal run components: %w", err)
		}
	}
	return &run, nil
}

// AcquireLock takes key for ttl. An expired holder is replaced.
func (s *Store) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO ledgerlens_locks (lock_key, expires_at)
		VALUES ($1, NOW() + $2::interval)
		ON CONFLICT (lock_key) DO UPDATE SET expires_at = EXCLUDED.expires_at
		WHERE ledgerlens_locks.expires_at < NOW()
	`, key, fmt.Sprintf("%d milliseconds", ttl.Milliseconds()))
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseLock drops key.
func (s *Store) ReleaseLock(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM ledgerlens_locks WHERE lock_key = $1", key); err != nil {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}
