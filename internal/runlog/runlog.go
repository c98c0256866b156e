// internal/runlog/runlog.go

// Package runlog keeps a Postgres ledger of finished sync runs.
package runlog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github-index-sync/internal/model"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store reads and writes the sync_runs table.
type Store struct {
	db DBTX
}

// New creates a new Store.
func New(db DBTX) *Store {
	return &Store{db: db}
}

const recordRun = `
INSERT INTO sync_runs (id, sync_type, owner, repo, status, pages, documents, error, started_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// RecordRun inserts one finished run.
func (s *Store) RecordRun(ctx context.Context, run model.Run) error {
	_, err := s.db.Exec(ctx, recordRun,
		run.ID,
		string(run.Type),
		run.Owner,
		run.Repo,
		string(run.Status),
		run.Pages,
		run.Documents,
		run.Error,
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}
	return nil
}

const listRecentRuns = `
SELECT id::text, sync_type, owner, repo, status, pages, documents, error, started_at, finished_at
FROM sync_runs
ORDER BY started_at DESC
LIMIT $1`

// ListRecentRuns returns the newest runs first.
func (s *Store) ListRecentRuns(ctx context.Context, limit int) ([]model.Run, error) {
	rows, err := s.db.Query(ctx, listRecentRuns, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []model.Run{}
	for rows.Next() {
		var (
			run              model.Run
			syncType, status string
		)
		if err := rows.Scan(
			&run.ID,
			&syncType,
			&run.Owner,
			&run.Repo,
			&status,
			&run.Pages,
			&run.Documents,
			&run.Error,
			&run.StartedAt,
			&run.FinishedAt,
		); err != nil {
			return nil, err
		}
		run.Type = model.SyncType(syncType)
		run.Status = model.RunStatus(status)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
