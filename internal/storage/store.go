// Package storage implements the repository fleet table, the checkpoint
// store (C6), and the scan_events log, rewritten from the teacher's
// Postgres-backed Store onto SQLite (spec.md §6 names SQLite explicitly).
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sevigo/audit-scanner/internal/core"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the persistence contract the orchestrator depends on.
//
//go:generate mockgen -destination=../../mocks/mock_store.go -package=mocks github.com/sevigo/audit-scanner/internal/storage Store
type Store interface {
	GetAutoScanRepositories(ctx context.Context) ([]*core.Repository, error)
	GetRepository(ctx context.Context, id int64) (*core.Repository, error)
	UpdateRepositoryPath(ctx context.Context, id int64, path string) error
	ClearReviewRequested(ctx context.Context, id int64) error
	StartScan(ctx context.Context, id int64, startedAt int64) error
	UpdateScanProgress(ctx context.Context, id int64, processed int, currentFile string, costAccumulated float64, cacheHits, apiCalls int) error
	CompleteScan(ctx context.Context, id int64, headSHA string, budgetHalted bool, analyzedAt int64) error
	FailScan(ctx context.Context, id int64) error
	SetLastScanCheck(ctx context.Context, id int64, checkedAt int64) error

	GetCheckpoint(ctx context.Context, repoID int64) (*core.ScanCheckpoint, error)
	UpsertCheckpoint(ctx context.Context, cp core.ScanCheckpoint) error
	DeleteCheckpoint(ctx context.Context, repoID int64) error

	LogScanEvent(ctx context.Context, repoID int64, eventType, message string) error
	CreateTask(ctx context.Context, task core.Task) error
}

type store struct {
	db *sqlx.DB
}

// NewStore wraps a SQLite connection in the Store contract.
func NewStore(db *sqlx.DB) Store {
	return &store{db: db}
}

func (s *store) GetAutoScanRepositories(ctx context.Context) ([]*core.Repository, error) {
	const query = `SELECT * FROM repositories WHERE auto_scan = 1 ORDER BY name ASC`
	var repos []*core.Repository
	if err := s.db.SelectContext(ctx, &repos, query); err != nil {
		return nil, fmt.Errorf("list auto-scan repositories: %w", err)
	}
	return repos, nil
}

func (s *store) GetRepository(ctx context.Context, id int64) (*core.Repository, error) {
	const query = `SELECT * FROM repositories WHERE id = ?`
	var repo core.Repository
	if err := s.db.GetContext(ctx, &repo, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get repository %d: %w", id, err)
	}
	return &repo, nil
}

func (s *store) UpdateRepositoryPath(ctx context.Context, id int64, path string) error {
	const query = `UPDATE repositories SET path = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	_, err := s.db.ExecContext(ctx, query, path, id)
	if err != nil {
		return fmt.Errorf("update repository path %d: %w", id, err)
	}
	return nil
}

// ClearReviewRequested atomically clears the on-demand review bypass flag
// (spec.md §4.5: "clear the flag atomically").
func (s *store) ClearReviewRequested(ctx context.Context, id int64) error {
	const query = `UPDATE repositories SET review_requested = 0 WHERE id = ?`
	_, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("clear review_requested for repo %d: %w", id, err)
	}
	return nil
}

func (s *store) StartScan(ctx context.Context, id int64, startedAt int64) error {
	const query = `UPDATE repositories SET scan_started_at = ?, scan_files_processed = 0,
		scan_cost_accumulated = 0, scan_cache_hits = 0, scan_api_calls = 0, scan_current_file = NULL
		WHERE id = ?`
	_, err := s.db.ExecContext(ctx, query, startedAt, id)
	if err != nil {
		return fmt.Errorf("start scan for repo %d: %w", id, err)
	}
	return nil
}

func (s *store) UpdateScanProgress(ctx context.Context, id int64, processed int, currentFile string, costAccumulated float64, cacheHits, apiCalls int) error {
	const query = `UPDATE repositories SET scan_files_processed = ?, scan_current_file = ?,
		scan_cost_accumulated = ?, scan_cache_hits = ?, scan_api_calls = ? WHERE id = ?`
	_, err := s.db.ExecContext(ctx, query, processed, currentFile, costAccumulated, cacheHits, apiCalls, id)
	if err != nil {
		return fmt.Errorf("update scan progress for repo %d: %w", id, err)
	}
	return nil
}

// CompleteScan implements the commit-hash commit rule (P3, spec.md §4.5):
// last_commit_hash advances only when the scan was not budget-halted.
func (s *store) CompleteScan(ctx context.Context, id int64, headSHA string, budgetHalted bool, analyzedAt int64) error {
	if budgetHalted {
		const query = `UPDATE repositories SET last_analyzed = ?, scan_started_at = NULL WHERE id = ?`
		_, err := s.db.ExecContext(ctx, query, analyzedAt, id)
		if err != nil {
			return fmt.Errorf("complete budget-halted scan for repo %d: %w", id, err)
		}
		return nil
	}

	const query = `UPDATE repositories SET last_commit_hash = ?, last_analyzed = ?, scan_started_at = NULL WHERE id = ?`
	_, err := s.db.ExecContext(ctx, query, headSHA, analyzedAt, id)
	if err != nil {
		return fmt.Errorf("complete scan for repo %d: %w", id, err)
	}
	return nil
}

func (s *store) FailScan(ctx context.Context, id int64) error {
	const query = `UPDATE repositories SET scan_started_at = NULL WHERE id = ?`
	_, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("mark scan failed for repo %d: %w", id, err)
	}
	return nil
}

func (s *store) SetLastScanCheck(ctx context.Context, id int64, checkedAt int64) error {
	const query = `UPDATE repositories SET last_scan_check = ? WHERE id = ?`
	_, err := s.db.ExecContext(ctx, query, checkedAt, id)
	if err != nil {
		return fmt.Errorf("set last_scan_check for repo %d: %w", id, err)
	}
	return nil
}

// GetCheckpoint returns ErrNotFound when no checkpoint row exists, which the
// caller treats the same as an invalidated checkpoint.
func (s *store) GetCheckpoint(ctx context.Context, repoID int64) (*core.ScanCheckpoint, error) {
	const query = `SELECT * FROM scan_checkpoints WHERE repo_id = ?`
	var cp core.ScanCheckpoint
	if err := s.db.GetContext(ctx, &cp, query, repoID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get checkpoint for repo %d: %w", repoID, err)
	}
	return &cp, nil
}

// UpsertCheckpoint is idempotent on repo_id (spec.md §5: "Checkpoint writes
// are idempotent").
func (s *store) UpsertCheckpoint(ctx context.Context, cp core.ScanCheckpoint) error {
	const query = `
		INSERT INTO scan_checkpoints (repo_id, last_completed_index, last_completed_file,
			files_analyzed, files_cached, cumulative_cost, total_files, updated_at)
		VALUES (:repo_id, :last_completed_index, :last_completed_file,
			:files_analyzed, :files_cached, :cumulative_cost, :total_files, unixepoch())
		ON CONFLICT (repo_id) DO UPDATE SET
			last_completed_index = excluded.last_completed_index,
			last_completed_file = excluded.last_completed_file,
			files_analyzed = excluded.files_analyzed,
			files_cached = excluded.files_cached,
			cumulative_cost = excluded.cumulative_cost,
			total_files = excluded.total_files,
			updated_at = excluded.updated_at`

	if _, err := s.db.NamedExecContext(ctx, query, cp); err != nil {
		return fmt.Errorf("upsert checkpoint for repo %d: %w", cp.RepoID, err)
	}
	return nil
}

func (s *store) DeleteCheckpoint(ctx context.Context, repoID int64) error {
	const query = `DELETE FROM scan_checkpoints WHERE repo_id = ?`
	if _, err := s.db.ExecContext(ctx, query, repoID); err != nil {
		return fmt.Errorf("delete checkpoint for repo %d: %w", repoID, err)
	}
	return nil
}

// LogScanEvent appends to scan_events, the named-helper sink spec.md §6
// describes ("the core only calls named helpers").
func (s *store) LogScanEvent(ctx context.Context, repoID int64, eventType, message string) error {
	const query = `INSERT INTO scan_events (repo_id, event_type, message, created_at) VALUES (?, ?, ?, unixepoch())`
	if _, err := s.db.ExecContext(ctx, query, repoID, eventType, message); err != nil {
		return fmt.Errorf("log scan event %s for repo %d: %w", eventType, repoID, err)
	}
	return nil
}

// CreateTask inserts one project-review-synthesized task into the external
// task queue (spec.md §4.6 step 7). The queue table itself is owned by
// external collaborators, same as repositories; the core only ever appends.
func (s *store) CreateTask(ctx context.Context, task core.Task) error {
	const query = `
		INSERT INTO tasks (title, description, priority, source_tag, source_repo, first_file, created_at)
		VALUES (:title, :description, :priority, :source_tag, :source_repo, :first_file, unixepoch())`
	if _, err := s.db.NamedExecContext(ctx, query, task); err != nil {
		return fmt.Errorf("create task %q: %w", task.Title, err)
	}
	return nil
}
