package storage_test

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/audit-scanner/internal/core"
	"github.com/sevigo/audit-scanner/internal/storage"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE repositories (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	path TEXT NOT NULL,
	git_url TEXT,
	auto_scan INTEGER NOT NULL DEFAULT 1,
	scan_interval_minutes INTEGER NOT NULL DEFAULT 60,
	last_scan_check INTEGER NOT NULL DEFAULT 0,
	last_commit_hash TEXT,
	review_requested INTEGER NOT NULL DEFAULT 0,
	scan_started_at INTEGER,
	scan_files_processed INTEGER NOT NULL DEFAULT 0,
	scan_current_file TEXT,
	scan_cost_accumulated REAL NOT NULL DEFAULT 0,
	scan_cache_hits INTEGER NOT NULL DEFAULT 0,
	scan_api_calls INTEGER NOT NULL DEFAULT 0,
	last_analyzed INTEGER,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE scan_checkpoints (
	repo_id INTEGER PRIMARY KEY,
	last_completed_index INTEGER NOT NULL DEFAULT 0,
	last_completed_file TEXT,
	files_analyzed INTEGER NOT NULL DEFAULT 0,
	files_cached INTEGER NOT NULL DEFAULT 0,
	cumulative_cost REAL NOT NULL DEFAULT 0,
	total_files INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL
);
CREATE TABLE scan_events (
	id INTEGER PRIMARY KEY,
	repo_id INTEGER NOT NULL,
	event_type TEXT NOT NULL,
	message TEXT,
	created_at INTEGER NOT NULL
);
CREATE TABLE tasks (
	id INTEGER PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT,
	priority INTEGER NOT NULL DEFAULT 3,
	source_tag TEXT,
	source_repo TEXT,
	first_file TEXT,
	created_at INTEGER NOT NULL
);`

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Connect("sqlite", ":memory:")
	require.NoError(t, err)
	_, err = db.Exec(schema)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedRepo(t *testing.T, db *sqlx.DB) int64 {
	t.Helper()
	res, err := db.Exec(`INSERT INTO repositories (name, path) VALUES (?, ?)`, "demo", "/tmp/demo")
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func TestCompleteScan_BudgetHaltedDoesNotAdvanceCommitHash(t *testing.T) {
	db := newTestDB(t)
	s := storage.NewStore(db)
	ctx := context.Background()

	id := seedRepo(t, db)
	require.NoError(t, s.StartScan(ctx, id, 1000))
	require.NoError(t, s.CompleteScan(ctx, id, "deadbeef", true, 1100))

	repo, err := s.GetRepository(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, repo.LastCommitHash)
	assert.Nil(t, repo.ScanStartedAt)
}

func TestCompleteScan_SuccessAdvancesCommitHash(t *testing.T) {
	db := newTestDB(t)
	s := storage.NewStore(db)
	ctx := context.Background()

	id := seedRepo(t, db)
	require.NoError(t, s.StartScan(ctx, id, 1000))
	require.NoError(t, s.CompleteScan(ctx, id, "cafef00d", false, 1100))

	repo, err := s.GetRepository(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, repo.LastCommitHash)
	assert.Equal(t, "cafef00d", *repo.LastCommitHash)
}

func TestCheckpoint_UpsertIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	s := storage.NewStore(db)
	ctx := context.Background()

	id := seedRepo(t, db)
	cp := core.ScanCheckpoint{RepoID: id, LastCompletedIndex: 3, LastCompletedFile: "c.go", TotalFiles: 10}
	require.NoError(t, s.UpsertCheckpoint(ctx, cp))

	cp.LastCompletedIndex = 5
	cp.LastCompletedFile = "e.go"
	require.NoError(t, s.UpsertCheckpoint(ctx, cp))

	got, err := s.GetCheckpoint(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 5, got.LastCompletedIndex)
	assert.Equal(t, "e.go", got.LastCompletedFile)
}

func TestGetCheckpoint_NotFound(t *testing.T) {
	db := newTestDB(t)
	s := storage.NewStore(db)

	_, err := s.GetCheckpoint(context.Background(), 999)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestClearReviewRequested(t *testing.T) {
	db := newTestDB(t)
	s := storage.NewStore(db)
	ctx := context.Background()

	id := seedRepo(t, db)
	_, err := db.Exec(`UPDATE repositories SET review_requested = 1 WHERE id = ?`, id)
	require.NoError(t, err)

	require.NoError(t, s.ClearReviewRequested(ctx, id))

	repo, err := s.GetRepository(ctx, id)
	require.NoError(t, err)
	assert.False(t, repo.ReviewRequested)
}

func TestCreateTask_PersistsPriorityMapping(t *testing.T) {
	db := newTestDB(t)
	s := storage.NewStore(db)
	ctx := context.Background()

	task := core.Task{
		Title:       "Fix inconsistent error handling",
		Description: "...",
		Priority:    1,
		SourceTag:   "project_review",
		SourceRepo:  "demo",
		FirstFile:   "internal/foo.go",
	}
	require.NoError(t, s.CreateTask(ctx, task))

	var count int
	require.NoError(t, db.Get(&count, `SELECT COUNT(*) FROM tasks WHERE priority = 1 AND title = ?`, task.Title))
	assert.Equal(t, 1, count)
}
