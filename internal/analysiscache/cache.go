// Package analysiscache implements the analysis cache (C4): a
// content-addressed store of prior LLM analyses, opened fresh per scan from
// the repo's own sidecar location (spec.md §3 Ownership), grounded on
// original_source/src/cache.rs's per-project sidecar-cache idiom but backed
// by SQLite/sqlx to match the rest of the persistence stack.
package analysiscache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/sevigo/audit-scanner/internal/core"
)

// SidecarDirName mirrors original_source/src/cache.rs's CACHE_DIR constant.
const SidecarDirName = ".audit-cache"

// Cache is a per-repo content-addressed analysis store.
type Cache struct {
	db *sqlx.DB
}

// Open opens (creating if absent) the sidecar cache database under
// repoPath/.audit-cache/cache.db.
func Open(repoPath string) (*Cache, error) {
	dir := filepath.Join(repoPath, SidecarDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir %s: %w", dir, err)
	}

	dsn := filepath.Join(dir, "cache.db")
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open analysis cache %s: %w", dsn, err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate analysis cache schema: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close releases the sidecar database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS analyses (
	file_path    TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	provider     TEXT NOT NULL,
	model        TEXT NOT NULL,
	analysis     TEXT NOT NULL,
	tokens_used  INTEGER NOT NULL DEFAULT 0,
	analysis_type TEXT NOT NULL DEFAULT 'refactor',
	created_at   INTEGER NOT NULL,
	PRIMARY KEY (file_path, content_hash, provider, model)
);`

// HashContent returns the sha256 hex digest of content, the cache key's
// change-detection component.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Get looks up a cached analysis by (file_path, content hash, provider,
// model). A changed content hash is a cache miss by construction — the old
// row simply never matches (spec.md §3: "cache is stale iff content hash
// differs").
func (c *Cache) Get(ctx context.Context, filePath, content, provider, model string) (*core.AnalysisPayload, bool, error) {
	hash := HashContent(content)

	var row struct {
		Analysis     string `db:"analysis"`
		TokensUsed   int    `db:"tokens_used"`
		AnalysisType string `db:"analysis_type"`
		CreatedAt    int64  `db:"created_at"`
	}

	const query = `SELECT analysis, tokens_used, analysis_type, created_at FROM analyses
		WHERE file_path = ? AND content_hash = ? AND provider = ? AND model = ?`
	err := c.db.GetContext(ctx, &row, query, filePath, hash, provider, model)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get cached analysis for %s: %w", filePath, err)
	}

	var payload core.AnalysisPayload
	if err := json.Unmarshal([]byte(row.Analysis), &payload); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached analysis for %s: %w", filePath, err)
	}
	payload.FilePath = filePath
	payload.TokensUsed = row.TokensUsed
	payload.AnalysisType = row.AnalysisType
	payload.CreatedAt = time.Unix(row.CreatedAt, 0).UTC()

	return &payload, true, nil
}

// Set writes (or overwrites) a cached analysis.
func (c *Cache) Set(ctx context.Context, filePath, content, provider, model string, payload core.AnalysisPayload) error {
	hash := HashContent(content)

	analysisJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal analysis for %s: %w", filePath, err)
	}

	const query = `INSERT INTO analyses (file_path, content_hash, provider, model, analysis, tokens_used, analysis_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, unixepoch())
		ON CONFLICT (file_path, content_hash, provider, model)
		DO UPDATE SET analysis = excluded.analysis, tokens_used = excluded.tokens_used, created_at = excluded.created_at`

	analysisType := payload.AnalysisType
	if analysisType == "" {
		analysisType = "refactor"
	}

	if _, err := c.db.ExecContext(ctx, query, filePath, hash, provider, model, string(analysisJSON), payload.TokensUsed, analysisType); err != nil {
		return fmt.Errorf("write cached analysis for %s: %w", filePath, err)
	}
	return nil
}

// RefactorEntry is one row read back by the project-review synthesizer
// (C11), which only cares about refactor-type entries (spec.md §4.6 step 1).
type RefactorEntry struct {
	FilePath string
	Payload  core.AnalysisPayload
}

// AllRefactorEntries loads every refactor-type cached analysis, regardless
// of content hash freshness — the synthesizer reviews whatever was last
// analyzed.
func (c *Cache) AllRefactorEntries(ctx context.Context) ([]RefactorEntry, error) {
	rows, err := c.db.QueryxContext(ctx, `SELECT file_path, analysis, tokens_used FROM analyses WHERE analysis_type = 'refactor'`)
	if err != nil {
		return nil, fmt.Errorf("list refactor entries: %w", err)
	}
	defer rows.Close()

	var out []RefactorEntry
	for rows.Next() {
		var filePath, analysisJSON string
		var tokensUsed int
		if err := rows.Scan(&filePath, &analysisJSON, &tokensUsed); err != nil {
			return nil, fmt.Errorf("scan refactor entry: %w", err)
		}
		var payload core.AnalysisPayload
		if err := json.Unmarshal([]byte(analysisJSON), &payload); err != nil {
			continue // a malformed cache row should not sink the whole review
		}
		payload.FilePath = filePath
		payload.TokensUsed = tokensUsed
		out = append(out, RefactorEntry{FilePath: filePath, Payload: payload})
	}
	return out, rows.Err()
}
