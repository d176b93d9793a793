// Package chunkindex implements the chunk index (C7): a content-addressed
// code-chunk table plus a many-per-chunk location table, supporting
// cross-repo deduplication (spec.md §3, §6). Grounded on the teacher's
// internal/storage/database.go sqlx patterns for the SQL half; the optional
// semantic-similarity layer is adapted from internal/storage/vectorstore.go's
// qdrantVectorStore.
package chunkindex

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// HashChunk returns sha256(content) hex, the chunk table's primary key.
func HashChunk(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Chunk is one row of code_chunks (spec.md §6).
type Chunk struct {
	ContentHash      string  `db:"content_hash"`
	EntityType       string  `db:"entity_type"`
	EntityName       string  `db:"entity_name"`
	Language         string  `db:"language"`
	WordCount        int     `db:"word_count"`
	ComplexityScore  *int    `db:"complexity_score"`
	IsPublic         bool    `db:"is_public"`
	HasTests         bool    `db:"has_tests"`
	IsTestCode       bool    `db:"is_test_code"`
	IssueCount       int     `db:"issue_count"`
	CreatedAt        int64   `db:"created_at"`
	UpdatedAt        int64   `db:"updated_at"`
	LastAnalyzed     *int64  `db:"last_analyzed"`
}

// Location is one row of chunk_locations: ties a chunk to a concrete
// position in a concrete repo.
type Location struct {
	ID           int64  `db:"id"`
	ContentHash  string `db:"content_hash"`
	RepoID       int64  `db:"repo_id"`
	FilePath     string `db:"file_path"`
	StartLine    int    `db:"start_line"`
	EndLine      int    `db:"end_line"`
	EntityName   string `db:"entity_name"`
	CreatedAt    int64  `db:"created_at"`
}

// Index is the chunk-index store.
type Index struct {
	db *sqlx.DB
}

// New wraps a SQLite connection in the chunk index.
func New(db *sqlx.DB) *Index {
	return &Index{db: db}
}

// Upsert writes (or refreshes metadata for) a chunk and records one location
// for it. Re-indexing the same (content_hash, repo_id, file_path,
// start_line) is idempotent by construction (UNIQUE constraint, spec.md §6).
func (idx *Index) Upsert(ctx context.Context, chunk Chunk, loc Location) error {
	tx, err := idx.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chunk upsert tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const chunkQuery = `
		INSERT INTO code_chunks (
			content_hash, entity_type, entity_name, language, word_count,
			complexity_score, is_public, has_tests, is_test_code, issue_count,
			created_at, updated_at, last_analyzed
		) VALUES (
			:content_hash, :entity_type, :entity_name, :language, :word_count,
			:complexity_score, :is_public, :has_tests, :is_test_code, :issue_count,
			unixepoch(), unixepoch(), :last_analyzed
		)
		ON CONFLICT (content_hash) DO UPDATE SET
			issue_count = excluded.issue_count,
			complexity_score = excluded.complexity_score,
			updated_at = excluded.updated_at,
			last_analyzed = excluded.last_analyzed`

	if _, err := tx.NamedExecContext(ctx, chunkQuery, chunk); err != nil {
		return fmt.Errorf("upsert chunk %s: %w", chunk.ContentHash, err)
	}

	const locQuery = `
		INSERT INTO chunk_locations (content_hash, repo_id, file_path, start_line, end_line, entity_name, created_at)
		VALUES (:content_hash, :repo_id, :file_path, :start_line, :end_line, :entity_name, unixepoch())
		ON CONFLICT (content_hash, repo_id, file_path, start_line) DO UPDATE SET
			end_line = excluded.end_line,
			entity_name = excluded.entity_name`

	if _, err := tx.NamedExecContext(ctx, locQuery, loc); err != nil {
		return fmt.Errorf("upsert chunk location for %s in repo %d: %w", loc.FilePath, loc.RepoID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chunk upsert: %w", err)
	}
	return nil
}

// GetChunk looks up chunk metadata by content hash.
func (idx *Index) GetChunk(ctx context.Context, contentHash string) (*Chunk, error) {
	var c Chunk
	const query = `SELECT * FROM code_chunks WHERE content_hash = ?`
	if err := idx.db.GetContext(ctx, &c, query, contentHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chunk %s: %w", contentHash, err)
	}
	return &c, nil
}

// CrossRepoDuplicate reports a chunk whose locations span more than one
// repo_id (GLOSSARY: "Cross-repo duplicate").
type CrossRepoDuplicate struct {
	ContentHash string
	RepoIDs     []int64
	Locations   []Location
}

// FindCrossRepoDuplicates returns every chunk currently located in more than
// one distinct repo_id.
func (idx *Index) FindCrossRepoDuplicates(ctx context.Context) ([]CrossRepoDuplicate, error) {
	const hashQuery = `
		SELECT content_hash FROM chunk_locations
		GROUP BY content_hash
		HAVING COUNT(DISTINCT repo_id) > 1`

	var hashes []string
	if err := idx.db.SelectContext(ctx, &hashes, hashQuery); err != nil {
		return nil, fmt.Errorf("find cross-repo duplicate hashes: %w", err)
	}

	out := make([]CrossRepoDuplicate, 0, len(hashes))
	for _, hash := range hashes {
		var locs []Location
		const locQuery = `SELECT * FROM chunk_locations WHERE content_hash = ? ORDER BY repo_id, file_path`
		if err := idx.db.SelectContext(ctx, &locs, locQuery, hash); err != nil {
			return nil, fmt.Errorf("load locations for duplicate chunk %s: %w", hash, err)
		}

		seen := map[int64]struct{}{}
		var repoIDs []int64
		for _, l := range locs {
			if _, ok := seen[l.RepoID]; !ok {
				seen[l.RepoID] = struct{}{}
				repoIDs = append(repoIDs, l.RepoID)
			}
		}
		out = append(out, CrossRepoDuplicate{ContentHash: hash, RepoIDs: repoIDs, Locations: locs})
	}
	return out, nil
}

// LocationsFor returns every known location for a chunk, across all repos.
func (idx *Index) LocationsFor(ctx context.Context, contentHash string) ([]Location, error) {
	var locs []Location
	const query = `SELECT * FROM chunk_locations WHERE content_hash = ? ORDER BY repo_id, file_path`
	if err := idx.db.SelectContext(ctx, &locs, query, contentHash); err != nil {
		return nil, fmt.Errorf("load locations for chunk %s: %w", contentHash, err)
	}
	return locs, nil
}

// ToPayloadSnippet mirrors a chunk's metadata into the shape the review
// synthesizer's prompt builder consumes when flagging duplication.
func ToPayloadSnippet(c Chunk, dup CrossRepoDuplicate) string {
	return fmt.Sprintf("%s (%s) duplicated across %d repos", c.EntityName, c.EntityType, len(dup.RepoIDs))
}
