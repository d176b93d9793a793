package chunkindex

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sevigo/goframe/embeddings"
	"github.com/sevigo/goframe/schema"
	"github.com/sevigo/goframe/vectorstores"
	"github.com/sevigo/goframe/vectorstores/qdrant"

	"github.com/sevigo/audit-scanner/internal/util"
)

// SemanticStore finds near-duplicate chunks whose content hashes differ but
// whose embeddings are close — the optional dedup layer spec.md §3 calls out
// as C7's extension beyond exact-hash matching. Adapted directly from
// internal/storage/vectorstore.go's qdrantVectorStore: same Qdrant-backed
// embedding search, repurposed from RAG document retrieval onto chunk-level
// duplicate discovery.
type SemanticStore struct {
	qdrantHost    string
	embedder      embeddings.Embedder
	embedderModel string
	logger        *slog.Logger
}

// NewSemanticStore wires a fleet-wide Qdrant collection for near-duplicate
// search, scoped to embedderModel: switching embedder models buckets chunks
// into a fresh collection instead of comparing embeddings from two
// incompatible vector spaces.
func NewSemanticStore(qdrantHost string, embedder embeddings.Embedder, embedderModel string, logger *slog.Logger) *SemanticStore {
	return &SemanticStore{qdrantHost: qdrantHost, embedder: embedder, embedderModel: embedderModel, logger: logger}
}

func (s *SemanticStore) collection() (vectorstores.VectorStore, error) {
	if strings.TrimSpace(s.qdrantHost) == "" {
		return nil, fmt.Errorf("qdrant host not configured")
	}
	collectionName := util.GenerateCollectionName("chunk-dedup", s.embedderModel)
	return qdrant.New(
		qdrant.WithHost(s.qdrantHost),
		qdrant.WithEmbedder(s.embedder),
		qdrant.WithCollectionName(collectionName),
		qdrant.WithLogger(s.logger),
	)
}

// IndexChunk embeds and stores one chunk for future near-duplicate lookups.
func (s *SemanticStore) IndexChunk(ctx context.Context, c Chunk, loc Location) error {
	store, err := s.collection()
	if err != nil {
		return fmt.Errorf("get dedup collection: %w", err)
	}

	doc := schema.NewDocument(c.EntityName, map[string]any{
		"content_hash": c.ContentHash,
		"repo_id":      loc.RepoID,
		"file_path":    loc.FilePath,
		"entity_type":  c.EntityType,
		"language":     c.Language,
	})

	if _, err := store.AddDocuments(ctx, []schema.Document{doc}); err != nil {
		return fmt.Errorf("index chunk %s for near-duplicate search: %w", c.ContentHash, err)
	}
	return nil
}

// NearDuplicates returns chunks whose embeddings are close to the query
// entity's name/signature, ranked by similarity, for surfacing in the
// project review's cross-cutting-concerns section.
func (s *SemanticStore) NearDuplicates(ctx context.Context, entityText string, numResults int) ([]schema.Document, error) {
	store, err := s.collection()
	if err != nil {
		return nil, fmt.Errorf("get dedup collection: %w", err)
	}

	docs, err := store.SimilaritySearch(ctx, entityText, numResults)
	if err != nil {
		return nil, fmt.Errorf("near-duplicate search: %w", err)
	}
	return docs, nil
}
