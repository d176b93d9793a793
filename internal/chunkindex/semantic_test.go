package chunkindex_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sevigo/audit-scanner/internal/chunkindex"
)

func TestSemanticStore_IndexChunk_RequiresQdrantHost(t *testing.T) {
	store := chunkindex.NewSemanticStore("", nil, "nomic-embed-text", nil)

	err := store.IndexChunk(context.Background(), chunkindex.Chunk{ContentHash: "abc", EntityName: "Foo"}, chunkindex.Location{RepoID: 1, FilePath: "a.go"})
	assert.ErrorContains(t, err, "qdrant host not configured")
}

func TestSemanticStore_NearDuplicates_RequiresQdrantHost(t *testing.T) {
	store := chunkindex.NewSemanticStore("", nil, "nomic-embed-text", nil)

	_, err := store.NearDuplicates(context.Background(), "func Foo()", 5)
	assert.ErrorContains(t, err, "qdrant host not configured")
}
