package chunkindex_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sevigo/audit-scanner/internal/chunkindex"
)

func TestNewEmbedder_UnsupportedProvider(t *testing.T) {
	_, err := chunkindex.NewEmbedder(context.Background(), chunkindex.EmbedderConfig{
		Provider: "bogus",
		Model:    "whatever",
	}, nil)
	assert.ErrorContains(t, err, "unsupported embedder provider")
}
