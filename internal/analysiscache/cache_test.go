package analysiscache_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/audit-scanner/internal/analysiscache"
	"github.com/sevigo/audit-scanner/internal/core"
)

func TestCache_MissThenHit(t *testing.T) {
	dir := t.TempDir()
	c, err := analysiscache.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	_, hit, err := c.Get(ctx, "a.go", "package a\n", "grok", "grok-4.1-fast")
	require.NoError(t, err)
	assert.False(t, hit)

	err = c.Set(ctx, "a.go", "package a\n", "grok", "grok-4.1-fast", core.AnalysisPayload{
		FilePath: "a.go", CodeSmells: []string{"x"}, AnalysisType: "refactor",
	})
	require.NoError(t, err)

	got, hit, err := c.Get(ctx, "a.go", "package a\n", "grok", "grok-4.1-fast")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, len(got.CodeSmells))
}

func TestCache_ContentChangeIsMiss(t *testing.T) {
	dir := t.TempDir()
	c, err := analysiscache.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "a.go", "v1", "grok", "grok-4.1-fast", core.AnalysisPayload{FilePath: "a.go"}))

	_, hit, err := c.Get(ctx, "a.go", "v2", "grok", "grok-4.1-fast")
	require.NoError(t, err)
	assert.False(t, hit)
}
