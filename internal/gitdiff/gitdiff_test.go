package gitdiff_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/audit-scanner/internal/gitdiff"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(dir, name)), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func commitAll(t *testing.T, repo *git.Repository, message string) string {
	t.Helper()
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add(".")
	require.NoError(t, err)
	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return hash.String()
}

func TestChangedFiles_RangeDiff(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	writeFile(t, dir, "a.go", "package a\n")
	firstSHA := commitAll(t, repo, "init")

	writeFile(t, dir, "b.go", "package a\n\nfunc B() {}\n")
	commitAll(t, repo, "add b")

	engine := gitdiff.New(nil)
	cs, err := engine.ChangedFiles(dir, &firstSHA)
	require.NoError(t, err)
	assert.Contains(t, cs.Files, "b.go")
	assert.False(t, cs.IsFirstScan)
}

func TestChangedFiles_FirstScanBootstrap(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	writeFile(t, dir, "a.go", "package a\n")
	commitAll(t, repo, "init")

	engine := gitdiff.New(nil)
	cs, err := engine.ChangedFiles(dir, nil)
	require.NoError(t, err)
	assert.True(t, cs.IsFirstScan)
}

func TestChangedFiles_DropsDeletedPaths(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	writeFile(t, dir, "a.go", "package a\n")
	firstSHA := commitAll(t, repo, "init")

	writeFile(t, dir, "b.go", "package a\n")
	commitAll(t, repo, "add b")
	require.NoError(t, os.Remove(filepath.Join(dir, "b.go")))

	engine := gitdiff.New(nil)
	cs, err := engine.ChangedFiles(dir, &firstSHA)
	require.NoError(t, err)
	assert.NotContains(t, cs.Files, "b.go")
}

func TestResolvePath_FallsBackToReposDir(t *testing.T) {
	reposDir := t.TempDir()
	name := "example-repo"
	fallback := filepath.Join(reposDir, name)
	require.NoError(t, os.MkdirAll(filepath.Join(fallback, ".git"), 0o755))

	got := gitdiff.ResolvePath("/does/not/exist", reposDir, name)
	assert.Equal(t, fallback, got)
}

func TestRemoteHeadSHA_InvalidRemoteErrors(t *testing.T) {
	_, err := gitdiff.RemoteHeadSHA(context.Background(), "https://example.invalid/nope.git", "main", "")
	assert.Error(t, err)
}
