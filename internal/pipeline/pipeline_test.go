package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/audit-scanner/internal/core"
	"github.com/sevigo/audit-scanner/internal/costledger"
	"github.com/sevigo/audit-scanner/internal/pipeline"
	"github.com/sevigo/audit-scanner/internal/promptrouter"
	"github.com/sevigo/audit-scanner/internal/staticanalysis"

	_ "modernc.org/sqlite"
)

const ledgerSchema = `
CREATE TABLE static_decisions (
	id INTEGER PRIMARY KEY,
	timestamp INTEGER, file_path TEXT, repo_id INTEGER, recommendation TEXT,
	skip_reason TEXT, static_issue_count INTEGER, estimated_llm_value REAL,
	llm_called INTEGER, estimated_cost_saved_usd REAL, actual_cost_usd REAL,
	prompt_tier TEXT
);
CREATE TABLE llm_costs (
	id INTEGER PRIMARY KEY,
	timestamp INTEGER, operation TEXT, model TEXT, input_tokens INTEGER,
	output_tokens INTEGER, cached_tokens INTEGER, cost_usd REAL, cache_hit INTEGER
);`

type fakeLLM struct {
	response string
	calls    int
}

func (f *fakeLLM) AskTracked(ctx context.Context, req core.AskRequest) (core.AskResponse, error) {
	f.calls++
	return core.AskResponse{Content: f.response, TotalTokens: 100, CostUSD: 0.001}, nil
}

func newPipeline(t *testing.T, llm core.LLMClient) (*pipeline.Pipeline, *sqlx.DB) {
	t.Helper()

	db, err := sqlx.Connect("sqlite", ":memory:")
	require.NoError(t, err)
	_, err = db.Exec(ledgerSchema)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	router, err := promptrouter.New()
	require.NoError(t, err)

	analyzer := staticanalysis.New(nil)
	ledger := costledger.New(db)

	return pipeline.New("grok", "grok-4.1-fast", analyzer, router, ledger, llm), db
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	full := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	return full
}

func TestAnalyzeFile_MissingFileReturnsZero(t *testing.T) {
	llm := &fakeLLM{}
	p, _ := newPipeline(t, llm)

	result, err := p.AnalyzeFile(context.Background(), 1, t.TempDir(), "nope.go")
	require.NoError(t, err)
	assert.Equal(t, core.FileAnalysisResult{}, result)
	assert.Equal(t, 0, llm.calls)
}

func TestAnalyzeFile_EmptyFileSkipsWithoutLLMCall(t *testing.T) {
	llm := &fakeLLM{}
	p, _ := newPipeline(t, llm)

	dir := t.TempDir()
	writeFile(t, dir, "empty.go", "")

	result, err := p.AnalyzeFile(context.Background(), 1, dir, "empty.go")
	require.NoError(t, err)
	assert.Equal(t, core.FileAnalysisResult{}, result)
	assert.Equal(t, 0, llm.calls)
}

func TestAnalyzeFile_MinifiedContentSkipsWithoutLLMCall(t *testing.T) {
	llm := &fakeLLM{}
	p, _ := newPipeline(t, llm)

	dir := t.TempDir()
	longLine := strings.Repeat("x", 600)
	writeFile(t, dir, "min.js", longLine+"\n"+longLine)

	result, err := p.AnalyzeFile(context.Background(), 1, dir, "min.js")
	require.NoError(t, err)
	assert.Equal(t, core.FileAnalysisResult{}, result)
	assert.Equal(t, 0, llm.calls)
}

func TestAnalyzeFile_StaticSkipRecordsSavings(t *testing.T) {
	llm := &fakeLLM{}
	p, db := newPipeline(t, llm)

	dir := t.TempDir()
	writeFile(t, dir, "tiny.go", "x\n")

	result, err := p.AnalyzeFile(context.Background(), 1, dir, "tiny.go")
	require.NoError(t, err)
	assert.Equal(t, 0, llm.calls)

	var count int
	require.NoError(t, db.Get(&count, `SELECT COUNT(*) FROM static_decisions WHERE llm_called = 0`))
	assert.Equal(t, 1, count)
	_ = result
}

func TestAnalyzeFile_CallsLLMAndCaches(t *testing.T) {
	llm := &fakeLLM{response: `{"code_smells": ["smell"], "suggestions": ["fix"], "complexity_score": 42}`}
	p, db := newPipeline(t, llm)

	dir := t.TempDir()
	content := strings.Repeat("func Example() {\n\treturn\n}\n", 30)
	writeFile(t, dir, "example.go", content)

	result, err := p.AnalyzeFile(context.Background(), 1, dir, "example.go")
	require.NoError(t, err)
	assert.Equal(t, 1, llm.calls)
	assert.Equal(t, 2, result.IssuesFound)

	result2, err := p.AnalyzeFile(context.Background(), 1, dir, "example.go")
	require.NoError(t, err)
	assert.True(t, result2.WasCacheHit)
	assert.Equal(t, 1, llm.calls) // no second LLM call on cache hit

	var count int
	require.NoError(t, db.Get(&count, `SELECT COUNT(*) FROM static_decisions WHERE llm_called = 1`))
	assert.Equal(t, 1, count)
}
