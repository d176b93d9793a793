// Package pipeline implements the per-file pipeline (C9): the ordered gate
// chain that decides, for one file, whether to skip it, serve it from
// cache, or spend an LLM call on it. Grounded on
// original_source/src/auto_scanner.rs's analyze_file.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/sevigo/audit-scanner/internal/analysiscache"
	"github.com/sevigo/audit-scanner/internal/chunkindex"
	"github.com/sevigo/audit-scanner/internal/core"
	"github.com/sevigo/audit-scanner/internal/costledger"
	"github.com/sevigo/audit-scanner/internal/jsonextract"
	"github.com/sevigo/audit-scanner/internal/promptrouter"
	"github.com/sevigo/audit-scanner/internal/staticanalysis"
)

// maxAnalysisFileSize is spec.md §6's max_analysis_file_size default.
const maxAnalysisFileSize = 100 * 1024

// minificationLineLength/minificationLineCount implement step 5's
// minification heuristic: avg_line_length > 500 AND line_count < 50.
const (
	minificationAvgLineLength = 500
	minificationMaxLineCount  = 50
)

// Provider and Model name the LLM target attached to every cache lookup and
// cost-ledger write (spec.md §3: cache is keyed on (file_path, content,
// provider, model)).
//
// The analysis cache is a per-repo sidecar (internal/analysiscache's
// repoPath/.audit-cache), so one long-lived Pipeline shared across a fleet
// of repos (internal/orchestrator holds a single core.FilePipeline) opens
// one cache connection per distinct repoPath and reuses it across calls.
type Pipeline struct {
	Provider string
	Model    string

	Analyzer *staticanalysis.Analyzer
	Router   *promptrouter.Router
	Ledger   *costledger.Ledger
	LLM      core.LLMClient

	// ChunkIndex and Extractor are optional (spec.md §3's C7 is an
	// "optional dedup" component): when both are set, every file that
	// reaches an LLM call also has its chunks extracted and upserted into
	// the cross-repo dedup index. Nil either one and the pipeline behaves
	// exactly as it would without a chunk index at all.
	ChunkIndex *chunkindex.Index
	Extractor  *chunkindex.Extractor

	// Semantic is optional: when set (chunkindex.EnableSemanticDedup),
	// every extracted chunk is also embedded and indexed for near-duplicate
	// search, on top of ChunkIndex's exact content-hash matching.
	Semantic *chunkindex.SemanticStore

	mu     sync.Mutex
	caches map[string]*analysiscache.Cache
}

// New wires the per-file pipeline from its constituent components.
func New(provider, model string, analyzer *staticanalysis.Analyzer, router *promptrouter.Router, ledger *costledger.Ledger, llm core.LLMClient) *Pipeline {
	return &Pipeline{
		Provider: provider,
		Model:    model,
		Analyzer: analyzer,
		Router:   router,
		Ledger:   ledger,
		LLM:      llm,
		caches:   make(map[string]*analysiscache.Cache),
	}
}

// cacheFor returns the analysis cache for repoPath, opening and memoizing
// it on first use.
func (p *Pipeline) cacheFor(repoPath string) (*analysiscache.Cache, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.caches[repoPath]; ok {
		return c, nil
	}
	c, err := analysiscache.Open(repoPath)
	if err != nil {
		return nil, err
	}
	p.caches[repoPath] = c
	return c, nil
}

// Close releases every cache connection opened over the pipeline's
// lifetime, for clean process shutdown.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for path, c := range p.caches {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close analysis cache for %s: %w", path, err)
		}
	}
	return firstErr
}

// AnalyzeFile implements analyze_file(repo_path, file_path, idx, total) →
// FileAnalysisResult, running the 11 ordered gates exactly as spec.md §4.4
// describes them.
func (p *Pipeline) AnalyzeFile(ctx context.Context, repoID int64, repoPath, filePath string) (core.FileAnalysisResult, error) {
	fullPath := filepath.Join(repoPath, filePath)

	// 1. Existence.
	info, err := os.Stat(fullPath)
	if err != nil {
		return core.FileAnalysisResult{}, nil
	}

	// 2. Size gate.
	if info.Size() > maxAnalysisFileSize {
		return core.FileAnalysisResult{}, nil
	}

	// 3. Empty gate.
	if info.Size() == 0 {
		return core.FileAnalysisResult{}, nil
	}

	raw, err := os.ReadFile(fullPath)
	if err != nil {
		return core.FileAnalysisResult{}, nil
	}

	// 4. Read gate: non-UTF-8 / binary.
	if !utf8.Valid(raw) {
		return core.FileAnalysisResult{}, nil
	}
	content := string(raw)

	// 5. Minification heuristic.
	if isMinified(content) {
		return core.FileAnalysisResult{}, nil
	}

	// 6. Static pre-filter (C2 + C3).
	static := p.Analyzer.Analyze(filePath, content)
	decision := core.StaticDecisionRecord{
		FilePath:          filePath,
		RepoID:            repoID,
		Recommendation:    static.Recommendation,
		StaticIssueCount:  static.StaticIssueCount,
		EstimatedLLMValue: static.EstimatedLLMValue,
	}

	if static.Recommendation == core.RecommendationSkip {
		reason := static.SkipReason
		decision.SkipReason = &reason
		decision.LLMCalled = false
		decision.EstimatedCostSavedUSD = costledger.EstimateFileCost(len(content))
		if p.Ledger != nil {
			if err := p.Ledger.LogStaticDecision(ctx, decision); err != nil {
				return core.FileAnalysisResult{}, fmt.Errorf("log skip decision for %s: %w", filePath, err)
			}
		}
		return core.FileAnalysisResult{IssuesFound: static.StaticIssueCount}, nil
	}

	route := p.Router.Route(filePath, content, static)
	tier := string(route.Tier)
	decision.PromptTier = &tier

	cache, err := p.cacheFor(repoPath)
	if err != nil {
		return core.FileAnalysisResult{}, fmt.Errorf("open analysis cache for %s: %w", repoPath, err)
	}

	// 7. Cache lookup.
	if _, hit, err := cache.Get(ctx, filePath, content, p.Provider, p.Model); err == nil && hit {
		decision.LLMCalled = false
		if p.Ledger != nil {
			if err := p.Ledger.LogStaticDecision(ctx, decision); err != nil {
				return core.FileAnalysisResult{}, fmt.Errorf("log cache-hit decision for %s: %w", filePath, err)
			}
		}
		return core.FileAnalysisResult{WasCacheHit: true}, nil
	}

	// 8. LLM call.
	prompt, err := p.Router.Render(route.Tier, filePath, content)
	if err != nil {
		return core.FileAnalysisResult{}, fmt.Errorf("render prompt for %s: %w", filePath, err)
	}

	resp, err := p.LLM.AskTracked(ctx, core.AskRequest{Prompt: prompt, OperationLabel: "file_analysis"})
	if err != nil {
		return core.FileAnalysisResult{}, fmt.Errorf("analyze %s: %w", filePath, err)
	}

	payload, err := parseAnalysisResponse(resp.Content)
	if err != nil {
		return core.FileAnalysisResult{}, fmt.Errorf("parse analysis response for %s: %w", filePath, err)
	}
	payload.FilePath = filePath
	payload.TokensUsed = resp.TotalTokens
	payload.AnalysisType = "refactor"

	// 9. Cache write.
	if err := cache.Set(ctx, filePath, content, p.Provider, p.Model, payload); err != nil {
		return core.FileAnalysisResult{}, fmt.Errorf("cache analysis for %s: %w", filePath, err)
	}

	// 9b. Chunk index (C7, optional): best-effort, never fails the scan.
	if p.ChunkIndex != nil && p.Extractor != nil {
		p.indexChunks(ctx, repoID, filePath, content, payload.IssueCount())
	}

	// 10. Ledger write.
	decision.LLMCalled = true
	decision.ActualCostUSD = resp.CostUSD
	if route.Tier == core.TierMinimal {
		decision.EstimatedCostSavedUSD = costledger.EstimateFileCost(len(content)) - resp.CostUSD
	}
	if p.Ledger != nil {
		if err := p.Ledger.LogStaticDecision(ctx, decision); err != nil {
			return core.FileAnalysisResult{}, fmt.Errorf("log llm decision for %s: %w", filePath, err)
		}
	}

	// 11. Return.
	return core.FileAnalysisResult{
		IssuesFound: payload.IssueCount(),
		CostUSD:     resp.CostUSD,
		TokensUsed:  resp.TotalTokens,
	}, nil
}

// parseAnalysisResponse extracts the {code_smells, suggestions,
// complexity_score} JSON object from a per-file LLM response, repairing
// truncated JSON when the first parse attempt fails.
func parseAnalysisResponse(response string) (core.AnalysisPayload, error) {
	jsonStr := jsonextract.FromResponse(response)

	var payload core.AnalysisPayload
	if err := json.Unmarshal([]byte(jsonStr), &payload); err == nil {
		return payload, nil
	}

	repaired, ok := jsonextract.RepairTruncated(jsonStr)
	if !ok {
		return core.AnalysisPayload{}, fmt.Errorf("analysis response is not valid JSON and could not be repaired")
	}
	if err := json.Unmarshal([]byte(repaired), &payload); err != nil {
		return core.AnalysisPayload{}, fmt.Errorf("repaired analysis response still invalid: %w", err)
	}
	return payload, nil
}

// indexChunks extracts and upserts the file's chunks into the cross-repo
// dedup index. Failures are logged nowhere and swallowed: the chunk index
// is best-effort bookkeeping, not part of the scan's success contract.
func (p *Pipeline) indexChunks(ctx context.Context, repoID int64, filePath, content string, issueCount int) {
	chunks, locations := p.Extractor.ExtractFile(repoID, filePath, content)
	for i := range chunks {
		chunks[i].IssueCount = issueCount
		_ = p.ChunkIndex.Upsert(ctx, chunks[i], locations[i])
		if p.Semantic != nil {
			_ = p.Semantic.IndexChunk(ctx, chunks[i], locations[i])
		}
	}
}

// isMinified implements step 5: avg_line_length > 500 AND line_count < 50.
func isMinified(content string) bool {
	lines := strings.Split(content, "\n")
	lineCount := len(lines)
	if lineCount >= minificationMaxLineCount {
		return false
	}
	totalLen := 0
	for _, l := range lines {
		totalLen += len(l)
	}
	avg := float64(totalLen) / float64(lineCount)
	return avg > minificationAvgLineLength
}
