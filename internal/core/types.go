// Package core defines the domain types and interfaces shared across the
// scanning pipeline. These are kept free of storage and transport concerns so
// every other package can depend on them without import cycles.
package core

import "time"

// Recommendation is the static analyzer's verdict for a single file.
type Recommendation string

const (
	RecommendationSkip      Recommendation = "SKIP"
	RecommendationMinimal   Recommendation = "MINIMAL"
	RecommendationStandard  Recommendation = "STANDARD"
	RecommendationDeepDive  Recommendation = "DEEP_DIVE"
)

// Tier selects a prompt template and output-token budget.
type Tier string

const (
	TierMinimal  Tier = "minimal"
	TierStandard Tier = "standard"
	TierDeepDive Tier = "deep_dive"
)

// Repository is the fleet record the orchestrator reads and updates. It is
// owned by external collaborators (spec.md §6); the core only reads and
// mutates the columns named below.
type Repository struct {
	ID                   int64     `db:"id"`
	Name                 string    `db:"name"`
	Path                 string    `db:"path"`
	GitURL               *string   `db:"git_url"`
	AutoScan             bool      `db:"auto_scan"`
	ScanIntervalMinutes  int       `db:"scan_interval_minutes"`
	LastScanCheck        int64     `db:"last_scan_check"`
	LastCommitHash       *string   `db:"last_commit_hash"`
	ReviewRequested      bool      `db:"review_requested"`
	ScanStartedAt        *int64    `db:"scan_started_at"`
	ScanFilesProcessed   int       `db:"scan_files_processed"`
	ScanCurrentFile      *string   `db:"scan_current_file"`
	ScanCostAccumulated  float64   `db:"scan_cost_accumulated"`
	ScanCacheHits        int       `db:"scan_cache_hits"`
	ScanAPICalls         int       `db:"scan_api_calls"`
	LastAnalyzed         *int64    `db:"last_analyzed"`
	CreatedAt            time.Time `db:"created_at"`
	UpdatedAt            time.Time `db:"updated_at"`
}

// ScanCheckpoint is the per-repo resumption record (C6).
type ScanCheckpoint struct {
	RepoID             int64   `db:"repo_id"`
	LastCompletedIndex int     `db:"last_completed_index"`
	LastCompletedFile  string  `db:"last_completed_file"`
	FilesAnalyzed      int     `db:"files_analyzed"`
	FilesCached        int     `db:"files_cached"`
	CumulativeCost     float64 `db:"cumulative_cost"`
	TotalFiles         int     `db:"total_files"`
	UpdatedAt          int64   `db:"updated_at"`
}

// StaticResult is the output of the static analyzer (C2).
type StaticResult struct {
	Recommendation     Recommendation
	SkipReason         string // present iff Recommendation == SKIP
	StaticIssueCount   int
	EstimatedLLMValue  float64 // in [0, 1]
}

// RouteDecision is the output of the prompt router (C3).
type RouteDecision struct {
	Tier                 Tier
	EstimatedInputTokens int
}

// FileAnalysisResult is the result of running the per-file pipeline (C9) on
// one file.
type FileAnalysisResult struct {
	IssuesFound  int
	CostUSD      float64
	TokensUsed   int
	WasCacheHit  bool
}

// AnalysisPayload is the serialized shape of one LLM analysis, cached by C4
// and read back by the project-review synthesizer (C11).
type AnalysisPayload struct {
	FilePath         string     `json:"file_path"`
	CodeSmells       []string   `json:"code_smells"`
	Suggestions      []string   `json:"suggestions"`
	ComplexityScore  *int       `json:"complexity_score,omitempty"`
	TokensUsed       int        `json:"tokens_used"`
	AnalysisType     string     `json:"analysis_type"`
	CreatedAt        time.Time  `json:"created_at"`
}

// IssueCount returns len(code_smells) + len(suggestions), per spec.md §4.4.
func (p *AnalysisPayload) IssueCount() int {
	return len(p.CodeSmells) + len(p.Suggestions)
}

// Task is a queue entry created by the project-review synthesizer (C11).
// Priority follows critical=1, high=2, medium=3 (default), low=4.
type Task struct {
	Title       string `db:"title"`
	Description string `db:"description"`
	Priority    int    `db:"priority"`
	SourceTag   string `db:"source_tag"`
	SourceRepo  string `db:"source_repo"`
	FirstFile   string `db:"first_file"`
}

// RepoConfig is the optional per-repo override loaded from a repository's
// own .audit-scanner.yml (mirrors the teacher's .code-warden.yml idiom).
// Any nil field means "use the fleet-wide default".
type RepoConfig struct {
	ScanCostBudgetUSD *float64 `yaml:"scan_cost_budget_usd"`
}

// DefaultRepoConfig returns a RepoConfig with every override unset.
func DefaultRepoConfig() *RepoConfig {
	return &RepoConfig{}
}

// ChangeSet is the output of the git diff engine (C8): files to analyze,
// already filtered through the path filter by the caller.
type ChangeSet struct {
	Files        []string
	HeadSHA      string
	IsFirstScan  bool
}

// StaticDecisionRecord is C5's append-only log of what the pre-filter
// decided for one file in one scan pass (spec.md §3).
type StaticDecisionRecord struct {
	Timestamp             int64          `db:"timestamp"`
	FilePath              string         `db:"file_path"`
	RepoID                int64          `db:"repo_id"`
	Recommendation        Recommendation `db:"recommendation"`
	SkipReason            *string        `db:"skip_reason"`
	StaticIssueCount      int            `db:"static_issue_count"`
	EstimatedLLMValue     float64        `db:"estimated_llm_value"`
	LLMCalled             bool           `db:"llm_called"`
	EstimatedCostSavedUSD float64        `db:"estimated_cost_saved_usd"`
	ActualCostUSD         float64        `db:"actual_cost_usd"`
	PromptTier            *string        `db:"prompt_tier"`
}

// LLMCostRecord is C5's append-only log of every LLM call (spec.md §3).
type LLMCostRecord struct {
	Timestamp    int64  `db:"timestamp"`
	Operation    string `db:"operation"`
	Model        string `db:"model"`
	InputTokens  int    `db:"input_tokens"`
	OutputTokens int    `db:"output_tokens"`
	CachedTokens int    `db:"cached_tokens"`
	CostUSD      float64 `db:"cost_usd"`
	CacheHit     bool   `db:"cache_hit"`
}

// AskRequest is the narrow, provider-agnostic LLM call contract (spec.md §6).
type AskRequest struct {
	Prompt         string
	System         string
	OperationLabel string
}

// AskResponse is what every provider behind LLMClient must return.
type AskResponse struct {
	Content      string
	TotalTokens  int
	CostUSD      float64
}
