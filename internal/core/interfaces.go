package core

import "context"

// LLMClient is the narrow provider-agnostic contract the orchestrator and
// synthesizer call against (spec.md §6). Implementations live in
// internal/llmclient; the core never constructs HTTP requests directly.
type LLMClient interface {
	AskTracked(ctx context.Context, req AskRequest) (AskResponse, error)
}

// FilePipeline is C9's contract as seen by the orchestrator (C10).
type FilePipeline interface {
	AnalyzeFile(ctx context.Context, repoID int64, repoPath, filePath string) (FileAnalysisResult, error)
}

// ReviewSynthesizer is C11's contract as seen by the orchestrator (C10):
// called on full scan completion and on the on-demand review bypass.
type ReviewSynthesizer interface {
	Run(ctx context.Context, repoID int64, repoName, repoPath string) error
}

// GitEngine is C8's contract as seen by the orchestrator (C10).
// Implemented by internal/gitdiff.Engine.
type GitEngine interface {
	EnsureLocal(ctx context.Context, gitURL, path, token string) error
	ChangedFiles(path string, lastCommitHash *string) (ChangeSet, error)
}

// TodoScanner classifies TODO/FIXME markers in a file for the static
// analyzer's priority signal (SPEC_FULL.md §4.1).
type TodoScanner interface {
	Scan(content string) TodoSummary
}

// TodoSummary is the per-file aggregate the static analyzer consumes.
type TodoSummary struct {
	Total          int
	CriticalCount  int
	HighCount      int
}
