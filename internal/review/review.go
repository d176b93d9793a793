// Package review implements the project-review synthesizer (C11): it folds
// every cached per-file analysis into one project-level LLM call and turns
// the response into prioritized tasks. Grounded on
// original_source/src/auto_scanner.rs's generate_project_review,
// retry_project_review_with_reduced_context, and parse_review_into_tasks.
package review

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/xeipuuv/gojsonschema"

	"github.com/sevigo/audit-scanner/internal/analysiscache"
	"github.com/sevigo/audit-scanner/internal/core"
	"github.com/sevigo/audit-scanner/internal/jsonextract"
	"github.com/sevigo/audit-scanner/internal/storage"
)

const (
	// interestingComplexityThreshold: a file with no smells or suggestions
	// is still reviewed if its complexity score exceeds this (spec.md §4.6).
	interestingComplexityThreshold = 70.0

	// contextTruncateLen is the max length of a per-file analysis JSON blob
	// folded into the review prompt.
	contextTruncateLen = 2000

	// retryBatchSize is the top-N-by-issue-count files used on the reduced
	// context retry.
	retryBatchSize = 30

	opProjectReview      = "project_review"
	opProjectReviewRetry = "project_review_retry"

	defaultPriority = 3
)

var priorityByName = map[string]int{
	"critical": 1,
	"high":     2,
	"medium":   3,
	"low":      4,
}

// responseSchema is the JSON Schema for the project-review LLM response
// (spec.md §6's project-review prompt contract).
const responseSchema = `{
	"type": "object",
	"required": ["tasks"],
	"properties": {
		"summary": {"type": "string"},
		"cross_cutting_concerns": {"type": "array", "items": {"type": "string"}},
		"tasks": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["title"],
				"properties": {
					"title": {"type": "string"},
					"description": {"type": "string"},
					"files": {"type": "array", "items": {"type": "string"}},
					"priority": {"type": "string", "enum": ["critical", "high", "medium", "low"]},
					"effort": {"type": "string"},
					"dependencies": {"type": "array", "items": {"type": "string"}},
					"category": {"type": "string"}
				}
			}
		}
	}
}`

// Synthesizer implements core.ReviewSynthesizer.
type Synthesizer struct {
	Store  storage.Store
	LLM    core.LLMClient
	schema *gojsonschema.Schema
	logger *slog.Logger
}

// New compiles the response schema once and returns a ready Synthesizer.
func New(store storage.Store, llm core.LLMClient, logger *slog.Logger) (*Synthesizer, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(responseSchema))
	if err != nil {
		return nil, fmt.Errorf("compile project-review schema: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{Store: store, LLM: llm, schema: schema, logger: logger}, nil
}

// interestingFile is one refactor-type cache entry worth including in the
// review context.
type interestingFile struct {
	path       string
	complexity float64
	issues     int
	rawJSON    string
}

// Run implements spec.md §4.6's procedure end to end.
func (s *Synthesizer) Run(ctx context.Context, repoID int64, repoName, repoPath string) error {
	cache, err := analysiscache.Open(repoPath)
	if err != nil {
		return fmt.Errorf("open analysis cache for review: %w", err)
	}
	defer cache.Close()

	entries, err := cache.AllRefactorEntries(ctx)
	if err != nil {
		return fmt.Errorf("load refactor entries: %w", err)
	}
	if len(entries) == 0 {
		s.logger.InfoContext(ctx, "no cached analyses, skipping project review", "repo", repoName)
		return nil
	}

	interesting, totalIssues := selectInteresting(entries)
	if len(interesting) == 0 {
		s.logger.InfoContext(ctx, "no files with issues, skipping project review", "repo", repoName)
		return nil
	}

	prompt := buildPrompt(repoName, len(entries), totalIssues, interesting)
	resp, err := s.LLM.AskTracked(ctx, core.AskRequest{Prompt: prompt, OperationLabel: opProjectReview})
	if err != nil {
		return fmt.Errorf("project review llm call: %w", err)
	}

	count, parseErr := s.parseAndCreateTasks(ctx, resp.Content, repoID, repoName)
	if parseErr == nil {
		s.logger.InfoContext(ctx, "project review complete", "repo", repoName, "tasks", count)
		return nil
	}

	s.logger.WarnContext(ctx, "project review parse failed, retrying with reduced context", "repo", repoName, "error", parseErr)

	sort.Slice(interesting, func(i, j int) bool { return interesting[i].issues > interesting[j].issues })
	batch := interesting
	if len(batch) > retryBatchSize {
		batch = batch[:retryBatchSize]
	}
	retryIssues := 0
	for _, f := range batch {
		retryIssues += f.issues
	}

	retryPrompt := buildRetryPrompt(repoName, batch, retryIssues)
	retryResp, err := s.LLM.AskTracked(ctx, core.AskRequest{Prompt: retryPrompt, OperationLabel: opProjectReviewRetry})
	if err != nil {
		return fmt.Errorf("project review retry llm call: %w", err)
	}

	count, err = s.parseAndCreateTasks(ctx, retryResp.Content, repoID, repoName)
	if err != nil {
		// spec.md §4.7: a retry failure still leaves the scan successful —
		// log and continue rather than propagate.
		s.logger.ErrorContext(ctx, "project review retry parse failed, giving up", "repo", repoName, "error", err)
		return nil
	}
	s.logger.InfoContext(ctx, "project review complete (reduced context)", "repo", repoName, "tasks", count)
	return nil
}

// selectInteresting implements step 2: a file is interesting if
// smell_count + suggestion_count > 0 or complexity_score > 70.
func selectInteresting(entries []analysiscache.RefactorEntry) ([]interestingFile, int) {
	var out []interestingFile
	total := 0

	for _, e := range entries {
		issues := len(e.Payload.CodeSmells) + len(e.Payload.Suggestions)
		total += issues

		complexity := 50.0
		if e.Payload.ComplexityScore != nil {
			complexity = float64(*e.Payload.ComplexityScore)
		}

		if issues > 0 || complexity > interestingComplexityThreshold {
			raw, err := json.Marshal(e.Payload)
			if err != nil {
				continue
			}
			out = append(out, interestingFile{path: e.FilePath, complexity: complexity, issues: issues, rawJSON: string(raw)})
		}
	}
	return out, total
}

func truncate(s string) string {
	if len(s) > contextTruncateLen {
		return s[:contextTruncateLen]
	}
	return s
}

func buildContext(files []interestingFile) string {
	var out string
	for _, f := range files {
		out += fmt.Sprintf("\n## %s\n- Complexity: %.0f\n- Issues: %d\n- Analysis: %s\n",
			f.path, f.complexity, f.issues, truncate(f.rawJSON))
	}
	return out
}

// buildPrompt composes the full-context review prompt (spec.md §6's
// project-review prompt contract).
func buildPrompt(repoName string, fileCount, totalIssues int, files []interestingFile) string {
	return fmt.Sprintf(`You are reviewing a complete codebase analysis for the %q project.

%d files were analyzed. %d total issues were found across %d files.

Below is a summary of every file that had issues. Your job is to:

1. Identify CROSS-CUTTING CONCERNS — patterns that appear across multiple files
   (e.g., "error handling is inconsistent across 12 service files")
2. Identify DEPENDENCY CHAINS — where fixing file A should happen before file B
3. Group related issues into ACTIONABLE TASKS that can each be completed in 1-4 hours
4. Prioritize by: Critical (security/crashes) > High (correctness) > Medium (quality) > Low (style)
5. For each task, specify:
   - Title (clear, actionable)
   - Description (what to do, not what's wrong)
   - Files affected (list)
   - Priority (critical/high/medium/low)
   - Estimated effort (small/medium/large)
   - Dependencies (which task titles must complete first)
   - Category

Respond in ONLY valid JSON (no markdown fences):
{
  "summary": "Brief overview of project health",
  "cross_cutting_concerns": ["..."],
  "tasks": [
    {
      "title": "...",
      "description": "...",
      "files": ["..."],
      "priority": "critical|high|medium|low",
      "effort": "small|medium|large",
      "dependencies": [],
      "category": "security|error-handling|performance|testing|refactoring|documentation"
    }
  ]
}

=== FILE ANALYSES ===
%s`, repoName, fileCount, totalIssues, len(files), buildContext(files))
}

// buildRetryPrompt composes the reduced-context retry prompt (spec.md §4.6
// step 6).
func buildRetryPrompt(repoName string, batch []interestingFile, totalIssues int) string {
	return fmt.Sprintf(`You are reviewing a codebase analysis for the %q project.

This is a focused review of the %d highest-priority files (%d total issues).

Group related issues into ACTIONABLE TASKS (1-4 hours each).
Prioritize: Critical (security/crashes) > High (correctness) > Medium (quality) > Low (style).

IMPORTANT: Respond with ONLY valid JSON. No markdown fences, no explanation text.
The response must be a single JSON object with this exact structure:
{
  "summary": "Brief overview",
  "cross_cutting_concerns": ["..."],
  "tasks": [
    {
      "title": "...",
      "description": "...",
      "files": ["..."],
      "priority": "critical|high|medium|low",
      "effort": "small|medium|large",
      "dependencies": [],
      "category": "security|error-handling|performance|testing|refactoring|documentation"
    }
  ]
}

=== FILE ANALYSES ===
%s`, repoName, len(batch), totalIssues, buildContext(batch))
}

// reviewResponse mirrors responseSchema for decoding after validation.
type reviewResponse struct {
	Summary              string         `json:"summary"`
	CrossCuttingConcerns []string       `json:"cross_cutting_concerns"`
	Tasks                []taskResponse `json:"tasks"`
}

type taskResponse struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Files        []string `json:"files"`
	Priority     string   `json:"priority"`
	Effort       string   `json:"effort"`
	Dependencies []string `json:"dependencies"`
	Category     string   `json:"category"`
}

// parseAndCreateTasks implements the JSON extraction/repair protocol,
// schema validation, and task creation (spec.md §4.6 steps 6-7).
func (s *Synthesizer) parseAndCreateTasks(ctx context.Context, response string, repoID int64, repoName string) (int, error) {
	jsonStr := jsonextract.FromResponse(response)

	parsed, err := decodeAndValidate(jsonStr, s.schema)
	if err != nil {
		repaired, ok := jsonextract.RepairTruncated(jsonStr)
		if !ok {
			return 0, fmt.Errorf("project review response is not valid JSON: %w", err)
		}
		parsed, err = decodeAndValidate(repaired, s.schema)
		if err != nil {
			return 0, fmt.Errorf("project review response still invalid after repair: %w", err)
		}
	}

	if parsed.Summary != "" {
		s.logger.InfoContext(ctx, "project review summary", "repo", repoName, "summary", parsed.Summary)
	}
	for _, concern := range parsed.CrossCuttingConcerns {
		s.logger.InfoContext(ctx, "cross-cutting concern", "repo", repoName, "concern", concern)
	}

	count := 0
	for _, t := range parsed.Tasks {
		task := taskFromResponse(t, repoName)
		if err := s.Store.CreateTask(ctx, task); err != nil {
			s.logger.WarnContext(ctx, "failed to create task", "repo", repoName, "title", task.Title, "error", err)
			continue
		}
		count++
	}
	return count, nil
}

// decodeAndValidate validates jsonStr against the response schema before
// unmarshaling — a schema violation is treated the same as a parse failure
// (triggers the reduced-context retry).
func decodeAndValidate(jsonStr string, schema *gojsonschema.Schema) (reviewResponse, error) {
	var parsed reviewResponse
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return reviewResponse{}, err
	}

	result, err := schema.Validate(gojsonschema.NewStringLoader(jsonStr))
	if err != nil {
		return reviewResponse{}, fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		return reviewResponse{}, fmt.Errorf("response violates schema: %v", result.Errors())
	}
	return parsed, nil
}

// taskFromResponse builds the rich description and maps priority exactly as
// spec.md §4.6 step 7 describes (critical=1, high=2, medium=3, low=4).
func taskFromResponse(t taskResponse, repoName string) core.Task {
	priority, ok := priorityByName[t.Priority]
	if !ok {
		priority = defaultPriority
	}

	category := t.Category
	if category == "" {
		category = "refactoring"
	}
	effort := t.Effort
	if effort == "" {
		effort = "medium"
	}

	filesList := "N/A"
	if len(t.Files) > 0 {
		filesList = joinStrings(t.Files)
	}
	depsList := "None"
	if len(t.Dependencies) > 0 {
		depsList = joinStrings(t.Dependencies)
	}

	description := fmt.Sprintf("%s\n\n**Category:** %s\n**Effort:** %s\n**Files:** %s\n**Dependencies:** %s",
		t.Description, category, effort, filesList, depsList)

	var firstFile string
	if len(t.Files) > 0 {
		firstFile = t.Files[0]
	}

	title := t.Title
	if title == "" {
		title = "Untitled review task"
	}

	return core.Task{
		Title:       title,
		Description: description,
		Priority:    priority,
		SourceTag:   "project_review",
		SourceRepo:  repoName,
		FirstFile:   firstFile,
	}
}

func joinStrings(items []string) string {
	out := ""
	for i, item := range items {
		if i > 0 {
			out += ", "
		}
		out += item
	}
	return out
}

var _ core.ReviewSynthesizer = (*Synthesizer)(nil)
