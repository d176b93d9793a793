// Package staticanalysis implements the static analyzer (C2): a zero-cost
// classifier producing a per-file recommendation before any LLM call.
package staticanalysis

import (
	"regexp"
	"strings"

	"github.com/sevigo/audit-scanner/internal/core"
)

// minNonBlankLines below which a file is "trivially small" (spec.md §4.2 rule 1).
const minNonBlankLines = 5

// deepDiveValueFloor is the minimum estimated_llm_value a DEEP_DIVE
// recommendation must carry (spec.md §4.2: "DEEP_DIVE → ≥ 0.7").
const deepDiveValueFloor = 0.7

var (
	generatedMarkerPattern = regexp.MustCompile(`(?i)(do not edit|auto-?generated|generated by|code generator|@generated)`)
	unsafePattern          = regexp.MustCompile(`\bunsafe\b`)
	safetyCommentPattern   = regexp.MustCompile(`(?i)//\s*SAFETY`)
	panicWordPattern       = regexp.MustCompile(`\b(unwrap|expect|panic)\s*\(`)
	secretPattern          = regexp.MustCompile(`(?i)(api[_-]?key|secret[_-]?key|access[_-]?token)\s*[:=]\s*["'][A-Za-z0-9_\-]{16,}["']|-----BEGIN (RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`)
	commentLinePattern     = regexp.MustCompile(`^\s*(//|#|/\*|\*)`)
)

// Analyzer implements the static pre-filter over file content.
type Analyzer struct {
	todos core.TodoScanner
}

// New returns an Analyzer that additionally consults todos for priority
// classification (SPEC_FULL.md §4.1).
func New(todos core.TodoScanner) *Analyzer {
	return &Analyzer{todos: todos}
}

// Analyze implements spec.md §4.2's recommendation rules, first match wins.
func (a *Analyzer) Analyze(path, content string) core.StaticResult {
	lines := strings.Split(content, "\n")
	nonBlank := 0
	commentLines := 0
	for _, l := range lines {
		trimmed := strings.TrimSpace(l)
		if trimmed == "" {
			continue
		}
		nonBlank++
		if commentLinePattern.MatchString(l) {
			commentLines++
		}
	}

	staticIssueCount := a.countStaticIssues(content)

	var todos core.TodoSummary
	if a.todos != nil {
		todos = a.todos.Scan(content)
	}

	if isGenerated(content) || nonBlank < minNonBlankLines || (nonBlank > 0 && commentLines == nonBlank) {
		reason := skipReason(content, nonBlank, commentLines)
		return core.StaticResult{
			Recommendation:    core.RecommendationSkip,
			SkipReason:        reason,
			StaticIssueCount:  staticIssueCount,
			EstimatedLLMValue: 0,
		}
	}

	if hasDeepDiveRedFlags(content) || todos.CriticalCount > 0 {
		return core.StaticResult{
			Recommendation:    core.RecommendationDeepDive,
			StaticIssueCount:  staticIssueCount,
			EstimatedLLMValue: clamp(deepDiveValueFloor + float64(staticIssueCount)*0.02 + float64(todos.CriticalCount)*0.05),
		}
	}

	if nonBlank < 80 && staticIssueCount == 0 {
		return core.StaticResult{
			Recommendation:    core.RecommendationMinimal,
			StaticIssueCount:  staticIssueCount,
			EstimatedLLMValue: clamp(0.1 + float64(todos.Total)*0.02),
		}
	}

	return core.StaticResult{
		Recommendation:    core.RecommendationStandard,
		StaticIssueCount:  staticIssueCount,
		EstimatedLLMValue: estimateStandardValue(staticIssueCount, nonBlank, todos),
	}
}

func isGenerated(content string) bool {
	head := content
	if len(head) > 500 {
		head = head[:500]
	}
	return generatedMarkerPattern.MatchString(head)
}

func skipReason(content string, nonBlank, commentLines int) string {
	switch {
	case isGenerated(content):
		return "generated file"
	case nonBlank < minNonBlankLines:
		return "trivially small file"
	case nonBlank > 0 && commentLines == nonBlank:
		return "entirely comments"
	default:
		return "low value"
	}
}

// hasDeepDiveRedFlags implements spec.md §4.2 rule 2: unsafe without an
// adjacent SAFETY comment, high unwrap/expect/panic density, or secret-like
// strings.
func hasDeepDiveRedFlags(content string) bool {
	if unsafePattern.MatchString(content) && !safetyCommentPattern.MatchString(content) {
		return true
	}
	if secretPattern.MatchString(content) {
		return true
	}
	lines := strings.Count(content, "\n") + 1
	panicHits := len(panicWordPattern.FindAllString(content, -1))
	if lines > 0 && float64(panicHits)/float64(lines) > 0.05 {
		return true
	}
	return false
}

// countStaticIssues is a lightweight proxy: red-flag hits plus a crude
// long-function heuristic. It is intentionally conservative — the LLM call
// is where real issue detection happens; this only feeds estimated_llm_value
// and the ledger's static_issue_count column.
func (a *Analyzer) countStaticIssues(content string) int {
	count := len(panicWordPattern.FindAllString(content, -1))
	if unsafePattern.MatchString(content) {
		count++
	}
	if secretPattern.MatchString(content) {
		count += 2
	}
	return count
}

func estimateStandardValue(staticIssueCount, nonBlank int, todos core.TodoSummary) float64 {
	sizeComponent := float64(nonBlank) / 500.0
	issueComponent := float64(staticIssueCount) * 0.05
	todoComponent := float64(todos.HighCount) * 0.03
	return clamp(0.2 + sizeComponent*0.2 + issueComponent + todoComponent)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
