// Package promptrouter implements the prompt router (C3): maps a static
// recommendation plus file metadata to a prompt tier and an
// estimated_input_tokens figure, and renders the tier's template.
package promptrouter

import (
	"bytes"
	"embed"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/sevigo/audit-scanner/internal/core"
)

//go:embed prompts/*.prompt
var promptFiles embed.FS

// smallFileLineThreshold: files at or below this many lines downgrade
// Standard to Minimal (spec.md §4.3: "may downgrade Standard → Minimal for
// very small files").
const smallFileLineThreshold = 40

// complexityUpgradeThreshold: files crossing this estimated_llm_value cross
// the "complexity threshold" spec.md §4.3 allows for Standard → DeepDive
// upgrades.
const complexityUpgradeThreshold = 0.6

// avgTokensPerChar approximates token count from content length for the
// pre-call accounting figure (spec.md §4.3: "used only for pre-call
// accounting" — exactness is not required).
const avgCharsPerToken = 4.0

// Router selects a tier and renders its prompt template, grounded on the
// teacher's PromptManager key/provider registry (internal/llm/prompt_manager.go).
type Router struct {
	templates map[core.Tier]*template.Template
}

// New loads the embedded tier templates.
func New() (*Router, error) {
	r := &Router{templates: make(map[core.Tier]*template.Template)}

	entries, err := promptFiles.ReadDir("prompts")
	if err != nil {
		return nil, fmt.Errorf("read embedded prompts dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		tier := core.Tier(strings.TrimSuffix(name, filepath.Ext(name)))
		content, err := promptFiles.ReadFile("prompts/" + name)
		if err != nil {
			return nil, fmt.Errorf("read prompt file %s: %w", name, err)
		}
		tmpl, err := template.New(name).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("parse prompt template %s: %w", name, err)
		}
		r.templates[tier] = tmpl
	}

	return r, nil
}

// PromptData is passed to every tier template.
type PromptData struct {
	FilePath string
	Content  string
}

// Route implements spec.md §4.3's tier-selection rule.
func (r *Router) Route(path, content string, static core.StaticResult) core.RouteDecision {
	tier := recommendationToTier(static.Recommendation)
	lineCount := strings.Count(content, "\n") + 1

	if tier == core.TierStandard && lineCount <= smallFileLineThreshold {
		tier = core.TierMinimal
	}
	if tier == core.TierStandard && static.EstimatedLLMValue >= complexityUpgradeThreshold {
		tier = core.TierDeepDive
	}

	return core.RouteDecision{
		Tier:                 tier,
		EstimatedInputTokens: estimateTokens(content),
	}
}

// Render renders the chosen tier's prompt template over the file.
func (r *Router) Render(tier core.Tier, path, content string) (string, error) {
	tmpl, ok := r.templates[tier]
	if !ok {
		return "", fmt.Errorf("no prompt template registered for tier %q", tier)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, PromptData{FilePath: path, Content: content}); err != nil {
		return "", fmt.Errorf("render prompt for tier %q: %w", tier, err)
	}
	return buf.String(), nil
}

func recommendationToTier(rec core.Recommendation) core.Tier {
	switch rec {
	case core.RecommendationMinimal:
		return core.TierMinimal
	case core.RecommendationDeepDive:
		return core.TierDeepDive
	default:
		return core.TierStandard
	}
}

func estimateTokens(content string) int {
	n := int(float64(len(content)) / avgCharsPerToken)
	if n < 1 {
		return 1
	}
	return n
}
