package promptrouter_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/audit-scanner/internal/core"
	"github.com/sevigo/audit-scanner/internal/promptrouter"
)

func TestRoute_DowngradesSmallStandardToMinimal(t *testing.T) {
	r, err := promptrouter.New()
	require.NoError(t, err)

	content := "line\n"
	decision := r.Route("f.go", content, core.StaticResult{Recommendation: core.RecommendationStandard, EstimatedLLMValue: 0.3})
	assert.Equal(t, core.TierMinimal, decision.Tier)
}

func TestRoute_UpgradesComplexStandardToDeepDive(t *testing.T) {
	r, err := promptrouter.New()
	require.NoError(t, err)

	content := strings.Repeat("line\n", 100)
	decision := r.Route("f.go", content, core.StaticResult{Recommendation: core.RecommendationStandard, EstimatedLLMValue: 0.9})
	assert.Equal(t, core.TierDeepDive, decision.Tier)
}

func TestRender_Minimal(t *testing.T) {
	r, err := promptrouter.New()
	require.NoError(t, err)

	out, err := r.Render(core.TierMinimal, "f.go", "package f\n")
	require.NoError(t, err)
	assert.Contains(t, out, "f.go")
	assert.Contains(t, out, "package f")
}
