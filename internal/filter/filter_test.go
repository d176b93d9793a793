package filter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sevigo/audit-scanner/internal/filter"
)

func TestShouldAnalyze_WholeSegmentDeny(t *testing.T) {
	assert.False(t, filter.ShouldAnalyze("src/clients/web/dist/fks-web-kmp.js"))
	assert.True(t, filter.ShouldAnalyze("src/distribution/calc.py"))
	assert.False(t, filter.ShouldAnalyze("node_modules/lodash/index.js"))
	assert.True(t, filter.ShouldAnalyze("src/main.rs"))
}

func TestShouldAnalyze_Suffixes(t *testing.T) {
	assert.False(t, filter.ShouldAnalyze("app.min.js"))
	assert.False(t, filter.ShouldAnalyze("types.d.ts"))
	assert.False(t, filter.ShouldAnalyze("yarn.lock"))
}

func TestShouldAnalyze_Extension(t *testing.T) {
	assert.False(t, filter.ShouldAnalyze("README.md"))
	assert.True(t, filter.ShouldAnalyze("main.go"))
}

func TestShouldAnalyze_WindowsPath(t *testing.T) {
	assert.False(t, filter.ShouldAnalyze(`node_modules\lodash\index.js`))
}

func TestFilterPaths(t *testing.T) {
	in := []string{
		"src/clients/web/dist/fks-web-kmp.js",
		"src/distribution/calc.py",
		"node_modules/lodash/index.js",
		"src/main.rs",
	}
	got := filter.FilterPaths(in)
	assert.Equal(t, []string{"src/distribution/calc.py", "src/main.rs"}, got)
}
