// Package filter implements the path filter (C1): a zero-cost classifier
// deciding whether a file is worth analyzing at all, before any static
// analysis or LLM call.
package filter

import "strings"

// allowedExtensions lists the analyzable source extensions (spec.md §4.1).
var allowedExtensions = map[string]bool{
	".rs": true, ".py": true, ".js": true, ".ts": true, ".tsx": true,
	".sh": true, ".kt": true, ".java": true, ".go": true, ".rb": true,
}

// skipSegments are generated/vendored directory names; matched as whole path
// segments, never substrings (grounded on original_source's SKIP_DIRS).
var skipSegments = []string{
	"dist", "build", "node_modules", "target", ".git", "vendor",
	"__pycache__", ".next", "out", "coverage", ".cache",
}

// skipSuffixes are file-name suffixes always rejected regardless of
// extension (grounded on original_source's SKIP_SUFFIXES).
var skipSuffixes = []string{
	".min.js", ".min.css", ".map", ".bundle.js", ".chunk.js", ".min.mjs",
	".d.ts", ".lock",
}

// Normalize converts Windows backslash paths to forward slashes.
func Normalize(path string) string {
	return strings.ReplaceAll(path, "\\", "/")
}

// IsAnalyzableExtension reports whether the file's extension is on the
// allow-list.
func IsAnalyzableExtension(path string) bool {
	path = Normalize(path)
	for ext := range allowedExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// IsSkipPath reports whether the path contains a denied directory segment.
// The path is wrapped in leading/trailing slashes before the substring test
// so only whole segments match ("dist" but not "distribution").
func IsSkipPath(path string) bool {
	wrapped := "/" + strings.Trim(Normalize(path), "/") + "/"
	for _, seg := range skipSegments {
		if strings.Contains(wrapped, "/"+seg+"/") {
			return true
		}
	}
	return false
}

// IsSkipSuffix reports whether the path ends in a denied suffix.
func IsSkipSuffix(path string) bool {
	path = Normalize(path)
	for _, suf := range skipSuffixes {
		if strings.HasSuffix(path, suf) {
			return true
		}
	}
	return false
}

// ShouldAnalyze is the P1 invariant: a file is analyzable iff
// allow-by-extension AND NOT deny-by-path AND NOT deny-by-suffix.
func ShouldAnalyze(path string) bool {
	return IsAnalyzableExtension(path) && !IsSkipPath(path) && !IsSkipSuffix(path)
}

// FilterPaths returns the subset of paths that should be analyzed,
// preserving order.
func FilterPaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if ShouldAnalyze(p) {
			out = append(out, p)
		}
	}
	return out
}
