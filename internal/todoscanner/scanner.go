// Package todoscanner classifies TODO/FIXME/XXX/HACK/NOTE markers in source
// text by priority, feeding the static analyzer's estimated_llm_value and
// DEEP_DIVE red-flag check (SPEC_FULL.md §4.1).
package todoscanner

import (
	"bufio"
	"regexp"
	"strings"

	"github.com/sevigo/audit-scanner/internal/core"
)

// Priority mirrors original_source/src/todo_scanner.rs's TodoPriority.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

var markerPattern = regexp.MustCompile(`(?i)(?://|#)\s*(TODO|FIXME|HACK|XXX|NOTE):?\s*(.*)`)

var highPriorityWords = []string{
	"fixme", "xxx", "urgent", "critical", "bug", "security", "important", "asap",
}

var lowPriorityWords = []string{
	"note", "maybe", "consider", "nice to have", "optional", "future",
}

// Item is a single detected marker.
type Item struct {
	Line     int
	Text     string
	Priority Priority
}

// Scanner implements core.TodoScanner over raw file content.
type Scanner struct{}

// New returns a Scanner. It carries no state; every call is pure over its
// input content.
func New() *Scanner {
	return &Scanner{}
}

// Scan finds TODO-like markers line by line and returns the aggregate the
// static analyzer consumes.
func (s *Scanner) Scan(content string) core.TodoSummary {
	items := s.ScanItems(content)
	summary := core.TodoSummary{Total: len(items)}
	for _, it := range items {
		switch it.Priority {
		case PriorityHigh:
			summary.CriticalCount++
			summary.HighCount++
		case PriorityMedium:
			// counted only in Total
		}
	}
	return summary
}

// ScanItems returns every marker found, in file order.
func (s *Scanner) ScanItems(content string) []Item {
	var items []Item
	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		m := markerPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		text := strings.TrimSpace(m[2])
		items = append(items, Item{
			Line:     lineNum,
			Text:     text,
			Priority: inferPriority(line, text),
		})
	}
	return items
}

// inferPriority mirrors original_source/src/todo_scanner.rs's infer_priority:
// high-priority keyword hits win, then low-priority hits, default medium.
func inferPriority(line, text string) Priority {
	lowerLine := strings.ToLower(line)
	lowerText := strings.ToLower(text)

	for _, w := range highPriorityWords {
		if strings.Contains(lowerLine, w) || strings.Contains(lowerText, w) {
			return PriorityHigh
		}
	}
	for _, w := range lowPriorityWords {
		if strings.Contains(lowerLine, w) || strings.Contains(lowerText, w) {
			return PriorityLow
		}
	}
	return PriorityMedium
}
