package chunkindex

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sevigo/goframe/parsers"
)

// Extractor turns a file's content into chunk-index entries using the
// teacher's language-plugin registry (grounded on internal/llm/rag.go's
// ProcessFile), repurposed from RAG retrieval chunks into dedup chunks.
type Extractor struct {
	registry parsers.ParserRegistry
}

// NewExtractor registers the language plugins once and reuses them for
// every file in a scan.
func NewExtractor() (*Extractor, error) {
	registry, err := parsers.RegisterLanguagePlugins(nil)
	if err != nil {
		return nil, err
	}
	return &Extractor{registry: registry}, nil
}

// ExtractFile chunks one file's content into (Chunk, Location) pairs ready
// for Index.Upsert. Files the registry has no parser for yield no chunks —
// the chunk index is best-effort, not a requirement for scanning to proceed.
func (e *Extractor) ExtractFile(repoID int64, filePath, content string) ([]Chunk, []Location) {
	fullPath := filepath.Join(string(os.PathSeparator), filePath)
	parser, err := e.registry.GetParserForFile(fullPath, nil)
	if err != nil {
		return nil, nil
	}

	validContent := strings.ToValidUTF8(content, "")
	rawChunks, err := parser.Chunk(validContent, filePath, nil)
	if err != nil {
		return nil, nil
	}

	isTest := isTestFile(filePath)

	chunks := make([]Chunk, 0, len(rawChunks))
	locs := make([]Location, 0, len(rawChunks))
	for _, rc := range rawChunks {
		hash := HashChunk(rc.Content)
		chunks = append(chunks, Chunk{
			ContentHash: hash,
			EntityType:  rc.Type,
			EntityName:  rc.Identifier,
			Language:    languageOf(filePath),
			WordCount:   len(strings.Fields(rc.Content)),
			IsPublic:    isExported(rc.Identifier),
			IsTestCode:  isTest,
		})
		locs = append(locs, Location{
			ContentHash: hash,
			RepoID:      repoID,
			FilePath:    filePath,
			StartLine:   rc.LineStart,
			EndLine:     rc.LineEnd,
			EntityName:  rc.Identifier,
		})
	}
	return chunks, locs
}

func isTestFile(path string) bool {
	base := filepath.Base(path)
	return strings.Contains(base, "_test.") || strings.HasPrefix(base, "test_") || strings.Contains(base, ".test.")
}

// isExported follows Go's exported-identifier convention as a rough proxy
// across languages; entities without a resolvable first rune default to
// unexported.
func isExported(identifier string) bool {
	if identifier == "" {
		return false
	}
	r := []rune(identifier)[0]
	return r >= 'A' && r <= 'Z'
}

func languageOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return "go"
	case ".rs":
		return "rust"
	case ".py":
		return "python"
	case ".ts", ".tsx":
		return "typescript"
	case ".js":
		return "javascript"
	case ".java":
		return "java"
	case ".kt":
		return "kotlin"
	case ".rb":
		return "ruby"
	case ".sh":
		return "shell"
	default:
		return "unknown"
	}
}
