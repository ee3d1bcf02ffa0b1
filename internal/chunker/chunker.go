// Package chunker splits a parsed diff into LLM-sized chunks. Files are
// never split across chunks; a single file larger than the token budget
// becomes its own oversized chunk rather than being truncated.
package chunker

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sentinelreview/sentinel/pkg/models"
)

// Config controls chunk sizing.
type Config struct {
	MaxTokens         int
	OverlapTokens     int // accepted for config compatibility; files are never split
	MaxFilesPerChunk  int
	KeepFilesTogether bool
}

// DefaultConfig returns the default chunking limits.
func DefaultConfig() Config {
	return Config{
		MaxTokens:         12000,
		MaxFilesPerChunk:  10,
		KeepFilesTogether: true,
	}
}

// Chunker batches diff files into prompt-sized chunks.
type Chunker struct {
	cfg Config
}

// New creates a chunker with the given config.
func New(cfg Config) *Chunker {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultConfig().MaxTokens
	}
	if cfg.MaxFilesPerChunk <= 0 {
		cfg.MaxFilesPerChunk = DefaultConfig().MaxFilesPerChunk
	}
	return &Chunker{cfg: cfg}
}

// EstimateTokens estimates token count as ceil(chars/4), the standard rough
// heuristic for code.
func EstimateTokens(content string) int {
	return (len(content) + 3) / 4
}

// Split batches the files of a diff in input order. The concatenation of
// chunk files partitions the input exactly.
func (c *Chunker) Split(parsed *models.ParsedDiff) []models.Chunk {
	var chunks []models.Chunk

	var batch []models.DiffFile
	batchTokens := 0

	flush := func() {
		if len(batch) == 0 {
			return
		}
		chunks = append(chunks, c.buildChunk(len(chunks), batch))
		batch = nil
		batchTokens = 0
	}

	for _, f := range parsed.Files {
		fileTokens := EstimateTokens(FormatFile(&f))

		if fileTokens > c.cfg.MaxTokens && len(batch) > 0 {
			// Oversized file gets its own single-file chunk.
			flush()
		} else if len(batch) > 0 &&
			(batchTokens+fileTokens > c.cfg.MaxTokens || len(batch) >= c.cfg.MaxFilesPerChunk) {
			flush()
		}

		batch = append(batch, f)
		batchTokens += fileTokens
	}
	flush()

	for i := range chunks {
		chunks[i].TotalChunks = len(chunks)
	}
	return chunks
}

func (c *Chunker) buildChunk(index int, files []models.DiffFile) models.Chunk {
	var content strings.Builder
	paths := make([]string, 0, len(files))
	langSet := map[string]bool{}

	for i := range files {
		f := &files[i]
		paths = append(paths, f.Path())
		if lang := LanguageOf(f.Path()); lang != "" {
			langSet[lang] = true
		}
		content.WriteString(FormatFile(f))
	}

	languages := make([]string, 0, len(langSet))
	for lang := range langSet {
		languages = append(languages, lang)
	}
	sort.Strings(languages)

	text := content.String()
	return models.Chunk{
		Index:           index,
		Files:           files,
		FilePaths:       paths,
		Content:         text,
		EstimatedTokens: EstimateTokens(text),
		Languages:       languages,
	}
}

// FormatFile renders one diff file the way it appears inside a chunk and in
// the LLM prompt.
func FormatFile(f *models.DiffFile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### File: %s (%s)\n", f.Path(), f.ChangeKind)
	if f.ChangeKind == models.ChangeRename {
		fmt.Fprintf(&b, "renamed from %s\n", f.OldPath)
	}
	for _, h := range f.Hunks {
		b.WriteString(h.Content)
		if !strings.HasSuffix(h.Content, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
	return b.String()
}

// languageByExt maps file extensions to chunk language tags.
var languageByExt = map[string]string{
	".go":    "go",
	".js":    "javascript",
	".jsx":   "javascript",
	".mjs":   "javascript",
	".cjs":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".py":    "python",
	".rb":    "ruby",
	".java":  "java",
	".kt":    "kotlin",
	".rs":    "rust",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".php":   "php",
	".swift": "swift",
	".scala": "scala",
	".sh":    "shell",
	".bash":  "shell",
	".sql":   "sql",
	".yaml":  "yaml",
	".yml":   "yaml",
	".json":  "json",
	".toml":  "toml",
	".tf":    "terraform",
	".proto": "protobuf",
}

// LanguageOf returns the language tag for a path, or "" when unknown.
func LanguageOf(path string) string {
	return languageByExt[strings.ToLower(filepath.Ext(path))]
}
