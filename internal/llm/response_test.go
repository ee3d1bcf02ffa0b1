package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelreview/sentinel/pkg/models"
)

func testChunk(paths ...string) *models.Chunk {
	return &models.Chunk{Index: 0, TotalChunks: 1, FilePaths: paths}
}

const goodResponse = `Here is my review:
` + "```json" + `
{
  "issues": [
    {
      "category": "security",
      "subtype": "sql-injection",
      "severity": "high",
      "confidence": 0.9,
      "file_path": "src/db.ts",
      "line_start": 42,
      "line_end": 44,
      "message": "Query is built by string concatenation from user input.",
      "evidence": "db.query('SELECT * FROM users WHERE id = ' + id)",
      "suggested_fix": "Use a parameterized query."
    }
  ]
}
` + "```"

func TestParseResponseFencedBlock(t *testing.T) {
	issues := ParseResponse(goodResponse, testChunk("src/db.ts"), "llm-openai")
	require.Len(t, issues, 1)

	iss := issues[0]
	assert.Equal(t, models.CategorySecurity, iss.Category)
	assert.Equal(t, "llm-openai", iss.SourceTool)
	assert.True(t, iss.IsLLMGenerated)
	assert.NotEmpty(t, iss.ID)
}

func TestParseResponseBareJSON(t *testing.T) {
	raw := `The analysis follows. {"issues": [{"category": "style", "severity": "low", "confidence": 0.6, "file_path": "a.go", "line_start": 1, "line_end": 1, "message": "m"}]} Done.`
	issues := ParseResponse(raw, testChunk("a.go"), "llm")
	assert.Len(t, issues, 1)
}

func TestParseResponseRepairsTruncatedJSON(t *testing.T) {
	// Trailing comma and missing closing braces, as truncated completions
	// produce.
	raw := `{"issues": [{"category": "correctness", "severity": "medium", "confidence": 0.7, "file_path": "a.go", "line_start": 3, "line_end": 3, "message": "off by one",`
	issues := ParseResponse(raw, testChunk("a.go"), "llm")
	require.Len(t, issues, 1)
	assert.Equal(t, models.CategoryCorrectness, issues[0].Category)
}

func TestParseResponseDropsHallucinatedPaths(t *testing.T) {
	raw := `{"issues": [
      {"category": "security", "severity": "high", "confidence": 0.9, "file_path": "etc/passwd", "line_start": 1, "line_end": 1, "message": "x"},
      {"category": "style", "severity": "low", "confidence": 0.6, "file_path": "b/src/app.ts", "line_start": 2, "line_end": 2, "message": "y"}
    ]}`
	issues := ParseResponse(raw, testChunk("src/app.ts"), "llm")
	require.Len(t, issues, 1, "paths outside the chunk are dropped; prefixed paths survive")
	assert.Equal(t, "b/src/app.ts", issues[0].FilePath)
}

func TestParseResponseDropsInvalidIssues(t *testing.T) {
	raw := `{"issues": [
      {"category": "security", "severity": "high", "confidence": 1.5, "file_path": "a.go", "line_start": 1, "line_end": 1, "message": "confidence out of range"},
      {"category": "nonsense", "severity": "high", "confidence": 0.9, "file_path": "a.go", "line_start": 1, "line_end": 1, "message": "bad category"},
      {"category": "security", "severity": "high", "confidence": 0.9, "file_path": "a.go", "line_start": 5, "line_end": 3, "message": "end before start"}
    ]}`
	issues := ParseResponse(raw, testChunk("a.go"), "llm")
	assert.Empty(t, issues)
}

func TestParseResponseGarbage(t *testing.T) {
	assert.Empty(t, ParseResponse("I could not analyze this diff.", testChunk("a.go"), "llm"))
	assert.Empty(t, ParseResponse("", testChunk("a.go"), "llm"))
}

func TestExtractJSONPrefersFence(t *testing.T) {
	raw := "{\"decoy\": true}\n```json\n{\"issues\": []}\n```"
	assert.Equal(t, `{"issues": []}`, extractJSON(raw))
}

func TestPathInChunk(t *testing.T) {
	paths := []string{"src/app.ts", "src/db.ts"}
	assert.True(t, pathInChunk("src/app.ts", paths))
	assert.True(t, pathInChunk("a/src/app.ts", paths), "prefixed path matches")
	assert.True(t, pathInChunk("app.ts", paths), "suffix matches the other direction")
	assert.False(t, pathInChunk("src/other.ts", paths))
	assert.False(t, pathInChunk("", paths))
}
