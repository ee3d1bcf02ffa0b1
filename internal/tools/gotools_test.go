package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelreview/sentinel/pkg/models"
)

const gosecSample = `{
  "Issues": [
    {
      "severity": "HIGH",
      "confidence": "MEDIUM",
      "rule_id": "G401",
      "details": "Use of weak cryptographic primitive",
      "file": "/sandbox/crypto.go",
      "code": "md5.New()",
      "line": "14",
      "cwe": {"id": "328"}
    },
    {
      "severity": "LOW",
      "confidence": "HIGH",
      "rule_id": "G104",
      "details": "Errors unhandled",
      "file": "/sandbox/io.go",
      "code": "f.Close()",
      "line": "30-32",
      "cwe": {"id": "703"}
    }
  ]
}`

func TestParseGosecOutput(t *testing.T) {
	issues, err := parseGosecOutput([]byte(gosecSample), "/sandbox")
	require.NoError(t, err)
	require.Len(t, issues, 2)

	weak := issues[0]
	assert.Equal(t, models.CategorySecurity, weak.Category)
	assert.Equal(t, models.SeverityHigh, weak.Severity)
	assert.InDelta(t, 0.7, weak.Confidence, 1e-9)
	assert.Equal(t, "crypto.go", weak.FilePath)
	assert.Equal(t, 14, weak.LineStart)
	assert.Equal(t, "CWE-328", weak.CWE)

	ranged := issues[1]
	assert.Equal(t, 30, ranged.LineStart)
	assert.Equal(t, 32, ranged.LineEnd)
}

func TestParseLineRange(t *testing.T) {
	start, end := parseLineRange("7")
	assert.Equal(t, 7, start)
	assert.Equal(t, 7, end)

	start, end = parseLineRange("10-15")
	assert.Equal(t, 10, start)
	assert.Equal(t, 15, end)

	start, end = parseLineRange("garbage")
	assert.Equal(t, 1, start)
	assert.Equal(t, 1, end)
}

const staticcheckSample = `{"code": "SA1019", "severity": "warning", "message": "x is deprecated", "location": {"file": "main.go", "line": 8}, "end": {"line": 8}}
{"code": "ST1003", "severity": "note", "message": "should not use underscores", "location": {"file": "util.go", "line": 3}, "end": {"line": 3}}
not-json-noise
{"code": "S1002", "severity": "error", "message": "omit comparison with true", "location": {"file": "main.go", "line": 21}, "end": {"line": 21}}`

func TestParseStaticcheckOutput(t *testing.T) {
	issues := parseStaticcheckOutput([]byte(staticcheckSample), "")
	require.Len(t, issues, 3, "malformed lines are skipped")

	assert.Equal(t, models.CategorySecurity, issues[0].Category)
	assert.Equal(t, models.SeverityMedium, issues[0].Severity)

	assert.Equal(t, models.CategoryStyle, issues[1].Category)
	assert.Equal(t, models.SeverityLow, issues[1].Severity)

	assert.Equal(t, models.CategoryCorrectness, issues[2].Category)
	assert.Equal(t, models.SeverityHigh, issues[2].Severity)
}

func TestStaticcheckCategoryPrefixOrder(t *testing.T) {
	assert.Equal(t, models.CategorySecurity, staticcheckCategory("SA4006"))
	assert.Equal(t, models.CategoryStyle, staticcheckCategory("ST1000"))
	assert.Equal(t, models.CategoryCorrectness, staticcheckCategory("S1000"))
	assert.Equal(t, models.CategoryMaintainability, staticcheckCategory("QF1001"))
}

const govetSample = `# example.com/app
{
  "example.com/app": {
    "printf": [
      {"posn": "/sandbox/main.go:17:2", "message": "Sprintf format %d has arg s of wrong type string"}
    ],
    "unreachable": [
      {"posn": "/sandbox/loop.go:40:3", "message": "unreachable code"}
    ]
  }
}`

func TestParseGoVetOutput(t *testing.T) {
	issues := parseGoVetOutput([]byte(govetSample), "/sandbox")
	require.Len(t, issues, 2)

	for _, iss := range issues {
		assert.Equal(t, models.CategoryCorrectness, iss.Category)
		assert.Equal(t, models.SeverityMedium, iss.Severity)
		assert.InDelta(t, 0.9, iss.Confidence, 1e-9)
		assert.Equal(t, "govet", iss.SourceTool)
	}

	byAnalyzer := map[string]models.Issue{}
	for _, iss := range issues {
		byAnalyzer[iss.Subtype] = iss
	}
	assert.Equal(t, "main.go", byAnalyzer["printf"].FilePath)
	assert.Equal(t, 17, byAnalyzer["printf"].LineStart)
	assert.Equal(t, "loop.go", byAnalyzer["unreachable"].FilePath)
}

func TestParseGoVetOutputEmptyStderr(t *testing.T) {
	assert.Empty(t, parseGoVetOutput(nil, ""))
	assert.Empty(t, parseGoVetOutput([]byte("# pkg\n"), ""))
}
