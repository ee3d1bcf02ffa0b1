package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelreview/sentinel/pkg/models"
)

const ruffSample = `[
  {"code": "S105", "message": "Possible hardcoded password.", "filename": "app/auth.py", "location": {"row": 9}, "end_location": {"row": 9}},
  {"code": "E501", "message": "Line too long.", "filename": "app/main.py", "location": {"row": 120}, "end_location": {"row": 120}},
  {"code": "C901", "message": "Function is too complex.", "filename": "app/main.py", "location": {"row": 30}, "end_location": {"row": 30}},
  {"code": "D100", "message": "Missing docstring.", "filename": "app/main.py", "location": {"row": 1}, "end_location": {"row": 1}}
]`

func TestParseRuffOutput(t *testing.T) {
	issues, err := parseRuffOutput([]byte(ruffSample), "")
	require.NoError(t, err)
	require.Len(t, issues, 4)

	assert.Equal(t, models.CategorySecurity, issues[0].Category)
	assert.Equal(t, models.CategoryCorrectness, issues[1].Category)
	assert.Equal(t, models.CategoryMaintainability, issues[2].Category)
	assert.Equal(t, models.CategoryStyle, issues[3].Category)

	for _, iss := range issues {
		assert.Equal(t, models.SeverityLow, iss.Severity)
		assert.InDelta(t, 0.9, iss.Confidence, 1e-9)
		assert.Equal(t, "ruff", iss.SourceTool)
	}
}

const banditSample = `{
  "results": [
    {
      "filename": "app/db.py",
      "issue_severity": "HIGH",
      "issue_confidence": "HIGH",
      "issue_text": "Possible SQL injection vector through string-based query construction.",
      "line_number": 23,
      "test_id": "B608",
      "issue_cwe": {"id": 89}
    },
    {
      "filename": "app/util.py",
      "issue_severity": "MEDIUM",
      "issue_confidence": "LOW",
      "issue_text": "Use of insecure MD2, MD4, MD5 hash function.",
      "line_number": 5,
      "test_id": "B303",
      "issue_cwe": {"id": 327}
    }
  ]
}`

func TestParseBanditOutput(t *testing.T) {
	issues, err := parseBanditOutput([]byte(banditSample), "")
	require.NoError(t, err)
	require.Len(t, issues, 2)

	sqli := issues[0]
	assert.Equal(t, models.CategorySecurity, sqli.Category)
	assert.Equal(t, models.SeverityHigh, sqli.Severity)
	assert.InDelta(t, 0.9, sqli.Confidence, 1e-9)
	assert.Equal(t, "CWE-89", sqli.CWE)
	assert.Equal(t, "B608", sqli.Subtype)
	assert.Equal(t, 23, sqli.LineStart)

	hash := issues[1]
	assert.Equal(t, models.SeverityMedium, hash.Severity)
	assert.InDelta(t, 0.5, hash.Confidence, 1e-9)
	assert.Equal(t, "CWE-327", hash.CWE)
}

func TestScannerSeverityMapping(t *testing.T) {
	assert.Equal(t, models.SeverityHigh, scannerSeverity("HIGH"))
	assert.Equal(t, models.SeverityMedium, scannerSeverity("MEDIUM"))
	assert.Equal(t, models.SeverityLow, scannerSeverity("LOW"))
	assert.Equal(t, models.SeverityLow, scannerSeverity("UNDEFINED"))
}
