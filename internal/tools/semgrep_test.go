package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelreview/sentinel/pkg/models"
)

const sarifSample = `{
  "runs": [
    {
      "results": [
        {
          "ruleId": "javascript.lang.security.audit.sqli.node-mysql-sqli",
          "level": "error",
          "message": {"text": "Detected SQL statement built from user input."},
          "locations": [
            {
              "physicalLocation": {
                "artifactLocation": {"uri": "src/db.ts"},
                "region": {"startLine": 42, "endLine": 44, "snippet": {"text": "db.query(sql)"}}
              }
            }
          ]
        },
        {
          "ruleId": "generic.perf.slow-regex",
          "level": "warning",
          "message": {"text": "Potentially catastrophic regex."},
          "locations": [
            {
              "physicalLocation": {
                "artifactLocation": {"uri": "src/match.ts"},
                "region": {"startLine": 7}
              }
            }
          ]
        },
        {
          "ruleId": "no-location-rule",
          "level": "note",
          "message": {"text": "orphan"},
          "locations": []
        }
      ]
    }
  ]
}`

func TestParseSARIF(t *testing.T) {
	issues, err := parseSARIF([]byte(sarifSample), "", "semgrep")
	require.NoError(t, err)
	require.Len(t, issues, 2, "results without a location are dropped")

	sqli := issues[0]
	assert.Equal(t, models.CategorySecurity, sqli.Category)
	assert.Equal(t, models.SeverityHigh, sqli.Severity)
	assert.Equal(t, "node-mysql-sqli", sqli.Subtype)
	assert.Equal(t, "src/db.ts", sqli.FilePath)
	assert.Equal(t, 42, sqli.LineStart)
	assert.Equal(t, 44, sqli.LineEnd)
	assert.Equal(t, "db.query(sql)", sqli.Evidence)

	perf := issues[1]
	assert.Equal(t, models.CategoryPerformance, perf.Category)
	assert.Equal(t, models.SeverityMedium, perf.Severity)
	assert.Equal(t, 7, perf.LineEnd, "missing endLine falls back to startLine")
}

func TestSemgrepCategoryDefaultsToSecurity(t *testing.T) {
	assert.Equal(t, models.CategorySecurity, semgrepCategory("some.unknown.rule"))
	assert.Equal(t, models.CategoryCorrectness, semgrepCategory("rules.bug.double-free"))
	assert.Equal(t, models.CategorySecurity, semgrepCategory("audit.xss.reflected"))
}

func TestParseSARIFRejectsGarbage(t *testing.T) {
	_, err := parseSARIF([]byte("<sarif/>"), "", "semgrep")
	assert.Error(t, err)
}
