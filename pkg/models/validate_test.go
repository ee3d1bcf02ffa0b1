package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validIssue() Issue {
	return Issue{
		ID:         "iss-1",
		Category:   CategorySecurity,
		Subtype:    "sql-injection",
		Severity:   SeverityHigh,
		Confidence: 0.9,
		FilePath:   "internal/db/query.go",
		LineStart:  10,
		LineEnd:    12,
		Message:    "user input concatenated into SQL query",
		Evidence:   `db.Query("SELECT * FROM t WHERE id = " + id)`,
		CWE:        "CWE-89",
	}
}

func TestIssueValidateAccepts(t *testing.T) {
	iss := validIssue()
	require.NoError(t, iss.Validate())
}

func TestIssueValidateBounds(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Issue)
	}{
		{"bad category", func(i *Issue) { i.Category = "cosmetics" }},
		{"bad severity", func(i *Issue) { i.Severity = "fatal" }},
		{"confidence over 1", func(i *Issue) { i.Confidence = 1.01 }},
		{"negative confidence", func(i *Issue) { i.Confidence = -0.1 }},
		{"empty file path", func(i *Issue) { i.FilePath = "" }},
		{"absolute file path", func(i *Issue) { i.FilePath = "/etc/passwd" }},
		{"zero line start", func(i *Issue) { i.LineStart = 0 }},
		{"line end before start", func(i *Issue) { i.LineEnd = i.LineStart - 1 }},
		{"empty message", func(i *Issue) { i.Message = "" }},
		{"long subtype", func(i *Issue) { i.Subtype = strings.Repeat("x", MaxSubtypeLen+1) }},
		{"long evidence", func(i *Issue) { i.Evidence = strings.Repeat("x", MaxEvidenceLen+1) }},
		{"long fix", func(i *Issue) { i.SuggestedFix = strings.Repeat("x", MaxSuggestedFixLen+1) }},
		{"long patch", func(i *Issue) { i.Patch = strings.Repeat("x", MaxPatchLen+1) }},
		{"bad cwe", func(i *Issue) { i.CWE = "CWE-abc" }},
		{"long owasp tag", func(i *Issue) { i.OWASPTag = strings.Repeat("A", MaxOWASPTagLen+1) }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			iss := validIssue()
			tc.mutate(&iss)
			assert.Error(t, iss.Validate())
		})
	}
}

func TestIssueMessageBoundaryExact(t *testing.T) {
	iss := validIssue()
	iss.Message = strings.Repeat("m", MaxMessageLen)
	assert.NoError(t, iss.Validate())

	iss.Message = strings.Repeat("m", MaxMessageLen+1)
	assert.Error(t, iss.Validate())
}

func TestSeverityRankOrdering(t *testing.T) {
	assert.Greater(t, SeverityRank(SeverityCritical), SeverityRank(SeverityHigh))
	assert.Greater(t, SeverityRank(SeverityHigh), SeverityRank(SeverityMedium))
	assert.Greater(t, SeverityRank(SeverityMedium), SeverityRank(SeverityLow))
	assert.Greater(t, SeverityRank(SeverityLow), SeverityRank(IssueSeverity("bogus")))
}

func TestDiffFilePathFallsBackToOldPath(t *testing.T) {
	f := DiffFile{OldPath: "pkg/old.go", ChangeKind: ChangeDelete}
	assert.Equal(t, "pkg/old.go", f.Path())

	f.NewPath = "pkg/new.go"
	assert.Equal(t, "pkg/new.go", f.Path())
}

func TestReviewJobValidate(t *testing.T) {
	job := ReviewJob{ID: "j1", Owner: "acme", Repo: "widgets", PRNumber: 7, InstallationID: 42}
	require.NoError(t, job.Validate())

	job.InstallationID = 0
	assert.Error(t, job.Validate())
}
