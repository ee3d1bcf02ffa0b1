package models

import (
	"fmt"
	"regexp"
	"strings"
)

// Field length bounds for Issue and ReviewOutput. Anything over these limits
// is rejected at validation time, not truncated.
const (
	MaxSubtypeLen      = 50
	MaxMessageLen      = 900
	MaxEvidenceLen     = 500
	MaxSuggestedFixLen = 500
	MaxPatchLen        = 2000
	MaxOWASPTagLen     = 20
	MaxSummaryLen      = 4000
	MaxExecSummaryLen  = 1000
)

var cwePattern = regexp.MustCompile(`^CWE-\d+$`)

var validCategories = map[IssueCategory]bool{
	CategorySecurity:        true,
	CategoryCorrectness:     true,
	CategoryPerformance:     true,
	CategoryMaintainability: true,
	CategoryStyle:           true,
	CategoryDependency:      true,
}

var validSeverities = map[IssueSeverity]bool{
	SeverityLow:      true,
	SeverityMedium:   true,
	SeverityHigh:     true,
	SeverityCritical: true,
}

// Validate checks every bounded field of the issue. An issue that fails
// validation is dropped by callers rather than repaired.
func (i *Issue) Validate() error {
	if !validCategories[i.Category] {
		return fmt.Errorf("invalid category %q", i.Category)
	}
	if len(i.Subtype) > MaxSubtypeLen {
		return fmt.Errorf("subtype exceeds %d chars", MaxSubtypeLen)
	}
	if !validSeverities[i.Severity] {
		return fmt.Errorf("invalid severity %q", i.Severity)
	}
	if i.Confidence < 0 || i.Confidence > 1 {
		return fmt.Errorf("confidence %f outside [0,1]", i.Confidence)
	}
	if i.FilePath == "" {
		return fmt.Errorf("file_path is required")
	}
	if strings.HasPrefix(i.FilePath, "/") {
		return fmt.Errorf("file_path must be relative, got %q", i.FilePath)
	}
	if i.LineStart < 1 {
		return fmt.Errorf("line_start must be positive, got %d", i.LineStart)
	}
	if i.LineEnd < i.LineStart {
		return fmt.Errorf("line_end %d before line_start %d", i.LineEnd, i.LineStart)
	}
	if i.Message == "" {
		return fmt.Errorf("message is required")
	}
	if len(i.Message) > MaxMessageLen {
		return fmt.Errorf("message exceeds %d chars", MaxMessageLen)
	}
	if len(i.Evidence) > MaxEvidenceLen {
		return fmt.Errorf("evidence exceeds %d chars", MaxEvidenceLen)
	}
	if len(i.SuggestedFix) > MaxSuggestedFixLen {
		return fmt.Errorf("suggested_fix exceeds %d chars", MaxSuggestedFixLen)
	}
	if len(i.Patch) > MaxPatchLen {
		return fmt.Errorf("patch exceeds %d chars", MaxPatchLen)
	}
	if i.CWE != "" && !cwePattern.MatchString(i.CWE) {
		return fmt.Errorf("cwe %q does not match CWE-N", i.CWE)
	}
	if len(i.OWASPTag) > MaxOWASPTagLen {
		return fmt.Errorf("owasp_tag exceeds %d chars", MaxOWASPTagLen)
	}
	return nil
}

// Validate checks the assembled review output before it is posted.
func (r *ReviewOutput) Validate() error {
	if r.RiskScore < 0 || r.RiskScore > 100 {
		return fmt.Errorf("risk_score %d outside [0,100]", r.RiskScore)
	}
	switch r.RiskLevel {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
	default:
		return fmt.Errorf("invalid risk_level %q", r.RiskLevel)
	}
	if len(r.SummaryMarkdown) > MaxSummaryLen {
		return fmt.Errorf("summary_markdown exceeds %d chars", MaxSummaryLen)
	}
	if len(r.ExecSummary) > MaxExecSummaryLen {
		return fmt.Errorf("exec_summary exceeds %d chars", MaxExecSummaryLen)
	}
	for idx := range r.InlineComments {
		if err := r.InlineComments[idx].Validate(); err != nil {
			return fmt.Errorf("inline comment %d: %w", idx, err)
		}
	}
	return nil
}

// Validate checks that a job carries everything a worker needs.
func (j *ReviewJob) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("job id is required")
	}
	if j.Owner == "" || j.Repo == "" {
		return fmt.Errorf("owner and repo are required")
	}
	if j.PRNumber < 1 {
		return fmt.Errorf("pr_number must be positive, got %d", j.PRNumber)
	}
	if j.InstallationID == 0 {
		return fmt.Errorf("installation_id is required")
	}
	return nil
}
