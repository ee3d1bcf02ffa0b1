package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sentinelreview/sentinel/pkg/models"
)

type BanditRunner struct {
	Timeout time.Duration
}

func NewBanditRunner() *BanditRunner {
	return &BanditRunner{Timeout: DefaultTimeout}
}

func (r *BanditRunner) Name() string { return "bandit" }

func (r *BanditRunner) IsAvailable(string) bool { return binaryOnPath("bandit") }

func (r *BanditRunner) Run(ctx context.Context, in Input) models.ToolResult {
	targets := filterByExt(in.Files, ".py")
	if len(targets) == 0 {
		return models.ToolResult{Tool: r.Name(), Success: true}
	}

	args := append([]string{"-f", "json"}, targets...)
	res := runCommand(ctx, in.Workdir, r.Timeout, "bandit", args...)
	if res.timedOut {
		return timedOut(r.Name())
	}
	if res.err != nil {
		return execFailed(r.Name(), res.err)
	}

	issues, err := parseBanditOutput(res.stdout, in.Workdir)
	if err != nil {
		return execFailed(r.Name(), err)
	}
	return models.ToolResult{Tool: r.Name(), Success: true, Issues: issues}
}

type banditReport struct {
	Results []struct {
		Filename        string `json:"filename"`
		IssueSeverity   string `json:"issue_severity"`
		IssueConfidence string `json:"issue_confidence"`
		IssueText       string `json:"issue_text"`
		LineNumber      int    `json:"line_number"`
		TestID          string `json:"test_id"`
		IssueCWE        struct {
			ID int `json:"id"`
		} `json:"issue_cwe"`
	} `json:"results"`
}

func parseBanditOutput(out []byte, workdir string) ([]models.Issue, error) {
	var report banditReport
	if err := json.Unmarshal(out, &report); err != nil {
		return nil, err
	}

	var issues []models.Issue
	for _, res := range report.Results {
		issue := models.Issue{
			ID:         newIssueID(),
			Category:   models.CategorySecurity,
			Subtype:    res.TestID,
			Severity:   scannerSeverity(res.IssueSeverity),
			Confidence: scannerConfidence(res.IssueConfidence),
			FilePath:   relPath(workdir, res.Filename),
			LineStart:  res.LineNumber,
			LineEnd:    res.LineNumber,
			Message:    res.IssueText,
			SourceTool: "bandit",
		}
		if res.IssueCWE.ID > 0 {
			issue.CWE = fmt.Sprintf("CWE-%d", res.IssueCWE.ID)
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

// scannerSeverity maps the HIGH/MEDIUM/LOW scale bandit and gosec share.
func scannerSeverity(s string) models.IssueSeverity {
	switch s {
	case "HIGH":
		return models.SeverityHigh
	case "MEDIUM":
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

func scannerConfidence(c string) float64 {
	switch c {
	case "HIGH":
		return 0.9
	case "MEDIUM":
		return 0.7
	default:
		return 0.5
	}
}
