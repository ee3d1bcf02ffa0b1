package tools

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/sentinelreview/sentinel/pkg/models"
)

type GosecRunner struct {
	Timeout time.Duration
}

func NewGosecRunner() *GosecRunner {
	return &GosecRunner{Timeout: DefaultTimeout}
}

func (r *GosecRunner) Name() string { return "gosec" }

func (r *GosecRunner) IsAvailable(string) bool { return binaryOnPath("gosec") }

func (r *GosecRunner) Run(ctx context.Context, in Input) models.ToolResult {
	if len(filterByExt(in.Files, ".go")) == 0 {
		return models.ToolResult{Tool: r.Name(), Success: true}
	}

	res := runCommand(ctx, in.Workdir, r.Timeout, "gosec", "-fmt=json", "-quiet", "./...")
	if res.timedOut {
		return timedOut(r.Name())
	}
	if res.err != nil {
		return execFailed(r.Name(), res.err)
	}

	issues, err := parseGosecOutput(res.stdout, in.Workdir)
	if err != nil {
		return execFailed(r.Name(), err)
	}
	return models.ToolResult{Tool: r.Name(), Success: true, Issues: issues}
}

type gosecReport struct {
	Issues []struct {
		Severity   string `json:"severity"`
		Confidence string `json:"confidence"`
		RuleID     string `json:"rule_id"`
		Details    string `json:"details"`
		File       string `json:"file"`
		Code       string `json:"code"`
		Line       string `json:"line"` // "12" or "12-14"
		CWE        struct {
			ID string `json:"id"`
		} `json:"cwe"`
	} `json:"Issues"`
}

func parseGosecOutput(out []byte, workdir string) ([]models.Issue, error) {
	var report gosecReport
	if err := json.Unmarshal(out, &report); err != nil {
		return nil, err
	}

	var issues []models.Issue
	for _, g := range report.Issues {
		start, end := parseLineRange(g.Line)
		issue := models.Issue{
			ID:         newIssueID(),
			Category:   models.CategorySecurity,
			Subtype:    g.RuleID,
			Severity:   scannerSeverity(g.Severity),
			Confidence: scannerConfidence(g.Confidence),
			FilePath:   relPath(workdir, g.File),
			LineStart:  start,
			LineEnd:    end,
			Message:    g.Details,
			Evidence:   truncate(g.Code, 500),
			SourceTool: "gosec",
		}
		if g.CWE.ID != "" {
			issue.CWE = "CWE-" + g.CWE.ID
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

func parseLineRange(s string) (start, end int) {
	start, end = 1, 1
	if i := strings.Index(s, "-"); i >= 0 {
		if n, err := strconv.Atoi(s[:i]); err == nil {
			start = n
		}
		if n, err := strconv.Atoi(s[i+1:]); err == nil && n >= start {
			end = n
		} else {
			end = start
		}
		return start, end
	}
	if n, err := strconv.Atoi(s); err == nil {
		start, end = n, n
	}
	return start, end
}
