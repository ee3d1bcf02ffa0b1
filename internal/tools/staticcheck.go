package tools

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/sentinelreview/sentinel/pkg/models"
)

type StaticcheckRunner struct {
	Timeout time.Duration
}

func NewStaticcheckRunner() *StaticcheckRunner {
	return &StaticcheckRunner{Timeout: DefaultTimeout}
}

func (r *StaticcheckRunner) Name() string { return "staticcheck" }

func (r *StaticcheckRunner) IsAvailable(string) bool { return binaryOnPath("staticcheck") }

func (r *StaticcheckRunner) Run(ctx context.Context, in Input) models.ToolResult {
	if len(filterByExt(in.Files, ".go")) == 0 {
		return models.ToolResult{Tool: r.Name(), Success: true}
	}

	res := runCommand(ctx, in.Workdir, r.Timeout, "staticcheck", "-f", "json", "./...")
	if res.timedOut {
		return timedOut(r.Name())
	}
	if res.err != nil {
		return execFailed(r.Name(), res.err)
	}

	return models.ToolResult{
		Tool:    r.Name(),
		Success: true,
		Issues:  parseStaticcheckOutput(res.stdout, in.Workdir),
	}
}

type staticcheckFinding struct {
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Location struct {
		File string `json:"file"`
		Line int    `json:"line"`
	} `json:"location"`
	End struct {
		Line int `json:"line"`
	} `json:"end"`
}

// parseStaticcheckOutput reads newline-delimited JSON; malformed lines are
// skipped rather than failing the whole run.
func parseStaticcheckOutput(out []byte, workdir string) []models.Issue {
	var issues []models.Issue
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var f staticcheckFinding
		if err := json.Unmarshal(line, &f); err != nil || f.Code == "" {
			continue
		}
		end := f.End.Line
		if end < f.Location.Line {
			end = f.Location.Line
		}
		issues = append(issues, models.Issue{
			ID:         newIssueID(),
			Category:   staticcheckCategory(f.Code),
			Subtype:    f.Code,
			Severity:   staticcheckSeverity(f.Severity),
			Confidence: 0.9,
			FilePath:   relPath(workdir, f.Location.File),
			LineStart:  f.Location.Line,
			LineEnd:    end,
			Message:    f.Message,
			SourceTool: "staticcheck",
		})
	}
	return issues
}

func staticcheckSeverity(s string) models.IssueSeverity {
	switch s {
	case "error":
		return models.SeverityHigh
	case "warning":
		return models.SeverityMedium
	default: // note, ignored
		return models.SeverityLow
	}
}

func staticcheckCategory(code string) models.IssueCategory {
	switch {
	case strings.HasPrefix(code, "SA"):
		return models.CategorySecurity
	case strings.HasPrefix(code, "ST"):
		return models.CategoryStyle
	case strings.HasPrefix(code, "S"):
		return models.CategoryCorrectness
	default:
		return models.CategoryMaintainability
	}
}
