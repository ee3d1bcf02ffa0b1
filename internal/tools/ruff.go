package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sentinelreview/sentinel/pkg/models"
)

type RuffRunner struct {
	Timeout time.Duration
}

func NewRuffRunner() *RuffRunner {
	return &RuffRunner{Timeout: DefaultTimeout}
}

func (r *RuffRunner) Name() string { return "ruff" }

func (r *RuffRunner) IsAvailable(workdir string) bool {
	return binaryOnPath("ruff") && hasRuffConfig(workdir)
}

func hasRuffConfig(workdir string) bool {
	for _, name := range []string{"ruff.toml", ".ruff.toml"} {
		if _, err := os.Stat(filepath.Join(workdir, name)); err == nil {
			return true
		}
	}
	data, err := os.ReadFile(filepath.Join(workdir, "pyproject.toml"))
	if err != nil {
		return false
	}
	return strings.Contains(string(data), "[tool.ruff")
}

func (r *RuffRunner) Run(ctx context.Context, in Input) models.ToolResult {
	targets := filterByExt(in.Files, ".py")
	if len(targets) == 0 {
		return models.ToolResult{Tool: r.Name(), Success: true}
	}

	args := append([]string{"check", "--output-format", "json"}, targets...)
	res := runCommand(ctx, in.Workdir, r.Timeout, "ruff", args...)
	if res.timedOut {
		return timedOut(r.Name())
	}
	if res.err != nil {
		return execFailed(r.Name(), res.err)
	}

	issues, err := parseRuffOutput(res.stdout, in.Workdir)
	if err != nil {
		return execFailed(r.Name(), err)
	}
	return models.ToolResult{Tool: r.Name(), Success: true, Issues: issues}
}

type ruffFinding struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Filename string `json:"filename"`
	Location struct {
		Row int `json:"row"`
	} `json:"location"`
	EndLocation struct {
		Row int `json:"row"`
	} `json:"end_location"`
}

func parseRuffOutput(out []byte, workdir string) ([]models.Issue, error) {
	var findings []ruffFinding
	if err := json.Unmarshal(out, &findings); err != nil {
		return nil, err
	}

	var issues []models.Issue
	for _, f := range findings {
		end := f.EndLocation.Row
		if end < f.Location.Row {
			end = f.Location.Row
		}
		issues = append(issues, models.Issue{
			ID:         newIssueID(),
			Category:   ruffCategory(f.Code),
			Subtype:    f.Code,
			Severity:   models.SeverityLow,
			Confidence: 0.9,
			FilePath:   relPath(workdir, f.Filename),
			LineStart:  f.Location.Row,
			LineEnd:    end,
			Message:    f.Message,
			SourceTool: "ruff",
		})
	}
	return issues, nil
}

func ruffCategory(code string) models.IssueCategory {
	switch {
	case strings.HasPrefix(code, "S"):
		return models.CategorySecurity
	case strings.HasPrefix(code, "E"), strings.HasPrefix(code, "W"):
		return models.CategoryCorrectness
	case strings.HasPrefix(code, "C"):
		return models.CategoryMaintainability
	default:
		return models.CategoryStyle
	}
}
