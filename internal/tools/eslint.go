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

// eslintConfigNames are the config files that mark a project as
// ESLint-enabled. Without one ESLint falls back to no rules at all, so
// running it would be noise.
var eslintConfigNames = []string{
	".eslintrc",
	".eslintrc.js",
	".eslintrc.cjs",
	".eslintrc.json",
	".eslintrc.yml",
	".eslintrc.yaml",
	"eslint.config.js",
	"eslint.config.mjs",
}

type ESLintRunner struct {
	Timeout time.Duration
}

func NewESLintRunner() *ESLintRunner {
	return &ESLintRunner{Timeout: DefaultTimeout}
}

func (r *ESLintRunner) Name() string { return "eslint" }

func (r *ESLintRunner) IsAvailable(workdir string) bool {
	return binaryOnPath("eslint") && hasESLintConfig(workdir)
}

func hasESLintConfig(workdir string) bool {
	for _, name := range eslintConfigNames {
		if _, err := os.Stat(filepath.Join(workdir, name)); err == nil {
			return true
		}
	}
	data, err := os.ReadFile(filepath.Join(workdir, "package.json"))
	if err != nil {
		return false
	}
	var pkg map[string]json.RawMessage
	if err := json.Unmarshal(data, &pkg); err != nil {
		return false
	}
	_, ok := pkg["eslintConfig"]
	return ok
}

func (r *ESLintRunner) Run(ctx context.Context, in Input) models.ToolResult {
	targets := filterByExt(in.Files, ".js", ".jsx", ".ts", ".tsx", ".mjs", ".cjs")
	if len(targets) == 0 {
		return models.ToolResult{Tool: r.Name(), Success: true}
	}

	args := append([]string{"--format", "json"}, targets...)
	res := runCommand(ctx, in.Workdir, r.Timeout, "eslint", args...)
	if res.timedOut {
		return timedOut(r.Name())
	}
	if res.err != nil {
		return execFailed(r.Name(), res.err)
	}

	issues, err := parseESLintOutput(res.stdout, in.Workdir)
	if err != nil {
		return execFailed(r.Name(), err)
	}
	return models.ToolResult{Tool: r.Name(), Success: true, Issues: issues}
}

type eslintFile struct {
	FilePath string          `json:"filePath"`
	Messages []eslintMessage `json:"messages"`
}

type eslintMessage struct {
	RuleID   string `json:"ruleId"`
	Severity int    `json:"severity"`
	Message  string `json:"message"`
	Line     int    `json:"line"`
	EndLine  int    `json:"endLine"`
}

func parseESLintOutput(out []byte, workdir string) ([]models.Issue, error) {
	var files []eslintFile
	if err := json.Unmarshal(out, &files); err != nil {
		return nil, err
	}

	var issues []models.Issue
	for _, f := range files {
		path := relPath(workdir, f.FilePath)
		for _, m := range f.Messages {
			if m.RuleID == "" {
				continue // parse errors and suppressed messages carry no rule
			}
			severity := models.SeverityLow
			if m.Severity == 2 {
				severity = models.SeverityMedium
			}
			end := m.EndLine
			if end < m.Line {
				end = m.Line
			}
			issues = append(issues, models.Issue{
				ID:         newIssueID(),
				Category:   eslintCategory(m.RuleID),
				Subtype:    m.RuleID,
				Severity:   severity,
				Confidence: 0.9,
				FilePath:   path,
				LineStart:  m.Line,
				LineEnd:    end,
				Message:    m.Message,
				SourceTool: "eslint",
			})
		}
	}
	return issues, nil
}

func eslintCategory(ruleID string) models.IssueCategory {
	id := strings.ToLower(ruleID)
	switch {
	case strings.Contains(id, "security"), strings.Contains(id, "no-eval"):
		return models.CategorySecurity
	case strings.Contains(id, "no-unused"), strings.Contains(id, "no-undef"), strings.Contains(id, "prefer-const"):
		return models.CategoryCorrectness
	case strings.Contains(id, "complexity"), strings.Contains(id, "max-"):
		return models.CategoryMaintainability
	default:
		return models.CategoryStyle
	}
}
