package tools

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/sentinelreview/sentinel/pkg/models"
)

type SemgrepRunner struct {
	Rules   string // --config value, "auto" by default
	Timeout time.Duration
}

func NewSemgrepRunner(rules string, timeout time.Duration) *SemgrepRunner {
	if rules == "" {
		rules = "auto"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &SemgrepRunner{Rules: rules, Timeout: timeout}
}

func (r *SemgrepRunner) Name() string { return "semgrep" }

func (r *SemgrepRunner) IsAvailable(string) bool { return binaryOnPath("semgrep") }

func (r *SemgrepRunner) Run(ctx context.Context, in Input) models.ToolResult {
	if len(in.Files) == 0 {
		return models.ToolResult{Tool: r.Name(), Success: true}
	}

	args := []string{
		"--sarif",
		"--config", r.Rules,
		"--timeout", strconv.Itoa(int(r.Timeout.Seconds())),
		"--max-target-bytes", "1000000",
		"--no-git-ignore",
	}
	args = append(args, in.Files...)

	// Semgrep enforces its own timeout; the process bound is a backstop.
	res := runCommand(ctx, in.Workdir, r.Timeout+30*time.Second, "semgrep", args...)
	if res.timedOut {
		return timedOut(r.Name())
	}
	if res.err != nil {
		return execFailed(r.Name(), res.err)
	}

	issues, err := parseSARIF(res.stdout, in.Workdir, "semgrep")
	if err != nil {
		return execFailed(r.Name(), err)
	}
	return models.ToolResult{Tool: r.Name(), Success: true, Issues: issues}
}

type sarifDocument struct {
	Runs []struct {
		Results []sarifResult `json:"results"`
	} `json:"runs"`
}

type sarifResult struct {
	RuleID  string `json:"ruleId"`
	Level   string `json:"level"`
	Message struct {
		Text string `json:"text"`
	} `json:"message"`
	Locations []struct {
		PhysicalLocation struct {
			ArtifactLocation struct {
				URI string `json:"uri"`
			} `json:"artifactLocation"`
			Region struct {
				StartLine int `json:"startLine"`
				EndLine   int `json:"endLine"`
				Snippet   struct {
					Text string `json:"text"`
				} `json:"snippet"`
			} `json:"region"`
		} `json:"physicalLocation"`
	} `json:"locations"`
}

func parseSARIF(out []byte, workdir, tool string) ([]models.Issue, error) {
	var doc sarifDocument
	if err := json.Unmarshal(out, &doc); err != nil {
		return nil, err
	}

	var issues []models.Issue
	for _, run := range doc.Runs {
		for _, result := range run.Results {
			if len(result.Locations) == 0 {
				continue
			}
			loc := result.Locations[0].PhysicalLocation
			start := loc.Region.StartLine
			end := loc.Region.EndLine
			if start == 0 {
				start = 1
			}
			if end < start {
				end = start
			}
			issues = append(issues, models.Issue{
				ID:         newIssueID(),
				Category:   semgrepCategory(result.RuleID),
				Subtype:    lastRuleSegment(result.RuleID),
				Severity:   sarifSeverity(result.Level),
				Confidence: 0.85,
				FilePath:   relPath(workdir, loc.ArtifactLocation.URI),
				LineStart:  start,
				LineEnd:    end,
				Message:    result.Message.Text,
				Evidence:   truncate(loc.Region.Snippet.Text, 500),
				SourceTool: tool,
			})
		}
	}
	return issues, nil
}

func sarifSeverity(level string) models.IssueSeverity {
	switch level {
	case "error":
		return models.SeverityHigh
	case "warning":
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// semgrepCategory infers a category from the rule id. Semgrep is primarily
// a security scanner, so security is the fall-through.
func semgrepCategory(ruleID string) models.IssueCategory {
	id := strings.ToLower(ruleID)
	switch {
	case strings.Contains(id, "injection"), strings.Contains(id, "xss"),
		strings.Contains(id, "sqli"), strings.Contains(id, "crypto"):
		return models.CategorySecurity
	case strings.Contains(id, "bug"), strings.Contains(id, "correctness"):
		return models.CategoryCorrectness
	case strings.Contains(id, "perf"):
		return models.CategoryPerformance
	default:
		return models.CategorySecurity
	}
}

// lastRuleSegment keeps rule ids usable as subtypes; semgrep ids are long
// dotted paths.
func lastRuleSegment(ruleID string) string {
	if idx := strings.LastIndex(ruleID, "."); idx >= 0 {
		return ruleID[idx+1:]
	}
	return ruleID
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
