package tools

import (
	"context"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/zricethezav/gitleaks/v8/detect"

	"github.com/sentinelreview/sentinel/pkg/models"
)

// SecretsRunner scans the added lines of a diff with the gitleaks detection
// engine. It runs in-process, so it needs no binary and sees exactly the
// lines this change introduces, with the diff's own line numbers.
type SecretsRunner struct {
	once     sync.Once
	detector *detect.Detector
	initErr  error
}

func NewSecretsRunner() *SecretsRunner {
	return &SecretsRunner{}
}

func (r *SecretsRunner) Name() string { return "secrets" }

func (r *SecretsRunner) IsAvailable(string) bool { return true }

func (r *SecretsRunner) init() {
	r.detector, r.initErr = detect.NewDetectorDefaultConfig()
}

func (r *SecretsRunner) Run(ctx context.Context, in Input) models.ToolResult {
	r.once.Do(r.init)
	if r.initErr != nil {
		return execFailed(r.Name(), r.initErr)
	}
	if in.Diff == nil {
		return models.ToolResult{Tool: r.Name(), Success: true}
	}

	reviewable := make(map[string]bool, len(in.Files))
	for _, f := range in.Files {
		reviewable[f] = true
	}

	var issues []models.Issue
	for i := range in.Diff.Files {
		file := &in.Diff.Files[i]
		path := file.Path()
		if len(reviewable) > 0 && !reviewable[path] {
			continue
		}
		for _, hunk := range file.Hunks {
			for _, line := range hunk.AddedLines {
				if ctx.Err() != nil {
					return execFailed(r.Name(), ctx.Err())
				}
				for _, finding := range r.detector.DetectString(line.Content) {
					issues = append(issues, models.Issue{
						ID:         newIssueID(),
						Category:   models.CategorySecurity,
						Subtype:    "hardcoded-secret",
						Severity:   models.SeverityCritical,
						Confidence: 0.9,
						FilePath:   path,
						LineStart:  line.LineNumber,
						LineEnd:    line.LineNumber,
						Message:    fmt.Sprintf("Potential hardcoded secret: %s. Remove it from the change and rotate the credential.", finding.Description),
						Evidence:   fmt.Sprintf("rule %s matched %q...", finding.RuleID, matchPreview(finding.Match, 8)),
						SourceTool: "secrets",
					})
				}
			}
		}
	}
	return models.ToolResult{Tool: r.Name(), Success: true, Issues: issues}
}

// matchPreview keeps at most n bytes of a match without splitting a rune.
func matchPreview(match string, n int) string {
	if len(match) <= n {
		return match
	}
	for n > 0 && !utf8.RuneStart(match[n]) {
		n--
	}
	return match[:n]
}
