package tools

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/sentinelreview/sentinel/pkg/models"
)

type GoVetRunner struct {
	Timeout time.Duration
}

func NewGoVetRunner() *GoVetRunner {
	return &GoVetRunner{Timeout: DefaultTimeout}
}

func (r *GoVetRunner) Name() string { return "govet" }

func (r *GoVetRunner) IsAvailable(string) bool { return binaryOnPath("go") }

func (r *GoVetRunner) Run(ctx context.Context, in Input) models.ToolResult {
	if len(filterByExt(in.Files, ".go")) == 0 {
		return models.ToolResult{Tool: r.Name(), Success: true}
	}

	// go vet writes its JSON report to stderr, stdout stays empty.
	res := runCommand(ctx, in.Workdir, r.Timeout, "go", "vet", "-json", "./...")
	if res.timedOut {
		return timedOut(r.Name())
	}
	if res.err != nil {
		return execFailed(r.Name(), res.err)
	}

	return models.ToolResult{
		Tool:    r.Name(),
		Success: true,
		Issues:  parseGoVetOutput(res.stderr, in.Workdir),
	}
}

type govetDiagnostic struct {
	Posn    string `json:"posn"` // file:line:col
	Message string `json:"message"`
}

// parseGoVetOutput handles the vet -json stream: one JSON object per
// package, keyed by package then analyzer, interleaved with "# pkg"
// comment lines. Anything unparseable is skipped.
func parseGoVetOutput(out []byte, workdir string) []models.Issue {
	var issues []models.Issue

	dec := json.NewDecoder(strings.NewReader(stripVetComments(string(out))))
	for dec.More() {
		var byPackage map[string]map[string][]govetDiagnostic
		if err := dec.Decode(&byPackage); err != nil {
			break
		}
		for _, byAnalyzer := range byPackage {
			for analyzer, diags := range byAnalyzer {
				for _, d := range diags {
					file, line := splitPosn(d.Posn)
					if file == "" {
						continue
					}
					issues = append(issues, models.Issue{
						ID:         newIssueID(),
						Category:   models.CategoryCorrectness,
						Subtype:    analyzer,
						Severity:   models.SeverityMedium,
						Confidence: 0.9,
						FilePath:   relPath(workdir, file),
						LineStart:  line,
						LineEnd:    line,
						Message:    d.Message,
						SourceTool: "govet",
					})
				}
			}
		}
	}
	return issues
}

func stripVetComments(s string) string {
	var b strings.Builder
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

func splitPosn(posn string) (file string, line int) {
	parts := strings.Split(posn, ":")
	if len(parts) < 2 {
		return "", 0
	}
	// Windows drive letters add a leading single-char part.
	if len(parts[0]) == 1 && len(parts) >= 3 {
		parts = append([]string{parts[0] + ":" + parts[1]}, parts[2:]...)
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0
	}
	return parts[0], n
}
