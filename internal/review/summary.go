package review

import (
	"fmt"
	"strings"

	"github.com/sentinelreview/sentinel/internal/aggregate"
	"github.com/sentinelreview/sentinel/internal/risk"
	"github.com/sentinelreview/sentinel/pkg/models"
)

var riskEmoji = map[models.RiskLevel]string{
	models.RiskLow:      "🟢",
	models.RiskMedium:   "🟡",
	models.RiskHigh:     "🟠",
	models.RiskCritical: "🔴",
}

// buildSummary renders the review body posted to the pull request.
// Bounded to the summary limit; the category table is dropped first if
// the body runs long.
func buildSummary(output *models.ReviewOutput, scored risk.Result, agg aggregate.Result) string {
	var b strings.Builder

	b.WriteString("## Automated Review\n\n")
	fmt.Fprintf(&b, "%s **Risk: %s (%d/100)**\n\n", riskEmoji[scored.Level], scored.Level, scored.Score)

	fmt.Fprintf(&b, "%d file(s) changed (+%d/-%d), %d issue(s) found.\n\n",
		output.Stats.FilesChanged, output.Stats.LinesAdded, output.Stats.LinesRemoved, len(agg.Filtered))

	if len(scored.Breakdown) > 0 {
		b.WriteString("| Category | Count | Max severity |\n|---|---|---|\n")
		for _, row := range scored.Breakdown {
			fmt.Fprintf(&b, "| %s | %d | %s |\n", row.Category, row.Count, row.MaxSeverity)
		}
		b.WriteString("\n")
	}

	if hidden := len(agg.Filtered) - len(agg.Inline); hidden > 0 {
		fmt.Fprintf(&b, "%d additional issue(s) beyond the inline comment limit still count toward the risk score.\n\n", hidden)
	}

	if len(output.Stats.ToolsRun) > 0 {
		fmt.Fprintf(&b, "_Sources: %s_\n", strings.Join(output.Stats.ToolsRun, ", "))
	}

	return clamp(b.String(), models.MaxSummaryLen)
}

// buildExecSummary is the one-paragraph version used for check runs.
func buildExecSummary(output *models.ReviewOutput, scored risk.Result) string {
	if len(scored.Breakdown) == 0 {
		return fmt.Sprintf("No issues found across %d changed file(s). Risk %d (%s).",
			output.Stats.FilesChanged, scored.Score, scored.Level)
	}

	top := scored.Breakdown[0]
	return clamp(fmt.Sprintf("%d issue(s) across %d file(s); largest contributor: %s (%d, max %s). Risk %d (%s).",
		output.Stats.IssuesFound, output.Stats.FilesChanged,
		top.Category, top.Count, top.MaxSeverity,
		scored.Score, scored.Level), models.MaxExecSummaryLen)
}

// commentBody renders one inline comment.
func commentBody(iss *models.Issue) string {
	var b strings.Builder

	fmt.Fprintf(&b, "**[%s/%s]** %s", iss.Severity, iss.Category, iss.Message)
	if iss.CWE != "" {
		fmt.Fprintf(&b, " (%s)", iss.CWE)
	}
	b.WriteString("\n")

	if iss.SuggestedFix != "" {
		fmt.Fprintf(&b, "\n**Suggested fix:** %s\n", iss.SuggestedFix)
	}
	if iss.Patch != "" {
		fmt.Fprintf(&b, "\n```suggestion\n%s\n```\n", iss.Patch)
	}

	fmt.Fprintf(&b, "\n_%s, confidence %.0f%%_", sourceLabel(iss), iss.Confidence*100)
	return b.String()
}

func sourceLabel(iss *models.Issue) string {
	if iss.SourceTool == "" {
		return "analyzer"
	}
	return iss.SourceTool
}

func clamp(s string, max int) string {
	if len(s) <= max {
		return s
	}
	const marker = "\n..."
	return s[:max-len(marker)] + marker
}
