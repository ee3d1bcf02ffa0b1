package models

import (
	"time"
)

// ChangeKind classifies how a file changed within a diff.
type ChangeKind string

const (
	ChangeAdd    ChangeKind = "add"
	ChangeDelete ChangeKind = "delete"
	ChangeModify ChangeKind = "modify"
	ChangeRename ChangeKind = "rename"
)

// DiffLine is a single added or removed line with its position in the
// relevant version of the file (new-file numbering for added lines,
// old-file numbering for removed lines).
type DiffLine struct {
	LineNumber int    `json:"line_number"`
	Content    string `json:"content"`
}

// DiffHunk represents a single @@ -a,b +c,d @@ region of a unified diff.
type DiffHunk struct {
	OldStart     int        `json:"old_start"`
	OldCount     int        `json:"old_count"`
	NewStart     int        `json:"new_start"`
	NewCount     int        `json:"new_count"`
	Content      string     `json:"content"`
	AddedLines   []DiffLine `json:"added_lines"`
	RemovedLines []DiffLine `json:"removed_lines"`
}

// DiffFile is one file's worth of changes within a parsed diff.
type DiffFile struct {
	OldPath      string     `json:"old_path,omitempty"`
	NewPath      string     `json:"new_path,omitempty"`
	ChangeKind   ChangeKind `json:"change_kind"`
	IsBinary     bool       `json:"is_binary"`
	Similarity   int        `json:"similarity,omitempty"` // rename similarity percent, 0 when unknown
	OldMode      string     `json:"old_mode,omitempty"`
	NewMode      string     `json:"new_mode,omitempty"`
	Hunks        []DiffHunk `json:"hunks"`
	LinesAdded   int        `json:"lines_added"`
	LinesRemoved int        `json:"lines_removed"`
}

// Path returns the effective path of the file: the new path when present,
// otherwise the old path (deleted files).
func (f *DiffFile) Path() string {
	if f.NewPath != "" {
		return f.NewPath
	}
	return f.OldPath
}

// ParsedDiff is the structured form of a whole unified diff, files in
// input order.
type ParsedDiff struct {
	Files             []DiffFile `json:"files"`
	TotalLinesAdded   int        `json:"total_lines_added"`
	TotalLinesRemoved int        `json:"total_lines_removed"`
}

// Chunk bundles one or more diff files sized for a single LLM call.
type Chunk struct {
	Index           int        `json:"index"`
	TotalChunks     int        `json:"total_chunks"`
	Files           []DiffFile `json:"files"`
	FilePaths       []string   `json:"file_paths"`
	Content         string     `json:"content"`
	EstimatedTokens int        `json:"estimated_tokens"`
	Languages       []string   `json:"languages"`
}

// IssueCategory is the high-level classification of a review finding.
type IssueCategory string

const (
	CategorySecurity        IssueCategory = "security"
	CategoryCorrectness     IssueCategory = "correctness"
	CategoryPerformance     IssueCategory = "performance"
	CategoryMaintainability IssueCategory = "maintainability"
	CategoryStyle           IssueCategory = "style"
	CategoryDependency      IssueCategory = "dependency"
)

// IssueSeverity is the impact level of a review finding.
type IssueSeverity string

const (
	SeverityLow      IssueSeverity = "low"
	SeverityMedium   IssueSeverity = "medium"
	SeverityHigh     IssueSeverity = "high"
	SeverityCritical IssueSeverity = "critical"
)

// SeverityRank converts a severity to a numeric level for comparison.
// Unknown severities rank below low.
func SeverityRank(s IssueSeverity) int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Issue is the canonical finding record produced by every analysis source:
// static tools, the vulnerability scanner, and the LLM.
type Issue struct {
	ID             string        `json:"id"`
	Category       IssueCategory `json:"category"`
	Subtype        string        `json:"subtype,omitempty"`
	Severity       IssueSeverity `json:"severity"`
	Confidence     float64       `json:"confidence"`
	FilePath       string        `json:"file_path"`
	LineStart      int           `json:"line_start"`
	LineEnd        int           `json:"line_end"`
	Message        string        `json:"message"`
	Evidence       string        `json:"evidence,omitempty"`
	SuggestedFix   string        `json:"suggested_fix,omitempty"`
	Patch          string        `json:"patch,omitempty"`
	CWE            string        `json:"cwe,omitempty"`
	OWASPTag       string        `json:"owasp_tag,omitempty"`
	SourceTool     string        `json:"source_tool,omitempty"`
	IsLLMGenerated bool          `json:"is_llm_generated"`
}

// CategoryBreakdown summarizes the issues of one category. Derived from the
// scored issue set; never mutated independently.
type CategoryBreakdown struct {
	Category          IssueCategory `json:"category"`
	Count             int           `json:"count"`
	MaxSeverity       IssueSeverity `json:"max_severity"`
	ScoreContribution float64       `json:"score_contribution"`
}

// ReviewStats captures run-level accounting for a posted review.
type ReviewStats struct {
	FilesChanged int      `json:"files_changed"`
	IssuesFound  int      `json:"issues_found"`
	ToolsRun     []string `json:"tools_run"`
	ModelUsed    string   `json:"model_used,omitempty"`
	LatencyMs    int64    `json:"latency_ms"`
	LinesAdded   int      `json:"lines_added,omitempty"`
	LinesRemoved int      `json:"lines_removed,omitempty"`
}

// PRInfo identifies the pull request a review was produced for.
type PRInfo struct {
	Owner     string `json:"owner"`
	Repo      string `json:"repo"`
	Number    int    `json:"number"`
	Title     string `json:"title,omitempty"`
	Body      string `json:"body,omitempty"`
	HeadSHA   string `json:"head_sha,omitempty"`
	BaseRef   string `json:"base_ref,omitempty"`
	HeadRef   string `json:"head_ref,omitempty"`
	DiffURL   string `json:"diff_url,omitempty"`
	HTMLURL   string `json:"html_url,omitempty"`
	IsDraft   bool   `json:"is_draft,omitempty"`
	Additions int    `json:"additions,omitempty"`
	Deletions int    `json:"deletions,omitempty"`
}

// RiskLevel buckets a risk score into one of four bands.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ReviewOutput is the fully assembled result of one review run.
type ReviewOutput struct {
	RiskScore         int                 `json:"risk_score"`
	RiskLevel         RiskLevel           `json:"risk_level"`
	InlineComments    []Issue             `json:"inline_comments"`
	SummaryMarkdown   string              `json:"summary_markdown"`
	ExecSummary       string              `json:"exec_summary"`
	Stats             ReviewStats         `json:"stats"`
	CategoryBreakdown []CategoryBreakdown `json:"category_breakdown,omitempty"`
	RequestID         string              `json:"request_id,omitempty"`
	CompletedAt       time.Time           `json:"completed_at,omitempty"`
	PRInfo            *PRInfo             `json:"pr_info,omitempty"`
}

// ReviewJob is the unit of work handed from the webhook ingress to a worker.
// Owned by the queue from enqueue until terminal ack.
type ReviewJob struct {
	ID             string    `json:"id"`
	Owner          string    `json:"owner"`
	Repo           string    `json:"repo"`
	PRNumber       int       `json:"pr_number"`
	SHA            string    `json:"sha"`
	InstallationID int64     `json:"installation_id"`
	Action         string    `json:"action"`
	CreatedAt      time.Time `json:"created_at"`
	RequestID      string    `json:"request_id,omitempty"`
}

// ToolResult is the outcome of one static-tool invocation.
type ToolResult struct {
	Tool     string        `json:"tool"`
	Success  bool          `json:"success"`
	Issues   []Issue       `json:"issues"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// ReviewResult is the terminal status of a processed job.
type ReviewResult struct {
	Success bool          `json:"success"`
	Error   string        `json:"error,omitempty"`
	Output  *ReviewOutput `json:"output,omitempty"`
}
