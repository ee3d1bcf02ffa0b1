// Package review orchestrates one job end to end: fetch the diff, fan out
// the analyzers, aggregate and score, and post the result back to the pull
// request.
package review

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sentinelreview/sentinel/internal/aggregate"
	"github.com/sentinelreview/sentinel/internal/chunker"
	"github.com/sentinelreview/sentinel/internal/diff"
	"github.com/sentinelreview/sentinel/internal/filter"
	"github.com/sentinelreview/sentinel/internal/forge"
	"github.com/sentinelreview/sentinel/internal/llm"
	"github.com/sentinelreview/sentinel/internal/logging"
	"github.com/sentinelreview/sentinel/internal/metrics"
	"github.com/sentinelreview/sentinel/internal/retry"
	"github.com/sentinelreview/sentinel/internal/risk"
	"github.com/sentinelreview/sentinel/internal/tools"
	"github.com/sentinelreview/sentinel/internal/vulnscan"
	"github.com/sentinelreview/sentinel/pkg/models"
)

// Config shapes a review run.
type Config struct {
	MaxInlineComments   int
	RiskThreshold       int
	ConfidenceThreshold float64
	MaxFileLines        int
	MaxTokensPerChunk   int
	MaxFilesPerChunk    int
	EnableCheckRuns     bool
	CheckRunName        string
	ExcludeGlobs        []string
	IncludeGlobs        []string
	EnableOSV           bool
}

func DefaultConfig() Config {
	return Config{
		MaxInlineComments:   10,
		RiskThreshold:       85,
		ConfidenceThreshold: 0.5,
		MaxFileLines:        1500,
		MaxTokensPerChunk:   12000,
		MaxFilesPerChunk:    10,
		EnableCheckRuns:     true,
		CheckRunName:        "sentinel-review",
		EnableOSV:           true,
	}
}

// Service runs review jobs. Safe for concurrent use; per-job state lives
// on the stack of Process.
type Service struct {
	forge    forge.Client
	provider llm.Provider
	harness  *tools.Harness
	scanner  *vulnscan.Scanner
	cfg      Config

	parser      *diff.Parser
	categorizer *filter.Categorizer
	chunks      *chunker.Chunker
	aggregator  *aggregate.Aggregator
	scorer      *risk.Scorer
}

func NewService(fc forge.Client, provider llm.Provider, harness *tools.Harness, scanner *vulnscan.Scanner, cfg Config) *Service {
	return &Service{
		forge:    fc,
		provider: provider,
		harness:  harness,
		scanner:  scanner,
		cfg:      cfg,
		parser:   diff.NewParser(),
		categorizer: filter.NewCategorizer(filter.Config{
			ExcludeGlobs: cfg.ExcludeGlobs,
			IncludeGlobs: cfg.IncludeGlobs,
			SkipBinary:   true,
			MaxLines:     cfg.MaxFileLines,
		}),
		chunks: chunker.New(chunker.Config{
			MaxTokens:        cfg.MaxTokensPerChunk,
			MaxFilesPerChunk: cfg.MaxFilesPerChunk,
		}),
		aggregator: aggregate.New(aggregate.Config{
			ConfidenceThreshold: cfg.ConfidenceThreshold,
			MaxInlineComments:   cfg.MaxInlineComments,
		}),
		scorer: risk.NewScorer(risk.Config{
			MaxExpectedIssues:      20,
			Threshold:              cfg.RiskThreshold,
			FailOnCriticalSecurity: true,
		}),
	}
}

// Process runs one job to a terminal state. The only unrecoverable
// failures are reading the diff and posting the review; every analysis
// source degrades to less coverage.
func (s *Service) Process(ctx context.Context, job *models.ReviewJob) models.ReviewResult {
	start := time.Now()
	logger := logging.ForJob(job.ID, job.RequestID)
	logger.Info().
		Str("repo", job.Owner+"/"+job.Repo).
		Int("pr", job.PRNumber).
		Str("action", job.Action).
		Msg("review started")

	result := s.process(ctx, job, logger, start)

	outcome := "success"
	if !result.Success {
		outcome = "failed"
	}
	metrics.ReviewsTotal.WithLabelValues(outcome).Inc()
	metrics.ReviewDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	if result.Output != nil {
		for _, b := range result.Output.CategoryBreakdown {
			metrics.IssuesFound.WithLabelValues(string(b.Category)).Add(float64(b.Count))
		}
	}

	logger.Info().
		Bool("success", result.Success).
		Dur("duration", time.Since(start)).
		Msg("review finished")
	return result
}

func (s *Service) process(ctx context.Context, job *models.ReviewJob, logger zerolog.Logger, start time.Time) models.ReviewResult {
	pr := s.fetchPRInfo(ctx, job, logger)

	checkRunID := s.createCheckRun(ctx, job, pr, logger)

	var diffText string
	err := retry.Do(ctx, retry.DefaultConfig(), "fetch diff", func() error {
		var ferr error
		diffText, ferr = s.forge.FetchDiff(ctx, job.InstallationID, job.Owner, job.Repo, job.PRNumber)
		return ferr
	})
	if err != nil {
		s.completeCheckRun(ctx, job, checkRunID, "failure", "Review failed", "could not fetch the diff", logger)
		return failed(fmt.Errorf("fetching diff: %w", err))
	}

	parsed, err := s.parser.Parse(diffText)
	if err != nil {
		s.completeCheckRun(ctx, job, checkRunID, "failure", "Review failed", "could not parse the diff", logger)
		return failed(fmt.Errorf("parsing diff: %w", err))
	}

	part := s.categorizer.Categorize(parsed)
	logger.Debug().
		Int("source", len(part.Source)).
		Int("lockfiles", len(part.Lockfiles)).
		Int("excluded", len(part.Excluded)).
		Msg("files categorized")

	output := &models.ReviewOutput{
		RequestID: job.RequestID,
		PRInfo:    pr,
		Stats: models.ReviewStats{
			FilesChanged: len(parsed.Files),
			LinesAdded:   parsed.TotalLinesAdded,
			LinesRemoved: parsed.TotalLinesRemoved,
		},
	}

	if len(part.Source) == 0 && len(part.Lockfiles) == 0 {
		output.RiskLevel = models.RiskLow
		output.SummaryMarkdown = emptyReviewSummary(parsed)
		output.ExecSummary = "No reviewable files in this change."
		output.CompletedAt = time.Now().UTC()
		output.Stats.LatencyMs = time.Since(start).Milliseconds()
		if err := s.postReview(ctx, job, pr, output, "COMMENT", nil); err != nil {
			s.completeCheckRun(ctx, job, checkRunID, "failure", "Review failed", "could not post the review", logger)
			return failed(fmt.Errorf("posting review: %w", err))
		}
		s.completeCheckRun(ctx, job, checkRunID, "success", "Risk: low (0/100)", output.ExecSummary, logger)
		return models.ReviewResult{Success: true, Output: output}
	}

	issues, toolsRun, modelUsed := s.analyze(ctx, job, pr, parsed, part, logger)

	agg := s.aggregator.Aggregate(issues)
	scored := s.scorer.Score(agg.Filtered)

	output.RiskScore = scored.Score
	output.RiskLevel = scored.Level
	output.InlineComments = agg.Inline
	output.CategoryBreakdown = scored.Breakdown
	output.Stats.IssuesFound = len(agg.Filtered)
	output.Stats.ToolsRun = toolsRun
	output.Stats.ModelUsed = modelUsed
	output.SummaryMarkdown = buildSummary(output, scored, agg)
	output.ExecSummary = buildExecSummary(output, scored)
	output.CompletedAt = time.Now().UTC()
	output.Stats.LatencyMs = time.Since(start).Milliseconds()

	event := reviewEvent(scored, agg)
	if err := s.postReview(ctx, job, pr, output, event, agg.Inline); err != nil {
		s.completeCheckRun(ctx, job, checkRunID, "failure", "Review failed", "could not post the review", logger)
		return failed(fmt.Errorf("posting review: %w", err))
	}

	conclusion := "success"
	if scored.GateFails {
		conclusion = "failure"
	}
	title := fmt.Sprintf("Risk: %s (%d/100)", scored.Level, scored.Score)
	s.completeCheckRun(ctx, job, checkRunID, conclusion, title, output.ExecSummary, logger)

	return models.ReviewResult{Success: true, Output: output}
}

// analyze fans out the evidence sources: static tools and the
// vulnerability scan in parallel, then LLM chunks sequentially.
func (s *Service) analyze(ctx context.Context, job *models.ReviewJob, pr *models.PRInfo, parsed *models.ParsedDiff, part filter.Partition, logger zerolog.Logger) (issues []models.Issue, toolsRun []string, modelUsed string) {
	ref := job.SHA
	if ref == "" && pr != nil {
		ref = pr.HeadSHA
	}

	sandbox, sandboxFiles := s.materialize(ctx, job, part.Source, ref, logger)
	if sandbox != "" {
		defer s.cleanupSandbox(sandbox, logger)
	}

	var toolResults []models.ToolResult
	var vulnIssues []models.Issue

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if s.harness == nil {
			return nil
		}
		toolResults = s.harness.RunAll(gctx, tools.Input{
			Workdir: sandbox,
			Files:   sandboxFiles,
			Diff:    parsed,
		})
		return nil
	})
	g.Go(func() error {
		if !s.cfg.EnableOSV || s.scanner == nil {
			return nil
		}
		manifests := s.fetchManifests(gctx, job, part.Lockfiles, ref, logger)
		vulnIssues = s.scanner.Scan(gctx, manifests)
		return nil
	})
	_ = g.Wait()

	for _, res := range toolResults {
		if !res.Success {
			logger.Warn().Str("tool", res.Tool).Str("error", res.Error).Msg("tool run failed")
			continue
		}
		toolsRun = append(toolsRun, res.Tool)
		issues = append(issues, res.Issues...)
	}
	if len(vulnIssues) > 0 || (s.cfg.EnableOSV && s.scanner != nil && len(part.Lockfiles) > 0) {
		toolsRun = append(toolsRun, "osv")
	}
	issues = append(issues, vulnIssues...)

	llmIssues, model := s.runLLM(ctx, job, pr, parsed, part, logger)
	if model != "" {
		modelUsed = model
		toolsRun = append(toolsRun, "llm")
	}
	issues = append(issues, llmIssues...)

	return issues, toolsRun, modelUsed
}

// runLLM chunks the reviewable files and analyzes each chunk in order.
// A failed chunk costs its own coverage only.
func (s *Service) runLLM(ctx context.Context, job *models.ReviewJob, pr *models.PRInfo, parsed *models.ParsedDiff, part filter.Partition, logger zerolog.Logger) ([]models.Issue, string) {
	if s.provider == nil || len(part.Source) == 0 {
		return nil, ""
	}

	ragContext := s.fetchRAGContext(ctx, job, pr, part, logger)

	reviewable := &models.ParsedDiff{Files: part.Source}
	chunks := s.chunks.Split(reviewable)

	title, body := "", ""
	if pr != nil {
		title, body = pr.Title, pr.Body
	}

	var issues []models.Issue
	var model string
	for i := range chunks {
		chunk := &chunks[i]
		var res *llm.Result
		err := retry.Do(ctx, retry.LLMConfig(), fmt.Sprintf("llm chunk %d", chunk.Index), func() error {
			var aerr error
			res, aerr = s.provider.Analyze(ctx, chunk, ragContext, title, body)
			return aerr
		})
		if err != nil {
			logger.Warn().Err(err).Int("chunk", chunk.Index).Msg("llm chunk failed")
			continue
		}
		issues = append(issues, res.Issues...)
		model = res.Model
	}
	return issues, model
}

func (s *Service) fetchPRInfo(ctx context.Context, job *models.ReviewJob, logger zerolog.Logger) *models.PRInfo {
	pr, err := s.forge.FetchPR(ctx, job.InstallationID, job.Owner, job.Repo, job.PRNumber)
	if err != nil {
		logger.Warn().Err(err).Msg("could not fetch pr metadata, continuing without it")
		return &models.PRInfo{Owner: job.Owner, Repo: job.Repo, Number: job.PRNumber, HeadSHA: job.SHA}
	}
	return pr
}

// fetchManifests pulls the content of each scannable dependency manifest.
func (s *Service) fetchManifests(ctx context.Context, job *models.ReviewJob, lockfiles []models.DiffFile, ref string, logger zerolog.Logger) map[string]string {
	manifests := make(map[string]string)
	for i := range lockfiles {
		f := &lockfiles[i]
		if f.ChangeKind == models.ChangeDelete {
			continue
		}
		path := f.Path()
		content, err := s.forge.GetFileContent(ctx, job.InstallationID, job.Owner, job.Repo, path, ref)
		if err != nil {
			logger.Debug().Err(err).Str("file", path).Msg("could not fetch manifest")
			continue
		}
		manifests[path] = content
	}
	return manifests
}

func (s *Service) createCheckRun(ctx context.Context, job *models.ReviewJob, pr *models.PRInfo, logger zerolog.Logger) int64 {
	if !s.cfg.EnableCheckRuns {
		return 0
	}
	sha := job.SHA
	if sha == "" && pr != nil {
		sha = pr.HeadSHA
	}
	if sha == "" {
		return 0
	}

	id, err := s.forge.CreateCheckRun(ctx, job.InstallationID, job.Owner, job.Repo, sha, s.cfg.CheckRunName)
	if err != nil {
		logger.Warn().Err(err).Msg("could not create check run")
		return 0
	}
	return id
}

func (s *Service) completeCheckRun(ctx context.Context, job *models.ReviewJob, checkRunID int64, conclusion, title, summary string, logger zerolog.Logger) {
	if checkRunID == 0 {
		return
	}
	err := retry.Do(ctx, retry.DefaultConfig(), "update check run", func() error {
		return s.forge.UpdateCheckRun(ctx, job.InstallationID, job.Owner, job.Repo, checkRunID, forge.CheckRunUpdate{
			Status:     "completed",
			Conclusion: conclusion,
			Title:      title,
			Summary:    summary,
		})
	})
	if err != nil {
		logger.Warn().Err(err).Msg("could not complete check run")
	}
}

func (s *Service) postReview(ctx context.Context, job *models.ReviewJob, pr *models.PRInfo, output *models.ReviewOutput, event string, inline []models.Issue) error {
	if err := output.Validate(); err != nil {
		return fmt.Errorf("assembled review is invalid: %w", err)
	}

	commitID := job.SHA
	if commitID == "" && pr != nil {
		commitID = pr.HeadSHA
	}

	review := &forge.Review{
		CommitID: commitID,
		Body:     output.SummaryMarkdown,
		Event:    event,
		Comments: inlineComments(inline),
	}

	return retry.Do(ctx, retry.DefaultConfig(), "post review", func() error {
		return s.forge.PostReview(ctx, job.InstallationID, job.Owner, job.Repo, job.PRNumber, review)
	})
}

func inlineComments(issues []models.Issue) []forge.ReviewComment {
	comments := make([]forge.ReviewComment, 0, len(issues))
	for i := range issues {
		comments = append(comments, forge.ReviewComment{
			Path: issues[i].FilePath,
			Line: issues[i].LineStart,
			Side: "RIGHT",
			Body: commentBody(&issues[i]),
		})
	}
	return comments
}

// reviewEvent picks the posted review type from the scored result.
func reviewEvent(scored risk.Result, agg aggregate.Result) string {
	switch {
	case scored.Level == models.RiskCritical:
		return "REQUEST_CHANGES"
	case scored.Score < 10 && len(agg.Inline) == 0:
		return "APPROVE"
	default:
		return "COMMENT"
	}
}

func failed(err error) models.ReviewResult {
	return models.ReviewResult{Success: false, Error: err.Error()}
}

func emptyReviewSummary(parsed *models.ParsedDiff) string {
	var b strings.Builder
	b.WriteString("## Automated Review\n\n")
	b.WriteString("No reviewable files in this change.\n\n")
	fmt.Fprintf(&b, "%d file(s) changed, all excluded from review (generated, vendored, binary, or oversized).\n", len(parsed.Files))
	return b.String()
}
