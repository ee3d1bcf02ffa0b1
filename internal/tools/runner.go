// Package tools runs external static analyzers against the review sandbox
// and normalizes their findings into issues.
package tools

import (
	"bytes"
	"context"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sentinelreview/sentinel/internal/metrics"
	"github.com/sentinelreview/sentinel/pkg/models"
)

// DefaultTimeout bounds a single analyzer invocation.
const DefaultTimeout = 300 * time.Second

// Input is everything a runner may need: the sandbox directory holding the
// materialized changed files, their relative paths, and the parsed diff for
// runners that work line-by-line.
type Input struct {
	Workdir string
	Files   []string
	Diff    *models.ParsedDiff
}

// ToolRunner is the uniform capability every analyzer implements.
type ToolRunner interface {
	Name() string
	IsAvailable(workdir string) bool
	Run(ctx context.Context, in Input) models.ToolResult
}

// Harness fans a set of runners out in parallel and collects their results.
// Partial failure is the expected case; a runner that is unavailable or
// times out reports success=false and never aborts the others.
type Harness struct {
	runners []ToolRunner
}

func NewHarness(runners ...ToolRunner) *Harness {
	return &Harness{runners: runners}
}

// RunAll executes every runner concurrently. Results come back in runner
// order regardless of completion order.
func (h *Harness) RunAll(ctx context.Context, in Input) []models.ToolResult {
	results := make([]models.ToolResult, len(h.runners))

	g, gctx := errgroup.WithContext(ctx)
	for i, r := range h.runners {
		g.Go(func() error {
			start := time.Now()
			if !r.IsAvailable(in.Workdir) {
				results[i] = models.ToolResult{
					Tool:     r.Name(),
					Success:  false,
					Error:    r.Name() + " not installed",
					Duration: time.Since(start),
				}
				metrics.ToolRuns.WithLabelValues(r.Name(), "failed").Inc()
				return nil
			}

			res := r.Run(gctx, in)
			res.Duration = time.Since(start)
			results[i] = res

			status := "success"
			if !res.Success {
				status = "failed"
			}
			metrics.ToolRuns.WithLabelValues(r.Name(), status).Inc()

			log.Debug().
				Str("tool", r.Name()).
				Bool("success", res.Success).
				Int("issues", len(res.Issues)).
				Dur("duration", res.Duration).
				Msg("tool run finished")
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// execResult carries the raw outcome of one child-process invocation.
type execResult struct {
	stdout   []byte
	stderr   []byte
	timedOut bool
	err      error
}

// runCommand invokes an analyzer binary with a hard timeout. A non-zero
// exit is not an error here; analyzers routinely exit non-zero when they
// have findings, so callers decide based on parseability of the output.
func runCommand(ctx context.Context, workdir string, timeout time.Duration, name string, args ...string) execResult {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, name, args...)
	cmd.Dir = workdir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := execResult{stdout: stdout.Bytes(), stderr: stderr.Bytes()}
	if cctx.Err() == context.DeadlineExceeded {
		res.timedOut = true
		res.err = cctx.Err()
		return res
	}
	if _, ok := err.(*exec.ExitError); ok {
		// Findings-present exit; output still usable.
		return res
	}
	res.err = err
	return res
}

func binaryOnPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// filterByExt keeps the files whose extension is in exts (lowercase,
// with leading dot).
func filterByExt(files []string, exts ...string) []string {
	var out []string
	for _, f := range files {
		ext := strings.ToLower(filepath.Ext(f))
		for _, e := range exts {
			if ext == e {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

// relPath makes an analyzer-reported path relative to the sandbox so
// issues line up with diff paths.
func relPath(workdir, p string) string {
	if workdir != "" {
		if rel, err := filepath.Rel(workdir, p); err == nil && !strings.HasPrefix(rel, "..") {
			p = rel
		}
	}
	return filepath.ToSlash(p)
}

func newIssueID() string {
	return uuid.NewString()
}

func unavailable(tool string) models.ToolResult {
	return models.ToolResult{Tool: tool, Success: false, Error: tool + " not installed"}
}

func timedOut(tool string) models.ToolResult {
	return models.ToolResult{Tool: tool, Success: false, Error: tool + " timed out"}
}

func execFailed(tool string, err error) models.ToolResult {
	return models.ToolResult{Tool: tool, Success: false, Error: err.Error()}
}
