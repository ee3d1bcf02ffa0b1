package review

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sentinelreview/sentinel/internal/filter"
	"github.com/sentinelreview/sentinel/pkg/models"
)

// materialize writes the current content of each reviewable file into a
// temp directory so child-process analyzers have something to scan. No
// repository clone: only the files this change touches, fetched at the
// job's commit. Per-file failures cost that file's tool coverage only.
func (s *Service) materialize(ctx context.Context, job *models.ReviewJob, source []models.DiffFile, ref string, logger zerolog.Logger) (string, []string) {
	if len(source) == 0 {
		return "", nil
	}

	sandbox, err := os.MkdirTemp("", "sentinel-review-*")
	if err != nil {
		logger.Warn().Err(err).Msg("could not create review sandbox")
		return "", nil
	}

	var files []string
	for i := range source {
		f := &source[i]
		if f.ChangeKind == models.ChangeDelete || f.IsBinary {
			continue
		}
		path := f.Path()
		if !safeRelPath(path) {
			logger.Warn().Str("file", path).Msg("skipping file with unsafe path")
			continue
		}

		content, err := s.forge.GetFileContent(ctx, job.InstallationID, job.Owner, job.Repo, path, ref)
		if err != nil {
			logger.Debug().Err(err).Str("file", path).Msg("could not fetch file for sandbox")
			continue
		}

		dst := filepath.Join(sandbox, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			logger.Debug().Err(err).Str("file", path).Msg("could not create sandbox directory")
			continue
		}
		if err := os.WriteFile(dst, []byte(content), 0o644); err != nil {
			logger.Debug().Err(err).Str("file", path).Msg("could not write sandbox file")
			continue
		}
		files = append(files, path)
	}

	logger.Debug().Int("files", len(files)).Str("sandbox", sandbox).Msg("sandbox materialized")
	return sandbox, files
}

func (s *Service) cleanupSandbox(sandbox string, logger zerolog.Logger) {
	if err := os.RemoveAll(sandbox); err != nil {
		logger.Warn().Err(err).Str("sandbox", sandbox).Msg("could not remove sandbox")
	}
}

// safeRelPath rejects paths that would escape the sandbox root.
func safeRelPath(p string) bool {
	if p == "" || strings.HasPrefix(p, "/") {
		return false
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return false
		}
	}
	return true
}

// ragFileBudgets caps each retrieved context file.
var ragFileBudgets = []struct {
	path  string
	limit int
}{
	{"README.md", 3000},
	{"CONTRIBUTING.md", 2000},
}

// lintConfigNames are picked up from the changed file set as extra
// context for the model.
var lintConfigNames = map[string]bool{
	".eslintrc":        true,
	".eslintrc.js":     true,
	".eslintrc.json":   true,
	"eslint.config.js": true,
	"ruff.toml":        true,
	".ruff.toml":       true,
}

// fetchRAGContext retrieves repository context files, best-effort: the
// readme, contributing guide, and any lint config the change touches.
// Every failure degrades to less context, never an error.
func (s *Service) fetchRAGContext(ctx context.Context, job *models.ReviewJob, pr *models.PRInfo, part filter.Partition, logger zerolog.Logger) string {
	ref := job.SHA
	if ref == "" && pr != nil {
		ref = pr.HeadSHA
	}

	var sections []string
	fetch := func(path string, limit int) {
		content, err := s.forge.GetFileContent(ctx, job.InstallationID, job.Owner, job.Repo, path, ref)
		if err != nil {
			logger.Debug().Err(err).Str("file", path).Msg("context file unavailable")
			return
		}
		if len(content) > limit {
			content = content[:limit]
		}
		sections = append(sections, "--- "+path+" ---\n"+content)
	}

	for _, f := range ragFileBudgets {
		fetch(f.path, f.limit)
	}

	for i := range part.Source {
		p := part.Source[i].Path()
		if lintConfigNames[strings.ToLower(path.Base(p))] {
			fetch(p, 2000)
			break
		}
	}

	return strings.Join(sections, "\n\n")
}
