// Package filter partitions the files of a parsed diff into reviewable
// source, dependency lockfiles, and excluded files. Matching is glob-based
// and case-insensitive; include patterns override excludes.
package filter

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/sentinelreview/sentinel/pkg/models"
)

// builtinExcludes covers generated files, build outputs, vendored code,
// minified/bundled assets, binary assets, IDE metadata, and changelogs.
var builtinExcludes = []string{
	// generated
	"**/*.pb.go",
	"**/*_generated.go",
	"**/*.gen.go",
	"**/*.generated.*",
	"**/generated/**",
	"**/__snapshots__/**",
	"**/*.snap",
	// build outputs
	"**/dist/**",
	"**/build/**",
	"**/out/**",
	"**/target/**",
	"**/.next/**",
	// vendored
	"**/vendor/**",
	"**/node_modules/**",
	"**/third_party/**",
	// minified / bundled
	"**/*.min.js",
	"**/*.min.css",
	"**/*.bundle.js",
	"**/*.map",
	// binary assets
	"**/*.png",
	"**/*.jpg",
	"**/*.jpeg",
	"**/*.gif",
	"**/*.ico",
	"**/*.svg",
	"**/*.webp",
	"**/*.pdf",
	"**/*.zip",
	"**/*.gz",
	"**/*.ttf",
	"**/*.woff",
	"**/*.woff2",
	"**/*.eot",
	// IDE metadata
	"**/.idea/**",
	"**/.vscode/**",
	"**/*.iml",
	"**/.DS_Store",
	// changelogs
	"**/CHANGELOG*",
}

// lockfileNames is the enumerated set of dependency manifests routed to the
// lockfiles partition for vulnerability scanning instead of being excluded.
var lockfileNames = map[string]bool{
	"package-lock.json": true,
	"pnpm-lock.yaml":    true,
	"yarn.lock":         true,
	"poetry.lock":       true,
	"pipfile.lock":      true,
	"go.sum":            true,
	"cargo.lock":        true,
	"gemfile.lock":      true,
	"composer.lock":     true,
}

// manifestNames are dependency declarations that are both reviewable and
// scannable; the categorizer routes them to lockfiles so the vulnerability
// scanner sees them.
var manifestNames = map[string]bool{
	"package.json":     true,
	"requirements.txt": true,
	"pyproject.toml":   true,
	"go.mod":           true,
}

// Config controls categorization.
type Config struct {
	ExcludeGlobs []string
	IncludeGlobs []string
	SkipBinary   bool
	MaxLines     int // maximum linesAdded+linesRemoved per file; 0 disables
}

// DefaultConfig returns the built-in categorization settings.
func DefaultConfig() Config {
	return Config{
		SkipBinary: true,
		MaxLines:   1500,
	}
}

// Partition is the three-way split of a diff's files.
type Partition struct {
	Source    []models.DiffFile
	Lockfiles []models.DiffFile
	Excluded  []models.DiffFile
}

// Categorizer applies the glob sets and size rules to diff files.
type Categorizer struct {
	cfg Config
}

// NewCategorizer creates a categorizer with the given config.
func NewCategorizer(cfg Config) *Categorizer {
	return &Categorizer{cfg: cfg}
}

// Categorize partitions the files of a parsed diff, preserving input order
// within each partition.
func (c *Categorizer) Categorize(parsed *models.ParsedDiff) Partition {
	var part Partition
	for _, f := range parsed.Files {
		switch {
		case c.isLockfile(f.Path()):
			part.Lockfiles = append(part.Lockfiles, f)
		case c.isExcluded(&f):
			part.Excluded = append(part.Excluded, f)
		default:
			part.Source = append(part.Source, f)
		}
	}
	return part
}

func (c *Categorizer) isLockfile(filePath string) bool {
	base := strings.ToLower(path.Base(filePath))
	return lockfileNames[base] || manifestNames[base]
}

func (c *Categorizer) isExcluded(f *models.DiffFile) bool {
	if c.cfg.SkipBinary && f.IsBinary {
		return true
	}
	if c.cfg.MaxLines > 0 && f.LinesAdded+f.LinesRemoved > c.cfg.MaxLines {
		return true
	}

	p := f.Path()

	// Includes override every exclude rule.
	for _, pattern := range c.cfg.IncludeGlobs {
		if Match(pattern, p) {
			return false
		}
	}
	for _, pattern := range c.cfg.ExcludeGlobs {
		if Match(pattern, p) {
			return true
		}
	}
	for _, pattern := range builtinExcludes {
		if Match(pattern, p) {
			return true
		}
	}
	return false
}

// Match reports whether the glob pattern matches the path. `*` matches any
// non-separator run, `**` crosses separators, `?` matches one character.
// Patterns starting with `**` or `/` are anchored; any other pattern may
// match at any path segment boundary. Matching is case-insensitive.
func Match(pattern, filePath string) bool {
	pattern = strings.ToLower(pattern)
	filePath = strings.ToLower(strings.TrimPrefix(filePath, "/"))

	anchored := strings.HasPrefix(pattern, "**") || strings.HasPrefix(pattern, "/")
	pattern = strings.TrimPrefix(pattern, "/")

	if ok, err := doublestar.Match(pattern, filePath); err == nil && ok {
		return true
	}
	if anchored {
		return false
	}

	// Float the pattern to any segment boundary.
	ok, err := doublestar.Match("**/"+pattern, filePath)
	return err == nil && ok
}
