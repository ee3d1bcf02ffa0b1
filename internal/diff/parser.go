// Package diff parses unified-diff text into the structured form the review
// pipeline works on. The parser is deliberately lenient: upstream producers
// vary, so malformed fragments are skipped rather than rejected. The single
// hard failure is a hunk appearing before any file header.
package diff

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/sentinelreview/sentinel/pkg/models"
)

// ErrMalformedDiff is returned when hunk content appears before any file
// header, which means the input is not a unified diff at all.
var ErrMalformedDiff = errors.New("malformed diff: hunk before file header")

var (
	hunkHeaderRegex = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)
	similarityRegex = regexp.MustCompile(`^similarity index (\d+)%`)
	binaryRegex     = regexp.MustCompile(`^Binary files .* differ`)
)

// Parser parses git unified-diff output into structured data.
type Parser struct{}

// NewParser creates a new diff parser.
func NewParser() *Parser {
	return &Parser{}
}

// fileState accumulates one file's worth of diff lines during the walk.
type fileState struct {
	file      models.DiffFile
	sawRename bool
	hunk      *hunkState
}

type hunkState struct {
	hunk    models.DiffHunk
	raw     []string
	oldLine int
	newLine int
}

// Parse parses a unified diff string into a ParsedDiff.
func (p *Parser) Parse(diffText string) (*models.ParsedDiff, error) {
	result := &models.ParsedDiff{}
	if diffText == "" {
		return result, nil
	}

	var cur *fileState

	flushHunk := func() {
		if cur == nil || cur.hunk == nil {
			return
		}
		cur.hunk.hunk.Content = strings.Join(cur.hunk.raw, "\n")
		cur.file.Hunks = append(cur.file.Hunks, cur.hunk.hunk)
		cur.hunk = nil
	}

	flushFile := func() {
		if cur == nil {
			return
		}
		flushHunk()
		f := cur.file
		f.ChangeKind = classify(&f, cur.sawRename)
		if f.IsBinary {
			f.Hunks = nil
		}
		result.Files = append(result.Files, f)
		result.TotalLinesAdded += f.LinesAdded
		result.TotalLinesRemoved += f.LinesRemoved
		cur = nil
	}

	for _, line := range strings.Split(diffText, "\n") {
		switch {
		case strings.HasPrefix(line, "diff --git "):
			flushFile()
			cur = &fileState{}
			oldPath, newPath := parseGitHeader(line)
			cur.file.OldPath = oldPath
			cur.file.NewPath = newPath

		case cur == nil:
			// Content with no file header yet. A hunk header here means
			// the input is not a diff; anything else is preamble noise.
			if hunkHeaderRegex.MatchString(line) {
				return nil, ErrMalformedDiff
			}

		case strings.HasPrefix(line, "--- "):
			// Old-file header, never hunk content. Terminates any open hunk.
			flushHunk()
			path := strings.TrimSpace(strings.TrimPrefix(line, "--- "))
			if path == "/dev/null" {
				cur.file.OldPath = ""
			} else {
				cur.file.OldPath = strings.TrimPrefix(path, "a/")
			}

		case strings.HasPrefix(line, "+++ "):
			flushHunk()
			path := strings.TrimSpace(strings.TrimPrefix(line, "+++ "))
			if path == "/dev/null" {
				cur.file.NewPath = ""
			} else {
				cur.file.NewPath = strings.TrimPrefix(path, "b/")
			}

		case strings.HasPrefix(line, "rename from "):
			cur.sawRename = true
			cur.file.OldPath = strings.TrimPrefix(line, "rename from ")

		case strings.HasPrefix(line, "rename to "):
			cur.sawRename = true
			cur.file.NewPath = strings.TrimPrefix(line, "rename to ")

		case similarityRegex.MatchString(line):
			if m := similarityRegex.FindStringSubmatch(line); m != nil {
				pct, _ := strconv.Atoi(m[1])
				if pct >= 0 && pct <= 100 {
					cur.file.Similarity = pct
				}
			}

		case strings.HasPrefix(line, "new file mode "):
			cur.file.NewMode = strings.TrimPrefix(line, "new file mode ")
			cur.file.OldPath = ""

		case strings.HasPrefix(line, "deleted file mode "):
			cur.file.OldMode = strings.TrimPrefix(line, "deleted file mode ")
			cur.file.NewPath = ""

		case strings.HasPrefix(line, "old mode "):
			cur.file.OldMode = strings.TrimPrefix(line, "old mode ")

		case strings.HasPrefix(line, "new mode "):
			cur.file.NewMode = strings.TrimPrefix(line, "new mode ")

		case binaryRegex.MatchString(line) || strings.HasPrefix(line, "GIT binary patch"):
			cur.file.IsBinary = true

		case hunkHeaderRegex.MatchString(line):
			flushHunk()
			m := hunkHeaderRegex.FindStringSubmatch(line)
			oldStart, _ := strconv.Atoi(m[1])
			oldCount := 1
			if m[2] != "" {
				oldCount, _ = strconv.Atoi(m[2])
			}
			newStart, _ := strconv.Atoi(m[3])
			newCount := 1
			if m[4] != "" {
				newCount, _ = strconv.Atoi(m[4])
			}
			cur.hunk = &hunkState{
				hunk: models.DiffHunk{
					OldStart: oldStart,
					OldCount: oldCount,
					NewStart: newStart,
					NewCount: newCount,
				},
				raw:     []string{line},
				oldLine: oldStart,
				newLine: newStart,
			}

		case cur.hunk != nil:
			p.consumeHunkLine(cur, line)

		default:
			// Extended header noise (index lines, etc). Skip.
		}
	}

	flushFile()
	return result, nil
}

// consumeHunkLine folds one content line into the open hunk, reconstructing
// old/new line numbers from the hunk header.
func (p *Parser) consumeHunkLine(cur *fileState, line string) {
	h := cur.hunk
	h.raw = append(h.raw, line)

	switch {
	case strings.HasPrefix(line, "+"):
		h.hunk.AddedLines = append(h.hunk.AddedLines, models.DiffLine{
			LineNumber: h.newLine,
			Content:    line[1:],
		})
		h.newLine++
		cur.file.LinesAdded++

	case strings.HasPrefix(line, "-"):
		h.hunk.RemovedLines = append(h.hunk.RemovedLines, models.DiffLine{
			LineNumber: h.oldLine,
			Content:    line[1:],
		})
		h.oldLine++
		cur.file.LinesRemoved++

	case strings.HasPrefix(line, `\`):
		// "\ No newline at end of file" carries no line numbering.

	default:
		// Context line (leading space or empty). Advances both sides.
		h.oldLine++
		h.newLine++
	}
}

// classify derives the change kind from which paths survived header parsing.
func classify(f *models.DiffFile, sawRename bool) models.ChangeKind {
	switch {
	case sawRename && f.OldPath != "" && f.NewPath != "" && f.OldPath != f.NewPath:
		return models.ChangeRename
	case f.OldPath == "":
		return models.ChangeAdd
	case f.NewPath == "":
		return models.ChangeDelete
	default:
		return models.ChangeModify
	}
}

// parseGitHeader extracts the a/ and b/ paths from a "diff --git" line.
func parseGitHeader(header string) (string, string) {
	rest := strings.TrimPrefix(header, "diff --git ")
	parts := strings.Fields(rest)
	if len(parts) == 2 {
		return strings.TrimPrefix(parts[0], "a/"), strings.TrimPrefix(parts[1], "b/")
	}
	// Paths containing spaces: split on " b/" instead.
	if idx := strings.Index(rest, " b/"); idx >= 0 {
		return strings.TrimPrefix(rest[:idx], "a/"), rest[idx+3:]
	}
	return "", ""
}
