// Package aggregate merges issues from all analysis sources into a single
// deduplicated, filtered, priority-ranked set.
package aggregate

import (
	"fmt"
	"sort"

	"github.com/sentinelreview/sentinel/internal/risk"
	"github.com/sentinelreview/sentinel/pkg/models"
)

// Config controls filtering and capping.
type Config struct {
	ConfidenceThreshold float64
	MaxInlineComments   int
}

// DefaultConfig returns the default aggregation settings.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.5,
		MaxInlineComments:   10,
	}
}

// Aggregator runs the dedupe/filter/sort/cap pipeline.
type Aggregator struct {
	cfg Config
}

// New creates an aggregator with the given config.
func New(cfg Config) *Aggregator {
	return &Aggregator{cfg: cfg}
}

// Result carries both the full filtered set (risk scoring input) and the
// capped selection posted as inline comments. Hidden issues still influence
// the headline score.
type Result struct {
	Filtered []models.Issue
	Inline   []models.Issue
}

// Aggregate deduplicates, confidence-filters, priority-sorts, and caps.
func (a *Aggregator) Aggregate(issues []models.Issue) Result {
	filtered := a.filterByConfidence(Deduplicate(issues))
	a.sortByPriority(filtered)

	inline := filtered
	if a.cfg.MaxInlineComments > 0 && len(inline) > a.cfg.MaxInlineComments {
		inline = inline[:a.cfg.MaxInlineComments]
	}

	return Result{Filtered: filtered, Inline: inline}
}

// Deduplicate collapses issues sharing a location/category/subtype key,
// keeping the higher severity and breaking ties by higher confidence.
// Idempotent: deduplicating twice yields the same set.
func Deduplicate(issues []models.Issue) []models.Issue {
	seen := map[string]int{} // key -> index into result
	result := make([]models.Issue, 0, len(issues))

	for _, iss := range issues {
		key := dedupeKey(&iss)
		idx, ok := seen[key]
		if !ok {
			seen[key] = len(result)
			result = append(result, iss)
			continue
		}

		existing := &result[idx]
		if models.SeverityRank(iss.Severity) > models.SeverityRank(existing.Severity) ||
			(models.SeverityRank(iss.Severity) == models.SeverityRank(existing.Severity) &&
				iss.Confidence > existing.Confidence) {
			result[idx] = iss
		}
	}

	return result
}

func dedupeKey(iss *models.Issue) string {
	subtype := iss.Subtype
	if len(subtype) > 20 {
		subtype = subtype[:20]
	}
	return fmt.Sprintf("%s:%d-%d:%s:%s", iss.FilePath, iss.LineStart, iss.LineEnd, iss.Category, subtype)
}

func (a *Aggregator) filterByConfidence(issues []models.Issue) []models.Issue {
	result := make([]models.Issue, 0, len(issues))
	for _, iss := range issues {
		if iss.Confidence >= a.cfg.ConfidenceThreshold {
			result = append(result, iss)
		}
	}
	return result
}

// Priority is severityWeight x confidence x categoryWeight, the same model
// the risk scorer uses per issue.
func priority(iss *models.Issue) float64 {
	return risk.SeverityWeight(iss.Severity) * iss.Confidence * risk.CategoryWeight(iss.Category)
}

func (a *Aggregator) sortByPriority(issues []models.Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		return priority(&issues[i]) > priority(&issues[j])
	})
}
