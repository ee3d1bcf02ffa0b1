// Package risk computes the deterministic 0-100 risk score, level, and
// pass/fail gate for a filtered issue set.
package risk

import (
	"math"
	"sort"

	"github.com/sentinelreview/sentinel/pkg/models"
)

// SeverityWeight is the fixed per-severity scoring weight.
func SeverityWeight(s models.IssueSeverity) float64 {
	switch s {
	case models.SeverityCritical:
		return 15
	case models.SeverityHigh:
		return 7
	case models.SeverityMedium:
		return 3
	default:
		return 1
	}
}

// CategoryWeight is the fixed per-category scoring weight.
func CategoryWeight(c models.IssueCategory) float64 {
	switch c {
	case models.CategorySecurity:
		return 4.0
	case models.CategoryCorrectness:
		return 3.0
	case models.CategoryDependency:
		return 2.5
	case models.CategoryPerformance:
		return 2.0
	case models.CategoryMaintainability:
		return 1.5
	default: // style
		return 1.0
	}
}

// Config controls normalization and the gate.
type Config struct {
	MaxExpectedIssues      int  // normalization anchor; default 20
	Threshold              int  // gate fails at or above this score
	FailOnCriticalSecurity bool // gate fails on any critical security issue
}

// DefaultConfig returns the default scoring configuration.
func DefaultConfig() Config {
	return Config{
		MaxExpectedIssues:      20,
		Threshold:              85,
		FailOnCriticalSecurity: true,
	}
}

// Scorer computes risk scores.
type Scorer struct {
	cfg Config
}

// NewScorer creates a scorer with the given config.
func NewScorer(cfg Config) *Scorer {
	if cfg.MaxExpectedIssues <= 0 {
		cfg.MaxExpectedIssues = 20
	}
	return &Scorer{cfg: cfg}
}

// Result is a computed risk assessment.
type Result struct {
	Score     int
	Level     models.RiskLevel
	Breakdown []models.CategoryBreakdown
	GateFails bool
}

// Score computes the risk for the full filtered issue set. The score is
// monotonic: adding an issue can never decrease it.
func (s *Scorer) Score(issues []models.Issue) Result {
	byCategory := map[models.IssueCategory]*models.CategoryBreakdown{}
	raw := 0.0

	for _, iss := range issues {
		contribution := SeverityWeight(iss.Severity) * iss.Confidence * CategoryWeight(iss.Category)
		raw += contribution

		b, ok := byCategory[iss.Category]
		if !ok {
			b = &models.CategoryBreakdown{Category: iss.Category}
			byCategory[iss.Category] = b
		}
		b.Count++
		b.ScoreContribution += contribution
		if models.SeverityRank(iss.Severity) > models.SeverityRank(b.MaxSeverity) {
			b.MaxSeverity = iss.Severity
		}
	}

	denominator := float64(s.cfg.MaxExpectedIssues) * 15 * 4.0
	normalized := math.Min(100, raw/denominator*100)

	// Slight amplification widens mid-range separation.
	score := int(math.Min(100, math.Round(normalized*1.1)))
	if score == 0 && raw > 0 {
		// Any finding at all registers.
		score = 1
	}

	breakdown := make([]models.CategoryBreakdown, 0, len(byCategory))
	for _, b := range byCategory {
		breakdown = append(breakdown, *b)
	}
	sort.Slice(breakdown, func(i, j int) bool {
		return breakdown[i].ScoreContribution > breakdown[j].ScoreContribution
	})

	return Result{
		Score:     score,
		Level:     LevelOf(score),
		Breakdown: breakdown,
		GateFails: s.gateFails(score, issues),
	}
}

func (s *Scorer) gateFails(score int, issues []models.Issue) bool {
	if s.cfg.Threshold > 0 && score >= s.cfg.Threshold {
		return true
	}
	if s.cfg.FailOnCriticalSecurity {
		for _, iss := range issues {
			if iss.Category == models.CategorySecurity && iss.Severity == models.SeverityCritical {
				return true
			}
		}
	}
	return false
}

// LevelOf buckets a score into the four half-open risk bands at 30/60/85.
func LevelOf(score int) models.RiskLevel {
	switch {
	case score >= 85:
		return models.RiskCritical
	case score >= 60:
		return models.RiskHigh
	case score >= 30:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}
