package vulnscan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sentinelreview/sentinel/pkg/models"
)

const (
	// maxPackages bounds the query fan-out per review.
	maxPackages = 50

	defaultAPIURL    = "https://api.osv.dev"
	queryConcurrency = 8
)

// Scanner queries an OSV-style vulnerability database for the packages
// declared in a change's manifests. Network failures degrade to an empty
// result; the scan is never fatal to a review.
type Scanner struct {
	apiURL string
	client *http.Client
}

func NewScanner(apiURL string) *Scanner {
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	return &Scanner{
		apiURL: strings.TrimSuffix(apiURL, "/"),
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Scan parses every manifest (path -> content) and returns one dependency
// issue per known vulnerability, attributed to the manifest that declared
// the package.
func (s *Scanner) Scan(ctx context.Context, manifests map[string]string) []models.Issue {
	type target struct {
		pkg  Package
		path string
	}

	var targets []target
	for path, content := range manifests {
		for _, pkg := range ParseManifest(path, content) {
			targets = append(targets, target{pkg: pkg, path: path})
		}
	}
	if len(targets) > maxPackages {
		log.Warn().
			Int("declared", len(targets)).
			Int("limit", maxPackages).
			Msg("truncating vulnerability query set")
		targets = targets[:maxPackages]
	}

	var mu sync.Mutex
	var issues []models.Issue

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(queryConcurrency)
	for _, t := range targets {
		g.Go(func() error {
			vulns, err := s.query(gctx, t.pkg)
			if err != nil {
				log.Debug().Err(err).
					Str("package", t.pkg.Name).
					Str("ecosystem", t.pkg.Ecosystem).
					Msg("vulnerability query failed")
				return nil
			}
			mu.Lock()
			for _, v := range vulns {
				issues = append(issues, vulnIssue(t.pkg, t.path, v))
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return issues
}

type osvQuery struct {
	Package struct {
		Name      string `json:"name"`
		Ecosystem string `json:"ecosystem"`
	} `json:"package"`
	Version string `json:"version"`
}

type osvVuln struct {
	ID       string `json:"id"`
	Summary  string `json:"summary"`
	Details  string `json:"details"`
	Severity []struct {
		Type  string `json:"type"`
		Score string `json:"score"`
	} `json:"severity"`
}

func (s *Scanner) query(ctx context.Context, pkg Package) ([]osvVuln, error) {
	var q osvQuery
	q.Package.Name = pkg.Name
	q.Package.Ecosystem = pkg.Ecosystem
	q.Version = pkg.Version

	body, err := json.Marshal(q)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+"/v1/query", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vulnerability query returned %s", resp.Status)
	}

	var result struct {
		Vulns []osvVuln `json:"vulns"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return result.Vulns, nil
}

func vulnIssue(pkg Package, manifestPath string, v osvVuln) models.Issue {
	summary := v.Summary
	if summary == "" {
		summary = "known vulnerability"
	}
	return models.Issue{
		ID:         uuid.NewString(),
		Category:   models.CategoryDependency,
		Subtype:    "cve",
		Severity:   severityFromVuln(v),
		Confidence: 0.95,
		FilePath:   manifestPath,
		LineStart:  1,
		LineEnd:    1,
		Message:    fmt.Sprintf("%s: %s (%s@%s)", v.ID, summary, pkg.Name, pkg.Version),
		Evidence:   truncate(v.Details, 200),
		SourceTool: "osv",
	}
}

// severityFromVuln maps the first CVSS-like score. A missing or
// unparseable score is treated as medium rather than dropped.
func severityFromVuln(v osvVuln) models.IssueSeverity {
	for _, sev := range v.Severity {
		score, ok := parseCVSSScore(sev.Score)
		if !ok {
			continue
		}
		switch {
		case score >= 9:
			return models.SeverityCritical
		case score >= 7:
			return models.SeverityHigh
		case score >= 4:
			return models.SeverityMedium
		default:
			return models.SeverityLow
		}
	}
	return models.SeverityMedium
}

// parseCVSSScore accepts either a bare numeric score or a CVSS vector
// whose base score is not present; vectors yield no score.
func parseCVSSScore(s string) (float64, bool) {
	score, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return score, true
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
