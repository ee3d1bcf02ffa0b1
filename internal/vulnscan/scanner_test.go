package vulnscan

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelreview/sentinel/pkg/models"
)

func osvServer(t *testing.T, vulnsByPackage map[string][]osvVuln) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var calls atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.Equal(t, "/v1/query", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var q osvQuery
		require.NoError(t, json.NewDecoder(r.Body).Decode(&q))

		resp := struct {
			Vulns []osvVuln `json:"vulns"`
		}{Vulns: vulnsByPackage[q.Package.Name]}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestScanReportsKnownVulnerability(t *testing.T) {
	srv, _ := osvServer(t, map[string][]osvVuln{
		"lodash": {{
			ID:      "GHSA-jf85-cpcp-j695",
			Summary: "Prototype pollution in lodash",
			Details: strings.Repeat("d", 300),
			Severity: []struct {
				Type  string `json:"type"`
				Score string `json:"score"`
			}{{Type: "CVSS_V3", Score: "7.4"}},
		}},
	})

	s := NewScanner(srv.URL)
	issues := s.Scan(context.Background(), map[string]string{
		"package.json": `{"dependencies": {"lodash": "4.17.11"}}`,
	})

	require.Len(t, issues, 1)
	iss := issues[0]
	assert.Equal(t, models.CategoryDependency, iss.Category)
	assert.Equal(t, "cve", iss.Subtype)
	assert.Equal(t, models.SeverityHigh, iss.Severity)
	assert.InDelta(t, 0.95, iss.Confidence, 1e-9)
	assert.Equal(t, "package.json", iss.FilePath)
	assert.Equal(t, 1, iss.LineStart)
	assert.Equal(t, "GHSA-jf85-cpcp-j695: Prototype pollution in lodash (lodash@4.17.11)", iss.Message)
	assert.Len(t, iss.Evidence, 200)
}

func TestScanBoundsQueryCount(t *testing.T) {
	srv, calls := osvServer(t, nil)

	var b strings.Builder
	for i := 0; i < 80; i++ {
		b.WriteString("pkg")
		b.WriteByte(byte('a' + i%26))
		b.WriteString(string(rune('a' + i/26)))
		b.WriteString("==1.0.0\n")
	}

	s := NewScanner(srv.URL)
	s.Scan(context.Background(), map[string]string{"requirements.txt": b.String()})

	assert.LessOrEqual(t, calls.Load(), int64(maxPackages))
}

func TestScanSurvivesNetworkFailure(t *testing.T) {
	s := NewScanner("http://127.0.0.1:1") // nothing listens here
	issues := s.Scan(context.Background(), map[string]string{
		"package.json": `{"dependencies": {"lodash": "4.17.11"}}`,
	})
	assert.Empty(t, issues)
}

func TestSeverityFromVuln(t *testing.T) {
	sev := func(score string) models.IssueSeverity {
		return severityFromVuln(osvVuln{Severity: []struct {
			Type  string `json:"type"`
			Score string `json:"score"`
		}{{Type: "CVSS_V3", Score: score}}})
	}

	assert.Equal(t, models.SeverityCritical, sev("9.8"))
	assert.Equal(t, models.SeverityHigh, sev("7.0"))
	assert.Equal(t, models.SeverityMedium, sev("5.5"))
	assert.Equal(t, models.SeverityLow, sev("2.1"))
	assert.Equal(t, models.SeverityMedium, sev("CVSS:3.1/AV:N"), "vector strings fall back to medium")
	assert.Equal(t, models.SeverityMedium, severityFromVuln(osvVuln{}))
}
