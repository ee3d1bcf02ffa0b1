package forge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// githubServer serves the token endpoint plus whatever the handler does.
func githubServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/app/installations/") {
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"token":      "ghs_test",
				"expires_at": time.Now().Add(time.Hour),
			})
			return
		}
		require.Equal(t, "Bearer ghs_test", r.Header.Get("Authorization"))
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testClient(t *testing.T, srv *httptest.Server) *GitHubClient {
	t.Helper()
	c := NewGitHubClient(1, testKey(t), srv.URL)
	c.client = srv.Client()
	c.tokens.client = srv.Client()
	return c
}

func TestFetchPR(t *testing.T) {
	srv := githubServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/repos/acme/widgets/pulls/7", r.URL.Path)
		require.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"number":    7,
			"title":     "Add rate limiting",
			"body":      "details",
			"draft":     false,
			"additions": 10,
			"deletions": 2,
			"head":      map[string]string{"sha": "abc123", "ref": "feature"},
			"base":      map[string]string{"ref": "main"},
		})
	})

	pr, err := testClient(t, srv).FetchPR(context.Background(), 42, "acme", "widgets", 7)
	require.NoError(t, err)
	assert.Equal(t, "acme", pr.Owner)
	assert.Equal(t, 7, pr.Number)
	assert.Equal(t, "Add rate limiting", pr.Title)
	assert.Equal(t, "abc123", pr.HeadSHA)
	assert.Equal(t, "main", pr.BaseRef)
	assert.Equal(t, 10, pr.Additions)
}

func TestFetchDiffUsesDiffMediaType(t *testing.T) {
	const diff = "diff --git a/x b/x\n"
	srv := githubServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/vnd.github.v3.diff", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(diff))
	})

	got, err := testClient(t, srv).FetchDiff(context.Background(), 42, "acme", "widgets", 7)
	require.NoError(t, err)
	assert.Equal(t, diff, got)
}

func TestGetFileContentDecodesBase64(t *testing.T) {
	content := "# Widgets\n\nA readme.\n"
	encoded := base64.StdEncoding.EncodeToString([]byte(content))
	// The contents API wraps base64 at 60 chars.
	wrapped := encoded[:20] + "\n" + encoded[20:]

	srv := githubServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/repos/acme/widgets/contents/README.md", r.URL.Path)
		require.Equal(t, "abc123", r.URL.Query().Get("ref"))
		_ = json.NewEncoder(w).Encode(map[string]string{
			"content":  wrapped,
			"encoding": "base64",
		})
	})

	got, err := testClient(t, srv).GetFileContent(context.Background(), 42, "acme", "widgets", "README.md", "abc123")
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestPostReviewPayload(t *testing.T) {
	var posted map[string]any
	srv := githubServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/repos/acme/widgets/pulls/7/reviews", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&posted))
		w.WriteHeader(http.StatusOK)
	})

	review := &Review{
		CommitID: "abc123",
		Body:     "## Review\nlooks risky",
		Event:    "REQUEST_CHANGES",
		Comments: []ReviewComment{
			{Path: "src/db.ts", Line: 42, Side: "RIGHT", Body: "sql injection"},
		},
	}
	require.NoError(t, testClient(t, srv).PostReview(context.Background(), 42, "acme", "widgets", 7, review))

	assert.Equal(t, "abc123", posted["commit_id"])
	assert.Equal(t, "REQUEST_CHANGES", posted["event"])
	comments := posted["comments"].([]any)
	require.Len(t, comments, 1)
	comment := comments[0].(map[string]any)
	assert.Equal(t, "RIGHT", comment["side"])
	assert.Equal(t, float64(42), comment["line"])
}

func TestPostReviewOmitsEmptyComments(t *testing.T) {
	var posted map[string]any
	srv := githubServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&posted))
		w.WriteHeader(http.StatusOK)
	})

	review := &Review{CommitID: "abc", Body: "clean", Event: "APPROVE"}
	require.NoError(t, testClient(t, srv).PostReview(context.Background(), 42, "acme", "widgets", 7, review))
	assert.NotContains(t, posted, "comments")
}

func TestCheckRunLifecycle(t *testing.T) {
	srv := githubServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/repos/acme/widgets/check-runs":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "sentinel-review", body["name"])
			assert.Equal(t, "in_progress", body["status"])
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]any{"id": 99})
		case r.Method == http.MethodPatch && r.URL.Path == "/repos/acme/widgets/check-runs/99":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "completed", body["status"])
			assert.Equal(t, "success", body["conclusion"])
			w.WriteHeader(http.StatusOK)
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})

	c := testClient(t, srv)
	id, err := c.CreateCheckRun(context.Background(), 42, "acme", "widgets", "abc123", "sentinel-review")
	require.NoError(t, err)
	require.Equal(t, int64(99), id)

	err = c.UpdateCheckRun(context.Background(), 42, "acme", "widgets", id, CheckRunUpdate{
		Status:     "completed",
		Conclusion: "success",
		Title:      "Risk 12 (low)",
		Summary:    "no blocking issues",
	})
	require.NoError(t, err)
}

func TestPostReviewSurfacesAPIError(t *testing.T) {
	srv := githubServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message": "line not in diff"}`))
	})

	err := testClient(t, srv).PostReview(context.Background(), 42, "acme", "widgets", 7,
		&Review{CommitID: "abc", Body: "b", Event: "COMMENT"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line not in diff")
}
