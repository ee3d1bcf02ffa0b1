package forge

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sentinelreview/sentinel/pkg/models"
)

const defaultAPIURL = "https://api.github.com"

// GitHubClient implements Client against the GitHub REST API, acting as
// an app installation.
type GitHubClient struct {
	apiURL string
	client *http.Client
	tokens *tokenSource
}

func NewGitHubClient(appID int64, key *rsa.PrivateKey, apiURL string) *GitHubClient {
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	apiURL = strings.TrimSuffix(apiURL, "/")
	httpClient := &http.Client{Timeout: 30 * time.Second}
	return &GitHubClient{
		apiURL: apiURL,
		client: httpClient,
		tokens: newTokenSource(appID, key, apiURL, httpClient),
	}
}

func (c *GitHubClient) do(ctx context.Context, installationID int64, method, path, accept string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, body)
	if err != nil {
		return nil, err
	}

	token, err := c.tokens.installationToken(ctx, installationID)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if accept == "" {
		accept = "application/vnd.github+json"
	}
	req.Header.Set("Accept", accept)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.client.Do(req)
}

func (c *GitHubClient) FetchPR(ctx context.Context, installationID int64, owner, repo string, number int) (*models.PRInfo, error) {
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d", owner, repo, number)
	resp, err := c.do(ctx, installationID, http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching pull request: %s", resp.Status)
	}

	var pr struct {
		Number    int    `json:"number"`
		Title     string `json:"title"`
		Body      string `json:"body"`
		Draft     bool   `json:"draft"`
		Additions int    `json:"additions"`
		Deletions int    `json:"deletions"`
		HTMLURL   string `json:"html_url"`
		DiffURL   string `json:"diff_url"`
		Head      struct {
			SHA string `json:"sha"`
			Ref string `json:"ref"`
		} `json:"head"`
		Base struct {
			Ref string `json:"ref"`
		} `json:"base"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("decoding pull request: %w", err)
	}

	return &models.PRInfo{
		Owner:     owner,
		Repo:      repo,
		Number:    pr.Number,
		Title:     pr.Title,
		Body:      pr.Body,
		HeadSHA:   pr.Head.SHA,
		BaseRef:   pr.Base.Ref,
		HeadRef:   pr.Head.Ref,
		DiffURL:   pr.DiffURL,
		HTMLURL:   pr.HTMLURL,
		IsDraft:   pr.Draft,
		Additions: pr.Additions,
		Deletions: pr.Deletions,
	}, nil
}

func (c *GitHubClient) FetchDiff(ctx context.Context, installationID int64, owner, repo string, number int) (string, error) {
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d", owner, repo, number)
	resp, err := c.do(ctx, installationID, http.MethodGet, path, "application/vnd.github.v3.diff", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching diff: %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading diff body: %w", err)
	}
	return string(data), nil
}

func (c *GitHubClient) GetFileContent(ctx context.Context, installationID int64, owner, repo, filePath, ref string) (string, error) {
	path := fmt.Sprintf("/repos/%s/%s/contents/%s?ref=%s", owner, repo, filePath, ref)
	resp, err := c.do(ctx, installationID, http.MethodGet, path, "", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching %s: %s", filePath, resp.Status)
	}

	var body struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decoding contents response: %w", err)
	}
	if body.Encoding != "base64" {
		return body.Content, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(body.Content, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("decoding %s content: %w", filePath, err)
	}
	return string(decoded), nil
}

func (c *GitHubClient) PostReview(ctx context.Context, installationID int64, owner, repo string, number int, review *Review) error {
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d/reviews", owner, repo, number)

	payload := map[string]any{
		"commit_id": review.CommitID,
		"body":      review.Body,
		"event":     review.Event,
	}
	if len(review.Comments) > 0 {
		payload["comments"] = review.Comments
	}

	resp, err := c.do(ctx, installationID, http.MethodPost, path, "", payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("posting review: %s: %s", resp.Status, detail)
	}
	return nil
}

func (c *GitHubClient) CreateCheckRun(ctx context.Context, installationID int64, owner, repo, headSHA, name string) (int64, error) {
	path := fmt.Sprintf("/repos/%s/%s/check-runs", owner, repo)
	payload := map[string]any{
		"name":     name,
		"head_sha": headSHA,
		"status":   "in_progress",
	}

	resp, err := c.do(ctx, installationID, http.MethodPost, path, "", payload)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return 0, fmt.Errorf("creating check run: %s", resp.Status)
	}

	var body struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decoding check run: %w", err)
	}
	return body.ID, nil
}

func (c *GitHubClient) UpdateCheckRun(ctx context.Context, installationID int64, owner, repo string, checkRunID int64, update CheckRunUpdate) error {
	path := fmt.Sprintf("/repos/%s/%s/check-runs/%d", owner, repo, checkRunID)

	payload := map[string]any{"status": update.Status}
	if update.Conclusion != "" {
		payload["conclusion"] = update.Conclusion
	}
	if update.Title != "" || update.Summary != "" {
		payload["output"] = map[string]string{
			"title":   update.Title,
			"summary": update.Summary,
		}
	}

	resp, err := c.do(ctx, installationID, http.MethodPatch, path, "", payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("updating check run: %s", resp.Status)
	}
	return nil
}
