// Package forge talks to the source-control host: pull request data,
// file contents, posted reviews, and check runs.
package forge

import (
	"context"

	"github.com/sentinelreview/sentinel/pkg/models"
)

// ReviewComment is one inline comment anchored to a diff line.
type ReviewComment struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Side string `json:"side"`
	Body string `json:"body"`
}

// Review is the payload posted back to the pull request.
type Review struct {
	CommitID string          `json:"commit_id"`
	Body     string          `json:"body"`
	Event    string          `json:"event"` // APPROVE, COMMENT, REQUEST_CHANGES
	Comments []ReviewComment `json:"comments"`
}

// CheckRunUpdate mutates an existing check run.
type CheckRunUpdate struct {
	Status     string // queued, in_progress, completed
	Conclusion string // success, failure, neutral; only with status completed
	Title      string
	Summary    string
}

// Client is the capability the review pipeline needs from the host.
// Every call authenticates as the given app installation.
type Client interface {
	FetchPR(ctx context.Context, installationID int64, owner, repo string, number int) (*models.PRInfo, error)
	FetchDiff(ctx context.Context, installationID int64, owner, repo string, number int) (string, error)
	GetFileContent(ctx context.Context, installationID int64, owner, repo, path, ref string) (string, error)
	PostReview(ctx context.Context, installationID int64, owner, repo string, number int, review *Review) error
	CreateCheckRun(ctx context.Context, installationID int64, owner, repo, headSHA, name string) (int64, error)
	UpdateCheckRun(ctx context.Context, installationID int64, owner, repo string, checkRunID int64, update CheckRunUpdate) error
}
