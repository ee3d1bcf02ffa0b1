package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/sentinelreview/sentinel/pkg/models"
)

// ReviewCommand runs one review synchronously, bypassing the queue. Useful
// for trying out configuration and for backfilling a single pull request.
func ReviewCommand() *cli.Command {
	return &cli.Command{
		Name:      "review",
		Usage:     "Review one pull request and exit",
		ArgsUsage: "OWNER/REPO PR_NUMBER",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:     "installation",
				Aliases:  []string{"i"},
				Usage:    "GitHub App installation id for the repository",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the full review output as JSON",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Abort the review after this long",
				Value: 10 * time.Minute,
			},
		},
		Action: runOneReview,
	}
}

func runOneReview(c *cli.Context) error {
	if c.NArg() < 2 {
		return fmt.Errorf("usage: sentinel review OWNER/REPO PR_NUMBER")
	}

	parts := splitRepoArg(c.Args().Get(0))
	if parts == nil {
		return fmt.Errorf("repository must be OWNER/REPO, got %q", c.Args().Get(0))
	}
	owner, repo := parts[0], parts[1]

	var prNumber int
	if _, err := fmt.Sscanf(c.Args().Get(1), "%d", &prNumber); err != nil || prNumber < 1 {
		return fmt.Errorf("PR_NUMBER must be a positive integer, got %q", c.Args().Get(1))
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	svc, err := buildService(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
	defer cancel()

	job := &models.ReviewJob{
		ID:             uuid.NewString(),
		Owner:          owner,
		Repo:           repo,
		PRNumber:       prNumber,
		InstallationID: c.Int64("installation"),
		Action:         "manual",
		CreatedAt:      time.Now().UTC(),
	}

	result := svc.Process(ctx, job)
	if !result.Success {
		return fmt.Errorf("review failed: %s", result.Error)
	}

	if c.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result.Output)
	}

	out := result.Output
	fmt.Printf("Risk: %s (%d/100)\n", out.RiskLevel, out.RiskScore)
	fmt.Printf("Issues: %d across %d file(s)\n", out.Stats.IssuesFound, out.Stats.FilesChanged)
	for _, b := range out.CategoryBreakdown {
		fmt.Printf("  %-16s %3d (max %s)\n", b.Category, b.Count, b.MaxSeverity)
	}
	return nil
}

func splitRepoArg(arg string) []string {
	for i := 0; i < len(arg); i++ {
		if arg[i] == '/' {
			if i == 0 || i == len(arg)-1 {
				return nil
			}
			return []string{arg[:i], arg[i+1:]}
		}
	}
	return nil
}
