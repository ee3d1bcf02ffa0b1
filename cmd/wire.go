package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/sentinelreview/sentinel/internal/config"
	"github.com/sentinelreview/sentinel/internal/forge"
	"github.com/sentinelreview/sentinel/internal/jobqueue"
	"github.com/sentinelreview/sentinel/internal/llm"
	"github.com/sentinelreview/sentinel/internal/logging"
	"github.com/sentinelreview/sentinel/internal/review"
	"github.com/sentinelreview/sentinel/internal/tools"
	"github.com/sentinelreview/sentinel/internal/vulnscan"
)

// loadConfig reads and validates configuration, then installs the global
// logger. Every command starts here.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logging.Setup(logging.Options{
		Level: cfg.Log.Level,
		JSON:  cfg.Log.JSON,
		File:  cfg.Log.File,
	})
	return cfg, nil
}

// buildForge constructs the GitHub client from the app credentials.
func buildForge(cfg *config.Config) (forge.Client, error) {
	key, err := cfg.LoadPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("loading app private key: %w", err)
	}
	return forge.NewGitHubClient(cfg.App.ID, key, cfg.Forge.APIURL), nil
}

// buildProvider constructs the configured model backend.
func buildProvider(cfg *config.Config) (llm.Provider, error) {
	opts := llm.Options{
		Provider:          cfg.LLM.Provider,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
	}
	switch cfg.LLM.Provider {
	case "openai":
		opts.APIKey = cfg.LLM.OpenAI.APIKey
		opts.BaseURL = cfg.LLM.OpenAI.BaseURL
		opts.Model = cfg.LLM.OpenAI.Model
		opts.MaxTokens = cfg.LLM.OpenAI.MaxTokens
	case "anthropic":
		opts.APIKey = cfg.LLM.Anthropic.APIKey
		opts.BaseURL = cfg.LLM.Anthropic.BaseURL
		opts.Model = cfg.LLM.Anthropic.Model
	case "local":
		opts.BaseURL = cfg.LLM.Local.BaseURL
		opts.Model = cfg.LLM.Local.Model
	}
	return llm.New(opts)
}

// buildHarness assembles the enabled analyzer runners.
func buildHarness(cfg *config.Config) *tools.Harness {
	var runners []tools.ToolRunner
	if cfg.Tools.ESLint {
		runners = append(runners, tools.NewESLintRunner())
	}
	if cfg.Tools.Semgrep {
		runners = append(runners, tools.NewSemgrepRunner(
			cfg.Tools.SemgrepRules,
			time.Duration(cfg.Tools.SemgrepTimeout)*time.Second,
		))
	}
	if cfg.Tools.Ruff {
		runners = append(runners, tools.NewRuffRunner())
	}
	if cfg.Tools.Bandit {
		runners = append(runners, tools.NewBanditRunner())
	}
	if cfg.Tools.Gosec {
		runners = append(runners, tools.NewGosecRunner())
	}
	if cfg.Tools.Staticcheck {
		runners = append(runners, tools.NewStaticcheckRunner())
	}
	runners = append(runners, tools.NewGoVetRunner())
	if cfg.Tools.Secrets {
		runners = append(runners, tools.NewSecretsRunner())
	}
	return tools.NewHarness(runners...)
}

// buildService wires the whole review pipeline from configuration.
func buildService(cfg *config.Config) (*review.Service, error) {
	fc, err := buildForge(cfg)
	if err != nil {
		return nil, err
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("building llm provider: %w", err)
	}

	var scanner *vulnscan.Scanner
	if cfg.OSV.Enabled {
		scanner = vulnscan.NewScanner(cfg.OSV.APIURL)
	}

	svc := review.NewService(fc, provider, buildHarness(cfg), scanner, review.Config{
		MaxInlineComments:   cfg.Review.MaxInlineComments,
		RiskThreshold:       cfg.Review.RiskThreshold,
		ConfidenceThreshold: cfg.Review.ConfidenceThreshold,
		MaxFileLines:        cfg.Review.MaxFileLines,
		MaxTokensPerChunk:   cfg.Review.MaxTokensPerChunk,
		MaxFilesPerChunk:    cfg.Review.MaxFilesPerChunk,
		EnableCheckRuns:     cfg.Review.EnableCheckRuns,
		CheckRunName:        "sentinel-review",
		EnableOSV:           cfg.OSV.Enabled,
	})
	return svc, nil
}

// buildQueue constructs the configured queue backend.
func buildQueue(ctx context.Context, cfg *config.Config) (jobqueue.Queue, error) {
	switch cfg.Queue.Backend {
	case "broker":
		return jobqueue.NewBrokerQueue(ctx, cfg.Queue.BrokerURL, cfg.Queue.Concurrency)
	default:
		return jobqueue.NewMemoryQueue(cfg.Queue.Concurrency), nil
	}
}
