package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/sentinelreview/sentinel/internal/config"
)

// ConfigCommand prints the effective configuration after defaults, file,
// and environment are merged. Secrets are masked.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Show the effective configuration",
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}

			fmt.Printf("app.id                   = %d\n", cfg.App.ID)
			fmt.Printf("app.webhook_secret       = %s\n", mask(cfg.App.WebhookSecret))
			fmt.Printf("app.private_key          = %s\n", mask(cfg.App.PrivateKey))
			fmt.Printf("app.private_key_path     = %s\n", cfg.App.PrivateKeyPath)
			fmt.Printf("server                   = %s:%d\n", cfg.Server.Host, cfg.Server.Port)
			fmt.Printf("queue.backend            = %s\n", cfg.Queue.Backend)
			fmt.Printf("queue.broker_url         = %s\n", mask(cfg.Queue.BrokerURL))
			fmt.Printf("queue.concurrency        = %d\n", cfg.Queue.Concurrency)
			fmt.Printf("llm.provider             = %s\n", cfg.LLM.Provider)
			fmt.Printf("llm.requests_per_second  = %.1f\n", cfg.LLM.RequestsPerSecond)
			fmt.Printf("review.max_inline        = %d\n", cfg.Review.MaxInlineComments)
			fmt.Printf("review.risk_threshold    = %d\n", cfg.Review.RiskThreshold)
			fmt.Printf("review.confidence        = %.2f\n", cfg.Review.ConfidenceThreshold)
			fmt.Printf("review.check_runs        = %v\n", cfg.Review.EnableCheckRuns)
			fmt.Printf("osv.enabled              = %v\n", cfg.OSV.Enabled)
			fmt.Printf("forge.api_url            = %s\n", cfg.Forge.APIURL)
			fmt.Printf("log                      = level=%s json=%v file=%s\n", cfg.Log.Level, cfg.Log.JSON, cfg.Log.File)

			if err := cfg.Validate(); err != nil {
				fmt.Printf("\nvalidation: %s\n", err)
				return nil
			}
			fmt.Printf("\nvalidation: ok\n")
			return nil
		},
	}
}

func mask(s string) string {
	if s == "" {
		return "(unset)"
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + "****" + s[len(s)-2:]
}
