package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/sentinelreview/sentinel/internal/api"
	"github.com/sentinelreview/sentinel/pkg/models"
)

// ServeCommand starts the webhook ingress. With the in-memory queue backend
// the review workers run in the same process; with the broker backend this
// process only enqueues, and a separate worker process consumes.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the webhook ingress server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Override the listen port",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if port := c.Int("port"); port != 0 {
		cfg.Server.Port = port
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue, err := buildQueue(ctx, cfg)
	if err != nil {
		return fmt.Errorf("building queue: %w", err)
	}

	if cfg.Queue.Backend == "memory" {
		svc, err := buildService(cfg)
		if err != nil {
			return err
		}
		err = queue.Start(ctx, func(ctx context.Context, job *models.ReviewJob) error {
			result := svc.Process(ctx, job)
			if !result.Success {
				return fmt.Errorf("review %s: %s", job.ID, result.Error)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("starting in-process workers: %w", err)
		}
		log.Info().Int("concurrency", cfg.Queue.Concurrency).Msg("in-process review workers started")
	}

	server := api.NewServer(cfg.Server.Host, cfg.Server.Port, cfg.App.WebhookSecret, queue)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("server shutdown")
	}
	if err := queue.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("queue shutdown")
	}
	return nil
}
