package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/sentinelreview/sentinel/pkg/models"
)

// WorkerCommand starts a standalone review worker consuming from the
// broker queue. Requires the broker backend; the memory queue cannot be
// consumed from another process.
func WorkerCommand() *cli.Command {
	return &cli.Command{
		Name:   "worker",
		Usage:  "Start a review worker consuming the broker queue",
		Action: runWorker,
	}
}

func runWorker(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.Queue.Backend != "broker" {
		return fmt.Errorf("the worker command requires QUEUE_BACKEND=broker; run serve for the in-memory backend")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue, err := buildQueue(ctx, cfg)
	if err != nil {
		return fmt.Errorf("building queue: %w", err)
	}

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
		return fmt.Errorf("starting workers: %w", err)
	}

	<-ctx.Done()

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return queue.Close(shutdownCtx)
}
