package jobqueue

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog/log"

	"github.com/sentinelreview/sentinel/pkg/models"
)

const (
	maxJobAttempts = 3

	completedRetention = time.Hour
	discardedRetention = 7 * 24 * time.Hour
)

// reviewJobArgs wraps a ReviewJob as a River job payload.
type reviewJobArgs struct {
	Job models.ReviewJob `json:"job"`
}

func (reviewJobArgs) Kind() string { return "pr_review" }

func (reviewJobArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: maxJobAttempts}
}

// reviewRetryPolicy backs off exponentially from one second: 1s, 2s, 4s.
type reviewRetryPolicy struct{}

func (reviewRetryPolicy) NextRetry(job *rivertype.JobRow) time.Time {
	attempt := job.Attempt
	if attempt < 1 {
		attempt = 1
	}
	delay := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
	return time.Now().Add(delay)
}

type reviewWorker struct {
	river.WorkerDefaults[reviewJobArgs]
	handler Handler
}

func (w *reviewWorker) Work(ctx context.Context, job *river.Job[reviewJobArgs]) error {
	return w.handler(ctx, &job.Args.Job)
}

// BrokerQueue is the durable backend: at-least-once delivery with up to
// three attempts per job, jobs surviving process restarts.
type BrokerQueue struct {
	pool        *pgxpool.Pool
	concurrency int

	insertClient *river.Client[pgx.Tx]
	workClient   *river.Client[pgx.Tx]
}

func NewBrokerQueue(ctx context.Context, brokerURL string, concurrency int) (*BrokerQueue, error) {
	if concurrency <= 0 {
		concurrency = 3
	}

	pool, err := pgxpool.New(ctx, brokerURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to broker: %w", err)
	}

	// Insert-only client; the worker client is built in Start once a
	// handler exists.
	insertClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating broker client: %w", err)
	}

	return &BrokerQueue{
		pool:         pool,
		concurrency:  concurrency,
		insertClient: insertClient,
	}, nil
}

func (q *BrokerQueue) Enqueue(ctx context.Context, job *models.ReviewJob) error {
	_, err := q.insertClient.Insert(ctx, reviewJobArgs{Job: *job}, nil)
	if err != nil {
		return fmt.Errorf("inserting job %s: %w", job.ID, err)
	}
	log.Debug().Str("job_id", job.ID).Msg("job enqueued on broker")
	return nil
}

func (q *BrokerQueue) Start(ctx context.Context, handler Handler) error {
	workers := river.NewWorkers()
	river.AddWorker(workers, &reviewWorker{handler: handler})

	client, err := river.NewClient(riverpgxv5.New(q.pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: q.concurrency},
		},
		Workers:                     workers,
		RetryPolicy:                 reviewRetryPolicy{},
		CompletedJobRetentionPeriod: completedRetention,
		DiscardedJobRetentionPeriod: discardedRetention,
	})
	if err != nil {
		return fmt.Errorf("creating broker worker client: %w", err)
	}
	q.workClient = client

	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("starting broker workers: %w", err)
	}
	log.Info().Int("concurrency", q.concurrency).Msg("broker workers started")
	return nil
}

func (q *BrokerQueue) Close(ctx context.Context) error {
	if q.workClient != nil {
		if err := q.workClient.Stop(ctx); err != nil {
			return fmt.Errorf("stopping broker workers: %w", err)
		}
	}
	q.pool.Close()
	return nil
}
