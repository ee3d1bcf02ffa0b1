package jobqueue

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/sentinelreview/sentinel/pkg/models"
)

const memoryQueueDepth = 256

// MemoryQueue is a single-process FIFO with at-most-once delivery and no
// persistence. Jobs in flight when the process dies are lost, which is
// fine for development and single-node setups.
type MemoryQueue struct {
	jobs        chan *models.ReviewJob
	concurrency int

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewMemoryQueue(concurrency int) *MemoryQueue {
	if concurrency <= 0 {
		concurrency = 3
	}
	return &MemoryQueue{
		jobs:        make(chan *models.ReviewJob, memoryQueueDepth),
		concurrency: concurrency,
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job *models.ReviewJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// The lock is held across the send so Close cannot close the channel
	// between the closed check and the send. The send never blocks: the
	// channel is buffered and a full buffer takes the default branch.
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return fmt.Errorf("queue is closed")
	}

	select {
	case q.jobs <- job:
		log.Debug().Str("job_id", job.ID).Msg("job enqueued")
		return nil
	default:
		return fmt.Errorf("queue is full (%d jobs pending)", memoryQueueDepth)
	}
}

func (q *MemoryQueue) Start(ctx context.Context, handler Handler) error {
	for i := 0; i < q.concurrency; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for {
				select {
				case job, ok := <-q.jobs:
					if !ok {
						return
					}
					if err := handler(ctx, job); err != nil {
						// At-most-once: the failure is logged, not redelivered.
						log.Error().Err(err).Str("job_id", job.ID).Msg("job failed")
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	return nil
}

func (q *MemoryQueue) Close(context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	q.wg.Wait()
	return nil
}
