// Package jobqueue carries review jobs from the webhook ingress to the
// worker. Two backends: an in-process memory queue for development and a
// durable broker queue backed by Postgres.
package jobqueue

import (
	"context"

	"github.com/sentinelreview/sentinel/pkg/models"
)

// Handler processes one dequeued job. Returning an error marks the job
// failed; the broker backend will retry it, the memory backend will not.
// Handlers must be idempotent because broker delivery is at-least-once.
type Handler func(ctx context.Context, job *models.ReviewJob) error

// Queue is the capability shared by both backends.
type Queue interface {
	// Enqueue submits a job. Fire-and-forget from the caller's view.
	Enqueue(ctx context.Context, job *models.ReviewJob) error

	// Start runs the worker loop, invoking handler for each job until
	// ctx is cancelled or Close is called.
	Start(ctx context.Context, handler Handler) error

	// Close stops accepting jobs and shuts the worker down.
	Close(ctx context.Context) error
}
