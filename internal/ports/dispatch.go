package ports

import (
	"context"

	"av1conv/internal/models"
)

// Dispatcher hands an accepted job to a worker: an in-process pool or a
// redis queue consumed by cmd/worker.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID string, job models.VideoConvertJob) error
}

// JobProcessor runs one conversion job to a terminal state.
type JobProcessor interface {
	ProcessJob(ctx context.Context, jobID string, job models.VideoConvertJob) error
}
