// Package worker consumes conversion jobs, either from the Redis queue
// (Run) or from an in-process pool (Pool).
package worker

import (
	"context"
	"time"

	"av1conv/internal/pkg/errors"
	"av1conv/internal/pkg/logger"
	"av1conv/internal/ports"
	"av1conv/internal/worker/queue"
)

// Run pops jobs until ctx is canceled and processes them one at a time.
func Run(ctx context.Context, d Deps) error {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("worker")

	popTimeout := d.PopTimeout
	if popTimeout <= 0 {
		popTimeout = 30 * time.Second
	}
	retryDelay := d.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	grace := d.DrainTimeout
	if grace <= 0 {
		grace = 25 * time.Second
	}

	log.Info("worker started", "pop_timeout", popTimeout.String())
	for {
		select {
		case <-ctx.Done():
			log.Info("worker context canceled, stopping")
			return ctx.Err()
		default:
		}

		msg, err := d.Queue.Pop(ctx, popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("worker stopping due to context cancellation")
				return ctx.Err()
			}
			if errors.IsCode(err, errors.CodeBadRequest) {
				log.Error("dropping malformed queue message", "error", err.Error())
				continue
			}

			log.Warn("queue pop error, retrying", "error", err.Error())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay):
			}
			continue
		}

		if msg == nil {
			continue
		}
		jobCtx, cancel := drainContext(ctx, grace)
		handle(jobCtx, d.Processor, log, *msg)
		cancel()
	}
}

// drainContext returns a context that outlives ctx by grace, so a job in
// flight at shutdown can still finish.
func drainContext(ctx context.Context, grace time.Duration) (context.Context, context.CancelFunc) {
	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	go func() {
		select {
		case <-ctx.Done():
			t := time.NewTimer(grace)
			defer t.Stop()
			select {
			case <-t.C:
				cancel()
			case <-jobCtx.Done():
			}
		case <-jobCtx.Done():
		}
	}()
	return jobCtx, cancel
}

// handle runs one job with a job-scoped context and logger.
func handle(ctx context.Context, p ports.JobProcessor, log *logger.Logger, msg queue.Message) {
	jobCtx := logger.ContextWithJobID(ctx, msg.JobID)
	jobLog := log.WithJobID(msg.JobID)

	jobLog.Info("processing job", "format", msg.Job.Request.Format, "codec", msg.Job.Request.Codec)
	start := time.Now()

	if err := p.ProcessJob(jobCtx, msg.JobID, msg.Job); err != nil {
		jobLog.Error("job failed",
			"error", err.Error(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return
	}
	jobLog.Info("job completed", "duration_ms", time.Since(start).Milliseconds())
}
