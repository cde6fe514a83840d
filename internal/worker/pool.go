package worker

import (
	"context"
	"sync"

	"av1conv/internal/models"
	"av1conv/internal/pkg/errors"
	"av1conv/internal/pkg/logger"
	"av1conv/internal/ports"
	"av1conv/internal/worker/queue"
)

// Pool is the in-process dispatcher: a fixed number of goroutines fed by
// a bounded channel.
type Pool struct {
	proc        ports.JobProcessor
	log         *logger.Logger
	concurrency int

	mu     sync.RWMutex
	jobs   chan queue.Message
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPool(proc ports.JobProcessor, concurrency, queueSize int, log *logger.Logger) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Pool{
		proc:        proc,
		log:         log.WithComponent("pool"),
		concurrency: concurrency,
		jobs:        make(chan queue.Message, queueSize),
	}
}

// Start launches the workers. Jobs run under a context derived from ctx
// that is only canceled by Shutdown or by canceling ctx.
func (p *Pool) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(context.WithoutCancel(ctx))
	go func() {
		select {
		case <-ctx.Done():
			p.cancel()
		case <-p.ctx.Done():
		}
	}()

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for msg := range p.jobs {
				handle(p.ctx, p.proc, p.log, msg)
			}
		}()
	}
	p.log.Info("worker pool started", "concurrency", p.concurrency, "queue_size", cap(p.jobs))
}

var _ ports.Dispatcher = (*Pool)(nil)

// Dispatch implements ports.Dispatcher. It never blocks: a full queue
// fails with RESOURCE_EXHAUSTED.
func (p *Pool) Dispatch(ctx context.Context, jobID string, job models.VideoConvertJob) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errors.New(errors.CodeUnavailable, "worker pool is shutting down")
	}

	select {
	case p.jobs <- queue.Message{JobID: jobID, Job: job}:
		return nil
	default:
		return errors.New(errors.CodeResourceExhausted, "job queue is full").
			WithField("queue_size", cap(p.jobs))
	}
}

// Pending returns the number of queued, not yet started jobs.
func (p *Pool) Pending() int { return len(p.jobs) }

// Shutdown stops accepting jobs and waits for queued and running jobs.
// When ctx expires first, running jobs are canceled and awaited.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if p.cancel != nil {
			p.cancel()
		}
		return nil
	case <-ctx.Done():
		p.log.Warn("shutdown deadline reached, canceling running jobs", "pending", len(p.jobs))
		if p.cancel != nil {
			p.cancel()
		}
		<-done
		return ctx.Err()
	}
}
