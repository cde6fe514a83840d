package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"av1conv/internal/models"
	"av1conv/internal/pkg/errors"
	"av1conv/internal/pkg/logger"
	"av1conv/internal/worker/queue"
)

type recordingProcessor struct {
	mu      sync.Mutex
	ids     []string
	release chan struct{}
	started chan string
}

func (p *recordingProcessor) ProcessJob(ctx context.Context, jobID string, job models.VideoConvertJob) error {
	if p.started != nil {
		p.started <- jobID
	}
	if p.release != nil {
		select {
		case <-p.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.mu.Lock()
	p.ids = append(p.ids, jobID)
	p.mu.Unlock()
	return nil
}

func (p *recordingProcessor) processed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.ids...)
}

type fakeQueue struct {
	mu   sync.Mutex
	msgs []*queue.Message
	errs []error
	pops int
}

func (q *fakeQueue) Pop(ctx context.Context, timeout time.Duration) (*queue.Message, error) {
	q.mu.Lock()
	q.pops++
	if len(q.errs) > 0 {
		err := q.errs[0]
		q.errs = q.errs[1:]
		q.mu.Unlock()
		return nil, err
	}
	if len(q.msgs) > 0 {
		m := q.msgs[0]
		q.msgs = q.msgs[1:]
		q.mu.Unlock()
		return m, nil
	}
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, nil
	}
}

func TestRunProcessesUntilCanceled(t *testing.T) {
	q := &fakeQueue{
		errs: []error{
			errors.New(errors.CodeBadRequest, "malformed"),
			errors.New(errors.CodeUnavailable, "redis down"),
		},
		msgs: []*queue.Message{{JobID: "j1"}, {JobID: "j2"}},
	}
	p := &recordingProcessor{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Deps{Queue: q, Processor: p, Log: logger.Nop(), PopTimeout: 10 * time.Millisecond, RetryDelay: time.Millisecond})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(p.processed()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}

	got := p.processed()
	if len(got) != 2 || got[0] != "j1" || got[1] != "j2" {
		t.Errorf("processed = %v", got)
	}
}

func TestPoolDispatch(t *testing.T) {
	p := &recordingProcessor{}
	pool := NewPool(p, 2, 8, logger.Nop())
	pool.Start(context.Background())

	for _, id := range []string{"a", "b", "c"} {
		if err := pool.Dispatch(context.Background(), id, models.VideoConvertJob{}); err != nil {
			t.Fatal(err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
	if got := p.processed(); len(got) != 3 {
		t.Errorf("processed = %v", got)
	}

	err := pool.Dispatch(context.Background(), "late", models.VideoConvertJob{})
	if !errors.IsCode(err, errors.CodeUnavailable) {
		t.Errorf("dispatch after shutdown: %v", err)
	}
}

func TestPoolFullQueue(t *testing.T) {
	p := &recordingProcessor{release: make(chan struct{}), started: make(chan string, 4)}
	pool := NewPool(p, 1, 1, logger.Nop())
	pool.Start(context.Background())

	if err := pool.Dispatch(context.Background(), "running", models.VideoConvertJob{}); err != nil {
		t.Fatal(err)
	}
	<-p.started
	if err := pool.Dispatch(context.Background(), "queued", models.VideoConvertJob{}); err != nil {
		t.Fatal(err)
	}
	err := pool.Dispatch(context.Background(), "rejected", models.VideoConvertJob{})
	if !errors.IsCode(err, errors.CodeResourceExhausted) {
		t.Fatalf("err = %v", err)
	}
	if pool.Pending() != 1 {
		t.Errorf("pending = %d", pool.Pending())
	}

	close(p.release)
	if err := pool.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := p.processed(); len(got) != 2 {
		t.Errorf("processed = %v", got)
	}
}

func TestPoolShutdownDeadlineCancelsJobs(t *testing.T) {
	p := &recordingProcessor{release: make(chan struct{}), started: make(chan string, 1)}
	pool := NewPool(p, 1, 1, logger.Nop())
	pool.Start(context.Background())

	if err := pool.Dispatch(context.Background(), "stuck", models.VideoConvertJob{}); err != nil {
		t.Fatal(err)
	}
	<-p.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := pool.Shutdown(ctx); err != context.DeadlineExceeded {
		t.Fatalf("err = %v", err)
	}
	if got := p.processed(); len(got) != 0 {
		t.Errorf("canceled job should not be recorded, got %v", got)
	}
}

func TestDrainContext(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	jobCtx, cancel := drainContext(parent, 30*time.Millisecond)
	defer cancel()

	cancelParent()
	select {
	case <-jobCtx.Done():
		t.Fatal("job context canceled before grace period")
	case <-time.After(10 * time.Millisecond):
	}

	select {
	case <-jobCtx.Done():
	case <-time.After(time.Second):
		t.Fatal("job context not canceled after grace period")
	}
}
