package worker

import (
	"context"
	"time"

	"av1conv/internal/config"
	"av1conv/internal/pkg/logger"
	"av1conv/internal/pkg/metrics"
	"av1conv/internal/ports"
	"av1conv/internal/worker/processor"
	"av1conv/internal/worker/queue"
	"av1conv/internal/worker/source"
	"av1conv/internal/worker/transcoder"
)

// Popper is the consuming side of the job queue.
type Popper interface {
	Pop(ctx context.Context, timeout time.Duration) (*queue.Message, error)
}

type Deps struct {
	Queue     Popper
	Processor ports.JobProcessor
	Log       *logger.Logger
	// PopTimeout bounds one BRPOP; defaults to 30s.
	PopTimeout time.Duration
	// RetryDelay is the pause after a queue error; defaults to 1s.
	RetryDelay time.Duration
	// DrainTimeout is how long a running job may continue after ctx is
	// canceled; defaults to 25s.
	DrainTimeout time.Duration
}

// NewProcessor wires the production processor from cfg.
func NewProcessor(cfg config.Config, states ports.StateStore, sp ports.StorageProvider, m *metrics.Metrics, log *logger.Logger) *processor.Processor {
	return processor.New(processor.Deps{
		States:           states,
		SP:               sp,
		Source:           source.NewHTTPClient(cfg.DownloadTimeout, 3, log),
		Encoder:          transcoder.New(cfg.FFmpegPath, cfg.FFprobePath, cfg.UseGPU, log),
		WorkDir:          cfg.WorkDir,
		ProgressInterval: cfg.ProgressInterval,
		Metrics:          m,
		Log:              log,
	})
}
