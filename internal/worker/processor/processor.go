// Package processor runs one conversion job end to end: download, probe,
// encode, upload, while keeping the job state current.
package processor

import (
	"context"
	"path/filepath"
	"time"

	"av1conv/internal/models"
	"av1conv/internal/pkg/errors"
	"av1conv/internal/pkg/logger"
	"av1conv/internal/pkg/metrics"
	"av1conv/internal/ports"
	"av1conv/internal/worker/source"
	"av1conv/internal/worker/transcoder"
)

// Encoder is the ffmpeg side of a job.
type Encoder interface {
	Probe(ctx context.Context, input string) (time.Duration, error)
	Encode(ctx context.Context, o transcoder.Options, duration time.Duration, onProgress func(transcoder.Progress)) error
}

type Deps struct {
	States  ports.StateStore
	SP      ports.StorageProvider
	Source  source.Client
	Encoder Encoder
	WorkDir string
	// ProgressInterval throttles encoding progress writes; defaults to 500ms.
	ProgressInterval time.Duration
	Metrics          *metrics.Metrics
	Log              *logger.Logger
	Now              func() time.Time
}

type Processor struct {
	states           ports.StateStore
	encoder          Encoder
	progressInterval time.Duration
	metrics          *metrics.Metrics
	log              *logger.Logger
	now              func() time.Time

	inputHandler  *InputHandler
	outputHandler *OutputHandler
	cleanup       *Cleanup
}

func New(d Deps) *Processor {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("processor")

	now := d.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	interval := d.ProgressInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	return &Processor{
		states:           d.States,
		encoder:          d.Encoder,
		progressInterval: interval,
		metrics:          d.Metrics,
		log:              log,
		now:              now,
		inputHandler:     NewInputHandler(d.Source, d.WorkDir),
		outputHandler:    NewOutputHandler(d.SP),
		cleanup:          NewCleanup(log),
	}
}

var _ ports.JobProcessor = (*Processor)(nil)

// ProcessJob implements ports.JobProcessor. Every failure is recorded on
// the job state before it is returned.
func (p *Processor) ProcessJob(ctx context.Context, jobID string, job models.VideoConvertJob) error {
	log := p.log.FromContext(ctx).WithJobID(jobID)
	start := p.now()

	if err := job.Normalize(); err != nil {
		return p.failJob(ctx, jobID, job, "Invalid job", err)
	}
	format, codec := job.Format(), job.Codec()

	// 1. Downloading
	log.Debug("marking job as downloading")
	if err := p.update(ctx, jobID, job, func(s *models.JobState, now time.Time) {
		s.Transition(models.StatusDownloading, 0, "Downloading source", now)
	}); err != nil {
		return p.failJob(ctx, jobID, job, "State update failed", errors.Wrap(err, "processor.status", "failed to mark job as downloading"))
	}

	dir, err := p.inputHandler.Prepare(jobID)
	if err != nil {
		return p.failJob(ctx, jobID, job, "Download failed", err)
	}
	defer p.cleanup.CleanupJob(ctx, dir)

	inputPath, n, err := p.inputHandler.Fetch(ctx, dir, job.Source.URL)
	if err != nil {
		return p.failJob(ctx, jobID, job, "Download failed", errors.Wrap(err, "processor.download", "failed to download source"))
	}
	log.Info("source downloaded", "bytes", n)

	// 2. Probe; an unknown duration only disables progress.
	duration, err := p.encoder.Probe(ctx, inputPath)
	if err != nil {
		log.Warn("probe failed, progress unavailable", "error", err.Error())
		duration = 0
	}
	log.Debug("probed input", "duration_s", duration.Seconds())

	// 3. Encoding
	if err := p.update(ctx, jobID, job, func(s *models.JobState, now time.Time) {
		s.Transition(models.StatusEncoding, 0, "Encoding started", now)
	}); err != nil {
		return p.failJob(ctx, jobID, job, "State update failed", errors.Wrap(err, "processor.status", "failed to mark job as encoding"))
	}

	outputPath := filepath.Join(dir, OutputName(format))
	encodeStart := time.Now()
	err = p.encoder.Encode(ctx, transcoder.Options{
		Input:  inputPath,
		Output: outputPath,
		Format: format,
		Codec:  codec,
		CRF:    job.Request.CRF,
	}, duration, p.progressReporter(ctx, jobID, job))
	if err != nil {
		return p.failJob(ctx, jobID, job, "Encoding failed", errors.Wrap(err, "processor.encode", "encode failed"))
	}
	p.metrics.ObserveEncode(time.Since(encodeStart))
	log.Debug("encode completed")

	// 4. Upload
	out, err := p.outputHandler.Upload(ctx, jobID, outputPath, format)
	if err != nil {
		return p.failJob(ctx, jobID, job, "Upload failed", errors.Wrap(err, "processor.upload", "failed to store output"))
	}

	// 5. Done
	if err := p.update(ctx, jobID, job, func(s *models.JobState, now time.Time) {
		s.Transition(models.StatusCompleted, 100, "Done", now)
		s.FilePath = out.ObjectKey
		s.FileName = OutputName(format)
		s.Error = ""
	}); err != nil {
		return p.failJob(ctx, jobID, job, "State update failed", errors.Wrap(err, "processor.status", "failed to mark job as completed"))
	}

	p.metrics.JobFinished(string(models.StatusCompleted))
	log.Info("job output stored",
		"provider", p.outputHandler.Provider(),
		"object_key", out.ObjectKey,
		"size", out.Size,
		"duration_ms", p.now().Sub(start).Milliseconds(),
	)
	return nil
}

// progressReporter writes encoding progress at most once per interval
// and only when the percentage moved.
func (p *Processor) progressReporter(ctx context.Context, jobID string, job models.VideoConvertJob) func(transcoder.Progress) {
	log := p.log.FromContext(ctx).WithJobID(jobID)
	var last time.Time
	lastPct := 0

	return func(pr transcoder.Progress) {
		if pr.Done {
			return
		}
		now := p.now()
		if pr.Percent <= lastPct || (!last.IsZero() && now.Sub(last) < p.progressInterval) {
			return
		}
		last, lastPct = now, pr.Percent

		err := p.update(ctx, jobID, job, func(s *models.JobState, now time.Time) {
			s.Transition(models.StatusEncoding, pr.Percent, "Encoding in progress", now)
		})
		if err != nil {
			log.Warn("progress update failed", "error", err.Error(), "progress", pr.Percent)
		}
	}
}

// update applies mutate to the stored state. A missing state is recreated
// from job so a worker can run jobs whose queued record was lost.
func (p *Processor) update(ctx context.Context, jobID string, job models.VideoConvertJob, mutate func(*models.JobState, time.Time)) error {
	now := p.now()
	st, err := p.states.Get(ctx, jobID)
	if errors.Is(err, ports.ErrStateNotFound) {
		st = models.NewJobState(jobID, job, now)
	} else if err != nil {
		return err
	}
	mutate(&st, now)
	return p.states.Put(ctx, st)
}

func (p *Processor) failJob(ctx context.Context, jobID string, job models.VideoConvertJob, message string, cause error) error {
	log := p.log.FromContext(ctx).WithJobID(jobID)

	var coded *errors.Error
	if errors.As(cause, &coded) {
		log.Error("job failed",
			"stage", message,
			"code", string(coded.Code),
			"op", coded.Op,
			"message", coded.Message,
		)
	} else {
		log.Error("job failed", "stage", message, "error", models.TruncateError(cause.Error()))
	}

	// The failure is recorded even when ctx was canceled.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.update(writeCtx, jobID, job, func(s *models.JobState, now time.Time) {
		s.Fail(message, cause, now)
	}); err != nil {
		log.LogError(writeCtx, "failed to record job failure", err)
	}

	p.metrics.JobFinished(string(models.StatusFailed))
	return cause
}
