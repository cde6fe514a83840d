// Package janitor deletes completed outputs that were never downloaded
// once they outlive the retention period.
package janitor

import (
	"context"
	"time"

	"av1conv/internal/models"
	"av1conv/internal/pkg/errors"
	"av1conv/internal/pkg/logger"
	"av1conv/internal/pkg/metrics"
	"av1conv/internal/ports"
)

type Config struct {
	Retention time.Duration
	Interval  time.Duration
}

type Janitor struct {
	states  ports.StateStore
	sp      ports.StorageProvider
	cfg     Config
	metrics *metrics.Metrics
	log     *logger.Logger
	now     func() time.Time
}

func New(states ports.StateStore, sp ports.StorageProvider, cfg Config, m *metrics.Metrics, log *logger.Logger) *Janitor {
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 6 * time.Hour
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Janitor{
		states:  states,
		sp:      sp,
		cfg:     cfg,
		metrics: m,
		log:     log.WithComponent("janitor"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Sweep deletes every expired output and returns how many were removed.
// Per-job failures are logged and skipped.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	states, err := j.states.List(ctx, ports.ListFilter{Status: models.StatusCompleted})
	if err != nil {
		return 0, errors.Wrap(err, "janitor.sweep", "failed to list jobs")
	}

	deleted := 0
	for _, st := range states {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		now := j.now()
		if !st.Expired(now, j.cfg.Retention) {
			continue
		}

		ok, err := j.expire(ctx, st, now)
		if err != nil {
			j.log.WithJobID(st.JobID).WithError(err).Warn("cleanup of job failed")
			continue
		}
		if ok {
			deleted++
		}
	}

	j.metrics.CleanupDeleted(deleted)
	j.log.Info("cleanup complete", "deleted", deleted, "scanned", len(states))
	return deleted, nil
}

// expire removes the output of listed. A missing object leaves the state
// untouched. The state is reloaded right before deleting so a download
// that finished during the sweep keeps its output and its flag.
func (j *Janitor) expire(ctx context.Context, listed models.JobState, now time.Time) (bool, error) {
	if _, err := j.sp.StatObject(ctx, listed.FilePath); err != nil {
		if errors.Is(err, ports.ErrObjectNotFound) {
			j.log.Debug("output already gone", "job_id", listed.JobID, "object_key", listed.FilePath)
			return false, nil
		}
		return false, err
	}

	st, err := j.states.Get(ctx, listed.JobID)
	if err != nil {
		if errors.Is(err, ports.ErrStateNotFound) {
			return false, nil
		}
		return false, errors.Wrap(err, "janitor.expire", "failed to reload job")
	}
	if !st.Expired(now, j.cfg.Retention) || st.FilePath != listed.FilePath {
		j.log.Debug("job no longer expired", "job_id", st.JobID, "downloaded", st.Downloaded)
		return false, nil
	}

	if err := j.sp.DeleteObject(ctx, st.FilePath); err != nil {
		return false, err
	}

	st.MarkDeleted(now)
	if err := j.states.Put(ctx, st); err != nil {
		return true, errors.Wrap(err, "janitor.expire", "output deleted but state not updated")
	}
	j.log.Info("deleted expired output", "job_id", st.JobID, "object_key", st.FilePath)
	return true, nil
}

// Run sweeps immediately and then every Interval until ctx is canceled.
func (j *Janitor) Run(ctx context.Context) error {
	j.log.Info("janitor started", "retention", j.cfg.Retention.String(), "interval", j.cfg.Interval.String())
	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := j.Sweep(ctx); err != nil && ctx.Err() == nil {
			j.log.LogError(ctx, "sweep failed", err)
		}
		select {
		case <-ctx.Done():
			j.log.Info("janitor stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
