package processor

import (
	"context"
	"os"

	"av1conv/internal/pkg/logger"
)

type Cleanup struct {
	log *logger.Logger
}

func NewCleanup(log *logger.Logger) *Cleanup {
	return &Cleanup{log: log}
}

// CleanupJob removes the job's temp directory. Failures are only logged.
func (c *Cleanup) CleanupJob(ctx context.Context, dir string) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		c.log.FromContext(ctx).Warn("temp dir cleanup failed", "dir", dir, "error", err.Error())
	}
}
