package processor

import (
	"context"
	"os"
	"path/filepath"

	"av1conv/internal/pkg/errors"
	"av1conv/internal/worker/source"
)

// InputHandler owns the per-job work directory and the source download.
type InputHandler struct {
	source  source.Client
	workDir string
}

func NewInputHandler(src source.Client, workDir string) *InputHandler {
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &InputHandler{source: src, workDir: workDir}
}

// Prepare creates a fresh temp directory for jobID.
func (ih *InputHandler) Prepare(jobID string) (string, error) {
	if err := os.MkdirAll(ih.workDir, 0o755); err != nil {
		return "", errors.Wrap(err, "processor.prepare", "failed to create work dir")
	}
	dir, err := os.MkdirTemp(ih.workDir, "av1conv-"+jobID+"-")
	if err != nil {
		return "", errors.Wrap(err, "processor.prepare", "failed to create job dir")
	}
	return dir, nil
}

// Fetch downloads url to <dir>/input.
func (ih *InputHandler) Fetch(ctx context.Context, dir, url string) (string, int64, error) {
	dst := filepath.Join(dir, "input")
	n, err := ih.source.Fetch(ctx, url, dst)
	if err != nil {
		return "", n, err
	}
	return dst, n, nil
}
