package transcoder

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"av1conv/internal/pkg/errors"
)

const probeTimeout = 30 * time.Second

// ProbeDuration asks ffprobe for the container duration of input.
func ProbeDuration(ctx context.Context, ffprobe, input string) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		input,
	)
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return 0, errors.Timeout("ffprobe")
		}
		return 0, errors.Wrap(err, "transcoder.probe", "ffprobe failed")
	}
	return parseDuration(string(out))
}

func parseDuration(out string) (time.Duration, error) {
	s := strings.TrimSpace(out)
	if s == "" || s == "N/A" {
		return 0, errors.Internal("empty duration")
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil || secs < 0 {
		return 0, errors.Newf(errors.CodeInternal, "invalid duration %q", s)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
