package transcoder

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"av1conv/internal/pkg/errors"
	"av1conv/internal/pkg/logger"
)

const stderrTailLines = 20

// Transcoder runs ffmpeg and ffprobe binaries.
type Transcoder struct {
	FFmpegPath  string
	FFprobePath string
	UseGPU      bool
	Log         *logger.Logger
}

func New(ffmpeg, ffprobe string, useGPU bool, log *logger.Logger) *Transcoder {
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Transcoder{FFmpegPath: ffmpeg, FFprobePath: ffprobe, UseGPU: useGPU, Log: log.WithComponent("transcoder")}
}

// Probe returns the input duration.
func (t *Transcoder) Probe(ctx context.Context, input string) (time.Duration, error) {
	return ProbeDuration(ctx, t.FFprobePath, input)
}

// Encode runs ffmpeg for o with the transcoder's GPU setting. onProgress
// is called from a single goroutine at the end of every progress block.
// Canceling ctx kills ffmpeg. On failure the error carries the tail of
// ffmpeg's stderr.
func (t *Transcoder) Encode(ctx context.Context, o Options, duration time.Duration, onProgress func(Progress)) error {
	o.UseGPU = t.UseGPU
	args := BuildArgs(o)
	t.Log.FromContext(ctx).Info("running ffmpeg",
		"command", QuoteCommand(t.FFmpegPath, args),
		"encoder", Encoder(o.Codec, o.UseGPU),
	)

	cmd := exec.CommandContext(ctx, t.FFmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "transcoder.encode", "stdout pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return errors.Wrap(err, "transcoder.encode", "stderr pipe")
	}

	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "transcoder.encode", "ffmpeg start")
	}

	tail := newLineRing(stderrTailLines)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		tail.consume(stderr)
	}()
	go func() {
		defer wg.Done()
		_ = ScanProgress(stdout, duration, func(p Progress) {
			if onProgress != nil {
				onProgress(p)
			}
		})
	}()

	// Pipes must be drained before Wait closes them.
	wg.Wait()
	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return errors.WrapWithCode(ctx.Err(), errors.CodeTimeout, "transcoder.encode", "encode canceled")
		}
		msg := "ffmpeg failed"
		if s := tail.String(); s != "" {
			msg += ": " + s
		}
		return errors.Wrap(err, "transcoder.encode", msg)
	}
	return nil
}

// lineRing keeps the last n lines written to it.
type lineRing struct {
	mu    sync.Mutex
	n     int
	lines []string
}

func newLineRing(n int) *lineRing {
	return &lineRing{n: n}
}

func (r *lineRing) consume(rd io.Reader) {
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		r.mu.Lock()
		r.lines = append(r.lines, line)
		if len(r.lines) > r.n {
			r.lines = r.lines[len(r.lines)-r.n:]
		}
		r.mu.Unlock()
	}
}

func (r *lineRing) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.lines, "\n")
}
