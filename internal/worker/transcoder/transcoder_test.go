package transcoder

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"av1conv/internal/media"
	"av1conv/internal/pkg/logger"
)

// fakeBinary writes an executable shell script standing in for ffmpeg or
// ffprobe.
func fakeBinary(t *testing.T, name, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts unsupported")
	}
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestEncodeReportsProgress(t *testing.T) {
	ffmpeg := fakeBinary(t, "ffmpeg", `
echo "out_time_us=2000000"
echo "progress=continue"
echo "out_time_us=4000000"
echo "progress=continue"
echo "progress=end"
`)
	tc := New(ffmpeg, "", false, logger.Nop())

	var got []Progress
	err := tc.Encode(context.Background(), Options{Input: "in", Output: "out", Format: media.FormatMP4}, 8*time.Second, func(p Progress) {
		got = append(got, p)
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0].Percent != 25 || got[1].Percent != 50 || !got[2].Done {
		t.Errorf("progress = %+v", got)
	}
}

func TestEncodeFailureCarriesStderr(t *testing.T) {
	ffmpeg := fakeBinary(t, "ffmpeg", `
echo "in: Invalid data found when processing input" >&2
exit 1
`)
	tc := New(ffmpeg, "", false, logger.Nop())

	err := tc.Encode(context.Background(), Options{Input: "in", Output: "out"}, 0, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Invalid data found") {
		t.Errorf("err = %v", err)
	}
}

func TestEncodeCanceled(t *testing.T) {
	ffmpeg := fakeBinary(t, "ffmpeg", "exec sleep 10\n")
	tc := New(ffmpeg, "", false, logger.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := tc.Encode(ctx, Options{Input: "in", Output: "out"}, 0, nil); err == nil {
		t.Fatal("expected error")
	}
	if time.Since(start) > 5*time.Second {
		t.Error("ffmpeg was not killed")
	}
}

func TestProbe(t *testing.T) {
	ffprobe := fakeBinary(t, "ffprobe", `echo "42.250000"`)
	tc := New("", ffprobe, false, logger.Nop())

	d, err := tc.Probe(context.Background(), "in")
	if err != nil {
		t.Fatal(err)
	}
	if d != 42250*time.Millisecond {
		t.Errorf("d = %v", d)
	}

	failing := New("", fakeBinary(t, "ffprobe", "exit 1\n"), false, logger.Nop())
	if _, err := failing.Probe(context.Background(), "in"); err == nil {
		t.Error("expected probe failure")
	}
}

func TestLineRing(t *testing.T) {
	r := newLineRing(2)
	r.consume(strings.NewReader("a\n\nb\nc\n"))
	if r.String() != "b\nc" {
		t.Errorf("ring = %q", r.String())
	}
}
