package transcoder

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"
)

// Progress is one snapshot from ffmpeg's -progress output.
type Progress struct {
	OutTime time.Duration
	// Percent is 0..99 while encoding; it only reaches 100 on progress=end.
	Percent int
	Done    bool
}

// ProgressParser turns ffmpeg "-progress" key=value lines into Progress
// snapshots relative to the probed input duration.
type ProgressParser struct {
	duration time.Duration
	current  Progress
}

func NewProgressParser(duration time.Duration) *ProgressParser {
	return &ProgressParser{duration: duration}
}

// Feed consumes one line and reports whether it closed a progress block.
func (p *ProgressParser) Feed(line string) (Progress, bool) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return p.current, false
	}

	switch key {
	// ffmpeg reports out_time_ms in microseconds as well.
	case "out_time_us", "out_time_ms":
		us, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil || us < 0 {
			return p.current, false
		}
		p.current.OutTime = time.Duration(us) * time.Microsecond
		p.current.Percent = p.percent()
	case "progress":
		if strings.TrimSpace(value) == "end" {
			p.current.Done = true
			p.current.Percent = 100
		}
		return p.current, true
	}
	return p.current, false
}

func (p *ProgressParser) percent() int {
	if p.duration <= 0 {
		return 0
	}
	pct := int(p.current.OutTime * 100 / p.duration)
	if pct > 99 {
		pct = 99
	}
	if pct < p.current.Percent {
		return p.current.Percent
	}
	return pct
}

// ScanProgress reads r until EOF and calls fn at the end of every progress
// block.
func ScanProgress(r io.Reader, duration time.Duration, fn func(Progress)) error {
	parser := NewProgressParser(duration)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if snap, ok := parser.Feed(sc.Text()); ok {
			fn(snap)
		}
	}
	return sc.Err()
}
