package models

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"av1conv/internal/pkg/errors"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name       string
		job        VideoConvertJob
		wantErr    bool
		field      string
		wantFormat string
		wantCodec  string
	}{
		{
			name:       "defaults",
			job:        VideoConvertJob{Source: Source{URL: "https://cdn.test/in.mov"}},
			wantFormat: "mp4",
			wantCodec:  "av1",
		},
		{
			name:       "aliases",
			job:        VideoConvertJob{Request: ConvertRequest{Format: "MKV", Codec: "hevc"}, Source: Source{URL: " http://cdn.test/a "}},
			wantFormat: "mkv",
			wantCodec:  "h265",
		},
		{
			name:    "missing url",
			job:     VideoConvertJob{Request: ConvertRequest{Format: "mp4"}},
			wantErr: true,
			field:   "source.url",
		},
		{
			name:    "non http url",
			job:     VideoConvertJob{Source: Source{URL: "file:///etc/passwd"}},
			wantErr: true,
			field:   "source.url",
		},
		{
			name:       "upper case scheme",
			job:        VideoConvertJob{Source: Source{URL: "HTTPS://example.com/a.mp4"}},
			wantFormat: "mp4",
			wantCodec:  "av1",
		},
		{
			name:    "scheme only",
			job:     VideoConvertJob{Source: Source{URL: "http://"}},
			wantErr: true,
			field:   "source.url",
		},
		{
			name:    "no host",
			job:     VideoConvertJob{Source: Source{URL: "https://?x=1"}},
			wantErr: true,
			field:   "source.url",
		},
		{
			name:    "relative",
			job:     VideoConvertJob{Source: Source{URL: "/videos/a.mp4"}},
			wantErr: true,
			field:   "source.url",
		},
		{
			name:    "unparseable",
			job:     VideoConvertJob{Source: Source{URL: "http://[::1"}},
			wantErr: true,
			field:   "source.url",
		},
		{
			name:    "bad format",
			job:     VideoConvertJob{Request: ConvertRequest{Format: "gif"}, Source: Source{URL: "https://x.test"}},
			wantErr: true,
			field:   "request.format",
		},
		{
			name:    "webm h264",
			job:     VideoConvertJob{Request: ConvertRequest{Format: "webm", Codec: "h264"}, Source: Source{URL: "https://x.test"}},
			wantErr: true,
			field:   "request.codec",
		},
		{
			name:    "crf range",
			job:     VideoConvertJob{Request: ConvertRequest{CRF: 70}, Source: Source{URL: "https://x.test"}},
			wantErr: true,
			field:   "request.crf",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := tt.job
			err := job.Normalize()
			if tt.wantErr {
				if !errors.IsValidation(err) {
					t.Fatalf("expected validation error, got %v", err)
				}
				if got := errors.GetFields(err)["field"]; got != tt.field {
					t.Errorf("field = %v, want %s", got, tt.field)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if job.Request.Format != tt.wantFormat || job.Request.Codec != tt.wantCodec {
				t.Errorf("format=%s codec=%s", job.Request.Format, job.Request.Codec)
			}
		})
	}
}

func TestMissingURLMessage(t *testing.T) {
	job := VideoConvertJob{}
	var e *errors.Error
	if !errors.As(job.Normalize(), &e) || e.Message != "Missing 'url'" {
		t.Errorf("unexpected error %v", e)
	}
}

func TestTransition(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := NewJobState("j1", VideoConvertJob{Request: ConvertRequest{ID: "client-1", Format: "mp4", Codec: "av1"}}, now)

	if s.Status != StatusQueued || s.Message != "Queued" || s.RequestID != "client-1" {
		t.Fatalf("initial state %+v", s)
	}

	later := now.Add(time.Minute)
	s.Transition(StatusEncoding, 150, "Encoding in progress", later)
	if s.Progress != MaxRunningProgress {
		t.Errorf("progress = %d, want capped at 99", s.Progress)
	}
	if !s.UpdatedAt.Equal(later) || !s.CreatedAt.Equal(now) {
		t.Errorf("timestamps %v %v", s.CreatedAt, s.UpdatedAt)
	}

	s.Transition(StatusEncoding, -5, "", later)
	if s.Progress != 0 {
		t.Errorf("negative progress = %d", s.Progress)
	}

	s.Transition(StatusCompleted, 0, "Done", later)
	if s.Progress != 100 || !s.Status.Terminal() {
		t.Errorf("completed state %+v", s)
	}
}

func TestFail(t *testing.T) {
	s := JobState{Status: StatusEncoding, Progress: 42}
	s.Fail("Encoding failed", fmt.Errorf("%s", strings.Repeat("x", 5000)), time.Now())

	if s.Status != StatusFailed || s.Progress != 0 {
		t.Errorf("state %+v", s)
	}
	if len(s.Error) != MaxErrorLen {
		t.Errorf("error length = %d", len(s.Error))
	}
}

func TestExpired(t *testing.T) {
	now := time.Now()
	old := now.Add(-25 * time.Hour)

	base := JobState{Status: StatusCompleted, FilePath: "jobs/j/output.mp4", CreatedAt: old}
	if !base.Expired(now, 24*time.Hour) {
		t.Error("old completed job should expire")
	}

	downloaded := base
	downloaded.Downloaded = true
	deleted := base
	deleted.Deleted = true
	fresh := base
	fresh.CreatedAt = now.Add(-time.Hour)
	failed := base
	failed.Status = StatusFailed

	for name, s := range map[string]JobState{"downloaded": downloaded, "deleted": deleted, "fresh": fresh, "failed": failed} {
		if s.Expired(now, 24*time.Hour) {
			t.Errorf("%s should not expire", name)
		}
	}
}

func TestStatus(t *testing.T) {
	if StatusQueued.Terminal() || StatusEncoding.Terminal() || !StatusFailed.Terminal() {
		t.Error("terminal table wrong")
	}
	if StatusUnknown.Valid() || !StatusDownloading.Valid() {
		t.Error("valid table wrong")
	}
}
