package models

import (
	"net/url"
	"strings"
	"time"

	"av1conv/internal/media"
	"av1conv/internal/pkg/errors"
)

// VideoConvertJob is the body of POST /submit.
type VideoConvertJob struct {
	Request ConvertRequest `json:"request"`
	Source  Source         `json:"source"`
}

type ConvertRequest struct {
	ID     string `json:"id,omitempty"`
	Format string `json:"format,omitempty"`
	Codec  string `json:"codec,omitempty"`
	CRF    int    `json:"crf,omitempty"`
}

type Source struct {
	URL string `json:"url"`
}

// Normalize validates the job and rewrites format and codec to their
// canonical names.
func (j *VideoConvertJob) Normalize() error {
	j.Source.URL = strings.TrimSpace(j.Source.URL)
	if j.Source.URL == "" {
		return errors.ValidationField("source.url", "Missing 'url'")
	}
	if err := checkSourceURL(j.Source.URL); err != nil {
		return err
	}

	f, err := media.ParseFormat(j.Request.Format)
	if err != nil {
		return err
	}
	c, err := media.ParseCodec(j.Request.Codec)
	if err != nil {
		return err
	}
	if err := media.CheckCompatible(f, c); err != nil {
		return err
	}
	if err := media.ValidateCRF(j.Request.CRF); err != nil {
		return err
	}

	j.Request.Format = string(f)
	j.Request.Codec = string(c)
	return nil
}

// checkSourceURL accepts absolute http and https URLs with a host.
func checkSourceURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.ValidationField("source.url", "url is not valid")
	}
	if !strings.EqualFold(u.Scheme, "http") && !strings.EqualFold(u.Scheme, "https") {
		return errors.ValidationField("source.url", "url must be http or https")
	}
	if u.Host == "" {
		return errors.ValidationField("source.url", "url has no host")
	}
	return nil
}

// Format returns the output container, DefaultFormat when unparseable.
func (j VideoConvertJob) Format() media.Format {
	f, err := media.ParseFormat(j.Request.Format)
	if err != nil {
		return media.DefaultFormat
	}
	return f
}

// Codec returns the video codec, DefaultCodec when unparseable.
func (j VideoConvertJob) Codec() media.Codec {
	c, err := media.ParseCodec(j.Request.Codec)
	if err != nil {
		return media.DefaultCodec
	}
	return c
}

type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusEncoding    Status = "encoding"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	// StatusUnknown is only reported by the progress stream for job ids
	// that have no state.
	StatusUnknown Status = "unknown"
)

// Terminal reports whether no further transitions happen from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is a persisted status.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusDownloading, StatusEncoding, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// MaxRunningProgress caps progress until a job completes.
const MaxRunningProgress = 99

// MaxErrorLen bounds the error text stored on a failed job.
const MaxErrorLen = 2000

// JobState is the persisted status record of a job.
type JobState struct {
	JobID        string     `json:"job_id"`
	RequestID    string     `json:"request_id,omitempty"`
	Status       Status     `json:"status"`
	Progress     int        `json:"progress"`
	Message      string     `json:"message,omitempty"`
	Format       string     `json:"format,omitempty"`
	Codec        string     `json:"codec,omitempty"`
	FilePath     string     `json:"file_path,omitempty"`
	FileName     string     `json:"file_name,omitempty"`
	Error        string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Downloaded   bool       `json:"downloaded"`
	DownloadedAt *time.Time `json:"downloaded_at,omitempty"`
	Deleted      bool       `json:"deleted"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// NewJobState returns the queued state for a freshly submitted job.
func NewJobState(jobID string, job VideoConvertJob, now time.Time) JobState {
	return JobState{
		JobID:     jobID,
		RequestID: job.Request.ID,
		Status:    StatusQueued,
		Progress:  0,
		Message:   "Queued",
		Format:    job.Request.Format,
		Codec:     job.Request.Codec,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Transition moves the state to status with progress and message. Progress
// is clamped to 0..99 unless the job completed.
func (s *JobState) Transition(status Status, progress int, message string, now time.Time) {
	if progress < 0 {
		progress = 0
	}
	if status == StatusCompleted {
		progress = 100
	} else if progress > MaxRunningProgress {
		progress = MaxRunningProgress
	}
	s.Status = status
	s.Progress = progress
	s.Message = message
	s.UpdatedAt = now
}

// Fail marks the state failed and records err, truncated to MaxErrorLen.
func (s *JobState) Fail(message string, err error, now time.Time) {
	s.Transition(StatusFailed, 0, message, now)
	if err != nil {
		s.Error = TruncateError(err.Error())
	}
}

// MarkDownloaded records a successful delivery.
func (s *JobState) MarkDownloaded(now time.Time) {
	s.Downloaded = true
	s.DownloadedAt = &now
	s.UpdatedAt = now
}

// MarkDeleted records removal of the output object.
func (s *JobState) MarkDeleted(now time.Time) {
	s.Deleted = true
	s.DeletedAt = &now
	s.UpdatedAt = now
}

// Expired reports whether the output is due for retention cleanup.
func (s JobState) Expired(now time.Time, retention time.Duration) bool {
	return s.Status == StatusCompleted &&
		!s.Downloaded &&
		!s.Deleted &&
		s.FilePath != "" &&
		!s.CreatedAt.IsZero() &&
		now.Sub(s.CreatedAt) > retention
}

// TruncateError bounds msg to MaxErrorLen bytes.
func TruncateError(msg string) string {
	if len(msg) > MaxErrorLen {
		return msg[:MaxErrorLen]
	}
	return msg
}
