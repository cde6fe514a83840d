// Package config gathers the environment configuration shared by the
// av1conv binaries.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"av1conv/internal/pkg/errors"
)

const (
	DispatchInline = "inline"
	DispatchRedis  = "redis"
)

// Config is the process configuration. Provider and backend specific
// settings (S3_*, GCS_*, MINIO_*, GDRIVE_*, STATE_*) are read by the
// factories in internal/storage.
type Config struct {
	HTTPPort    string
	MetricsAddr string

	DispatchMode      string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	QueueName         string
	WorkerConcurrency int
	WorkerQueueSize   int

	WorkDir          string
	UseGPU           bool
	FFmpegPath       string
	FFprobePath      string
	ProgressInterval time.Duration
	DownloadTimeout  time.Duration

	StateBackend    string
	StorageProvider string

	Retention       time.Duration
	CleanupInterval time.Duration
	JanitorEnabled  bool

	SSEInterval      time.Duration
	DownloadRedirect bool
	SignedURLTTL     time.Duration
	CORSOrigins      []string
}

// LoadDotEnv loads .env files into the environment without overriding
// variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return errors.Wrap(err, "config.dotenv", "load "+f)
		}
	}
	return nil
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	c := Config{
		HTTPPort:    Env("HTTP_PORT", "8000"),
		MetricsAddr: Env("METRICS_ADDR", ""),

		DispatchMode:      strings.ToLower(Env("DISPATCH_MODE", DispatchInline)),
		RedisAddr:         Env("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:     Env("REDIS_PASSWORD", ""),
		RedisDB:           IntEnv("REDIS_DB", 0),
		QueueName:         Env("JOB_QUEUE_NAME", "av1conv:jobs"),
		WorkerConcurrency: IntEnv("WORKER_CONCURRENCY", 1),
		WorkerQueueSize:   IntEnv("WORKER_QUEUE_SIZE", 64),

		WorkDir:          Env("WORK_DIR", os.TempDir()),
		UseGPU:           BoolEnv("TRANSCODE_USE_GPU", false),
		FFmpegPath:       Env("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:      Env("FFPROBE_PATH", "ffprobe"),
		ProgressInterval: DurationEnv("PROGRESS_INTERVAL", 500*time.Millisecond),
		DownloadTimeout:  DurationEnv("SOURCE_TIMEOUT", 60*time.Second),

		StateBackend:    strings.ToLower(Env("STATE_BACKEND", "file")),
		StorageProvider: strings.ToLower(Env("STORAGE_PROVIDER", "localfs")),

		Retention:       DurationEnv("RETENTION", 24*time.Hour),
		CleanupInterval: DurationEnv("CLEANUP_INTERVAL", 6*time.Hour),
		JanitorEnabled:  BoolEnv("JANITOR_ENABLED", false),

		SSEInterval:      DurationEnv("SSE_INTERVAL", time.Second),
		DownloadRedirect: BoolEnv("DOWNLOAD_REDIRECT", false),
		SignedURLTTL:     DurationEnv("SIGNED_URL_TTL", 15*time.Minute),
		CORSOrigins:      CSVEnv("CORS_ALLOWED_ORIGINS", []string{"*"}),
	}
	return c, c.Validate()
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	switch c.DispatchMode {
	case DispatchInline, DispatchRedis:
	default:
		return errors.ValidationField("DISPATCH_MODE", "must be inline or redis").
			WithField("value", c.DispatchMode)
	}
	if c.WorkerConcurrency < 1 {
		return errors.ValidationField("WORKER_CONCURRENCY", "must be at least 1")
	}
	if c.WorkerQueueSize < 1 {
		return errors.ValidationField("WORKER_QUEUE_SIZE", "must be at least 1")
	}
	if c.SSEInterval <= 0 {
		return errors.ValidationField("SSE_INTERVAL", "must be positive")
	}
	if c.CleanupInterval <= 0 {
		return errors.ValidationField("CLEANUP_INTERVAL", "must be positive")
	}
	if c.Retention < 0 {
		return errors.ValidationField("RETENTION", "must not be negative")
	}
	return nil
}
