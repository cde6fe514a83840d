// Package handlers implements the av1conv HTTP endpoints. Handlers return
// errors; the router renders them with middleware.HandleError.
package handlers

import (
	"context"
	"time"

	"av1conv/internal/pkg/logger"
	"av1conv/internal/pkg/metrics"
	"av1conv/internal/ports"
)

// Pinger is a dependency probed by the deep health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	States     ports.StateStore
	SP         ports.StorageProvider
	Dispatcher ports.Dispatcher
	Metrics    *metrics.Metrics
	Log        *logger.Logger
	// Checks are extra deep health checks by name (e.g. "queue").
	Checks map[string]Pinger

	SSEInterval      time.Duration
	DownloadRedirect bool
	SignedURLTTL     time.Duration
	Version          string
}

type Handler struct {
	states     ports.StateStore
	sp         ports.StorageProvider
	dispatcher ports.Dispatcher
	metrics    *metrics.Metrics
	log        *logger.Logger
	checks     map[string]Pinger

	sseInterval      time.Duration
	downloadRedirect bool
	signedURLTTL     time.Duration
	version          string

	now func() time.Time
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	sse := d.SSEInterval
	if sse <= 0 {
		sse = time.Second
	}
	ttl := d.SignedURLTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	version := d.Version
	if version == "" {
		version = "dev"
	}
	return &Handler{
		states:           d.States,
		sp:               d.SP,
		dispatcher:       d.Dispatcher,
		metrics:          d.Metrics,
		log:              log.WithComponent("api"),
		checks:           d.Checks,
		sseInterval:      sse,
		downloadRedirect: d.DownloadRedirect,
		signedURLTTL:     ttl,
		version:          version,
		now:              func() time.Time { return time.Now().UTC() },
	}
}
