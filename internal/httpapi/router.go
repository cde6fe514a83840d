// Package httpapi assembles the av1conv HTTP API.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"av1conv/internal/httpapi/handlers"
	"av1conv/internal/httpkit"
	"av1conv/internal/pkg/logger"
	"av1conv/internal/pkg/metrics"
	"av1conv/internal/pkg/middleware"
	"av1conv/internal/ports"
)

type Deps struct {
	States     ports.StateStore
	SP         ports.StorageProvider
	Dispatcher ports.Dispatcher
	Metrics    *metrics.Metrics
	Log        *logger.Logger
	Checks     map[string]handlers.Pinger

	CORSOrigins      []string
	SSEInterval      time.Duration
	DownloadRedirect bool
	SignedURLTTL     time.Duration
	Version          string
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(log, "/health", "/metrics"))
	r.Use(middleware.Instrument(d.Metrics))
	r.Use(middleware.Recovery(log))

	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "Accept", middleware.RequestIDHeader},
		ExposedHeaders: []string{"Content-Disposition", middleware.RequestIDHeader},
		MaxAgeSeconds:  600,
	}))

	h := handlers.New(handlers.Deps{
		States:           d.States,
		SP:               d.SP,
		Dispatcher:       d.Dispatcher,
		Metrics:          d.Metrics,
		Log:              log,
		Checks:           d.Checks,
		SSEInterval:      d.SSEInterval,
		DownloadRedirect: d.DownloadRedirect,
		SignedURLTTL:     d.SignedURLTTL,
		Version:          d.Version,
	})
	wrap := func(fn middleware.ErrorHandlerFunc) http.HandlerFunc {
		return middleware.WrapHandler(log, fn)
	}

	// ---- HEALTH ----
	r.Get("/health", wrap(h.Health))
	r.Handle("/metrics", d.Metrics.Handler())

	// ---- JOBS ----
	r.Post("/submit", wrap(h.Submit))
	r.Get("/status/{jobId}", wrap(h.Status))
	r.Get("/download/{jobId}", wrap(h.Download))
	r.Get("/progress/{jobId}/events", wrap(h.ProgressEvents))
	r.Get("/jobs", wrap(h.ListJobs))

	return r
}
