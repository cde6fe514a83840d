package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"av1conv/internal/config"
	"av1conv/internal/httpapi"
	"av1conv/internal/httpapi/handlers"
	"av1conv/internal/janitor"
	"av1conv/internal/pkg/logger"
	"av1conv/internal/pkg/metrics"
	"av1conv/internal/pkg/shutdown"
	"av1conv/internal/ports"
	"av1conv/internal/storage"
	"av1conv/internal/worker"
	"av1conv/internal/worker/queue"
)

const version = "0.1.0"

func main() {
	_ = config.LoadDotEnv()

	logCfg := logger.DefaultConfig()
	logCfg.ServiceName = "av1conv-api"
	log := logger.New(logCfg)

	cfg, err := config.Load()
	if err != nil {
		log.LogFatal("invalid configuration", err)
	}
	log.Info("starting av1conv API",
		"version", version,
		"dispatch", cfg.DispatchMode,
		"state_backend", cfg.StateBackend,
		"storage_provider", cfg.StorageProvider,
	)

	ctx := context.Background()
	shutdownMgr := shutdown.NewManager(log, 30*time.Second)
	m := metrics.New()

	// Redis backs the distributed queue and, optionally, the state store.
	var rdb *redis.Client
	if cfg.DispatchMode == config.DispatchRedis || cfg.StateBackend == "redis" {
		log.Info("connecting to Redis", "addr", cfg.RedisAddr)
		rdb, err = storage.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.LogFatal("failed to connect to Redis", err)
		}
		shutdownMgr.Register("redis", func(ctx context.Context) error {
			return rdb.Close()
		})
		log.Info("Redis connected")
	}

	states, err := storage.NewStateStore(ctx, cfg.StateBackend, rdb)
	if err != nil {
		log.LogFatal("failed to open state store", err)
	}
	shutdownMgr.Register("state-store", func(ctx context.Context) error {
		return states.Close()
	})
	log.Info("state store ready", "backend", states.Name())

	sp, err := storage.NewProvider(ctx, cfg.StorageProvider)
	if err != nil {
		log.LogFatal("failed to initialize storage provider", err)
	}
	if c, ok := sp.(io.Closer); ok {
		shutdownMgr.Register("storage", func(ctx context.Context) error {
			return c.Close()
		})
	}
	log.Info("storage provider initialized", "provider", sp.Provider())

	// Background loops stop when shutdown starts.
	bgCtx, stopBackground := context.WithCancel(ctx)

	var dispatcher ports.Dispatcher
	checks := map[string]handlers.Pinger{}
	switch cfg.DispatchMode {
	case config.DispatchRedis:
		q := queue.NewRedisQueue(rdb, cfg.QueueName)
		dispatcher = q
		checks["queue"] = q
		log.Info("dispatching to Redis queue", "queue", cfg.QueueName)
	default:
		pool := worker.NewPool(worker.NewProcessor(cfg, states, sp, m, log), cfg.WorkerConcurrency, cfg.WorkerQueueSize, log)
		pool.Start(ctx)
		shutdownMgr.Register("worker-pool", pool.Shutdown)
		dispatcher = pool
	}

	if cfg.JanitorEnabled {
		j := janitor.New(states, sp, janitor.Config{Retention: cfg.Retention, Interval: cfg.CleanupInterval}, m, log)
		go func() {
			_ = j.Run(bgCtx)
		}()
	}
	shutdownMgr.RegisterSimple("background", stopBackground)

	router := httpapi.NewRouter(httpapi.Deps{
		States:           states,
		SP:               sp,
		Dispatcher:       dispatcher,
		Metrics:          m,
		Log:              log,
		Checks:           checks,
		CORSOrigins:      cfg.CORSOrigins,
		SSEInterval:      cfg.SSEInterval,
		DownloadRedirect: cfg.DownloadRedirect,
		SignedURLTTL:     cfg.SignedURLTTL,
		Version:          version,
	})

	// Download and SSE handlers lift the write deadline themselves; their
	// request contexts end as soon as shutdown begins.
	streamCtx, cancelStreams := context.WithCancel(ctx)
	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.HTTPPort,
		Handler:           router,
		BaseContext:       func(net.Listener) context.Context { return streamCtx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	server.RegisterOnShutdown(cancelStreams)
	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogFatal("HTTP server failed", err)
		}
	}()

	if err := shutdownMgr.Wait(); err != nil {
		os.Exit(1)
	}
}
