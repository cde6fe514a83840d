package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	"av1conv/internal/config"
	"av1conv/internal/pkg/logger"
	"av1conv/internal/pkg/metrics"
	"av1conv/internal/pkg/shutdown"
	"av1conv/internal/storage"
	"av1conv/internal/worker"
	"av1conv/internal/worker/queue"
)

func main() {
	_ = config.LoadDotEnv()

	logCfg := logger.DefaultConfig()
	logCfg.ServiceName = "av1conv-worker"
	log := logger.New(logCfg)

	cfg, err := config.Load()
	if err != nil {
		log.LogFatal("invalid configuration", err)
	}

	ctx := context.Background()
	shutdownMgr := shutdown.NewManager(log, 30*time.Second)
	m := metrics.New()

	log.Info("connecting to Redis", "addr", cfg.RedisAddr)
	rdb, err := storage.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.LogFatal("failed to connect to Redis", err)
	}
	shutdownMgr.Register("redis", func(ctx context.Context) error {
		return rdb.Close()
	})

	states, err := storage.NewStateStore(ctx, cfg.StateBackend, rdb)
	if err != nil {
		log.LogFatal("failed to open state store", err)
	}
	shutdownMgr.Register("state-store", func(ctx context.Context) error {
		return states.Close()
	})

	sp, err := storage.NewProvider(ctx, cfg.StorageProvider)
	if err != nil {
		log.LogFatal("failed to initialize storage provider", err)
	}
	if c, ok := sp.(io.Closer); ok {
		shutdownMgr.Register("storage", func(ctx context.Context) error {
			return c.Close()
		})
	}
	log.Info("worker dependencies ready",
		"state_backend", states.Name(),
		"storage_provider", sp.Provider(),
		"queue", cfg.QueueName,
		"gpu", cfg.UseGPU,
	)

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		shutdownMgr.Register("metrics-server", metricsSrv.Shutdown)
		go func() {
			log.Info("metrics listening", "addr", cfg.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", "error", err.Error())
			}
		}()
	}

	runCtx, stop := context.WithCancel(ctx)
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		err := worker.Run(runCtx, worker.Deps{
			Queue:     queue.NewRedisQueue(rdb, cfg.QueueName),
			Processor: worker.NewProcessor(cfg, states, sp, m, log),
			Log:       log,
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("worker stopped", "error", err.Error())
		}
	}()
	shutdownMgr.Register("worker", func(ctx context.Context) error {
		stop()
		select {
		case <-stopped:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	if err := shutdownMgr.Wait(); err != nil {
		os.Exit(1)
	}
}
