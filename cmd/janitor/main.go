package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"av1conv/internal/config"
	"av1conv/internal/janitor"
	"av1conv/internal/pkg/logger"
	"av1conv/internal/pkg/shutdown"
	"av1conv/internal/storage"
)

func main() {
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	_ = config.LoadDotEnv()

	logCfg := logger.DefaultConfig()
	logCfg.ServiceName = "av1conv-janitor"
	log := logger.New(logCfg)

	cfg, err := config.Load()
	if err != nil {
		log.LogFatal("invalid configuration", err)
	}

	ctx := context.Background()
	shutdownMgr := shutdown.NewManager(log, 30*time.Second)

	var rdb *redis.Client
	if cfg.StateBackend == "redis" {
		rdb, err = storage.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.LogFatal("failed to connect to Redis", err)
		}
		shutdownMgr.Register("redis", func(ctx context.Context) error {
			return rdb.Close()
		})
	}

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

	j := janitor.New(states, sp, janitor.Config{Retention: cfg.Retention, Interval: cfg.CleanupInterval}, nil, log)

	if *once {
		_, err := j.Sweep(ctx)
		if serr := shutdownMgr.Shutdown(); err == nil && serr != nil {
			os.Exit(1)
		}
		if err != nil {
			log.LogFatal("sweep failed", err)
		}
		return
	}

	runCtx, stop := context.WithCancel(ctx)
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		if err := j.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("janitor stopped", "error", err.Error())
		}
	}()
	shutdownMgr.Register("janitor", func(ctx context.Context) error {
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
