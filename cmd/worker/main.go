package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/davibasa/Enter-Fellowship-sub001/config"
	"github.com/davibasa/Enter-Fellowship-sub001/internal/app"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/logger"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/queue"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/worker"
)

// archiveRetention bounds how long archived results are kept.
const archiveRetention = 30 * 24 * time.Hour

func main() {
	cfg, err := config.GetExtractionConfig()
	if err != nil {
		panic(err)
	}

	log, err := logger.NewLogger(
		logger.WithLevel(cfg.Log.Level),
		logger.WithEncoding(cfg.Log.Encoding),
		logger.WithOutputPaths([]string{"stdout", "logs/worker.log"}),
		logger.WithInitialFields(map[string]interface{}{"service": "extractor-worker"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.Build(ctx, cfg, log, true)
	if err != nil {
		log.Error("Failed to build extraction service", logger.Error(err))
		os.Exit(1)
	}
	defer rt.Close()

	rc := config.GetRedisConfig()
	extractionWorker, err := worker.NewExtractionWorker(&worker.Config{
		RedisAddr:     rc.Addr,
		RedisPassword: rc.Password,
		RedisDB:       rc.DB,
		Concurrency:   cfg.Worker.Concurrency,
		Queues:        queue.Weights(),
	}, rt.Service, log)
	if err != nil {
		log.Error("Failed to create extraction worker", logger.Error(err))
		os.Exit(1)
	}

	if err := extractionWorker.Start(ctx); err != nil {
		log.Error("Failed to start worker", logger.Error(err))
		os.Exit(1)
	}

	if rt.Archive != nil {
		go pruneArchive(ctx, rt, log)
	}

	<-ctx.Done()
	log.Info("Shutting down worker...")
	extractionWorker.Stop()
	log.Info("Worker stopped")
}

func pruneArchive(ctx context.Context, rt *app.Runtime, log logger.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		if err := rt.Archive.Prune(ctx, archiveRetention); err != nil {
			log.Warn("Failed to prune archived results", logger.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
