package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"archivehub/internal/archivist"
	"archivehub/internal/blobstore"
	"archivehub/internal/config"
	"archivehub/internal/jobgroup"
	"archivehub/internal/logging"
	"archivehub/internal/modelapi"
	"archivehub/internal/queue"
	"archivehub/internal/resilience"
	"archivehub/internal/store"
	"archivehub/internal/telemetry"
	"archivehub/internal/worker"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg)
	if err != nil {
		panic(fmt.Sprintf("init logger: %v", err))
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		logger.Fatal("run migrations", zap.Error(err))
	}

	blobs, err := blobstore.New(ctx, cfg)
	if err != nil {
		logger.Fatal("init blobstore", zap.Error(err))
	}

	model := modelapi.New(cfg)
	q := queue.New(cfg)
	tel := telemetry.New()
	envelope := resilience.NewEnvelope(cfg, q, st, tel, logger)
	pipeline := archivist.New(cfg, blobs, st, model)
	jg := jobgroup.New(cfg, st, model, q, logger)

	workerID := os.Getenv("WORKER_ID")
	if workerID == "" {
		hostname, _ := os.Hostname()
		if hostname != "" {
			workerID = hostname
		} else {
			workerID = fmt.Sprintf("archivist-%d", os.Getpid())
		}
	}

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, tel.Handler()); err != nil {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	logger.Info("archivist worker started",
		zap.String("worker_id", workerID),
		zap.Duration("idle_sleep", cfg.ArchivistIdleSleep),
	)

	loop := worker.NewArchivistLoop(cfg, q, envelope, pipeline, jg, logger)
	loop.Run(ctx)

	logger.Info("archivist worker stopped")
}
