package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"archivehub/internal/blobstore"
	"archivehub/internal/config"
	"archivehub/internal/logging"
	"archivehub/internal/machinist"
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

	q := queue.New(cfg)
	tel := telemetry.New()
	envelope := resilience.NewEnvelope(cfg, q, st, tel, logger)
	pipeline := machinist.New(cfg, blobs, st)

	workerID := os.Getenv("WORKER_ID")
	if workerID == "" {
		hostname, _ := os.Hostname()
		if hostname != "" {
			workerID = hostname
		} else {
			workerID = fmt.Sprintf("machinist-%d", os.Getpid())
		}
	}

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, tel.Handler()); err != nil {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	logger.Info("machinist worker started",
		zap.String("worker_id", workerID),
		zap.Duration("block_timeout", cfg.MachinistBlockTimeout),
	)

	loop := worker.NewMachinistLoop(cfg, q, envelope, pipeline, logger)
	loop.Run(ctx)

	logger.Info("machinist worker stopped")
}
