package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/PaulBabatuyi/FileVault/internal/config"
	"github.com/PaulBabatuyi/FileVault/internal/database"
	"github.com/PaulBabatuyi/FileVault/internal/observability"
	"github.com/PaulBabatuyi/FileVault/internal/storage"
	"github.com/PaulBabatuyi/FileVault/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := observability.InitLogger(cfg.Dev)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// The worker shares the durable job rows with the server, so it
	// always needs the real store.
	if cfg.DatabaseURL == "" {
		logger.Fatal("FV_DATABASE_URL is required for the worker")
	}

	db, err := database.NewPostgresDB(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("connect metadata store", zap.Error(err))
	}
	defer db.Close()

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	observability.StartMetricsServer(cfg.MetricsAddr, prometheus.DefaultGatherer, logger)

	bytes := storage.NewFilesystemStore(cfg.FolderPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := worker.NewRunner(worker.RunnerConfig{
		PollInterval: cfg.PollInterval,
		MaxRetries:   cfg.MaxRetries,
	}, db, db, bytes, logger, metrics, cfg.DerivativeWidths)
	runner.Start(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	runner.Stop()
	cancel()
}
