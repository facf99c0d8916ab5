package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/PaulBabatuyi/FileVault/internal/auth"
	"github.com/PaulBabatuyi/FileVault/internal/config"
	"github.com/PaulBabatuyi/FileVault/internal/database"
	"github.com/PaulBabatuyi/FileVault/internal/observability"
	"github.com/PaulBabatuyi/FileVault/internal/server"
	"github.com/PaulBabatuyi/FileVault/internal/service"
	"github.com/PaulBabatuyi/FileVault/internal/storage"
	"github.com/PaulBabatuyi/FileVault/internal/worker"
)

// metadataBackend is everything the server side needs from the store:
// metadata persistence plus the enqueue half of the job queue.
type metadataBackend interface {
	service.MetadataStore
	service.JobQueue
	worker.JobStore
}

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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := observability.InitTracerProvider(ctx, logger)
	if err != nil {
		logger.Fatal("init tracing", zap.Error(err))
	}
	defer observability.ShutdownTracerProvider(context.Background(), tp, logger)

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	observability.StartMetricsServer(cfg.MetricsAddr, prometheus.DefaultGatherer, logger)

	var store metadataBackend
	switch {
	case cfg.DatabaseURL != "":
		pg, err := database.NewPostgresDB(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("connect metadata store", zap.Error(err))
		}
		defer pg.Close()
		store = pg
	case cfg.Dev:
		logger.Warn("FV_DATABASE_URL not set, using in-memory metadata store")
		store = database.NewMemoryStore()
	default:
		logger.Fatal("FV_DATABASE_URL is required outside dev mode")
	}

	var creds auth.CredentialStore
	switch {
	case cfg.RedisAddr != "":
		rs := auth.NewRedisStore(cfg.RedisAddr)
		defer rs.Close()
		creds = rs
	case cfg.Dev:
		ms := auth.NewMemoryStore()
		ms.Put("dev", "dev-user")
		logger.Warn("FV_REDIS_ADDR not set, using in-memory sessions",
			zap.String("token", "dev"),
			zap.String("user_id", "dev-user"),
		)
		creds = ms
	default:
		logger.Fatal("FV_REDIS_ADDR is required outside dev mode")
	}

	bytes := storage.NewFilesystemStore(cfg.FolderPath)
	svc := service.New(creds, store, bytes, store, logger, metrics, cfg.PageSize)
	handler := server.NewHandler(svc, logger)

	// In dev mode the pipeline runs in-process so derivatives appear
	// without a separate worker binary.
	if cfg.Dev {
		runner := worker.NewRunner(worker.RunnerConfig{
			PollInterval: cfg.PollInterval,
			MaxRetries:   cfg.MaxRetries,
		}, store, store, bytes, logger, metrics, cfg.DerivativeWidths)
		runner.Start(ctx)
		defer runner.Stop()
	}

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: server.NewRouter(handler, logger, metrics),
	}

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}

	cancel()
	logger.Info("server stopped")
}
