// cmd/worker-manager/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	awsclient "request-workers/internal/common/aws"
	"request-workers/internal/common/camunda"
	"request-workers/internal/common/config"
	"request-workers/internal/common/database"
	"request-workers/internal/common/docstore"
	"request-workers/internal/common/logger"
	"request-workers/internal/common/observability"

	md "request-workers/internal/workers/communication/mail-deliver"
	rc "request-workers/internal/workers/requests/request-created"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName), map[string]interface{}{
				"error":       err,
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
			})
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New("info", "console", "")
		boot.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name, cfg.Tracing, log)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Zeebe ---
	zeebe, err := camunda.Connect(ctx, &camunda.ClientConfig{
		GatewayAddress:         cfg.Camunda.BrokerAddress,
		UsePlaintextConnection: cfg.Camunda.Plaintext,
		ConnectionTimeout:      config.GetDuration(cfg.Camunda.RequestTimeout),
	})
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	defer zeebe.Close()
	zapLog.Info("Zeebe client connected successfully")

	// --- PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, log, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()

	store := docstore.New(pg.DB)
	if err := store.EnsureSchema(ctx); err != nil {
		zapLog.Fatal("document schema setup failed", zap.Error(err))
	}
	zapLog.Info("PostgreSQL connected successfully")

	// --- Redis with retry ---
	redis := database.NewRedis(cfg.Database.Redis)
	err = retryWithBackoff(func() error {
		return redis.Ping(ctx)
	}, 10, 2*time.Second, log, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- AWS ---
	awsCfg, err := awsclient.LoadConfig(ctx, cfg.Notifications.AWS.Region)
	if err != nil {
		zapLog.Fatal("aws config failed", zap.Error(err))
	}
	snsClient := awsclient.NewSNSClient(awsCfg)
	sesClient := awsclient.NewSESClient(awsCfg)

	// --- Workers ---
	rcCfg := rc.NewConfig(cfg)
	requestCreated, err := rc.NewHandler(rcCfg, store, snsClient, rc.NewRedisMarkers(redis.Client, rcCfg.DedupeTTL), obs, log)
	if err != nil {
		zapLog.Fatal("failed to create request-created handler", zap.Error(err))
	}
	jobWorker := camunda.StartWorker(zeebe.GetClient(), rc.TaskType, config.GetWorkerConfig(cfg, rc.TaskType), requestCreated.Handle, log)

	var wg sync.WaitGroup
	mailCfg := md.NewConfig(cfg)
	if mailCfg.Enabled {
		if err := mailCfg.Validate(); err != nil {
			zapLog.Fatal("invalid mail config", zap.Error(err))
		}
		poller := md.NewService(mailCfg, md.NewRepository(store), sesClient, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = poller.Run(ctx)
		}()
	} else {
		zapLog.Info("mail poller disabled")
	}

	// --- Health & Metrics Server ---
	srv := newHTTPServer(cfg.App.HTTPPort, map[string]readinessCheck{
		"postgres": pg.Ping,
		"redis":    redis.Ping,
		"zeebe":    zeebe.HealthCheck,
	})
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping workers...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if jobWorker != nil {
		jobWorker.Close()
		jobWorker.AwaitClose()
	}
	wg.Wait()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping HTTP server", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}
