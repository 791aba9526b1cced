package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prohmpiriya/hayak-access/internal/di"
	"github.com/prohmpiriya/hayak-access/internal/metrics"
	"github.com/prohmpiriya/hayak-access/internal/worker"
	"github.com/prohmpiriya/hayak-access/pkg/config"
	"github.com/prohmpiriya/hayak-access/pkg/logger"
	"github.com/prohmpiriya/hayak-access/pkg/telemetry"
)

const serviceName = "hold-expiry-worker"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logCfg := &logger.Config{
		Level:       cfg.App.Environment,
		ServiceName: serviceName,
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("starting hold expiry worker", "ledger", cfg.Allocation.LedgerBackend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}); err != nil {
		appLog.Warn("telemetry disabled", "error", err)
	}
	if err := metrics.Init(); err != nil {
		appLog.Warn("failed to register metrics", "error", err)
	}

	// Memory holds live inside the api process and are swept there
	if cfg.Allocation.LedgerBackend == config.LedgerBackendMemory {
		appLog.Fatal("hold expiry worker needs a shared ledger backend")
	}

	infra, err := di.ConnectInfra(ctx, cfg, appLog)
	if err != nil {
		appLog.Fatal("failed to connect infrastructure", "error", err)
	}
	defer infra.Close(context.Background())

	container, err := di.NewContainer(ctx, &di.ContainerConfig{
		Config:      cfg,
		DB:          infra.DB,
		Redis:       infra.Redis,
		Logger:      appLog,
		ServiceName: serviceName,
	})
	if err != nil {
		appLog.Fatal("failed to build container", "error", err)
	}

	expiryWorker := worker.NewHoldExpiryWorker(container.LedgerService, &worker.HoldExpiryWorkerConfig{
		ScanInterval: cfg.Allocation.ExpirySweep,
		BatchSize:    cfg.Allocation.ExpiryBatchSize,
	}, appLog)
	if err := expiryWorker.Start(ctx); err != nil {
		appLog.Fatal("failed to start worker", "error", err)
	}

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("shutting down worker")
	expiryWorker.Stop()
	cancel()

	stats := expiryWorker.GetStats()
	appLog.Info("worker exited gracefully", "sweeps", stats.Sweeps, "released", stats.TotalReleased)
	_ = telemetry.Shutdown(context.Background())
}
