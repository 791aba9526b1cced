package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/prohmpiriya/hayak-access/internal/di"
	"github.com/prohmpiriya/hayak-access/internal/repository"
	"github.com/prohmpiriya/hayak-access/pkg/config"
	"github.com/prohmpiriya/hayak-access/pkg/logger"
)

func main() {
	force := flag.Bool("force", false, "overwrite existing counters with the database values")
	pageSize := flag.Int("page-size", 500, "zones loaded per page")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall timeout")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logCfg := &logger.Config{
		Level:       cfg.App.Environment,
		ServiceName: "zone-sync",
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()

	if cfg.Allocation.LedgerBackend != config.LedgerBackendRedis {
		appLog.Info("counters live in the database, nothing to sync", "ledger", cfg.Allocation.LedgerBackend)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	infra, err := di.ConnectInfra(ctx, cfg, appLog)
	if err != nil {
		appLog.Fatal("failed to connect infrastructure", "error", err)
	}
	defer infra.Close(context.Background())

	zones := repository.NewPostgresZoneRepository(infra.DB.Pool())
	ledger := repository.NewRedisZoneLedger(infra.Redis)

	synced, err := repository.SyncAllZones(ctx, zones, ledger, *pageSize, *force)
	if err != nil {
		appLog.Error("zone sync failed", "synced", synced, "error", err)
		os.Exit(1)
	}
	appLog.Info("zone sync finished", "synced", synced, "force", *force)
}
