package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/hayak-access/internal/di"
	"github.com/prohmpiriya/hayak-access/internal/handler"
	"github.com/prohmpiriya/hayak-access/internal/metrics"
	"github.com/prohmpiriya/hayak-access/internal/service"
	"github.com/prohmpiriya/hayak-access/internal/worker"
	"github.com/prohmpiriya/hayak-access/pkg/config"
	"github.com/prohmpiriya/hayak-access/pkg/logger"
	"github.com/prohmpiriya/hayak-access/pkg/middleware"
	"github.com/prohmpiriya/hayak-access/pkg/telemetry"
)

const serviceName = "allocation-api"

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
	appLog.Info("starting allocation api", "version", cfg.App.Version, "ledger", cfg.Allocation.LedgerBackend)

	ctx := context.Background()

	// Tracing and metrics
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

	infra, err := di.ConnectInfra(ctx, cfg, appLog)
	if err != nil {
		appLog.Fatal("failed to connect infrastructure", "error", err)
	}
	defer infra.Close(context.Background())

	// Kafka event publisher
	var eventPublisher service.EventPublisher = service.NewNoOpEventPublisher()
	if cfg.Kafka.Enabled {
		kp, err := service.NewKafkaEventPublisher(ctx, &service.EventPublisherConfig{
			Brokers:     cfg.Kafka.Brokers,
			Topic:       cfg.Kafka.Topic,
			ServiceName: serviceName,
			ClientID:    cfg.Kafka.ClientID,
		})
		if err != nil {
			appLog.Warn("kafka connection failed, using no-op publisher", "error", err)
		} else {
			eventPublisher = kp
			appLog.Info("kafka event publisher connected")
		}
	}
	defer eventPublisher.Close()

	container, err := di.NewContainer(ctx, &di.ContainerConfig{
		Config:         cfg,
		DB:             infra.DB,
		Redis:          infra.Redis,
		Mongo:          infra.Mongo,
		EventPublisher: eventPublisher,
		Logger:         appLog,
		ServiceName:    serviceName,
	})
	if err != nil {
		appLog.Fatal("failed to build container", "error", err)
	}

	// Memory holds are only visible to this process, so sweep them here
	if cfg.Allocation.LedgerBackend == config.LedgerBackendMemory {
		expiryWorker := worker.NewHoldExpiryWorker(container.LedgerService, &worker.HoldExpiryWorkerConfig{
			ScanInterval: cfg.Allocation.ExpirySweep,
			BatchSize:    cfg.Allocation.ExpiryBatchSize,
		}, appLog)
		if err := expiryWorker.Start(ctx); err != nil {
			appLog.Fatal("failed to start hold expiry worker", "error", err)
		}
		defer expiryWorker.Stop()
	}

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	gin.DisableConsoleColor()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(telemetry.TracingMiddleware(serviceName, "/health", "/ready"))

	mw := handler.RouteMiddleware{
		Auth: middleware.Auth(middleware.AuthConfig{
			Secret:      cfg.JWT.Secret,
			Issuer:      cfg.JWT.Issuer,
			AllowHeader: cfg.IsDevelopment(),
		}),
	}
	if infra.Redis != nil {
		mw.Idempotency = middleware.Idempotency(middleware.DefaultIdempotencyConfig(infra.Redis))
	}
	handler.RegisterRoutes(router, container.Routes(), mw)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 2 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		appLog.Info("allocation api listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal("failed to start server", "error", err)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("server forced to shutdown", "error", err)
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		appLog.Warn("failed to flush traces", "error", err)
	}

	appLog.Info("server exited gracefully")
}
