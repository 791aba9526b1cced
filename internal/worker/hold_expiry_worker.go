package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prohmpiriya/hayak-access/pkg/logger"
)

// HoldReleaser releases zone holds whose TTL passed without confirmation
type HoldReleaser interface {
	ReleaseExpired(ctx context.Context, limit int) (int, error)
}

// HoldExpiryWorkerConfig contains configuration for the hold expiry worker
type HoldExpiryWorkerConfig struct {
	// ScanInterval is the interval between sweeps
	ScanInterval time.Duration
	// BatchSize caps the holds released per sweep
	BatchSize int
}

// DefaultHoldExpiryWorkerConfig returns default configuration
func DefaultHoldExpiryWorkerConfig() *HoldExpiryWorkerConfig {
	return &HoldExpiryWorkerConfig{
		ScanInterval: 15 * time.Second,
		BatchSize:    200,
	}
}

// HoldExpiryWorker returns capacity held by requests that never finished
type HoldExpiryWorker struct {
	releaser HoldReleaser
	config   *HoldExpiryWorkerConfig
	log      *logger.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool

	// Stats
	totalReleased    int64
	sweeps           int64
	lastScanTime     time.Time
	lastReleaseCount int
}

// NewHoldExpiryWorker creates a new hold expiry worker
func NewHoldExpiryWorker(releaser HoldReleaser, config *HoldExpiryWorkerConfig, log *logger.Logger) *HoldExpiryWorker {
	def := DefaultHoldExpiryWorkerConfig()
	if config == nil {
		config = def
	}
	if config.ScanInterval <= 0 {
		config.ScanInterval = def.ScanInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if log == nil {
		log = logger.Get()
	}
	return &HoldExpiryWorker{
		releaser: releaser,
		config:   config,
		log:      log,
		stopCh:   make(chan struct{}),
	}
}

// Start starts the sweep loop in the background
func (w *HoldExpiryWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("hold expiry worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info("starting hold expiry worker",
		"interval", w.config.ScanInterval.String(),
		"batch_size", w.config.BatchSize)

	w.wg.Add(1)
	go w.run(ctx)
	return nil
}

// Stop stops the worker and waits for the current sweep to finish
func (w *HoldExpiryWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("hold expiry worker stopped")
}

func (w *HoldExpiryWorker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.ScanInterval)
	defer ticker.Stop()

	w.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep releases expired holds until a batch comes back short.
// It returns the number of holds released.
func (w *HoldExpiryWorker) Sweep(ctx context.Context) int {
	total := 0
	for ctx.Err() == nil {
		n, err := w.releaser.ReleaseExpired(ctx, w.config.BatchSize)
		if err != nil {
			w.log.ErrorContext(ctx, "failed to release expired holds", "error", err)
			break
		}
		total += n
		if n < w.config.BatchSize {
			break
		}
	}

	w.mu.Lock()
	w.sweeps++
	w.totalReleased += int64(total)
	w.lastScanTime = time.Now()
	w.lastReleaseCount = total
	w.mu.Unlock()

	if total > 0 {
		w.log.InfoContext(ctx, "released expired holds", "count", total)
	}
	return total
}

// GetStats returns worker statistics
func (w *HoldExpiryWorker) GetStats() *HoldExpiryWorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return &HoldExpiryWorkerStats{
		IsRunning:        w.running,
		Sweeps:           w.sweeps,
		TotalReleased:    w.totalReleased,
		LastScanTime:     w.lastScanTime,
		LastReleaseCount: w.lastReleaseCount,
	}
}

// HoldExpiryWorkerStats contains worker statistics
type HoldExpiryWorkerStats struct {
	IsRunning        bool      `json:"is_running"`
	Sweeps           int64     `json:"sweeps"`
	TotalReleased    int64     `json:"total_released"`
	LastScanTime     time.Time `json:"last_scan_time"`
	LastReleaseCount int       `json:"last_release_count"`
}
