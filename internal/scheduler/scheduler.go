// Package scheduler drives periodic price refresh passes over stale
// products. The loop is process-scoped state with an explicit lifecycle:
// callers own the context and cancel it to stop the loop cleanly.
package scheduler

import (
	"context"
	"log"
	"time"
)

// DefaultInterval between refresh passes.
const DefaultInterval = 60 * time.Minute

// RefreshFunc runs one refresh pass and reports how many products it
// refreshed.
type RefreshFunc func(ctx context.Context) (int, error)

// Config configures the refresh loop.
type Config struct {
	// Interval between passes. Default 60 minutes.
	Interval time.Duration

	Logger *log.Logger
}

// Run executes one pass immediately, then one per interval, blocking until
// ctx is cancelled. A failed pass is logged and the loop continues;
// cancellation between passes or mid-pass stops the loop without error.
func Run(ctx context.Context, refresh RefreshFunc, cfg Config) {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Printf("[scheduler] started, interval %v", interval)

	runPass(ctx, refresh, logger)

	for {
		select {
		case <-ctx.Done():
			logger.Printf("[scheduler] stopping: %v", ctx.Err())
			return
		case <-ticker.C:
			runPass(ctx, refresh, logger)
		}
	}
}

func runPass(ctx context.Context, refresh RefreshFunc, logger *log.Logger) {
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	refreshed, err := refresh(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Printf("[scheduler] refresh pass failed: %v", err)
		return
	}
	logger.Printf("[scheduler] refresh pass done: %d products in %v", refreshed, time.Since(start))
}
