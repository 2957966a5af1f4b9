// Package worker runs recurring background jobs.
package worker

import (
	"context"
	"log/slog"
	"time"
)

const defaultBatchLimit = 100

type captureService interface {
	RunCaptureBatch(ctx context.Context, limit int) (int, error)
}

// CaptureRunner drives the capture batch on a fixed interval until the
// context is canceled. A failed batch is logged and retried on the
// next tick.
type CaptureRunner struct {
	payments captureService
	interval time.Duration
	limit    int
	logger   *slog.Logger
}

func NewCaptureRunner(payments captureService, interval time.Duration, logger *slog.Logger) *CaptureRunner {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CaptureRunner{
		payments: payments,
		interval: interval,
		limit:    defaultBatchLimit,
		logger:   logger,
	}
}

func (r *CaptureRunner) Run(ctx context.Context) error {
	r.logger.Info("capture runner starting", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.runOnce(ctx)

		select {
		case <-ctx.Done():
			r.logger.Info("capture runner stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (r *CaptureRunner) runOnce(ctx context.Context) {
	captured, err := r.payments.RunCaptureBatch(ctx, r.limit)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Error("capture batch failed", "error", err)
		}
		return
	}
	if captured > 0 {
		r.logger.Info("capture batch settled orders", "captured", captured)
	}
}
