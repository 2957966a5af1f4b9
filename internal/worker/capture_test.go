package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingCaptureService struct {
	calls atomic.Int64
	err   error
}

func (c *countingCaptureService) RunCaptureBatch(_ context.Context, _ int) (int, error) {
	c.calls.Add(1)
	if c.err != nil {
		return 0, c.err
	}
	return 1, nil
}

func TestCaptureRunner_RunsUntilCanceled(t *testing.T) {
	t.Parallel()

	service := &countingCaptureService{}
	runner := NewCaptureRunner(service, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for service.calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("runner executed %d batches, want at least 3", service.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Run() error: %v", err)
	}
}

func TestCaptureRunner_KeepsRunningAfterBatchError(t *testing.T) {
	t.Parallel()

	service := &countingCaptureService{err: errors.New("database unavailable")}
	runner := NewCaptureRunner(service, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for service.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("runner stopped retrying after an error")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Run() error: %v", err)
	}
}
