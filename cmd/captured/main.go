package main

// captured is the scheduled capture runner: it periodically settles
// authorized orders that are still waiting on capture.

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopcoreapp/shopcore/app"
	"github.com/shopcoreapp/shopcore/internal/worker"
)

func main() {
	fallbackLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	application, err := app.New()
	if err != nil {
		fallbackLogger.Error("failed to initialize app", "error", err)
		os.Exit(1)
	}

	runner := worker.NewCaptureRunner(application.Payments, application.Config.CaptureInterval, application.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	runnerErr := make(chan error, 1)
	go func() {
		runnerErr <- runner.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-runnerErr:
		cancel()
		if err != nil {
			application.Logger.Error("capture runner failed", "error", err)
			application.Close()
			os.Exit(1)
		}
	case <-quit:
		application.Logger.Info("shutting down capture runner")
		cancel()
		<-runnerErr
	}

	application.Close()
}
