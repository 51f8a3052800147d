// cmd/worker/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/unclebandit/campaign-messaging/internal/app"
	"github.com/unclebandit/campaign-messaging/internal/config"
	"github.com/unclebandit/campaign-messaging/internal/logging"
	"github.com/unclebandit/campaign-messaging/internal/metrics"
	"github.com/unclebandit/campaign-messaging/internal/telemetry"
)

// The standalone delivery worker. Run one process per WORKER_CONSUMER name.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	logger = logger.With(zap.String("consumer", cfg.WorkerConsumer))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, cfg.OTelServiceName+"-worker", cfg.OTelExporterURL)
	if err != nil {
		logger.Fatal("failed to init tracing", zap.Error(err))
	}
	defer shutdownTracing(context.Background())

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise dependencies", zap.Error(err))
	}

	metrics.Init()
	metricsServer := a.MetricsServer()
	metricsErr := a.Serve("metrics", metricsServer)
	go func() {
		if err := <-metricsErr; err != nil {
			logger.Error("metrics server error", zap.Error(err))
			stop()
		}
	}()

	if err := a.Worker().Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("worker stopped", zap.Error(err))
	}

	a.Shutdown(metricsServer)
	logger.Info("worker shutdown complete")
}
