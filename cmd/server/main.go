// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/unclebandit/campaign-messaging/internal/app"
	"github.com/unclebandit/campaign-messaging/internal/config"
	"github.com/unclebandit/campaign-messaging/internal/logging"
	"github.com/unclebandit/campaign-messaging/internal/metrics"
	"github.com/unclebandit/campaign-messaging/internal/telemetry"
)

func main() {
	// ------------------------------------------------
	// Config + Logger
	// ------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// ------------------------------------------------
	// Root Context + Shutdown
	// ------------------------------------------------
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, cfg.OTelServiceName, cfg.OTelExporterURL)
	if err != nil {
		logger.Fatal("failed to init tracing", zap.Error(err))
	}
	defer shutdownTracing(context.Background())

	// ------------------------------------------------
	// Store, Queue, Provider
	// ------------------------------------------------
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise dependencies", zap.Error(err))
	}

	metrics.Init()

	// ------------------------------------------------
	// Embedded worker
	// ------------------------------------------------
	var wg sync.WaitGroup
	if cfg.EnableWorker {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.Worker().Run(ctx); err != nil {
				logger.Error("worker stopped", zap.Error(err))
			}
		}()
	}

	// ------------------------------------------------
	// HTTP servers
	// ------------------------------------------------
	apiServer := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: a.Router(),
	}
	metricsServer := a.MetricsServer()

	apiErr := a.Serve("api", apiServer)
	metricsErr := a.Serve("metrics", metricsServer)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-apiErr:
		logger.Error("api server error", zap.Error(err))
	case err := <-metricsErr:
		logger.Error("metrics server error", zap.Error(err))
	}
	stop()

	logger.Info("shutting down services...")
	wg.Wait()
	a.Shutdown(apiServer, metricsServer)
	logger.Info("application shutdown complete")
}
