// internal/app/app.go
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/unclebandit/campaign-messaging/internal/config"
	"github.com/unclebandit/campaign-messaging/internal/controller"
	"github.com/unclebandit/campaign-messaging/internal/handler"
	"github.com/unclebandit/campaign-messaging/internal/provider"
	"github.com/unclebandit/campaign-messaging/internal/queue"
	"github.com/unclebandit/campaign-messaging/internal/repository"
	"github.com/unclebandit/campaign-messaging/internal/service"
)

const shutdownTimeout = 5 * time.Second

// App holds the long-lived dependencies shared by the server and worker binaries.
type App struct {
	Config   *config.Config
	Log      *zap.Logger
	Store    *repository.Store
	Queue    queue.Queue
	Provider provider.Provider
}

// New connects the store and queue and builds the provider client. An
// unconfigured provider is logged, not fatal: sends then fail terminally.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	store, err := repository.NewStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	q, err := queue.New(cfg)
	if err != nil {
		store.Close(context.Background())
		return nil, err
	}
	if err := q.EnsureGroup(ctx); err != nil {
		log.Warn("queue not ready, worker will retry", zap.Error(err))
	}

	tw := provider.NewTwilio(provider.TwilioConfig{
		AccountSID: cfg.TwilioAccountSID,
		AuthToken:  cfg.TwilioAuthToken,
		From:       cfg.TwilioFrom,
		Channel:    cfg.TwilioChannel,
		PublicURL:  cfg.PublicURL,
		Timeout:    cfg.SendTimeout,
	})
	if !tw.Configured() {
		log.Warn("provider credentials missing, messages will fail with PROVIDER_NOT_CONFIGURED")
	}

	p := provider.NewRetrying(tw, provider.RetryPolicy{
		MaxAttempts:     cfg.SendMaxAttempts,
		InitialInterval: cfg.SendInitialBackoff,
	}, log)

	return &App{Config: cfg, Log: log, Store: store, Queue: q, Provider: p}, nil
}

func (a *App) CampaignService() *service.CampaignService {
	return service.NewCampaignService(a.Store, a.Queue, a.Log, a.Config.AllowCampaignRestart)
}

func (a *App) Worker() *service.Worker {
	return service.NewWorker(a.Queue, a.Store, a.Provider, service.WorkerConfig{
		Consumer:     a.Config.WorkerConsumer,
		BlockTimeout: a.Config.WorkerBlockTimeout,
		ErrorBackoff: a.Config.WorkerErrorBackoff,
		ClaimMinIdle: a.Config.WorkerClaimMinIdle,
		ClaimBatch:   a.Config.WorkerClaimBatch,
	}, a.Log)
}

// Router builds the public HTTP API.
func (a *App) Router() http.Handler {
	return controller.NewRouter(controller.RouterConfig{
		Campaigns: &controller.CampaignController{CampaignService: a.CampaignService(), Log: a.Log},
		Webhook:   handler.NewWebhookHandler(service.NewReconciler(a.Store.Messages, a.Provider, a.Log), a.Log),
		Health:    a.Health(),
		JWTSecret: a.Config.JWTSecret,
		Log:       a.Log,
	})
}

func (a *App) Health() *handler.HealthHandler {
	return handler.NewHealthHandler(
		handler.Check{Name: "store", Ping: a.Store.Ping},
		handler.Check{Name: "queue", Ping: a.Queue.Ping},
	)
}

// MetricsServer serves /metrics and /healthz on the metrics port.
func (a *App) MetricsServer() *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", a.Health().Check)
	return &http.Server{
		Addr:    ":" + a.Config.MetricsPort,
		Handler: mux,
	}
}

// Serve runs srv in the background. Listen errors other than a clean close
// are reported on the returned channel.
func (a *App) Serve(name string, srv *http.Server) <-chan error {
	errc := make(chan error, 1)
	go func() {
		a.Log.Info(name+" server started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()
	return errc
}

// Shutdown stops the given servers, then closes the queue and store.
func (a *App) Shutdown(servers ...*http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			a.Log.Error("server shutdown failed", zap.String("addr", srv.Addr), zap.Error(err))
		}
	}
	if err := a.Queue.Close(); err != nil {
		a.Log.Error("queue close failed", zap.Error(err))
	}
	if err := a.Store.Close(ctx); err != nil {
		a.Log.Error("store close failed", zap.Error(err))
	}
}
