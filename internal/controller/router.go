package controller

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/unclebandit/campaign-messaging/internal/handler"
)

type RouterConfig struct {
	Campaigns *CampaignController
	Webhook   *handler.WebhookHandler
	Health    *handler.HealthHandler
	JWTSecret string
	Log       *zap.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(cfg.Log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", cfg.Health.Check)
	r.Handle("/metrics", promhttp.Handler())

	// Provider callbacks
	r.Post("/webhook", cfg.Webhook.Handle)
	r.Post("/api/whatsapp/webhook", cfg.Webhook.Handle)

	// Campaign routes
	r.Group(func(r chi.Router) {
		r.Use(JWTAuth(cfg.JWTSecret))
		r.Post("/campaigns", cfg.Campaigns.CreateCampaign)
		r.Get("/campaigns", cfg.Campaigns.ListCampaigns)
		r.Get("/campaigns/{id}", cfg.Campaigns.GetCampaign)
		r.Post("/campaigns/{id}/start", cfg.Campaigns.StartCampaign)
	})

	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
