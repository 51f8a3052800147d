// internal/handler/webhook_handler.go
package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/unclebandit/campaign-messaging/internal/service"
)

// WebhookHandler receives provider delivery-status callbacks.
type WebhookHandler struct {
	Reconciler *service.Reconciler
	Log        *zap.Logger
}

func NewWebhookHandler(r *service.Reconciler, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{Reconciler: r, Log: log}
}

// Handle always answers 200 "OK", even when the callback matches nothing or
// cannot be stored.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.Log.Warn("unreadable webhook payload", zap.Error(err))
	} else if _, err := h.Reconciler.Handle(r.Context(), r.PostForm); err != nil {
		h.Log.Error("failed to reconcile callback", zap.Error(err))
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
