package service

import (
	"context"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/unclebandit/campaign-messaging/internal/metrics"
	"github.com/unclebandit/campaign-messaging/internal/model"
	"github.com/unclebandit/campaign-messaging/internal/provider"
	"github.com/unclebandit/campaign-messaging/internal/repository"
	"github.com/unclebandit/campaign-messaging/internal/telemetry"
)

// Reconciler applies provider status callbacks to message records.
type Reconciler struct {
	MessageRepo repository.MessageRepositoryInterface
	Provider    provider.Provider
	Log         *zap.Logger

	tracer trace.Tracer
}

func NewReconciler(messages repository.MessageRepositoryInterface, p provider.Provider, log *zap.Logger) *Reconciler {
	return &Reconciler{
		MessageRepo: messages,
		Provider:    p,
		Log:         log,
		tracer:      otel.Tracer(telemetry.TracerName),
	}
}

// Handle reports whether a record was updated. Callbacks for unknown
// messages, or ones that would move a message backwards, are absorbed.
func (r *Reconciler) Handle(ctx context.Context, values url.Values) (bool, error) {
	ev := r.Provider.ParseCallback(values)

	ctx, span := r.tracer.Start(ctx, "webhook.reconcile", trace.WithAttributes(
		attribute.String("provider.sid", ev.ProviderMessageID),
		attribute.String("message.status", ev.Status),
	))
	defer span.End()

	log := r.Log.With(zap.String("provider_sid", ev.ProviderMessageID), zap.String("status", ev.Status))

	if ev.ProviderMessageID == "" || ev.Status == "" {
		log.Warn("callback without message sid or status")
		metrics.WebhookCallbacks.WithLabelValues("unmatched").Inc()
		return false, nil
	}

	status := model.MessageStatus(ev.Status)
	u := model.StatusUpdate(status)
	if ev.ErrorCode != "" {
		u = u.WithError(ev.ErrorCode)
	} else {
		u = u.WithErrorCode(nil)
	}
	u.UnlessStatusIn = model.StatusesAbove(status)

	updated, err := r.MessageRepo.UpdateByProviderSID(ctx, ev.ProviderMessageID, u)
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	if !updated {
		log.Debug("callback matched no message")
		metrics.WebhookCallbacks.WithLabelValues("unmatched").Inc()
		return false, nil
	}

	metrics.WebhookCallbacks.WithLabelValues("matched").Inc()
	log.Info("message status reconciled")
	return true, nil
}
